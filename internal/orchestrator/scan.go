package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/5kyf4ll/molly-project/internal/enrichment"
	"github.com/5kyf4ll/molly-project/internal/llm"
	"github.com/5kyf4ll/molly-project/internal/report"
	"github.com/5kyf4ll/molly-project/internal/scanner"
	"github.com/5kyf4ll/molly-project/internal/store"
	"go.uber.org/zap"
)

// handleStartNetworkScan validates the scan intent and runs the pipeline.
// A missing target is not an error: the model is asked to produce a
// clarification for the user.
func (o *Orchestrator) handleStartNetworkScan(ctx context.Context, mc *llm.ConversationContext, intent *llm.ToolIntent, userText string) Result {
	target := intent.StringParam("target")
	if target == "" {
		clarification, _, err := mc.Ask(ctx,
			"Solicitar al usuario que especifique el objetivo del escaneo, dada la falta de información en la solicitud original.",
			"Error de comando: target faltante",
			userText,
			"Respuesta amigable solicitando el IP o rango para el escaneo.")
		if err != nil {
			return Result{Response: llm.UserMessage(err)}
		}
		return Result{Response: clarification}
	}

	sessionName := intent.StringParam("session_name")
	if sessionName == "" {
		sanitized := strings.NewReplacer(".", "_", "/", "_").Replace(target)
		sessionName = fmt.Sprintf("Escaneo_IA_%s_%s", sanitized, time.Now().Format("20060102_150405"))
	}

	return o.runScanPipeline(ctx, mc, target, sessionName)
}

// runScanPipeline executes the full scan flow: create the scan record, run
// the scanner, persist the parsed topology, enrich each service with CVE and
// banner analysis, feed the aggregate back into the chat, render the PDF,
// and close the scan.
func (o *Orchestrator) runScanPipeline(ctx context.Context, mc *llm.ConversationContext, target, sessionName string) Result {
	o.logger.Info("starting network scan",
		zap.String("target", target),
		zap.String("session_name", sessionName))

	scanID, err := o.store.CreateScan(ctx, sessionName, "Network Scan", target)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateSession) {
			return Result{Response: fmt.Sprintf(
				"La sesión '%s' ya existe. Por favor, usa un nombre de sesión único.", sessionName)}
		}
		o.logger.Error("failed to create scan session", zap.Error(err))
		return Result{Response: "No se pudo crear la sesión de escaneo."}
	}

	o.session.StartScan(scanID, sessionName, "Network Scan", target)
	defer o.session.FinishScan()

	scanResult := o.nmap.Scan(ctx, target, o.scanProfile, "", o.scanTimeout)
	if !scanResult.Success {
		return o.failScan(ctx, mc, scanID, target, scanResult.Stderr)
	}

	parsed := scanner.Parse(scanResult.Stdout)

	// Deterministic order: hosts by IP, ports as reported (already ascending
	// in nmap output, sorted again for safety)
	hostIPs := make([]string, 0, len(parsed.Hosts))
	for ip := range parsed.Hosts {
		hostIPs = append(hostIPs, ip)
	}
	sort.Strings(hostIPs)

	hostsFound := 0
	cvesByService := make(map[string][]enrichment.CVERecord)
	hostIDs := make(map[string]int64)

	for _, ip := range hostIPs {
		hostData := parsed.Hosts[ip]

		hostID, err := o.store.AddHost(ctx, scanID, ip, hostData.Hostname, hostData.OSInfo)
		if err != nil {
			o.logger.Error("failed to persist host", zap.String("ip", ip), zap.Error(err))
			continue
		}
		hostIDs[ip] = hostID
		o.session.AddHost(ip, hostID)
		hostsFound++

		ports := append([]scanner.PortReport(nil), hostData.Ports...)
		sort.Slice(ports, func(i, j int) bool { return ports[i].Port < ports[j].Port })

		for _, port := range ports {
			serviceID, err := o.store.AddService(ctx, hostID, port.Port, port.Protocol,
				port.ServiceName, port.Version, port.State)
			if err != nil {
				o.logger.Error("failed to persist service",
					zap.String("ip", ip), zap.Int("port", port.Port), zap.Error(err))
				continue
			}
			o.session.AddService(ip, port.Port, port.ServiceName, serviceID)

			// Best-effort CVE enrichment; failures degrade to no records
			if port.ServiceName != "" && port.Version != "" {
				key := enrichment.ServiceKey(port.ServiceName, port.Version)
				if _, done := cvesByService[key]; !done {
					if records := o.cves.LookupService(ctx, port.ServiceName, port.Version); len(records) > 0 {
						cvesByService[key] = records
					}
				}
			}
		}
	}

	o.logger.Info("scan topology persisted",
		zap.Int64("scan_id", scanID),
		zap.Int("hosts", hostsFound))

	// Banner analysis per service, in the same deterministic order
	for _, ip := range hostIPs {
		hostID, ok := hostIDs[ip]
		if !ok {
			continue
		}
		hostData := parsed.Hosts[ip]

		ports := append([]scanner.PortReport(nil), hostData.Ports...)
		sort.Slice(ports, func(i, j int) bool { return ports[i].Port < ports[j].Port })

		for _, port := range ports {
			if err := o.analyzeServiceBanner(ctx, mc, scanID, hostID, ip, port); err != nil {
				return o.failScan(ctx, mc, scanID, target, llm.UserMessage(err))
			}
		}
	}

	toolOutput := o.buildScanToolOutput(ctx, scanID, target, hostsFound, hostIPs, parsed, cvesByService)

	followUp := fmt.Sprintf(
		"El escaneo de red en %s ha finalizado. Se han procesado los hallazgos de vulnerabilidades y se han buscado CVEs para los servicios descubiertos. "+
			"Por favor, genera un resumen conversacional y útil para el usuario, destacando los hosts, servicios, cualquier vulnerabilidad detectada "+
			"(incluyendo los CVEs si se encontraron) y sus mitigaciones. Si se encontraron CVEs, menciona que el usuario puede preguntar sobre ellos "+
			"por su ID (ej. '¿Qué es CVE-2007-2768?').", target)

	summary, err := mc.InjectToolResult(ctx, toolOutput, followUp)
	if err != nil {
		return o.failScan(ctx, mc, scanID, target, llm.UserMessage(err))
	}
	if summary == "" {
		summary = fmt.Sprintf(
			"El escaneo de %s ha finalizado y se encontraron %d hosts, pero no pude generar un resumen detallado con la IA.",
			target, hostsFound)
	}

	pdfPath := o.renderNetworkSummary(ctx, scanID, sessionName)

	update := store.ScanUpdate{Status: store.ScanStatusCompleted, Summary: &summary}
	if pdfPath != "" {
		update.ResultsPath = &pdfPath
	}
	if err := o.store.UpdateScan(ctx, scanID, update); err != nil {
		o.logger.Error("failed to close scan", zap.Int64("scan_id", scanID), zap.Error(err))
	}

	o.logger.Info("network scan completed",
		zap.Int64("scan_id", scanID),
		zap.String("session_name", sessionName))

	return Result{Response: summary, ScanID: scanID, PDFPath: pdfPath}
}

// failScan transitions a scan to failed, injects the failure into the chat,
// and returns the failure prose.
func (o *Orchestrator) failScan(ctx context.Context, mc *llm.ConversationContext, scanID int64, target, stderr string) Result {
	summary := fmt.Sprintf("El escaneo Nmap falló para %s: %s", target, stderr)
	o.logger.Error("scan failed", zap.Int64("scan_id", scanID), zap.String("stderr", stderr))

	if err := o.store.UpdateScan(ctx, scanID, store.ScanUpdate{
		Status:  store.ScanStatusFailed,
		Summary: &summary,
	}); err != nil {
		o.logger.Error("failed to mark scan failed", zap.Int64("scan_id", scanID), zap.Error(err))
	}

	if _, err := mc.InjectToolResult(ctx, map[string]any{
		"action_completed": "start_network_scan_failed",
		"target":           target,
		"error":            stderr,
	}, fmt.Sprintf("El escaneo en %s falló. ¿Cómo puedo ayudarte con esto? Necesito un nuevo objetivo o un tipo de análisis diferente.", target)); err != nil {
		o.logger.Warn("failed to inject scan failure into chat", zap.Error(err))
	}

	return Result{Response: summary, ScanID: scanID}
}

// analyzeServiceBanner asks the model for a structured vulnerability finding
// on one service and persists it when the reply decodes.
func (o *Orchestrator) analyzeServiceBanner(ctx context.Context, mc *llm.ConversationContext, scanID, hostID int64, ip string, port scanner.PortReport) error {
	objective := fmt.Sprintf(
		"Analizar el banner/versión del servicio %s en puerto %d para posibles vulnerabilidades.",
		port.ServiceName, port.Port)
	inputData := fmt.Sprintf(
		"Servicio: %s\nPuerto: %d\nProtocolo: %s\nVersión: %s\nEstado: %s",
		port.ServiceName, port.Port, port.Protocol, port.Version, port.State)

	prose, _, err := mc.Ask(ctx, objective, "Información de servicio/banner", inputData, llm.BannerAnalysisRequirements)
	if err != nil {
		return err
	}

	finding, ok := llm.ParseVulnerabilityFinding(prose)
	if !ok {
		o.logger.Warn("model produced no structured finding",
			zap.String("service", port.ServiceName),
			zap.Int("port", port.Port))
		return nil
	}

	service, err := o.store.GetServiceByPortAndHostID(ctx, port.Port, hostID)
	if err != nil {
		o.logger.Warn("service row not found for finding",
			zap.String("ip", ip), zap.Int("port", port.Port))
		return nil
	}
	host, err := o.store.GetHost(ctx, hostID)
	if err != nil {
		return nil
	}

	serviceID := service.ID
	_, err = o.store.AddFinding(ctx, store.Finding{
		ScanID:         scanID,
		HostID:         hostID,
		ServiceID:      &serviceID,
		Type:           "vulnerability",
		Title:          fmt.Sprintf("Vulnerabilidad Detectada: %s", finding.Vulnerability),
		Description:    finding.Vulnerability,
		Severity:       finding.Impact,
		Recommendation: strings.Join(finding.Mitigations, "\n"),
		Details: map[string]any{
			"ai_raw_response": prose,
			"service_info":    service,
			"host_info":       host,
		},
	})
	if err != nil {
		o.logger.Error("failed to persist finding", zap.Error(err))
		return nil
	}

	o.logger.Info("vulnerability finding recorded",
		zap.String("ip", ip),
		zap.String("service", port.ServiceName),
		zap.String("vulnerability", finding.Vulnerability))
	return nil
}

// buildScanToolOutput assembles the deterministic payload injected back into
// the chat after a scan: topology summary, CVEs per service, and formatted
// findings.
func (o *Orchestrator) buildScanToolOutput(ctx context.Context, scanID int64, target string, hostsFound int, hostIPs []string, parsed scanner.Report, cvesByService map[string][]enrichment.CVERecord) map[string]any {
	type hostSummary struct {
		IP    string `json:"ip"`
		Ports []int  `json:"ports"`
	}

	hostSummaries := make([]hostSummary, 0, len(hostIPs))
	for _, ip := range hostIPs {
		ports := make([]int, 0, len(parsed.Hosts[ip].Ports))
		for _, p := range parsed.Hosts[ip].Ports {
			ports = append(ports, p.Port)
		}
		sort.Ints(ports)
		hostSummaries = append(hostSummaries, hostSummary{IP: ip, Ports: ports})
	}

	var formattedFindings []map[string]any
	findings, err := o.store.GetFindingsForScan(ctx, scanID)
	if err != nil {
		o.logger.Warn("failed to load findings for tool output", zap.Error(err))
	}
	for _, f := range findings {
		hostIP := "N/A"
		serviceName := "N/A"
		portLabel := "N/A"
		if f.Details != nil {
			if hostInfo, ok := f.Details["host_info"].(map[string]any); ok {
				if ip, ok := hostInfo["ip_address"].(string); ok {
					hostIP = ip
				}
			}
			if svcInfo, ok := f.Details["service_info"].(map[string]any); ok {
				if name, ok := svcInfo["service_name"].(string); ok && name != "" {
					serviceName = name
				}
				if p, ok := svcInfo["port"].(float64); ok {
					portLabel = fmt.Sprintf("%.0f", p)
				}
			}
		}
		formattedFindings = append(formattedFindings, map[string]any{
			"vulnerability":  f.Description,
			"impact":         f.Severity,
			"recommendation": f.Recommendation,
			"target_host":    hostIP,
			"target_service": fmt.Sprintf("%s:%s", serviceName, portLabel),
		})
	}

	return map[string]any{
		"action_completed":  "start_network_scan",
		"target":            target,
		"scan_id":           scanID,
		"hosts_found_count": hostsFound,
		"parsed_data_summary": map[string]any{
			"hosts":                 hostSummaries,
			"cves_found_by_service": cvesByService,
		},
		"vulnerabilities_found": formattedFindings,
	}
}

// renderNetworkSummary writes the scan's summary PDF; failures log and
// return an empty path so the scan still completes.
func (o *Orchestrator) renderNetworkSummary(ctx context.Context, scanID int64, sessionName string) string {
	scan, err := o.store.GetScan(ctx, scanID)
	if err != nil {
		o.logger.Warn("failed to load scan for report", zap.Error(err))
		return ""
	}
	hosts, err := o.store.GetHostsForScan(ctx, scanID)
	if err != nil {
		o.logger.Warn("failed to load hosts for report", zap.Error(err))
		return ""
	}

	servicesByHost := make(map[string][]store.Service)
	for _, host := range hosts {
		services, err := o.store.GetServicesForHost(ctx, host.ID)
		if err != nil {
			continue
		}
		servicesByHost[host.IPAddress] = services
	}

	markdown := report.FormatNetworkScanSummary(scan, hosts, servicesByHost)
	filename := fmt.Sprintf("network_summary_%s.pdf", time.Now().Format("20060102_150405"))

	path, err := o.pdf.Generate(markdown, filename, sessionName, "")
	if err != nil {
		o.logger.Warn("failed to render network summary pdf",
			zap.Int64("scan_id", scanID), zap.Error(err))
		return ""
	}
	return path
}

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/5kyf4ll/molly-project/internal/llm"
	"github.com/5kyf4ll/molly-project/internal/report"
	"github.com/5kyf4ll/molly-project/internal/store"
	"go.uber.org/zap"
)

// handleGetScanResults loads a prior scan by id or session name, injects a
// flattened view into the chat, and returns the model's conversational
// summary.
func (o *Orchestrator) handleGetScanResults(ctx context.Context, mc *llm.ConversationContext, intent *llm.ToolIntent) string {
	var scan *store.Scan
	var err error

	if scanID := intent.IntParam("scan_id"); scanID > 0 {
		scan, err = o.store.GetScan(ctx, scanID)
	} else if sessionName := intent.StringParam("session_name"); sessionName != "" {
		scan, err = o.store.GetScanByName(ctx, sessionName)
	} else {
		err = store.ErrNotFound
	}

	if err != nil || scan == nil {
		return "No se encontraron resultados para el escaneo solicitado. Por favor, verifica el ID o nombre."
	}

	hosts, err := o.store.GetHostsForScan(ctx, scan.ID)
	if err != nil {
		o.logger.Error("failed to load hosts", zap.Int64("scan_id", scan.ID), zap.Error(err))
		return "No se pudieron recuperar los datos del escaneo."
	}

	type hostView struct {
		IPAddress string `json:"ip_address"`
		Hostname  string `json:"hostname,omitempty"`
	}
	type serviceView struct {
		Port        int    `json:"port"`
		ServiceName string `json:"service_name,omitempty"`
		Version     string `json:"version,omitempty"`
	}
	type findingView struct {
		Title       string `json:"title"`
		Severity    string `json:"severity,omitempty"`
		Description string `json:"description"`
	}

	hostViews := make([]hostView, 0, len(hosts))
	servicesByHost := make(map[string][]serviceView)
	for _, host := range hosts {
		hostViews = append(hostViews, hostView{IPAddress: host.IPAddress, Hostname: host.Hostname})

		services, err := o.store.GetServicesForHost(ctx, host.ID)
		if err != nil {
			continue
		}
		views := make([]serviceView, 0, len(services))
		for _, svc := range services {
			views = append(views, serviceView{Port: svc.Port, ServiceName: svc.ServiceName, Version: svc.Version})
		}
		servicesByHost[host.IPAddress] = views
	}

	findings, err := o.store.GetFindingsForScan(ctx, scan.ID)
	if err != nil {
		o.logger.Warn("failed to load findings", zap.Int64("scan_id", scan.ID), zap.Error(err))
	}
	findingViews := make([]findingView, 0, len(findings))
	for _, f := range findings {
		findingViews = append(findingViews, findingView{Title: f.Title, Severity: f.Severity, Description: f.Description})
	}

	formatted := map[string]any{
		"scan_details": map[string]any{
			"id":           scan.ID,
			"session_name": scan.SessionName,
			"scan_type":    scan.ScanType,
			"target":       scan.Target,
			"start_time":   scan.StartTime,
			"end_time":     scan.EndTime,
			"status":       scan.Status,
			"results_path": scan.ResultsPath,
		},
		"hosts":            hostViews,
		"services_by_host": servicesByHost,
		"findings":         findingViews,
	}

	encoded, err := json.MarshalIndent(formatted, "", "  ")
	if err != nil {
		o.logger.Error("failed to encode scan results", zap.Error(err))
		return "No se pudieron recuperar los datos del escaneo."
	}

	summary, err := mc.InjectToolResult(ctx, map[string]any{
		"action_completed": "get_scan_results",
		"data":             string(encoded),
	}, "He recuperado los detalles del escaneo. Por favor, genera un resumen conversacional de estos resultados para el usuario.")
	if err != nil {
		return llm.UserMessage(err)
	}
	if summary == "" {
		return "Resultados recuperados, pero la IA no generó un resumen de seguimiento."
	}
	return summary
}

// handleDetailedHostReport renders a per-host PDF report for a host within a
// named scan session.
func (o *Orchestrator) handleDetailedHostReport(ctx context.Context, intent *llm.ToolIntent) string {
	hostIP := intent.StringParam("host_ip")
	sessionName := intent.StringParam("session_name")

	if hostIP == "" || sessionName == "" {
		return "Por favor, especifica tanto la IP del host como el nombre de la sesión para generar el informe detallado."
	}

	notFound := fmt.Sprintf(
		"No se pudo generar el informe detallado para %s en la sesión '%s'. Verifica que el host exista en esa sesión.",
		hostIP, sessionName)

	scan, err := o.store.GetScanByName(ctx, sessionName)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			o.logger.Error("failed to load scan", zap.String("session_name", sessionName), zap.Error(err))
		}
		return notFound
	}

	host, err := o.store.GetHostByIPAndScanID(ctx, hostIP, scan.ID)
	if err != nil {
		return notFound
	}

	services, err := o.store.GetServicesForHost(ctx, host.ID)
	if err != nil {
		o.logger.Error("failed to load services", zap.Int64("host_id", host.ID), zap.Error(err))
		return notFound
	}
	findings, err := o.store.GetFindingsForScanAndHost(ctx, scan.ID, host.ID)
	if err != nil {
		o.logger.Error("failed to load findings", zap.Int64("host_id", host.ID), zap.Error(err))
		return notFound
	}

	markdown := report.FormatDetailedHostReport(host, services, findings)
	filename := fmt.Sprintf("detailed_report_%s_%s.pdf",
		strings.ReplaceAll(hostIP, ".", "_"), time.Now().Format("20060102_150405"))

	path, err := o.pdf.Generate(markdown, filename, sessionName, hostIP)
	if err != nil {
		o.logger.Error("failed to render host report", zap.String("host_ip", hostIP), zap.Error(err))
		return notFound
	}

	return fmt.Sprintf("Informe detallado para %s en la sesión '%s' generado exitosamente: %s",
		hostIP, sessionName, path)
}

// Package report formats scan data as markdown and renders it to PDF.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/5kyf4ll/molly-project/internal/store"
)

// severityOrder ranks finding severities for report sorting
var severityOrder = map[string]int{
	"Critical":      1,
	"High":          2,
	"Medium":        3,
	"Low":           4,
	"Informational": 5,
}

// FormatNetworkScanSummary renders a network scan overview: session
// metadata followed by each discovered host and its open services.
func FormatNetworkScanSummary(scan *store.Scan, hosts []store.Host, servicesByHost map[string][]store.Service) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Resumen de Escaneo de Red - Sesión: %s\n\n", scan.SessionName)
	fmt.Fprintf(&b, "**Tipo de Escaneo:** %s\n", scan.ScanType)
	fmt.Fprintf(&b, "**Objetivo:** %s\n", scan.Target)
	fmt.Fprintf(&b, "**Fecha de Inicio:** %s\n", scan.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Estado:** %s\n", scan.Status)
	if scan.EndTime != nil {
		fmt.Fprintf(&b, "**Fecha de Finalización:** %s\n", scan.EndTime.Format("2006-01-02 15:04:05"))
	}
	if scan.Summary != "" {
		fmt.Fprintf(&b, "**Resumen:** %s\n", scan.Summary)
	}
	b.WriteString("\n---\n\n")

	if len(hosts) == 0 {
		b.WriteString("No se encontraron hosts activos en este escaneo.\n")
		return b.String()
	}

	b.WriteString("## Hosts Descubiertos y Servicios Abiertos\n\n")
	for _, host := range hosts {
		fmt.Fprintf(&b, "### Host: %s", host.IPAddress)
		if host.Hostname != "" {
			fmt.Fprintf(&b, " (%s)", host.Hostname)
		}
		b.WriteString("\n")

		if host.OSInfo != "" {
			fmt.Fprintf(&b, "**SO:** %s\n", host.OSInfo)
		}

		services := servicesByHost[host.IPAddress]
		if len(services) > 0 {
			b.WriteString("**Servicios Abiertos:**\n")
			for _, svc := range services {
				fmt.Fprintf(&b, "- Puerto: %d/%s (%s v%s) Estado: %s\n",
					svc.Port, svc.Protocol, orNA(svc.ServiceName), orNA(svc.Version), orNA(svc.State))
			}
		} else {
			b.WriteString("  No se encontraron servicios abiertos en este host.\n")
		}
		b.WriteString("\n")
	}

	return b.String()
}

// FormatDetailedHostReport renders a per-host report with its services and
// severity-ordered findings.
func FormatDetailedHostReport(host *store.Host, services []store.Service, findings []store.Finding) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Informe Detallado del Host: %s", host.IPAddress)
	if host.Hostname != "" {
		fmt.Fprintf(&b, " (%s)", host.Hostname)
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "**Fecha del Informe:** %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Dirección IP:** %s\n", host.IPAddress)
	if host.Hostname != "" {
		fmt.Fprintf(&b, "**Nombre de Host:** %s\n", host.Hostname)
	}
	if host.OSInfo != "" {
		fmt.Fprintf(&b, "**Sistema Operativo:** %s\n", host.OSInfo)
	}
	b.WriteString("\n---\n\n")

	b.WriteString("## Servicios y Puertos Abiertos\n\n")
	if len(services) > 0 {
		for _, svc := range services {
			fmt.Fprintf(&b, "### Puerto: %d/%s\n", svc.Port, svc.Protocol)
			fmt.Fprintf(&b, "- **Servicio:** %s (Versión: %s)\n", orNA(svc.ServiceName), orNA(svc.Version))
			fmt.Fprintf(&b, "- **Estado:** %s\n\n", orNA(svc.State))
		}
	} else {
		b.WriteString("No se encontraron servicios abiertos para este host en el escaneo detallado.\n\n")
	}

	b.WriteString("---\n\n")

	b.WriteString("## Hallazgos de Seguridad\n\n")
	if len(findings) > 0 {
		sorted := make([]store.Finding, len(findings))
		copy(sorted, findings)
		sort.SliceStable(sorted, func(i, j int) bool {
			return severityRank(sorted[i].Severity) < severityRank(sorted[j].Severity)
		})

		for _, finding := range sorted {
			fmt.Fprintf(&b, "### %s (%s)\n", finding.Title, severityOrDefault(finding.Severity))
			fmt.Fprintf(&b, "**Tipo:** %s\n", finding.Type)

			if finding.ServiceID != nil {
				if svc := serviceByID(services, *finding.ServiceID); svc != nil {
					fmt.Fprintf(&b, "**Servicio Asociado:** %s en puerto %d/%s\n",
						orNA(svc.ServiceName), svc.Port, svc.Protocol)
				}
			}

			fmt.Fprintf(&b, "**Descripción:** %s\n", finding.Description)
			if finding.Recommendation != "" {
				fmt.Fprintf(&b, "**Recomendación:** %s\n", finding.Recommendation)
			}
			if finding.Details != nil {
				if encoded, err := json.MarshalIndent(finding.Details, "", "  "); err == nil {
					fmt.Fprintf(&b, "**Detalles Adicionales:**\n```\n%s\n```\n", encoded)
				}
			}
			b.WriteString("\n")
		}
	} else {
		b.WriteString("No se encontraron hallazgos de seguridad para este host.\n\n")
	}

	b.WriteString("\n---\n")
	b.WriteString("Fin del Informe. Generado por Molly Security AI.")

	return b.String()
}

func severityRank(severity string) int {
	if rank, ok := severityOrder[severity]; ok {
		return rank
	}
	return severityOrder["Informational"]
}

func severityOrDefault(severity string) string {
	if severity == "" {
		return "Informational"
	}
	return severity
}

func serviceByID(services []store.Service, id int64) *store.Service {
	for i := range services {
		if services[i].ID == id {
			return &services[i]
		}
	}
	return nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

package report

import (
	"strings"
	"testing"
	"time"

	"github.com/5kyf4ll/molly-project/internal/store"
	"github.com/stretchr/testify/assert"
)

func testScan() *store.Scan {
	end := time.Date(2025, 7, 11, 12, 30, 0, 0, time.UTC)
	return &store.Scan{
		ID:          1,
		SessionName: "Prueba1",
		ScanType:    "Network Scan",
		Target:      "192.168.1.0/24",
		StartTime:   time.Date(2025, 7, 11, 12, 0, 0, 0, time.UTC),
		EndTime:     &end,
		Status:      store.ScanStatusCompleted,
		Summary:     "dos hosts encontrados",
	}
}

func TestFormatNetworkScanSummary(t *testing.T) {
	hosts := []store.Host{
		{ID: 1, ScanID: 1, IPAddress: "192.168.1.1", Hostname: "gw.local", OSInfo: "Linux 5.4"},
		{ID: 2, ScanID: 1, IPAddress: "192.168.1.10"},
	}
	servicesByHost := map[string][]store.Service{
		"192.168.1.1": {
			{ID: 1, HostID: 1, Port: 22, Protocol: "tcp", ServiceName: "ssh", Version: "OpenSSH 8.9", State: "open"},
		},
	}

	md := FormatNetworkScanSummary(testScan(), hosts, servicesByHost)

	assert.Contains(t, md, "# Resumen de Escaneo de Red - Sesión: Prueba1")
	assert.Contains(t, md, "**Objetivo:** 192.168.1.0/24")
	assert.Contains(t, md, "### Host: 192.168.1.1 (gw.local)")
	assert.Contains(t, md, "**SO:** Linux 5.4")
	assert.Contains(t, md, "- Puerto: 22/tcp (ssh vOpenSSH 8.9) Estado: open")
	assert.Contains(t, md, "### Host: 192.168.1.10")
	assert.Contains(t, md, "No se encontraron servicios abiertos en este host.")
}

func TestFormatNetworkScanSummaryNoHosts(t *testing.T) {
	md := FormatNetworkScanSummary(testScan(), nil, nil)
	assert.Contains(t, md, "No se encontraron hosts activos en este escaneo.")
}

func TestFormatDetailedHostReport(t *testing.T) {
	host := &store.Host{ID: 1, ScanID: 1, IPAddress: "192.168.1.10", Hostname: "kali.local", OSInfo: "Linux 4.15"}
	serviceID := int64(5)
	services := []store.Service{
		{ID: 5, HostID: 1, Port: 21, Protocol: "tcp", ServiceName: "ftp", Version: "vsftpd 3.0.3", State: "open"},
	}
	findings := []store.Finding{
		{
			ID: 1, ScanID: 1, HostID: 1, Type: "vulnerability",
			Title: "Banner expuesto", Description: "El banner revela la versión",
			Severity: "Low",
		},
		{
			ID: 2, ScanID: 1, HostID: 1, ServiceID: &serviceID, Type: "vulnerability",
			Title: "FTP anónimo", Description: "Acceso anónimo habilitado",
			Severity: "High", Recommendation: "Deshabilitar FTP anónimo",
			Details: map[string]any{"cve_ids": []any{"CVE-1999-0497"}},
		},
	}

	md := FormatDetailedHostReport(host, services, findings)

	assert.Contains(t, md, "# Informe Detallado del Host: 192.168.1.10 (kali.local)")
	assert.Contains(t, md, "### Puerto: 21/tcp")

	// High-severity finding is listed before the low one
	highIdx := strings.Index(md, "### FTP anónimo (High)")
	lowIdx := strings.Index(md, "### Banner expuesto (Low)")
	assert.Greater(t, highIdx, -1)
	assert.Greater(t, lowIdx, highIdx, "findings sorted by severity")

	assert.Contains(t, md, "**Servicio Asociado:** ftp en puerto 21/tcp")
	assert.Contains(t, md, "**Recomendación:** Deshabilitar FTP anónimo")
	assert.Contains(t, md, "CVE-1999-0497")
	assert.Contains(t, md, "Fin del Informe. Generado por Molly Security AI.")
}

func TestFormatDetailedHostReportEmpty(t *testing.T) {
	host := &store.Host{ID: 1, ScanID: 1, IPAddress: "10.0.0.9"}

	md := FormatDetailedHostReport(host, nil, nil)

	assert.Contains(t, md, "No se encontraron servicios abiertos para este host")
	assert.Contains(t, md, "No se encontraron hallazgos de seguridad para este host.")
}

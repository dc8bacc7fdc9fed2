package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "molly_scans.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateScanDuplicateName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateScan(ctx, "Prueba1", "Network Scan", "192.168.1.1")
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	_, err = s.CreateScan(ctx, "Prueba1", "Network Scan", "10.0.0.1")
	assert.ErrorIs(t, err, ErrDuplicateSession)

	// Other names remain available
	_, err = s.CreateScan(ctx, "Prueba2", "Network Scan", "10.0.0.1")
	assert.NoError(t, err)
}

func TestScanLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateScan(ctx, "lifecycle", "Network Scan", "192.168.1.0/24")
	require.NoError(t, err)

	scan, err := s.GetScan(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ScanStatusInProgress, scan.Status)
	assert.Nil(t, scan.EndTime)

	summary := "todo bien"
	path := "instance/scans/lifecycle/report.pdf"
	err = s.UpdateScan(ctx, id, ScanUpdate{
		Status:      ScanStatusCompleted,
		Summary:     &summary,
		ResultsPath: &path,
	})
	require.NoError(t, err)

	scan, err = s.GetScan(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ScanStatusCompleted, scan.Status)
	assert.Equal(t, summary, scan.Summary)
	assert.Equal(t, path, scan.ResultsPath)
	require.NotNil(t, scan.EndTime, "terminal status sets end_time when omitted")
	assert.False(t, scan.EndTime.Before(scan.StartTime), "end_time >= start_time")
}

func TestScanStatusMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateScan(ctx, "monotonic", "Network Scan", "10.0.0.1")
	require.NoError(t, err)

	require.NoError(t, s.UpdateScan(ctx, id, ScanUpdate{Status: ScanStatusCompleted}))

	// Re-asserting the terminal status is stable
	require.NoError(t, s.UpdateScan(ctx, id, ScanUpdate{Status: ScanStatusCompleted}))
	scan, err := s.GetScan(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ScanStatusCompleted, scan.Status)

	// Terminal states are absorbing
	err = s.UpdateScan(ctx, id, ScanUpdate{Status: ScanStatusFailed})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	err = s.UpdateScan(ctx, id, ScanUpdate{Status: ScanStatusInProgress})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestHostsAndServices(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	scanID, err := s.CreateScan(ctx, "topo", "Network Scan", "192.168.1.0/24")
	require.NoError(t, err)

	hostID, err := s.AddHost(ctx, scanID, "192.168.1.10", "kali-molly.local", "Linux 4.15 - 5.10")
	require.NoError(t, err)

	_, err = s.AddService(ctx, hostID, 22, "tcp", "ssh", "OpenSSH 7.6p1", "open")
	require.NoError(t, err)
	_, err = s.AddService(ctx, hostID, 21, "tcp", "ftp", "vsftpd 3.0.3", "open")
	require.NoError(t, err)

	hosts, err := s.GetHostsForScan(ctx, scanID)
	require.NoError(t, err)
	require.Len(t, hosts, 1)
	assert.Equal(t, "kali-molly.local", hosts[0].Hostname)

	services, err := s.GetServicesForHost(ctx, hostID)
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, 21, services[0].Port, "services ordered by port")
	assert.Equal(t, 22, services[1].Port)

	host, err := s.GetHostByIPAndScanID(ctx, "192.168.1.10", scanID)
	require.NoError(t, err)
	assert.Equal(t, hostID, host.ID)

	_, err = s.GetHostByIPAndScanID(ctx, "10.9.9.9", scanID)
	assert.ErrorIs(t, err, ErrNotFound)

	svc, err := s.GetServiceByPortAndHostID(ctx, 22, hostID)
	require.NoError(t, err)
	assert.Equal(t, "ssh", svc.ServiceName)

	_, err = s.GetServiceByPortAndHostID(ctx, 8080, hostID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindingDetailsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	scanID, err := s.CreateScan(ctx, "findings", "Network Scan", "10.0.0.1")
	require.NoError(t, err)
	hostID, err := s.AddHost(ctx, scanID, "10.0.0.1", "", "")
	require.NoError(t, err)
	serviceID, err := s.AddService(ctx, hostID, 22, "tcp", "ssh", "OpenSSH 5.3p1", "open")
	require.NoError(t, err)

	details := map[string]any{
		"ai_raw_response": "banner expone versión",
		"cve_ids":         []any{"CVE-2007-2768", "CVE-2008-3844"},
		"score":           9.3,
	}

	findingID, err := s.AddFinding(ctx, Finding{
		ScanID:         scanID,
		HostID:         hostID,
		ServiceID:      &serviceID,
		Type:           "vulnerability",
		Title:          "Vulnerabilidad Detectada: SSH antiguo",
		Description:    "SSH antiguo",
		Severity:       "High",
		Recommendation: "Actualizar OpenSSH",
		Details:        details,
	})
	require.NoError(t, err)
	assert.Greater(t, findingID, int64(0))

	findings, err := s.GetFindingsForScan(ctx, scanID)
	require.NoError(t, err)
	require.Len(t, findings, 1)

	got := findings[0]
	assert.Equal(t, scanID, got.ScanID)
	assert.Equal(t, hostID, got.HostID)
	require.NotNil(t, got.ServiceID)
	assert.Equal(t, serviceID, *got.ServiceID)
	assert.Equal(t, details, got.Details, "details round-trip through JSON text")
	assert.False(t, got.Timestamp.IsZero())

	byHost, err := s.GetFindingsForScanAndHost(ctx, scanID, hostID)
	require.NoError(t, err)
	assert.Len(t, byHost, 1)

	other, err := s.GetFindingsForScanAndHost(ctx, scanID, hostID+99)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestFindingInvalidDetailsSentinel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	scanID, err := s.CreateScan(ctx, "corrupt", "Network Scan", "10.0.0.1")
	require.NoError(t, err)
	hostID, err := s.AddHost(ctx, scanID, "10.0.0.1", "", "")
	require.NoError(t, err)

	// Corrupt the blob directly; readers must get the sentinel, never raw bytes
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO findings (scan_id, host_id, type, title, description, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)",
		scanID, hostID, "vulnerability", "t", "d", "{broken json", time.Now().Format(time.RFC3339Nano))
	require.NoError(t, err)

	findings, err := s.GetFindingsForScan(ctx, scanID)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, map[string]any{"error": "invalid encoded details"}, findings[0].Details)
}

func TestGetAllScansOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateScan(ctx, "first", "Network Scan", "10.0.0.1")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = s.CreateScan(ctx, "second", "Network Scan", "10.0.0.2")
	require.NoError(t, err)

	scans, err := s.GetAllScans(ctx)
	require.NoError(t, err)
	require.Len(t, scans, 2)
	assert.Equal(t, "second", scans[0].SessionName, "newest first")
}

func TestGetScanByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateScan(ctx, "S1", "Network Scan", "10.0.0.1")
	require.NoError(t, err)

	scan, err := s.GetScanByName(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, id, scan.ID)

	_, err = s.GetScanByName(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetScan(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentCreateScanUniqueName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const workers = 8
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, err := s.CreateScan(ctx, "race", "Network Scan", "10.0.0.1")
			errs <- err
		}()
	}

	succeeded := 0
	for i := 0; i < workers; i++ {
		if err := <-errs; err == nil {
			succeeded++
		} else {
			assert.True(t, errors.Is(err, ErrDuplicateSession), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one creation with a given name may succeed")
}

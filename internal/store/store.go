package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var (
	// ErrDuplicateSession indicates a scan session name is already in use
	ErrDuplicateSession = errors.New("scan session name already exists")

	// ErrNotFound indicates the requested record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrInvalidTransition indicates a disallowed scan status change
	ErrInvalidTransition = errors.New("invalid scan status transition")
)

// invalidDetailsSentinel replaces a details blob that failed to decode, so
// readers never see raw bytes
var invalidDetailsSentinel = map[string]any{"error": "invalid encoded details"}

const schema = `
CREATE TABLE IF NOT EXISTS scans (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_name TEXT NOT NULL UNIQUE,
	scan_type TEXT NOT NULL,
	target TEXT NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT,
	status TEXT NOT NULL,
	summary TEXT,
	results_path TEXT
);
CREATE TABLE IF NOT EXISTS hosts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	scan_id INTEGER NOT NULL,
	ip_address TEXT NOT NULL,
	hostname TEXT,
	os_info TEXT,
	FOREIGN KEY (scan_id) REFERENCES scans(id)
);
CREATE TABLE IF NOT EXISTS services (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	host_id INTEGER NOT NULL,
	port INTEGER NOT NULL,
	protocol TEXT NOT NULL,
	service_name TEXT,
	version TEXT,
	state TEXT,
	FOREIGN KEY (host_id) REFERENCES hosts(id)
);
CREATE TABLE IF NOT EXISTS findings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	scan_id INTEGER NOT NULL,
	host_id INTEGER NOT NULL,
	service_id INTEGER,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	severity TEXT,
	recommendation TEXT,
	details TEXT,
	timestamp TEXT NOT NULL,
	FOREIGN KEY (scan_id) REFERENCES scans(id),
	FOREIGN KEY (host_id) REFERENCES hosts(id),
	FOREIGN KEY (service_id) REFERENCES services(id)
);
`

// Store provides typed operations over the scan database. Every write is
// committed per call; SQLite serializes concurrent writers.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates or opens the scan database at the given path, creating parent
// directories as needed.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Info("scan database opened", zap.String("path", path))

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateScan inserts a new scan session in the in_progress state and returns
// its id. Session names are globally unique; reuse is a creation error.
func (s *Store) CreateScan(ctx context.Context, sessionName, scanType, target string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO scans (session_name, scan_type, target, start_time, status) VALUES (?, ?, ?, ?, ?)",
		sessionName, scanType, target, time.Now().Format(time.RFC3339Nano), ScanStatusInProgress.String())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateSession, sessionName)
		}
		return 0, fmt.Errorf("failed to create scan: %w", err)
	}
	return res.LastInsertId()
}

// UpdateScan applies a partial update to a scan. Terminal states are
// absorbing: once completed or failed, only a re-assertion of the same
// status is accepted (and applied, so the row stays stable). When a scan
// first reaches a terminal status and no end time is supplied, the current
// time is used; a re-assertion leaves the recorded end time as it is.
func (s *Store) UpdateScan(ctx context.Context, scanID int64, update ScanUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}

	current, err := s.GetScan(ctx, scanID)
	if err != nil {
		return err
	}
	if !current.Status.CanTransition(update.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, update.Status)
	}

	sets := []string{"status = ?"}
	args := []any{update.Status.String()}

	endTime := update.EndTime
	if endTime == nil && update.Status.IsTerminal() && !current.Status.IsTerminal() {
		now := time.Now()
		endTime = &now
	}
	if endTime != nil {
		sets = append(sets, "end_time = ?")
		args = append(args, endTime.Format(time.RFC3339Nano))
	}
	if update.Summary != nil {
		sets = append(sets, "summary = ?")
		args = append(args, *update.Summary)
	}
	if update.ResultsPath != nil {
		sets = append(sets, "results_path = ?")
		args = append(args, *update.ResultsPath)
	}

	args = append(args, scanID)
	query := fmt.Sprintf("UPDATE scans SET %s WHERE id = ?", strings.Join(sets, ", "))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update scan %d: %w", scanID, err)
	}

	s.logger.Info("scan updated",
		zap.Int64("scan_id", scanID),
		zap.String("status", update.Status.String()))
	return nil
}

// AddHost appends a discovered host to a scan and returns its id
func (s *Store) AddHost(ctx context.Context, scanID int64, ipAddress, hostname, osInfo string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO hosts (scan_id, ip_address, hostname, os_info) VALUES (?, ?, ?, ?)",
		scanID, ipAddress, nullable(hostname), nullable(osInfo))
	if err != nil {
		return 0, fmt.Errorf("failed to add host %s: %w", ipAddress, err)
	}
	return res.LastInsertId()
}

// AddService appends a discovered service to a host and returns its id
func (s *Store) AddService(ctx context.Context, hostID int64, port int, protocol, serviceName, version, state string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO services (host_id, port, protocol, service_name, version, state) VALUES (?, ?, ?, ?, ?, ?)",
		hostID, port, protocol, nullable(serviceName), nullable(version), nullable(state))
	if err != nil {
		return 0, fmt.Errorf("failed to add service %d/%s: %w", port, protocol, err)
	}
	return res.LastInsertId()
}

// AddFinding appends a security finding and returns its id. Details are
// serialized to JSON text.
func (s *Store) AddFinding(ctx context.Context, f Finding) (int64, error) {
	var detailsJSON any
	if f.Details != nil {
		encoded, err := json.Marshal(f.Details)
		if err != nil {
			return 0, fmt.Errorf("failed to encode finding details: %w", err)
		}
		detailsJSON = string(encoded)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO findings (scan_id, host_id, service_id, type, title, description, severity, recommendation, details, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ScanID, f.HostID, f.ServiceID, f.Type, f.Title, f.Description,
		nullable(f.Severity), nullable(f.Recommendation), detailsJSON,
		time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to add finding %q: %w", f.Title, err)
	}
	return res.LastInsertId()
}

// GetScan retrieves a scan by id
func (s *Store) GetScan(ctx context.Context, scanID int64) (*Scan, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, session_name, scan_type, target, start_time, end_time, status, summary, results_path FROM scans WHERE id = ?", scanID)
	return scanScan(row)
}

// GetScanByName retrieves a scan by its session name
func (s *Store) GetScanByName(ctx context.Context, sessionName string) (*Scan, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, session_name, scan_type, target, start_time, end_time, status, summary, results_path FROM scans WHERE session_name = ?", sessionName)
	return scanScan(row)
}

// GetAllScans retrieves every scan session, newest first
func (s *Store) GetAllScans(ctx context.Context) ([]Scan, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_name, scan_type, target, start_time, end_time, status, summary, results_path FROM scans ORDER BY start_time DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		scan, err := scanScanRows(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, *scan)
	}
	return scans, rows.Err()
}

// GetHostsForScan retrieves all hosts discovered by a scan
func (s *Store) GetHostsForScan(ctx context.Context, scanID int64) ([]Host, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, scan_id, ip_address, hostname, os_info FROM hosts WHERE scan_id = ? ORDER BY id", scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts for scan %d: %w", scanID, err)
	}
	defer rows.Close()

	var hosts []Host
	for rows.Next() {
		var h Host
		var hostname, osInfo sql.NullString
		if err := rows.Scan(&h.ID, &h.ScanID, &h.IPAddress, &hostname, &osInfo); err != nil {
			return nil, err
		}
		h.Hostname = hostname.String
		h.OSInfo = osInfo.String
		hosts = append(hosts, h)
	}
	return hosts, rows.Err()
}

// GetHost retrieves a host by id
func (s *Store) GetHost(ctx context.Context, hostID int64) (*Host, error) {
	var h Host
	var hostname, osInfo sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, scan_id, ip_address, hostname, os_info FROM hosts WHERE id = ?", hostID).
		Scan(&h.ID, &h.ScanID, &h.IPAddress, &hostname, &osInfo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	h.Hostname = hostname.String
	h.OSInfo = osInfo.String
	return &h, nil
}

// GetHostByIPAndScanID resolves a host row from its IP within a scan
func (s *Store) GetHostByIPAndScanID(ctx context.Context, ipAddress string, scanID int64) (*Host, error) {
	var h Host
	var hostname, osInfo sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, scan_id, ip_address, hostname, os_info FROM hosts WHERE ip_address = ? AND scan_id = ?", ipAddress, scanID).
		Scan(&h.ID, &h.ScanID, &h.IPAddress, &hostname, &osInfo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	h.Hostname = hostname.String
	h.OSInfo = osInfo.String
	return &h, nil
}

// GetServicesForHost retrieves all services on a host, ordered by port
func (s *Store) GetServicesForHost(ctx context.Context, hostID int64) ([]Service, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, host_id, port, protocol, service_name, version, state FROM services WHERE host_id = ? ORDER BY port", hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to list services for host %d: %w", hostID, err)
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, *svc)
	}
	return services, rows.Err()
}

// GetService retrieves a service by id
func (s *Store) GetService(ctx context.Context, serviceID int64) (*Service, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, host_id, port, protocol, service_name, version, state FROM services WHERE id = ?", serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ErrNotFound
	}
	return scanService(rows)
}

// GetServiceByPortAndHostID resolves a service row from its port within a host
func (s *Store) GetServiceByPortAndHostID(ctx context.Context, port int, hostID int64) (*Service, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, host_id, port, protocol, service_name, version, state FROM services WHERE port = ? AND host_id = ?", port, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ErrNotFound
	}
	return scanService(rows)
}

// GetFindingsForScan retrieves all findings for a scan with decoded details
func (s *Store) GetFindingsForScan(ctx context.Context, scanID int64) ([]Finding, error) {
	return s.queryFindings(ctx,
		"SELECT id, scan_id, host_id, service_id, type, title, description, severity, recommendation, details, timestamp FROM findings WHERE scan_id = ? ORDER BY id",
		scanID)
}

// GetFindingsForScanAndHost retrieves a host's findings within a scan
func (s *Store) GetFindingsForScanAndHost(ctx context.Context, scanID, hostID int64) ([]Finding, error) {
	return s.queryFindings(ctx,
		"SELECT id, scan_id, host_id, service_id, type, title, description, severity, recommendation, details, timestamp FROM findings WHERE scan_id = ? AND host_id = ? ORDER BY id",
		scanID, hostID)
}

func (s *Store) queryFindings(ctx context.Context, query string, args ...any) ([]Finding, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list findings: %w", err)
	}
	defer rows.Close()

	var findings []Finding
	for rows.Next() {
		var f Finding
		var serviceID sql.NullInt64
		var severity, recommendation, details sql.NullString
		var ts string
		if err := rows.Scan(&f.ID, &f.ScanID, &f.HostID, &serviceID, &f.Type, &f.Title,
			&f.Description, &severity, &recommendation, &details, &ts); err != nil {
			return nil, err
		}
		if serviceID.Valid {
			f.ServiceID = &serviceID.Int64
		}
		f.Severity = severity.String
		f.Recommendation = recommendation.String
		f.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)

		if details.Valid && details.String != "" {
			var decoded map[string]any
			if err := json.Unmarshal([]byte(details.String), &decoded); err != nil {
				s.logger.Warn("finding has undecodable details",
					zap.Int64("finding_id", f.ID), zap.Error(err))
				decoded = invalidDetailsSentinel
			}
			f.Details = decoded
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanScan(row *sql.Row) (*Scan, error) {
	scan, err := scanScanFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return scan, err
}

func scanScanRows(rows *sql.Rows) (*Scan, error) {
	return scanScanFrom(rows)
}

func scanScanFrom(r rowScanner) (*Scan, error) {
	var scan Scan
	var status string
	var startTime string
	var endTime, summary, resultsPath sql.NullString

	if err := r.Scan(&scan.ID, &scan.SessionName, &scan.ScanType, &scan.Target,
		&startTime, &endTime, &status, &summary, &resultsPath); err != nil {
		return nil, err
	}

	scan.Status = ScanStatus(status)
	scan.StartTime, _ = time.Parse(time.RFC3339Nano, startTime)
	if endTime.Valid {
		t, err := time.Parse(time.RFC3339Nano, endTime.String)
		if err == nil {
			scan.EndTime = &t
		}
	}
	scan.Summary = summary.String
	scan.ResultsPath = resultsPath.String
	return &scan, nil
}

func scanService(rows *sql.Rows) (*Service, error) {
	var svc Service
	var serviceName, version, state sql.NullString
	if err := rows.Scan(&svc.ID, &svc.HostID, &svc.Port, &svc.Protocol, &serviceName, &version, &state); err != nil {
		return nil, err
	}
	svc.ServiceName = serviceName.String
	svc.Version = version.String
	svc.State = state.String
	return &svc, nil
}

// nullable maps empty strings to SQL NULL
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueViolation detects a UNIQUE constraint failure from the sqlite driver
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

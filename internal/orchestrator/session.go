package orchestrator

import (
	"sync"
)

// DiscoveredHost is an in-memory record of a host found by the running scan
type DiscoveredHost struct {
	IPAddress string
	HostID    int64
}

// DiscoveredService is an in-memory record of a service found by the running scan
type DiscoveredService struct {
	Port        int
	ServiceName string
	ServiceID   int64
}

// sessionState tracks the operational context of the most recent scan:
// which scan is active, its target, and what the pipeline has discovered so
// far. It is owned by the orchestrator and read by the session-status API.
type sessionState struct {
	mu sync.RWMutex

	scanID      int64
	sessionName string
	scanType    string
	target      string

	discoveredHosts []DiscoveredHost
	servicesByHost  map[string][]DiscoveredService
	scanActive      bool
}

func newSessionState() *sessionState {
	return &sessionState{
		servicesByHost: make(map[string][]DiscoveredService),
	}
}

// StartScan resets the context for a new scan session
func (s *sessionState) StartScan(scanID int64, sessionName, scanType, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanID = scanID
	s.sessionName = sessionName
	s.scanType = scanType
	s.target = target
	s.discoveredHosts = nil
	s.servicesByHost = make(map[string][]DiscoveredService)
	s.scanActive = true
}

// FinishScan marks the active scan as done; the last scan id and name remain
// queryable.
func (s *sessionState) FinishScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanActive = false
}

// AddHost records a discovered host for the active scan
func (s *sessionState) AddHost(ipAddress string, hostID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discoveredHosts = append(s.discoveredHosts, DiscoveredHost{IPAddress: ipAddress, HostID: hostID})
}

// AddService records a discovered service for a host in the active scan
func (s *sessionState) AddService(ipAddress string, port int, serviceName string, serviceID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servicesByHost[ipAddress] = append(s.servicesByHost[ipAddress], DiscoveredService{
		Port:        port,
		ServiceName: serviceName,
		ServiceID:   serviceID,
	})
}

// Status reports the session surface exposed by /api/session_status
func (s *sessionState) Status() (status, activeProject string, lastScanID int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status = "idle"
	if s.scanActive {
		status = "scanning"
	}
	return status, s.sessionName, s.scanID
}

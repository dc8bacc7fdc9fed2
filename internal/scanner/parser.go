package scanner

import (
	"regexp"
	"strconv"
	"strings"
)

// PortReport is a single open port discovered on a host
type PortReport struct {
	Port        int    `json:"port"`
	Protocol    string `json:"protocol"`
	State       string `json:"state"`
	ServiceName string `json:"service_name"`
	Version     string `json:"version"`
}

// HostReport is a single host block from an nmap report
type HostReport struct {
	Hostname string       `json:"hostname"`
	OSInfo   string       `json:"os_info,omitempty"`
	Ports    []PortReport `json:"ports"`
}

// Report is the parsed form of an nmap textual report, keyed by IP
type Report struct {
	Hosts map[string]*HostReport `json:"hosts"`
}

var (
	hostPattern = regexp.MustCompile(`Nmap scan report for ([\d.]+)(?: \(([\w.-]+)\))?`)
	portPattern = regexp.MustCompile(`^(\d+)/(\w+)\s+([a-zA-Z]+)\s+([\w.-]+)?\s*(.*)?`)
	osPattern   = regexp.MustCompile(`OS details: (.*)`)
)

// Parse transforms nmap's textual output into a host/port tree. The parser is
// a line matcher: lines that match no rule are dropped, and malformed input
// degrades to an empty report rather than an error. It holds no state across
// invocations.
func Parse(output string) Report {
	report := Report{Hosts: make(map[string]*HostReport)}

	var current *HostReport

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		if m := hostPattern.FindStringSubmatch(line); m != nil {
			ip := m[1]
			hostname := m[2]
			if hostname == "" {
				hostname = ip
			}
			current = &HostReport{Hostname: hostname}
			report.Hosts[ip] = current
			continue
		}

		if current == nil {
			continue
		}

		if m := portPattern.FindStringSubmatch(line); m != nil {
			port, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			serviceName := m[4]
			if serviceName == "" {
				serviceName = "unknown"
			}
			version := strings.TrimSpace(m[5])
			if version == "" {
				version = "N/A"
			}
			current.Ports = append(current.Ports, PortReport{
				Port:        port,
				Protocol:    m[2],
				State:       m[3],
				ServiceName: serviceName,
				Version:     version,
			})
			continue
		}

		if m := osPattern.FindStringSubmatch(line); m != nil {
			current.OSInfo = strings.TrimSpace(m[1])
		}
	}

	return report
}

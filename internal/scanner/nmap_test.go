package scanner

import (
	"strings"
	"testing"
)

func TestBuildCommand(t *testing.T) {
	nmap := NewNmap(nil, "", nil)

	tests := []struct {
		name         string
		target       string
		profile      string
		ports        string
		wantContains []string
		wantSuffix   string
	}{
		{
			name:         "default profile",
			target:       "192.168.1.1",
			profile:      ProfileDefault,
			wantContains: []string{"nmap -T4", "-sS -sV -O", "--min-rate 500", "--max-rate 1000", "--open"},
			wantSuffix:   "192.168.1.1",
		},
		{
			name:         "os detection",
			target:       "10.0.0.1",
			profile:      ProfileOSDetection,
			wantContains: []string{"nmap -T4 -O"},
			wantSuffix:   "10.0.0.1",
		},
		{
			name:         "full tcp udp",
			target:       "10.0.0.0/24",
			profile:      ProfileFullTCPUDP,
			wantContains: []string{"-sS -sU -p 1-1024", "--max-rate 500"},
			wantSuffix:   "10.0.0.0/24",
		},
		{
			name:         "vulnerability scripts",
			target:       "10.0.0.1",
			profile:      ProfileVulnScript,
			wantContains: []string{"-sV -sC --script vuln"},
			wantSuffix:   "10.0.0.1",
		},
		{
			name:         "unknown profile falls back",
			target:       "10.0.0.1",
			profile:      "made_up",
			wantContains: []string{"nmap -T4 -sS -sV"},
			wantSuffix:   "10.0.0.1",
		},
		{
			name:         "explicit ports",
			target:       "10.0.0.1",
			profile:      ProfileOSDetection,
			ports:        "22,80,443",
			wantContains: []string{"-p 22,80,443"},
			wantSuffix:   "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			command := nmap.BuildCommand(tt.target, tt.profile, tt.ports)

			for _, want := range tt.wantContains {
				if !strings.Contains(command, want) {
					t.Errorf("BuildCommand() = %q, want it to contain %q", command, want)
				}
			}
			if !strings.HasSuffix(command, tt.wantSuffix) {
				t.Errorf("BuildCommand() = %q, want target %q last", command, tt.wantSuffix)
			}
		})
	}
}

func TestNewNmapDefaultBinary(t *testing.T) {
	nmap := NewNmap(nil, "", nil)
	if !strings.HasPrefix(nmap.BuildCommand("1.2.3.4", ProfileOSDetection, ""), "nmap ") {
		t.Error("empty binary should default to nmap")
	}

	custom := NewNmap(nil, "/usr/local/bin/nmap", nil)
	if !strings.HasPrefix(custom.BuildCommand("1.2.3.4", ProfileOSDetection, ""), "/usr/local/bin/nmap ") {
		t.Error("custom binary path not used")
	}
}

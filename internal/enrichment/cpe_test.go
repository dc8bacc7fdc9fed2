package enrichment

import (
	"regexp"
	"testing"
)

var cpePattern = regexp.MustCompile(`^cpe:2\.3:a:[a-z0-9_]+:[a-z0-9_]+:[0-9][0-9a-zA-Z._\-]*:\*:\*:\*:\*:\*:\*:\*$`)

func TestConstructCPE(t *testing.T) {
	tests := []struct {
		name        string
		serviceName string
		version     string
		generic     bool
		want        string
		wantOK      bool
	}{
		{
			name:        "openssh with distro suffix",
			serviceName: "ssh",
			version:     "OpenSSH 5.3p1 Debian 3ubuntu7",
			want:        "cpe:2.3:a:openbsd:openssh:5.3p1:*:*:*:*:*:*:*",
			wantOK:      true,
		},
		{
			name:        "openssh generic truncates to two components",
			serviceName: "ssh",
			version:     "OpenSSH 5.3p1 Debian 3ubuntu7",
			generic:     true,
			want:        "cpe:2.3:a:openbsd:openssh:5.3:*:*:*:*:*:*:*",
			wantOK:      true,
		},
		{
			name:        "apache httpd remapped to http_server",
			serviceName: "apache httpd",
			version:     "2.4.52",
			want:        "cpe:2.3:a:apache:http_server:2.4.52:*:*:*:*:*:*:*",
			wantOK:      true,
		},
		{
			name:        "ms-wbt-server remapped to windows_server",
			serviceName: "ms-wbt-server",
			version:     "10.0",
			want:        "cpe:2.3:a:microsoft:windows_server:10.0:*:*:*:*:*:*:*",
			wantOK:      true,
		},
		{
			name:        "parenthesized fragment stripped",
			serviceName: "ssh",
			version:     "OpenSSH 7.6p1 Ubuntu 4 (Ubuntu Linux; protocol 2.0)",
			want:        "cpe:2.3:a:openbsd:openssh:7.6p1:*:*:*:*:*:*:*",
			wantOK:      true,
		},
		{
			name:        "hyphenated suffix dropped",
			serviceName: "nginx",
			version:     "1.24.0-beta",
			want:        "cpe:2.3:a:nginx:nginx:1.24.0:*:*:*:*:*:*:*",
			wantOK:      true,
		},
		{
			name:        "unknown service reuses token as vendor",
			serviceName: "vsftpd",
			version:     "3.0.3",
			want:        "cpe:2.3:a:vsftpd:vsftpd:3.0.3:*:*:*:*:*:*:*",
			wantOK:      true,
		},
		{
			name:        "bind maps to isc",
			serviceName: "bind",
			version:     "9.11.3",
			want:        "cpe:2.3:a:isc:bind:9.11.3:*:*:*:*:*:*:*",
			wantOK:      true,
		},
		{
			name:        "no extractable version",
			serviceName: "ssh",
			version:     "N/A",
			wantOK:      false,
		},
		{
			name:        "empty version",
			serviceName: "ssh",
			version:     "",
			wantOK:      false,
		},
		{
			name:        "empty service",
			serviceName: "",
			version:     "1.0",
			wantOK:      false,
		},
		{
			name:        "generic single component stays",
			serviceName: "mysql",
			version:     "8",
			generic:     true,
			want:        "cpe:2.3:a:mysql:mysql:8:*:*:*:*:*:*:*",
			wantOK:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ConstructCPE(tt.serviceName, tt.version, tt.generic)

			if ok != tt.wantOK {
				t.Fatalf("ConstructCPE() ok = %v, want %v (got %q)", ok, tt.wantOK, got)
			}
			if !tt.wantOK {
				return
			}
			if got != tt.want {
				t.Errorf("ConstructCPE() = %q, want %q", got, tt.want)
			}
			if !cpePattern.MatchString(got) {
				t.Errorf("ConstructCPE() = %q does not match the CPE shape", got)
			}
		})
	}
}

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		generic bool
		want    string
		wantOK  bool
	}{
		{name: "plain", version: "2.4.41", want: "2.4.41", wantOK: true},
		{name: "patch letter", version: "5.3p1", want: "5.3p1", wantOK: true},
		{name: "leading product token", version: "OpenSSH 8.2p1", want: "8.2p1", wantOK: true},
		{name: "generic three components", version: "2.4.41", generic: true, want: "2.4", wantOK: true},
		{name: "no digits", version: "unknown", wantOK: false},
		{name: "empty", version: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeVersion(tt.version, tt.generic)
			if ok != tt.wantOK {
				t.Fatalf("NormalizeVersion() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want && tt.wantOK {
				t.Errorf("NormalizeVersion() = %q, want %q", got, tt.want)
			}
		})
	}
}

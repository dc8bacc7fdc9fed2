// Package enrichment correlates discovered services with the NVD
// vulnerability database via CPE identifiers.
package enrichment

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// parenthesized fragments such as "(Ubuntu Linux; protocol 2.0)"
	parenPattern = regexp.MustCompile(`\s*\(.*?\)\s*`)

	// main version token: "8.9", "5.3p1", "2.4.41", "1.2_3"
	versionPattern = regexp.MustCompile(`(\d+(\.\d+)*([a-zA-Z]\d+)?(?:[_\-.]\d+)*)`)

	// numeric-dotted fallback when the main pattern finds nothing
	numericPattern = regexp.MustCompile(`\d+(\.\d+)*`)

	splitPattern = regexp.MustCompile(`[\s\-]`)

	// first two purely numeric dotted components, for generic CPEs:
	// "5.3p1" -> "5.3", "2.4.41" -> "2.4"
	genericPattern = regexp.MustCompile(`^\d+(\.\d+)?`)
)

// vendorMap maps normalized service names to NVD vendor strings. Unknown
// services reuse the service token as vendor.
var vendorMap = map[string]string{
	"openssh":                     "openbsd",
	"ssh":                         "openbsd",
	"apache_httpd":                "apache",
	"nginx":                       "nginx",
	"mysql":                       "mysql",
	"postgresql":                  "postgresql",
	"bind":                        "isc",
	"microsoft_terminal_services": "microsoft",
	"ms_wbt_server":               "microsoft",
}

// NormalizeVersion reduces a raw service version banner to the version token
// used in a CPE. With generic set, the result is truncated to its leading
// numeric part of at most two dotted components ("5.3p1" -> "5.3",
// "2.4.41" -> "2.4") for broader matching. Returns false when no usable
// version could be extracted.
func NormalizeVersion(version string, generic bool) (string, bool) {
	cleaned := strings.TrimSpace(parenPattern.ReplaceAllString(version, ""))

	var normalized string
	if m := versionPattern.FindString(cleaned); m != "" {
		// drop anything after the first space or hyphen: "5.3p1 Debian" -> "5.3p1"
		normalized = splitPattern.Split(m, 2)[0]
	} else if m := numericPattern.FindString(cleaned); m != "" {
		normalized = m
	}

	if normalized == "" {
		return "", false
	}

	if generic {
		if m := genericPattern.FindString(normalized); m != "" {
			normalized = m
		}
	}

	return normalized, true
}

// ConstructCPE builds a CPE 2.3 application identifier from a service name
// and version banner. Returns false when the service or version cannot be
// mapped to a usable identifier.
func ConstructCPE(serviceName, version string, generic bool) (string, bool) {
	if serviceName == "" || version == "" {
		return "", false
	}

	normalizedVersion, ok := NormalizeVersion(version, generic)
	if !ok {
		return "", false
	}

	service := normalizeService(serviceName)

	vendor, exists := vendorMap[service]
	if !exists {
		vendor = service
	}

	product := service
	switch service {
	case "apache_httpd":
		product = "http_server"
	case "openssh", "ssh":
		product = "openssh"
	case "ms_wbt_server":
		product = "windows_server"
	}

	return fmt.Sprintf("cpe:2.3:a:%s:%s:%s:*:*:*:*:*:*:*", vendor, product, normalizedVersion), true
}

// normalizeService lowercases a service token and flattens separators
func normalizeService(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

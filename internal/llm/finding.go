package llm

import (
	"encoding/json"
	"strings"
)

// VulnerabilityFinding is the structured banner-analysis result the model is
// asked to produce for each discovered service.
type VulnerabilityFinding struct {
	Vulnerability string   `json:"vulnerability"`
	Impact        string   `json:"impact"`
	Mitigations   []string `json:"mitigations"`
}

// ParseVulnerabilityFinding decodes a model reply expected to carry a
// vulnerability finding object. Fences are stripped; a reply missing any of
// the three required keys is rejected.
func ParseVulnerabilityFinding(text string) (*VulnerabilityFinding, bool) {
	payload := text
	if inner, ok := fencedJSON(text); ok {
		payload = inner
	}
	payload = strings.TrimSpace(payload)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, false
	}
	for _, key := range []string{"vulnerability", "impact", "mitigations"} {
		if _, present := raw[key]; !present {
			return nil, false
		}
	}

	var finding VulnerabilityFinding
	if err := json.Unmarshal([]byte(payload), &finding); err != nil {
		return nil, false
	}
	return &finding, true
}

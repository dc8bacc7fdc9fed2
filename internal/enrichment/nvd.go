package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultNVDBaseURL is the NVD CVE API endpoint
	DefaultNVDBaseURL = "https://services.nvd.nist.gov/rest/json/cves/2.0"

	// Rate limits (requests per 30 seconds)
	nvdRateLimitPublic  = 5
	nvdRateLimitWithKey = 50

	// DefaultResultsPerPage bounds how many CVE records a lookup returns
	DefaultResultsPerPage = 5

	// DefaultRequestTimeout bounds each outbound NVD request
	DefaultRequestTimeout = 10 * time.Second
)

// CVERecord is the summarized form of a single NVD vulnerability entry
type CVERecord struct {
	CVEID        string   `json:"cve_id"`
	Description  string   `json:"description"`
	CVSSScore    float64  `json:"cvss_score"`
	CVSSSeverity string   `json:"cvss_severity"`
	References   []string `json:"references"`
}

// nvdResponse mirrors the NVD API response structure
type nvdResponse struct {
	TotalResults    int `json:"totalResults"`
	Vulnerabilities []struct {
		CVE struct {
			ID           string `json:"id"`
			Descriptions []struct {
				Lang  string `json:"lang"`
				Value string `json:"value"`
			} `json:"descriptions"`
			Metrics struct {
				CVSSMetricV31 []cvssMetric `json:"cvssMetricV31"`
				CVSSMetricV30 []cvssMetric `json:"cvssMetricV30"`
				CVSSMetricV2  []cvssMetric `json:"cvssMetricV2"`
			} `json:"metrics"`
			References []struct {
				URL string `json:"url"`
			} `json:"references"`
		} `json:"cve"`
	} `json:"vulnerabilities"`
}

type cvssMetric struct {
	CVSSData struct {
		BaseScore    float64 `json:"baseScore"`
		BaseSeverity string  `json:"baseSeverity"`
	} `json:"cvssData"`
	BaseSeverity string `json:"baseSeverity"`
}

// NVDClient queries the NVD vulnerability database by CPE. Lookups are
// best-effort: every failure degrades to an empty result so enrichment never
// blocks a scan pipeline.
type NVDClient struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	resultsPerPage int
	limiter        *rate.Limiter
	logger         *zap.Logger
}

// NVDOption customizes an NVDClient
type NVDOption func(*NVDClient)

// WithBaseURL overrides the NVD endpoint (used by tests)
func WithBaseURL(baseURL string) NVDOption {
	return func(c *NVDClient) { c.baseURL = baseURL }
}

// WithRequestTimeout overrides the per-request timeout
func WithRequestTimeout(timeout time.Duration) NVDOption {
	return func(c *NVDClient) { c.httpClient.Timeout = timeout }
}

// WithResultsPerPage overrides the maximum records per lookup
func WithResultsPerPage(n int) NVDOption {
	return func(c *NVDClient) {
		if n > 0 {
			c.resultsPerPage = n
		}
	}
}

// NewNVDClient creates an NVD API client. The rate limit depends on whether
// an API key is configured.
func NewNVDClient(apiKey string, logger *zap.Logger, opts ...NVDOption) *NVDClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	rateLimit := nvdRateLimitPublic
	if apiKey != "" {
		rateLimit = nvdRateLimitWithKey
	}

	client := &NVDClient{
		httpClient:     &http.Client{Timeout: DefaultRequestTimeout},
		baseURL:        DefaultNVDBaseURL,
		apiKey:         apiKey,
		resultsPerPage: DefaultResultsPerPage,
		limiter:        rate.NewLimiter(rate.Every(30*time.Second/time.Duration(rateLimit)), rateLimit),
		logger:         logger,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Lookup queries the NVD for vulnerabilities matching a CPE identifier.
// Errors are logged and yield an empty slice.
func (c *NVDClient) Lookup(ctx context.Context, cpe string) []CVERecord {
	if err := c.limiter.Wait(ctx); err != nil {
		c.logger.Warn("nvd rate limiter interrupted", zap.Error(err))
		return nil
	}

	reqURL, err := url.Parse(c.baseURL)
	if err != nil {
		c.logger.Error("invalid nvd base url", zap.Error(err))
		return nil
	}

	query := reqURL.Query()
	query.Set("cpeName", cpe)
	query.Set("resultsPerPage", strconv.Itoa(c.resultsPerPage))
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		c.logger.Error("failed to build nvd request", zap.Error(err))
		return nil
	}
	if c.apiKey != "" {
		req.Header.Set("apiKey", c.apiKey)
	}

	c.logger.Debug("querying nvd", zap.String("cpe", cpe))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("nvd request failed", zap.String("cpe", cpe), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("nvd returned non-200 status",
			zap.String("cpe", cpe),
			zap.Int("status", resp.StatusCode))
		return nil
	}

	var nvdResp nvdResponse
	if err := json.NewDecoder(resp.Body).Decode(&nvdResp); err != nil {
		c.logger.Warn("failed to decode nvd response", zap.String("cpe", cpe), zap.Error(err))
		return nil
	}

	return summarize(nvdResp)
}

// LookupService resolves CVEs for a service name and version banner. The
// exact-version CPE is tried first; when it yields nothing the generic
// (two-component) CPE is tried unless identical. The first non-empty result
// wins.
func (c *NVDClient) LookupService(ctx context.Context, serviceName, version string) []CVERecord {
	var attempts []string

	if exact, ok := ConstructCPE(serviceName, version, false); ok {
		attempts = append(attempts, exact)
	}
	if generic, ok := ConstructCPE(serviceName, version, true); ok {
		if len(attempts) == 0 || generic != attempts[0] {
			attempts = append(attempts, generic)
		}
	}

	for _, cpe := range attempts {
		records := c.Lookup(ctx, cpe)
		if len(records) > 0 {
			ids := make([]string, 0, len(records))
			for _, r := range records {
				ids = append(ids, r.CVEID)
			}
			c.logger.Info("cves found for service",
				zap.String("service", serviceName),
				zap.String("version", version),
				zap.String("cpe", cpe),
				zap.Strings("cve_ids", ids))
			return records
		}
	}

	return nil
}

// summarize converts a raw NVD response into CVERecords, preferring CVSS
// v3.1 metrics, then v3.0, then v2.
func summarize(resp nvdResponse) []CVERecord {
	records := make([]CVERecord, 0, len(resp.Vulnerabilities))

	for _, vuln := range resp.Vulnerabilities {
		cve := vuln.CVE

		description := "No description available."
		for _, desc := range cve.Descriptions {
			if desc.Lang == "en" {
				description = desc.Value
				break
			}
		}

		var score float64
		severity := "N/A"
		switch {
		case len(cve.Metrics.CVSSMetricV31) > 0:
			m := cve.Metrics.CVSSMetricV31[0]
			score = m.CVSSData.BaseScore
			severity = m.CVSSData.BaseSeverity
		case len(cve.Metrics.CVSSMetricV30) > 0:
			m := cve.Metrics.CVSSMetricV30[0]
			score = m.CVSSData.BaseScore
			severity = m.CVSSData.BaseSeverity
		case len(cve.Metrics.CVSSMetricV2) > 0:
			m := cve.Metrics.CVSSMetricV2[0]
			score = m.CVSSData.BaseScore
			severity = m.BaseSeverity
		}

		refs := make([]string, 0, len(cve.References))
		for _, ref := range cve.References {
			if ref.URL != "" {
				refs = append(refs, ref.URL)
			}
		}

		records = append(records, CVERecord{
			CVEID:        cve.ID,
			Description:  description,
			CVSSScore:    score,
			CVSSSeverity: severity,
			References:   refs,
		})
	}

	return records
}

// ServiceKey builds the map key used to group CVEs by service in scan output
func ServiceKey(serviceName, version string) string {
	return fmt.Sprintf("%s %s", serviceName, version)
}

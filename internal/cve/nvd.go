package cve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const nvdBaseURL = "https://services.nvd.nist.gov/rest/json/cves/2.0"

// NVDClient fetches one CVE's enrichment data from the vulnerability
// database collaborator (spec.md §6). Every call passes through a
// RateLimiter first.
type NVDClient struct {
	httpClient *http.Client
	apiKey     string
	limiter    *RateLimiter
	timeout    time.Duration
	baseURL    string
}

// NewNVDClient constructs a client. apiKey empty means the unauthenticated
// (5-per-30s) capacity applies; callers should construct the RateLimiter
// accordingly (spec.md §4.5).
func NewNVDClient(apiKey string, limiter *RateLimiter, timeout time.Duration) *NVDClient {
	return &NVDClient{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     apiKey,
		limiter:    limiter,
		timeout:    timeout,
		baseURL:    nvdBaseURL,
	}
}

// Enrichment is the parsed-down subset of NVD's response this system
// persists as an ArticleCVE row (spec.md §4.5).
type Enrichment struct {
	CVSSScore     *float64
	Severity      string
	Description   string
	CPEMatches    []string
	PublishedDate *time.Time
}

type nvdResponse struct {
	Vulnerabilities []nvdVulnerability `json:"vulnerabilities"`
}

type nvdVulnerability struct {
	CVE nvdCVE `json:"cve"`
}

type nvdCVE struct {
	ID             string            `json:"id"`
	Published      string            `json:"published"`
	Descriptions   []nvdDescription  `json:"descriptions"`
	Metrics        nvdMetrics        `json:"metrics"`
	Configurations []nvdConfiguration `json:"configurations"`
}

type nvdDescription struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

type nvdMetrics struct {
	CvssMetricV31 []cvssMetric `json:"cvssMetricV31"`
	CvssMetricV30 []cvssMetric `json:"cvssMetricV30"`
	CvssMetricV2  []cvssMetric `json:"cvssMetricV2"`
}

type nvdConfiguration struct {
	Nodes []nvdNode `json:"nodes"`
}

type nvdNode struct {
	CPEMatch []nvdCPEMatch `json:"cpeMatch"`
}

type nvdCPEMatch struct {
	Criteria string `json:"criteria"`
}

type cvssMetric struct {
	CVSSData struct {
		BaseScore float64 `json:"baseScore"`
	} `json:"cvssData"`
	BaseSeverity string `json:"baseSeverity"`
}

// Fetch retrieves and parses one CVE, blocking on the rate limiter first.
func (c *NVDClient) Fetch(ctx context.Context, cveID string) (Enrichment, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Enrichment{}, fmt.Errorf("rate limiter wait: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return Enrichment{}, fmt.Errorf("building NVD request: %w", err)
	}
	q := req.URL.Query()
	q.Set("cveId", cveID)
	req.URL.RawQuery = q.Encode()
	if c.apiKey != "" {
		req.Header.Set("apiKey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Enrichment{}, fmt.Errorf("NVD request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Enrichment{}, fmt.Errorf("NVD returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Enrichment{}, fmt.Errorf("reading NVD response: %w", err)
	}

	var parsed nvdResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Enrichment{}, fmt.Errorf("parsing NVD response: %w", err)
	}
	if len(parsed.Vulnerabilities) == 0 {
		return Enrichment{}, fmt.Errorf("NVD returned no data for %s", cveID)
	}

	return parseEnrichment(parsed.Vulnerabilities[0].CVE), nil
}

func parseEnrichment(cve nvdCVE) Enrichment {
	var out Enrichment

	// CVSS selection order: v3.1 -> v3.0 -> v2 base score; severity from
	// the first present v3.x (spec.md §4.5).
	switch {
	case len(cve.Metrics.CvssMetricV31) > 0:
		m := cve.Metrics.CvssMetricV31[0]
		score := m.CVSSData.BaseScore
		out.CVSSScore = &score
		out.Severity = m.BaseSeverity
	case len(cve.Metrics.CvssMetricV30) > 0:
		m := cve.Metrics.CvssMetricV30[0]
		score := m.CVSSData.BaseScore
		out.CVSSScore = &score
		out.Severity = m.BaseSeverity
	case len(cve.Metrics.CvssMetricV2) > 0:
		m := cve.Metrics.CvssMetricV2[0]
		score := m.CVSSData.BaseScore
		out.CVSSScore = &score
	}

	for _, d := range cve.Descriptions {
		if d.Lang == "en" {
			desc := d.Value
			if len([]rune(desc)) > 2000 {
				desc = string([]rune(desc)[:2000])
			}
			out.Description = desc
			break
		}
	}

	for _, cfg := range cve.Configurations {
		for _, node := range cfg.Nodes {
			for _, match := range node.CPEMatch {
				out.CPEMatches = append(out.CPEMatches, match.Criteria)
			}
		}
	}

	if cve.Published != "" {
		if t, err := time.Parse(time.RFC3339, cve.Published); err == nil {
			out.PublishedDate = &t
		}
	}

	return out
}

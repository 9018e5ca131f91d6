package cve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"cyberdigest/internal/model"
)

const kevCatalogURL = "https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json"

type kevResponse struct {
	Vulnerabilities []kevVulnerability `json:"vulnerabilities"`
}

type kevVulnerability struct {
	CveID                      string `json:"cveID"`
	VendorProject              string `json:"vendorProject"`
	Product                    string `json:"product"`
	DateAdded                  string `json:"dateAdded"`
	DueDate                    string `json:"dueDate"`
	KnownRansomwareCampaignUse string `json:"knownRansomwareCampaignUse"`
}

// KEVCatalog is the process-wide, single-fetch-per-TTL cache of the CISA
// Known Exploited Vulnerabilities catalog (spec.md §4.5, §5). The first
// caller to miss the TTL performs the fetch; concurrent callers during
// that fetch wait on the same sync.WaitGroup rather than issuing redundant
// requests — spec.md §5 accepts either behavior ("coalesce ... or accept a
// brief race"), but a single in-flight fetch is cheap to provide here.
type KEVCatalog struct {
	httpClient *http.Client
	ttl        time.Duration
	url        string

	mu      sync.Mutex
	entries map[string]model.KEVEntry
	fetched time.Time
	loading *sync.WaitGroup
}

// NewKEVCatalog constructs an empty catalog; the first Lookup call
// performs the initial fetch.
func NewKEVCatalog(ttl time.Duration) *KEVCatalog {
	return &KEVCatalog{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		ttl:        ttl,
		url:        kevCatalogURL,
		entries:    map[string]model.KEVEntry{},
	}
}

// Lookup returns the KEV entry for cveID, refreshing the catalog first if
// its TTL has expired. On refresh failure the stale cache is used if
// present; an empty map otherwise (spec.md §4.5).
func (k *KEVCatalog) Lookup(ctx context.Context, cveID string) (model.KEVEntry, bool) {
	k.ensureFresh(ctx)

	k.mu.Lock()
	defer k.mu.Unlock()
	entry, ok := k.entries[cveID]
	return entry, ok
}

// ensureFresh triggers a refresh if the TTL has lapsed. Concurrent callers
// past the TTL coalesce onto the same in-flight fetch via k.loading.
func (k *KEVCatalog) ensureFresh(ctx context.Context) {
	k.mu.Lock()
	if time.Since(k.fetched) < k.ttl && k.fetched.IsZero() == false {
		k.mu.Unlock()
		return
	}
	if k.loading != nil {
		wg := k.loading
		k.mu.Unlock()
		wg.Wait()
		return
	}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	k.loading = wg
	k.mu.Unlock()

	k.refresh(ctx)

	k.mu.Lock()
	k.loading = nil
	k.mu.Unlock()
	wg.Done()
}

// refresh fetches and parses the catalog, swapping it in on success. On
// failure the existing (possibly stale) entries are left untouched.
func (k *KEVCatalog) refresh(ctx context.Context) {
	entries, err := k.fetch(ctx)
	k.mu.Lock()
	defer k.mu.Unlock()
	if err != nil {
		// stale-cache-on-failure per spec.md §4.5; if this is the very
		// first fetch, entries stays empty which is the documented
		// fallback.
		k.fetched = time.Now()
		return
	}
	k.entries = entries
	k.fetched = time.Now()
}

func (k *KEVCatalog) fetch(ctx context.Context) (map[string]model.KEVEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building KEV request: %w", err)
	}

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("KEV fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("KEV fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading KEV response: %w", err)
	}

	var parsed kevResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing KEV response: %w", err)
	}

	out := make(map[string]model.KEVEntry, len(parsed.Vulnerabilities))
	for _, v := range parsed.Vulnerabilities {
		entry := model.KEVEntry{
			CVEID:         v.CveID,
			Vendor:        v.VendorProject,
			Product:       v.Product,
			RansomwareUse: v.KnownRansomwareCampaignUse == "Known",
		}
		if t, err := time.Parse("2006-01-02", v.DateAdded); err == nil {
			entry.DateAdded = t
		}
		if t, err := time.Parse("2006-01-02", v.DueDate); err == nil {
			entry.DueDate = t
		}
		out[v.CveID] = entry
	}
	return out, nil
}

// ApplyKEV joins a KEV entry onto an enrichment result's KEV fields, used
// right before an ArticleCVE upsert (spec.md §4.5).
func ApplyKEV(cveID string, entry model.KEVEntry, found bool) (inKEV bool, dateAdded, dueDate *time.Time, ransomware bool) {
	if !found {
		return false, nil, nil, false
	}
	da, dd := entry.DateAdded, entry.DueDate
	return true, &da, &dd, entry.RansomwareUse
}

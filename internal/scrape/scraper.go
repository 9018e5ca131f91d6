// Package scrape implements the feed scraper and its cross-user cache
// (spec.md §4.1, component C1).
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"cyberdigest/internal/model"
)

const userAgent = "CyberDigest/1.0 (+security intelligence digest)"

// SSRFValidator mirrors the teacher's security.SSRFGuardService surface
// (internal/security/ssrf_guard.go): a safe client plus URL validation,
// reused unchanged here since C1 and C3 share the same outbound-fetch
// threat model.
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Scraper fetches and parses RSS/Atom sources and single-page websites,
// serving cached parses to peer users per spec.md §4.1.
type Scraper struct {
	cache        Cache
	ssrfGuard    SSRFValidator
	fetchTimeout time.Duration
	cacheTTL     time.Duration
	maxItemAge   time.Duration
}

// New constructs a Scraper.
func New(cache Cache, ssrfGuard SSRFValidator, fetchTimeout, cacheTTL, maxItemAge time.Duration) *Scraper {
	return &Scraper{
		cache:        cache,
		ssrfGuard:    ssrfGuard,
		fetchTimeout: fetchTimeout,
		cacheTTL:     cacheTTL,
		maxItemAge:   maxItemAge,
	}
}

// Scrape returns the parsed articles for one source. The items carry no
// source id. A cache hit skips the upstream fetch entirely (invariant 4
// in spec.md §8); a cache miss fetches, parses and caches the result.
// Either way, items older than maxItemAge are dropped before returning.
func (s *Scraper) Scrape(ctx context.Context, source *model.Source) ([]model.ParsedItem, error) {
	if cached, ok, err := s.cache.Get(ctx, source.URL); err != nil {
		return nil, err
	} else if ok {
		return s.tagAndFilter(cached, source), nil
	}

	items, err := s.fetch(ctx, source)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, source.URL, items, s.cacheTTL); err != nil {
		return nil, err
	}
	return s.tagAndFilter(items, source), nil
}

// tagAndFilter drops anything older than maxItemAge (spec.md §4.1). It
// does not attach the source id: ParsedItem has no field for it.
func (s *Scraper) tagAndFilter(items []model.ParsedItem, source *model.Source) []model.ParsedItem {
	cutoff := time.Now().Add(-s.maxItemAge)
	out := make([]model.ParsedItem, 0, len(items))
	for _, item := range items {
		if item.PublishedAt != nil && item.PublishedAt.Before(cutoff) {
			continue
		}
		out = append(out, item)
	}
	_ = source // source id is carried by the caller after persistence lookup, not on ParsedItem itself
	return out
}

func (s *Scraper) fetch(ctx context.Context, source *model.Source) ([]model.ParsedItem, error) {
	if err := s.ssrfGuard.ValidateURL(source.URL); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBlocked, err.Error())
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	client := s.ssrfGuard.NewSafeClient(s.fetchTimeout, 5*1024*1024)
	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/html, */*")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %s", ErrUnreachable, err.Error())
	}

	switch source.Type {
	case model.SourceTypeWebsite:
		return parseWebsite(body, source.URL)
	default:
		return parseFeed(body)
	}
}

func parseFeed(body []byte) ([]model.ParsedItem, error) {
	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrParseFailed, err.Error())
	}

	items := make([]model.ParsedItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil || it.Link == "" {
			continue
		}
		parsed := model.ParsedItem{
			Title:   it.Title,
			URL:     it.Link,
			Snippet: firstNonEmpty(it.Description, it.Content),
			GUID:    it.GUID,
		}
		if it.Author != nil {
			parsed.Author = it.Author.Name
		} else if len(it.Authors) > 0 && it.Authors[0] != nil {
			parsed.Author = it.Authors[0].Name
		}
		if it.PublishedParsed != nil {
			t := *it.PublishedParsed
			parsed.PublishedAt = &t
		} else if it.UpdatedParsed != nil {
			t := *it.UpdatedParsed
			parsed.PublishedAt = &t
		}
		for _, cat := range it.Categories {
			parsed.Tags = append(parsed.Tags, cat)
		}
		items = append(items, parsed)
	}
	return items, nil
}

// parseWebsite turns a single HTML page into one pseudo-article, using the
// page title/meta-description the way a reader would skim it before the
// content extractor (C3) does the deeper readability pass.
func parseWebsite(body []byte, pageURL string) ([]model.ParsedItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrParseFailed, err.Error())
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	desc, _ := doc.Find(`meta[name="description"]`).Attr("content")

	return []model.ParsedItem{{
		Title:   title,
		URL:     pageURL,
		Snippet: strings.TrimSpace(desc),
	}}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Package content implements the content extractor (spec.md §4.3,
// component C3): fetch the article page, pull the readable body out of the
// markup, and collect outbound links for downstream entity work.
package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"

	"cyberdigest/internal/model"
)

const maxExternalLinks = 50

// SSRFValidator mirrors scrape.SSRFValidator; C1 and C3 share the same
// outbound-fetch threat model and safe-client construction.
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Result is what Extract produces for one article.
type Result struct {
	CleanText     string
	ExternalLinks []string
}

// Extractor runs the readability pass and link collection.
type Extractor struct {
	ssrfGuard   SSRFValidator
	timeout     time.Duration
	maxBytes    int64
	maxChars    int
	stripPolicy *bluemonday.Policy
}

// New constructs an Extractor. maxBytes/maxChars/timeout come from
// spec.md §4.3 defaults (20s, 500KB, 15000 chars) but are configurable.
func New(ssrfGuard SSRFValidator, timeout time.Duration, maxBytes int64, maxChars int) *Extractor {
	return &Extractor{
		ssrfGuard:   ssrfGuard,
		timeout:     timeout,
		maxBytes:    maxBytes,
		maxChars:    maxChars,
		stripPolicy: bluemonday.StrictPolicy(),
	}
}

// Extract fetches articleURL and returns its readable body plus outbound
// links. Any failure here is transient-I/O per spec.md §7: the caller logs
// and continues with the RSS snippet.
func (e *Extractor) Extract(ctx context.Context, articleURL string) (Result, error) {
	if err := e.ssrfGuard.ValidateURL(articleURL); err != nil {
		return Result{}, fmt.Errorf("content fetch blocked: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	client := e.ssrfGuard.NewSafeClient(e.timeout, e.maxBytes)
	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, articleURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("building content request: %w", err)
	}
	req.Header.Set("User-Agent", "CyberDigest/1.0 (+security intelligence digest)")

	resp, err := client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("fetching article body: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Result{}, fmt.Errorf("article fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes))
	if err != nil {
		return Result{}, fmt.Errorf("reading article body: %w", err)
	}

	parsed, err := url.Parse(articleURL)
	if err != nil {
		return Result{}, fmt.Errorf("invalid article url: %w", err)
	}

	cleanText, err := e.readableText(body, parsed)
	if err != nil {
		return Result{}, err
	}

	links := extractOutboundLinks(body, parsed)

	return Result{CleanText: cleanText, ExternalLinks: links}, nil
}

func (e *Extractor) readableText(body []byte, base *url.URL) (string, error) {
	article, err := readability.FromReader(strings.NewReader(string(body)), base)
	if err != nil {
		return "", fmt.Errorf("readability extraction failed: %w", err)
	}

	text := e.stripPolicy.Sanitize(article.Content)
	if strings.TrimSpace(text) == "" {
		text = article.TextContent
	}
	text = collapseWhitespace(text)

	if len([]rune(text)) > e.maxChars {
		text = string([]rune(text)[:e.maxChars])
	}
	return text, nil
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// extractOutboundLinks parses every href, resolves it against base, and
// keeps http(s) links whose host differs from the source host, deduped
// and capped at 50 (spec.md §4.3).
func extractOutboundLinks(body []byte, base *url.URL) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return true
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return true
		}
		if strings.EqualFold(resolved.Host, base.Host) {
			return true
		}
		resolved.Fragment = ""
		link := resolved.String()
		if seen[link] {
			return true
		}
		seen[link] = true
		out = append(out, link)
		return len(out) < maxExternalLinks
	})
	return out
}

// ApplyTo writes the extraction result onto an Article's mutable fields,
// leaving the RSS snippet fallback untouched on failure.
func ApplyTo(article *model.Article, result Result) {
	article.CleanText = result.CleanText
	article.ExternalLinks = result.ExternalLinks
}

package scrape

import "errors"

// Sentinel causes wrapped into Scrape's error return so callers (C10, the
// scheduler's pre-warm pass) can classify a transient I/O failure per
// spec.md §7 without string-matching.
var (
	ErrUnreachable = errors.New("feed unreachable")
	ErrParseFailed = errors.New("feed parse failed")
	ErrBlocked     = errors.New("url blocked by ssrf guard")
)

package model

import "time"

// ArticleCVE is one CVE mention found in an article, enriched from the
// vulnerability database and joined with the KEV catalog.
type ArticleCVE struct {
	ArticleID        string
	CVEID            string
	CVSSScore        *float64
	Severity         string
	Description      string
	CPEMatches       []string
	PublishedDate    *time.Time
	InKEV            bool
	KEVDateAdded      *time.Time
	KEVDueDate        *time.Time
	KEVRansomwareUse  bool
}

// KEVEntry is one record from the CISA Known Exploited Vulnerabilities
// catalog, keyed by CVE ID in the in-process cache.
type KEVEntry struct {
	CVEID         string
	DateAdded     time.Time
	DueDate       time.Time
	RansomwareUse bool
	Vendor        string
	Product       string
}

// Package model defines the domain entities shared across the digest
// pipeline and the exposure engine.
package model

import "time"

// DigestFrequency is the closed set of cadences a user's digest can run on.
type DigestFrequency string

const (
	FrequencyHourly    DigestFrequency = "1h"
	FrequencyEvery3h   DigestFrequency = "3h"
	FrequencyEvery6h   DigestFrequency = "6h"
	FrequencyEvery12h  DigestFrequency = "12h"
	FrequencyDaily     DigestFrequency = "1d"
	FrequencyEvery3d   DigestFrequency = "3d"
	FrequencyWeekly    DigestFrequency = "7d"
)

// FreqIntervals maps each closed-set frequency to its scheduling interval.
// A frequency not present here is never due (spec.md §4.11).
var FreqIntervals = map[DigestFrequency]time.Duration{
	FrequencyHourly:   time.Hour,
	FrequencyEvery3h:  3 * time.Hour,
	FrequencyEvery6h:  6 * time.Hour,
	FrequencyEvery12h: 12 * time.Hour,
	FrequencyDaily:    24 * time.Hour,
	FrequencyEvery3d:  3 * 24 * time.Hour,
	FrequencyWeekly:   7 * 24 * time.Hour,
}

// Session is an authenticated HTTP API session, part of the out-of-core
// auth collaborator (spec.md §1, §6) — the core pipeline never reads it,
// but the minimal HTTP trigger surface does.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// User is a subscriber of the digest pipeline.
type User struct {
	ID           string
	IndustryID   string // empty when the user has no declared industry
	Frequency    DigestFrequency
	DigestTime   string // "HH:MM" in UTC, only consulted when interval >= 1 day
	LastDigestAt *time.Time
	EmailEnabled bool
	Onboarded    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SourceType is the closed set of feed source kinds.
type SourceType string

const (
	SourceTypeRSS     SourceType = "RSS"
	SourceTypeWebsite SourceType = "WEBSITE"
)

// Source is a single feed a user has subscribed to.
type Source struct {
	ID        string
	UserID    string
	URL       string
	Name      string
	Type      SourceType
	Active    bool
	CreatedAt time.Time
}

// Keyword is a user's normalized match term.
type Keyword struct {
	ID        string
	UserID    string
	Word      string // normalized lowercase
	CreatedAt time.Time
}

// TechStackCategory groups a declared stack item by rough product class.
// Left open-ended (free text) per spec.md, which only constrains vendor/
// product/version normalization, not category vocabulary.
type TechStackCategory string

// TechStackItem is one product in a user's declared technology inventory.
type TechStackItem struct {
	ID         string
	UserID     string
	Vendor     string // normalized: lowercase, spaces -> "_"
	Product    string // normalized: lowercase, spaces -> "_"
	Version    string
	Category   TechStackCategory
	CPEPattern string
	Active     bool
}

package model

import "time"

// Period is the closed set of rollup windows (spec.md §3, §4.8).
type Period string

const (
	Period1Day   Period = "1d"
	Period7Days  Period = "7d"
	Period30Days Period = "30d"
)

// PeriodDays maps each period to its lookback window in days.
var PeriodDays = map[Period]int{
	Period1Day:   1,
	Period7Days:  7,
	Period30Days: 30,
}

// PeriodReport is the per-user, per-period rollup (spec.md §3). Stats is a
// semi-structured JSON blob (ReportStats marshaled) so downstream readers
// that predate a given field addition keep working.
type PeriodReport struct {
	UserID      string
	Period      Period
	FromDate    time.Time
	ToDate      time.Time
	Summary     string
	Stats       ReportStats
	GeneratedAt time.Time
}

// PeriodSnapshot is a daily point-in-time capture of remediation metrics,
// used to compute deltas against an earlier snapshot.
type PeriodSnapshot struct {
	UserID   string
	Period   Period
	SnapDate time.Time // UTC midnight
	Metrics  RemediationMetrics
}

// CaseTypeCount is a histogram bucket over CaseType.
type CaseTypeCount struct {
	CaseType CaseType `json:"caseType"`
	Count    int      `json:"count"`
}

// NamedCount is a generic (name, count) pair used for signal/entity
// distributions.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DayCount is one bucket of the stories-per-day histogram, inclusive of
// empty days.
type DayCount struct {
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
}

// CVEBucketCounts is the CVSS-severity histogram over unique CVEs in a
// reporting window.
type CVEBucketCounts struct {
	Critical int `json:"critical"` // >= 9
	High     int `json:"high"`     // [7, 9)
	Medium   int `json:"medium"`   // [4, 7)
	Low      int `json:"low"`      // < 4
}

// KEVDue is one KEV CVE with its remediation due date, surfaced in the
// report's CVE section.
type KEVDue struct {
	CVEID   string     `json:"cveId"`
	DueDate *time.Time `json:"dueDate"`
}

// TopCVE is one entry in the top-10-by-CVSS list.
type TopCVE struct {
	CVEID string   `json:"cveId"`
	CVSS  *float64 `json:"cvss"`
}

// CVEMetrics is the CVE section of a period report's stats blob.
type CVEMetrics struct {
	UniqueCount int             `json:"uniqueCount"`
	Buckets     CVEBucketCounts `json:"buckets"`
	KEVCount    int             `json:"kevCount"`
	AvgCVSS     float64         `json:"avgCvss"`
	MaxCVSS     float64         `json:"maxCvss"`
	Top10       []TopCVE        `json:"top10"`
	KEVDue      []KEVDue        `json:"kevDue"`
}

// ReportStats is the full typed shape behind PeriodReport.Stats. It is
// marshaled to/from the JSON blob the persistence layer stores, per
// spec.md §9 ("a typed representation is recommended but the wire format
// must remain a JSON object").
type ReportStats struct {
	StoryTotalsByCaseType []CaseTypeCount `json:"storyTotalsByCaseType"`
	SignalDistribution    []NamedCount    `json:"signalDistribution"`
	TopEntities           []NamedCount    `json:"topEntities"`
	TopAffectedProducts   []NamedCount    `json:"topAffectedProducts"`
	TopAffectedSectors    []NamedCount    `json:"topAffectedSectors"`
	TopThreatActors       []NamedCount    `json:"topThreatActors"`
	StoriesPerDay         []DayCount      `json:"storiesPerDay"`
	CVE                   CVEMetrics      `json:"cve"`
}

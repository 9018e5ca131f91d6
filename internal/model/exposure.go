package model

import "time"

// ExposureState is the closed state machine the exposure engine (C9)
// classifies a user/CVE pair into.
type ExposureState string

const (
	ExposureVulnerable    ExposureState = "VULNERABLE"
	ExposureFixed         ExposureState = "FIXED"
	ExposureNotApplicable ExposureState = "NOT_APPLICABLE"
	ExposureIndirect      ExposureState = "INDIRECT"
)

// MatchLevel is the CPE match tier (§4.9), highest-wins.
type MatchLevel string

const (
	MatchNone    MatchLevel = ""
	MatchVendor  MatchLevel = "vendor"
	MatchProduct MatchLevel = "product"
	MatchExact   MatchLevel = "exact"
)

// StateForMatch applies the fixed null/vendor/product-or-exact -> state
// mapping from spec.md §4.9.
func StateForMatch(level MatchLevel) ExposureState {
	switch level {
	case MatchVendor:
		return ExposureIndirect
	case MatchProduct, MatchExact:
		return ExposureVulnerable
	default:
		return ExposureNotApplicable
	}
}

// UserCVEExposure is a user's running relationship to one CVE.
type UserCVEExposure struct {
	UserID               string
	CVEID                string
	ArticleCVEID         string
	TechStackItemID       string
	State                ExposureState
	AutoClassified       bool
	MatchedCPE           string
	FirstDetectedAt      time.Time
	PatchedAt            *time.Time
	RemediationDeadline  *time.Time
	Notes                string
}

// RemediationMetrics is the pure aggregation spec.md §4.9 defines over a
// user's exposure ledger. All percentages/averages are rounded to 1
// decimal place before being surfaced.
type RemediationMetrics struct {
	PatchRatePercent     float64 `json:"patchRatePercent"`
	SLACompliancePercent float64 `json:"slaCompliancePercent"`
	MTTRAvgDays          float64 `json:"mttrAvgDays"`
	MTTRMedianDays       float64 `json:"mttrMedianDays"`
	KEVExposureCount     int     `json:"kevExposureCount"`
	KEVOverdueCount      int     `json:"kevOverdueCount"`
	CriticalExposedCount int     `json:"criticalExposedCount"`
	AvgCVSSExposed       float64 `json:"avgCvssExposed"`
}

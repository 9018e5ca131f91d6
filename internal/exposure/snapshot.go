package exposure

import (
	"time"

	"cyberdigest/internal/model"
)

// BuildSnapshot produces today's UTC-midnight snapshot row for one period,
// taken right after a period report is generated (spec.md §4.9 "Snapshot
// & deltas").
func BuildSnapshot(userID string, period model.Period, metrics model.RemediationMetrics, now time.Time) *model.PeriodSnapshot {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return &model.PeriodSnapshot{
		UserID:   userID,
		Period:   period,
		SnapDate: midnight,
		Metrics:  metrics,
	}
}

// Delta is the change in remediation metrics between a prior snapshot and
// the current metrics.
type Delta struct {
	PatchRatePercent     float64
	SLACompliancePercent float64
	MTTRAvgDays          float64
	KEVExposureCount     int
	CriticalExposedCount int
}

// ComputeDelta diffs current against the nearest snapshot on or before
// now-P (spec.md §4.9). prior == nil means no baseline is available yet;
// the caller surfaces a zero delta in that case.
func ComputeDelta(prior *model.PeriodSnapshot, current model.RemediationMetrics) Delta {
	if prior == nil {
		return Delta{}
	}
	return Delta{
		PatchRatePercent:     round1(current.PatchRatePercent - prior.Metrics.PatchRatePercent),
		SLACompliancePercent: round1(current.SLACompliancePercent - prior.Metrics.SLACompliancePercent),
		MTTRAvgDays:          round1(current.MTTRAvgDays - prior.Metrics.MTTRAvgDays),
		KEVExposureCount:     current.KEVExposureCount - prior.Metrics.KEVExposureCount,
		CriticalExposedCount: current.CriticalExposedCount - prior.Metrics.CriticalExposedCount,
	}
}

// BaselineDate returns the snapshot lookup boundary now-P for a period.
func BaselineDate(period model.Period, now time.Time) time.Time {
	days := model.PeriodDays[period]
	return now.AddDate(0, 0, -days)
}

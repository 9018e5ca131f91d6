package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"cyberdigest/internal/model"
)

// maxGroupContextChars caps the group narrative context fed into the
// period prompt (spec.md §4.8 step 3).
const maxGroupContextChars = 30000

const truncatedMarker = "\n[... truncated for length]"

// maxTokensByPeriod is the max_tokens budget per period (spec.md §4.8
// step 3): operational/tactical/strategic reports scale with period
// length.
var maxTokensByPeriod = map[model.Period]int{
	model.Period1Day:   2500,
	model.Period7Days:  3500,
	model.Period30Days: 4000,
}

// systemPromptByPeriod returns the period-specific framing: an
// operational SOC briefing for 1d, a tactical leadership report with
// trend tables for 7d, a strategic board-level posture for 30d. The
// precomputed stats are baked into the message so the LLM narrates
// numbers it was actually given rather than inventing them.
func systemPromptByPeriod(period model.Period, stats model.ReportStats) (string, int, error) {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return "", 0, fmt.Errorf("marshal report stats: %w", err)
	}

	var role string
	switch period {
	case model.Period1Day:
		role = "You are a SOC analyst writing a same-day operational threat briefing for the security team. Be concrete and actionable; lead with anything actively exploited."
	case model.Period7Days:
		role = "You are a threat intelligence lead writing a weekly tactical report for engineering and security leadership. Summarize trends across the week and call out week-over-week shifts."
	case model.Period30Days:
		role = "You are a CISO writing a monthly strategic security posture report for the board. Focus on risk trends, exposure trajectory, and program-level recommendations rather than individual incidents."
	default:
		role = "You are a security analyst writing a threat intelligence summary."
	}

	system := fmt.Sprintf("%s\n\nPrecomputed statistics for this period (ground every number in this data, do not invent figures):\n%s", role, string(statsJSON))
	return system, maxTokensByPeriod[period], nil
}

// groupContext renders the period's stories sorted by case type ascending
// (critical first, spec.md §4.8 step 3), truncated to maxGroupContextChars
// with an explicit marker when cut.
func groupContext(groups []*model.NewsGroup) string {
	sorted := make([]*model.NewsGroup, len(groups))
	copy(sorted, groups)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := sorted[i].CaseType, sorted[j].CaseType
		if ci == model.CaseUnset {
			ci = model.CaseInfo
		}
		if cj == model.CaseUnset {
			cj = model.CaseInfo
		}
		return ci < cj
	})

	var b strings.Builder
	for _, g := range sorted {
		fmt.Fprintf(&b, "### [case %d] %s\n", g.CaseType, g.Title)
		if g.Synopsis != "" {
			b.WriteString(g.Synopsis)
			b.WriteString("\n")
		}
		if g.ExecutiveSummary != "" {
			b.WriteString(g.ExecutiveSummary)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	out := b.String()
	if len(out) > maxGroupContextChars {
		out = out[:maxGroupContextChars] + truncatedMarker
	}
	return out
}

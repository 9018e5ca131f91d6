package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cyberdigest/internal/model"
)

// runReportStage implements spec.md §4.10 step 10 / C8: regenerate all
// three period reports (1d/7d/30d) for the user. Each period is
// independent of the others, so they run concurrently rather than in a
// fixed-size pool — there are only ever three.
func (o *Orchestrator) runReportStage(ctx context.Context, user *model.User, now time.Time, result *Result) {
	periods := []model.Period{model.Period1Day, model.Period7Days, model.Period30Days}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, period := range periods {
		wg.Add(1)
		go func(p model.Period) {
			defer wg.Done()
			if _, err := o.deps.ReportBuilder.Generate(ctx, user, p, now); err != nil {
				mu.Lock()
				result.addErr(model.NewLLMRequestFailedError("report", err.Error()))
				mu.Unlock()
				slog.Warn("failed to generate period report",
					slog.String("user_id", user.ID), slog.String("period", string(p)), slog.String("error", err.Error()))
			}
		}(period)
	}
	wg.Wait()
}

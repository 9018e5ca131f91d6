// Package scheduler implements the digest scheduler (spec.md §4.11,
// component C11): once a tick, it decides which users are due for a
// digest run and drives the orchestrator (C10) for each of them, bounded
// to a fixed concurrency so one tick never opens unbounded connections.
//
// Grounded on the teacher's internal/worker/fetch/scheduler.go: the same
// Start/RunOnce split (RunOnce fires immediately, then on every ticker
// tick) and the same semaphore-channel fan-out for bounded concurrency.
package scheduler

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"cyberdigest/internal/model"
	"cyberdigest/internal/orchestrator"
)

// DigestRunner drives one user's full pipeline run, implemented by
// *orchestrator.Orchestrator. A narrow interface here keeps the scheduler
// decoupled from the orchestrator's constructor and dependency set.
type DigestRunner interface {
	RunForUser(ctx context.Context, userID string) (orchestrator.Result, error)
}

// UserLister lists digest-eligible users and records the last run time.
type UserLister interface {
	ListDueForDigest(ctx context.Context, now time.Time) ([]*model.User, error)
	UpdateLastDigestAt(ctx context.Context, userID string, at time.Time) error
}

// SourcePreWarmer pre-warms the shared scraper cache before the fan-out
// starts, so per-user runs mostly hit cache instead of re-fetching shared
// feeds concurrently (spec.md §4.11 "Pre-warm").
type SourcePreWarmer interface {
	PreWarmAll(ctx context.Context, maxConcurrent int)
}

// Notifier is the out-of-core email-delivery collaborator (spec.md §1,
// §6): the scheduler only decides *whether* to notify, it never sends
// mail itself.
type Notifier interface {
	NotifyDigestReady(ctx context.Context, userID string, matched int) error
}

// noopNotifier is used when no Notifier is wired, so digest runs still
// complete when the email collaborator isn't configured (e.g. local dev).
type noopNotifier struct{}

func (noopNotifier) NotifyDigestReady(context.Context, string, int) error { return nil }

// Scheduler drives the hourly digest tick.
type Scheduler struct {
	users         UserLister
	preWarmer     SourcePreWarmer
	runner        DigestRunner
	notifier      Notifier
	maxConcurrent int
}

// New constructs a Scheduler. maxConcurrent bounds how many users' digests
// run at once per tick; a value <= 0 defaults to 10, matching the
// teacher's scheduler default.
func New(users UserLister, preWarmer SourcePreWarmer, runner DigestRunner, notifier Notifier, maxConcurrent int) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Scheduler{
		users:         users,
		preWarmer:     preWarmer,
		runner:        runner,
		notifier:      notifier,
		maxConcurrent: maxConcurrent,
	}
}

// Start runs RunOnce immediately, then on every tick of interval, until
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	if err := s.RunOnce(ctx); err != nil {
		slog.Error("scheduler tick failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				slog.Error("scheduler tick failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce lists digest-eligible users, filters to the ones actually due
// this tick, pre-warms the shared scraper cache, then fans out one
// orchestrator run per due user bounded to maxConcurrent in flight.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	now := start.UTC()

	users, err := s.users.ListDueForDigest(ctx, now)
	if err != nil {
		return err
	}

	due := make([]*model.User, 0, len(users))
	for _, u := range users {
		if isDue(u, now) {
			due = append(due, u)
		}
	}

	slog.Info("scheduler tick starting", slog.Int("candidate_count", len(users)), slog.Int("due_count", len(due)))

	if len(due) == 0 {
		return nil
	}

	if s.preWarmer != nil {
		s.preWarmer.PreWarmAll(ctx, 32)
	}

	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup

	for _, user := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(u *model.User) {
			defer wg.Done()
			defer func() { <-sem }()
			s.runOneUser(ctx, u, now)
		}(user)
	}
	wg.Wait()

	slog.Info("scheduler tick finished", slog.Int("due_count", len(due)), slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nil
}

func (s *Scheduler) runOneUser(ctx context.Context, user *model.User, now time.Time) {
	result, err := s.runner.RunForUser(ctx, user.ID)
	if err != nil {
		slog.Error("digest run failed", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		return
	}

	if err := s.users.UpdateLastDigestAt(ctx, user.ID, now); err != nil {
		slog.Warn("failed to update last digest timestamp", slog.String("user_id", user.ID), slog.String("error", err.Error()))
	}

	if user.EmailEnabled && result.Matched > 0 {
		if err := s.notifier.NotifyDigestReady(ctx, user.ID, result.Matched); err != nil {
			slog.Warn("failed to notify digest ready", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		}
	}
}

// isDue implements spec.md §4.11's due-check: the user's frequency must
// be a recognized interval, that interval must have elapsed since their
// last run (or they must never have run), and for day-or-longer intervals
// the current UTC hour must match their configured digest_time.
func isDue(user *model.User, now time.Time) bool {
	interval, ok := model.FreqIntervals[user.Frequency]
	if !ok {
		return false
	}

	if user.LastDigestAt != nil && now.Sub(*user.LastDigestAt) < interval {
		return false
	}

	if interval >= 24*time.Hour {
		return matchesDigestHour(user.DigestTime, now)
	}
	return true
}

// matchesDigestHour reports whether now's UTC hour matches the "HH:MM"
// digestTime string. A malformed digestTime never matches, so a bad value
// can't silently fire every hour.
func matchesDigestHour(digestTime string, now time.Time) bool {
	parts := strings.SplitN(digestTime, ":", 2)
	if len(parts) != 2 {
		return false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	return hour == now.Hour()
}

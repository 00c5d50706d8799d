package janitor

import (
	"context"
	"sync"
	"time"

	"auth-service/internal/clock"
	"auth-service/internal/observability"
	"auth-service/internal/store"
)

const DefaultHour = 2

// Janitor deletes refresh records that are past their expiry. It runs once
// a day at a configured local hour; revoked-but-unexpired records are left
// alone so the audit trail survives until natural expiry.
type Janitor struct {
	store  store.RefreshStore
	logger *observability.Logger
	clock  clock.Clock
	hour   int

	// Guards against overlapping runs; a tick that arrives while a run is
	// still in progress is skipped.
	mu sync.Mutex
}

func New(refreshStore store.RefreshStore, logger *observability.Logger, clk clock.Clock, hour int) *Janitor {
	if hour < 0 || hour > 23 {
		hour = DefaultHour
	}

	return &Janitor{
		store:  refreshStore,
		logger: logger,
		clock:  clk,
		hour:   hour,
	}
}

// Start launches the daily schedule and returns immediately. The goroutine
// exits when ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	go j.loop(ctx)
}

func (j *Janitor) loop(ctx context.Context) {
	for {
		timer := time.NewTimer(j.untilNextRun())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			_, _ = j.RunOnce(ctx)
		}
	}
}

func (j *Janitor) untilNextRun() time.Duration {
	now := j.clock.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), j.hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

// RunOnce performs a single cleanup pass. If another pass is still running
// it returns immediately without touching the store.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	if !j.mu.TryLock() {
		j.logger.Warn("cleanup_already_running", nil)
		return 0, nil
	}
	defer j.mu.Unlock()

	deleted, err := j.store.DeleteExpired(ctx, j.clock.Now())
	if err != nil {
		j.logger.Error("cleanup_failed", map[string]any{"error": err.Error()})
		return 0, err
	}

	j.logger.Info("expired_refresh_tokens_deleted", map[string]any{"count": deleted})
	return deleted, nil
}

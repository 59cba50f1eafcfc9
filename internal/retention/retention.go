// Package retention prunes read notifications on a cron schedule. Unread
// notifications are never removed, so unread counters stay exact.
package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"
)

// Pruner deletes read notifications created before cutoff.
type Pruner interface {
	PruneRead(ctx context.Context, cutoff time.Time) (int64, error)
}

type Runner struct {
	pruner Pruner
	cron   string
	maxAge time.Duration
	log    zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	running bool
}

func NewRunner(log zerolog.Logger, pruner Pruner, cron string, maxAgeDays int) (*Runner, error) {
	if !gronx.New().IsValid(cron) {
		return nil, fmt.Errorf("invalid retention cron %q", cron)
	}
	return &Runner{
		pruner: pruner,
		cron:   cron,
		maxAge: time.Duration(maxAgeDays) * 24 * time.Hour,
		log:    log.With().Str("component", "retention").Logger(),
		now:    time.Now,
	}, nil
}

// Start runs the schedule loop until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	r.log.Info().Str("cron", r.cron).Dur("max_age", r.maxAge).Msg("retention enabled")
	go r.scheduleLoop(ctx)
}

func (r *Runner) scheduleLoop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(r.cron, r.now(), false)
		if err != nil {
			r.log.Error().Err(err).Str("cron", r.cron).Msg("next tick")
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			wait = time.Second
		}

		select {
		case <-time.After(wait):
			r.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce prunes immediately. Overlapping runs are skipped and report 0.
func (r *Runner) RunOnce(ctx context.Context) int64 {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return 0
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	cutoff := r.now().Add(-r.maxAge)
	removed, err := r.pruner.PruneRead(ctx, cutoff)
	if err != nil {
		r.log.Error().Err(err).Msg("retention run failed")
		return 0
	}
	r.log.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("retention run complete")
	return removed
}

package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const ExpirySweepTimeout = 30 * time.Second

// Expirer moves every overdue in-progress attempt to expired.
type Expirer interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// ExpiryWorker periodically expires attempts nobody has touched since their
// deadline. Lazy expiry on access stays authoritative; the sweep only keeps
// stored statuses and listings current.
type ExpiryWorker struct {
	store    Expirer
	schedule cron.Schedule
	spec     string
	now      func() time.Time
	log      zerolog.Logger
}

// NewExpiryWorker parses spec (standard cron syntax or a descriptor such as
// "@every 1m"). An empty spec yields a worker whose Start returns at once.
func NewExpiryWorker(store Expirer, spec string, log zerolog.Logger) (*ExpiryWorker, error) {
	w := &ExpiryWorker{
		store: store,
		spec:  spec,
		now:   time.Now,
		log:   log.With().Str("component", "expiry_worker").Logger(),
	}
	if spec == "" {
		return w, nil
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse expiry sweep spec %q: %w", spec, err)
	}
	w.schedule = sched
	return w, nil
}

// Start runs the sweep on schedule until ctx is cancelled, then waits for a
// running sweep to finish.
func (w *ExpiryWorker) Start(ctx context.Context) {
	if w.schedule == nil {
		w.log.Info().Msg("ExpiryWorker disabled")
		return
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(w.schedule, cron.FuncJob(func() { w.RunOnce(ctx) }))
	c.Start()
	w.log.Info().Str("spec", w.spec).Msg("ExpiryWorker started")

	<-ctx.Done()
	<-c.Stop().Done()
	w.log.Info().Msg("ExpiryWorker stopped")
}

// RunOnce performs a single sweep and returns the number of attempts expired.
func (w *ExpiryWorker) RunOnce(ctx context.Context) int64 {
	if ctx.Err() != nil {
		return 0
	}
	sweepCtx, cancel := context.WithTimeout(ctx, ExpirySweepTimeout)
	defer cancel()

	n, err := w.store.ExpireOverdue(sweepCtx, w.now())
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Expiry sweep failed")
		}
		return 0
	}
	if n > 0 {
		w.log.Info().Int64("expired", n).Msg("Expired overdue attempts")
	}
	return n
}

package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/jusunglee/maxbot/internal/metrics"
	"github.com/jusunglee/maxbot/internal/store"
	"github.com/jusunglee/maxbot/internal/update"
)

const (
	pollIdleDelay  = time.Second
	pollErrorDelay = 5 * time.Second
	flushInterval  = 30 * time.Second
)

// UpdateSource produces batches of updates starting at an offset.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64) ([]update.Update, error)
}

// Poller drives the dispatcher from a long-polling update source.
type Poller struct {
	log        *slog.Logger
	source     UpdateSource
	dispatcher *Dispatcher
	offset     int64
}

func NewPoller(log *slog.Logger, source UpdateSource, dispatcher *Dispatcher) *Poller {
	return &Poller{
		log:        log.With("component", "poller"),
		source:     source,
		dispatcher: dispatcher,
	}
}

// Run polls for updates until ctx is cancelled. Updates in a batch are
// dispatched in arrival order; the offset only advances past updates
// that were handed to the dispatcher, so a transient fetch error never
// skips work.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("starting update polling", "offset", p.offset)
	for {
		if ctx.Err() != nil {
			p.log.Info("polling stopped")
			return ctx.Err()
		}

		updates, err := p.source.GetUpdates(ctx, p.offset)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.log.Error("failed to fetch updates", "error", err)
			sleepWithContext(ctx, pollErrorDelay)
			continue
		}

		for _, upd := range updates {
			p.dispatcher.Dispatch(ctx, "poll", upd)
			if upd.UpdateID >= p.offset {
				p.offset = upd.UpdateID + 1
			}
		}

		if len(updates) == 0 {
			sleepWithContext(ctx, pollIdleDelay)
		}
	}
}

// RunFlusher periodically persists the store so a crash loses at most
// one interval of counters. It runs until ctx is cancelled; the final
// flush happens in main during shutdown.
func RunFlusher(ctx context.Context, log *slog.Logger, st store.Store) error {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := st.Save(ctx); err != nil {
				metrics.StoreSaveFailures.Inc()
				log.Error("periodic store flush failed", "error", err)
				continue
			}
			metrics.StoreSaveDuration.Observe(time.Since(start).Seconds())
		}
	}
}

func sleepWithContext(ctx context.Context, dur time.Duration) {
	timer := time.NewTimer(dur)
	defer timer.Stop()

	select {
	case <-timer.C:
		return
	case <-ctx.Done():
		return
	}
}

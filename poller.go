package gtfsrt

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const DefaultPollInterval = 60 * time.Second

// Poller gates the engine behind a minimum refresh interval. A call
// arriving before the interval elapsed returns the last snapshot
// without re-fetching. The mutex, not the timestamp, is what
// guarantees at most one in-flight cycle even when a cycle outlasts
// the interval.
type Poller struct {
	Interval time.Duration

	engine *Engine
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	lastRun  time.Time
	snapshot Snapshot
}

func NewPoller(engine *Engine, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		Interval: interval,
		engine:   engine,
		logger:   logger,
		now:      time.Now,
	}
}

// Poll returns the current snapshot, running a reconciliation cycle
// first if the interval has elapsed. A failed cycle logs and keeps
// the previous snapshot; the next Poll retries.
func (p *Poller) Poll(ctx context.Context) Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.lastRun.IsZero() && p.now().Sub(p.lastRun) < p.Interval {
		return p.snapshot
	}

	snapshot, err := p.engine.Update(ctx)
	if err != nil {
		p.logger.Error("cycle failed, keeping previous snapshot", "error", err)
		return p.snapshot
	}

	p.snapshot = snapshot
	p.lastRun = p.now()

	return p.snapshot
}

// Snapshot returns the latest snapshot without triggering a cycle.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

// Run polls on a ticker until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.Poll(ctx)

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

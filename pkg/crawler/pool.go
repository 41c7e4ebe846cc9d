package crawler

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PentesterFlow/spa-crawler/internal/metrics"
	"github.com/PentesterFlow/spa-crawler/internal/queue"
)

const defaultScaleInterval = 50 * time.Millisecond

// pool runs frontier requests on a group of workers. It starts min workers
// and grows toward target while pending work outnumbers the running ones.
type pool struct {
	min      int
	target   int
	frontier *queue.Frontier
	handle   func(ctx context.Context, req *queue.Request)
	metrics  *metrics.Collector
	interval time.Duration

	running atomic.Int64
	peak    atomic.Int64
	spawned atomic.Int64
}

func newPool(min, target int, frontier *queue.Frontier, handle func(context.Context, *queue.Request), m *metrics.Collector) *pool {
	if min < 1 {
		min = 1
	}
	if target < min {
		target = min
	}
	if m == nil {
		m = metrics.New()
	}
	return &pool{
		min:      min,
		target:   target,
		frontier: frontier,
		handle:   handle,
		metrics:  m,
		interval: defaultScaleInterval,
	}
}

// Run blocks until the frontier drains or ctx is cancelled.
func (p *pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < p.min; i++ {
		p.spawn(g, gctx)
	}

	g.Go(func() error {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}

			running := p.running.Load()
			if running == 0 {
				return nil
			}
			pending := int64(p.frontier.Len())
			p.metrics.SetQueueDepth(pending)
			if pending > running && running < int64(p.target) {
				p.spawn(g, gctx)
			}
		}
	})

	return g.Wait()
}

func (p *pool) spawn(g *errgroup.Group, ctx context.Context) {
	n := p.running.Add(1)
	p.spawned.Add(1)
	p.metrics.SetActiveWorkers(n)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	g.Go(func() error {
		defer func() {
			p.metrics.SetActiveWorkers(p.running.Add(-1))
		}()
		return p.work(ctx)
	})
}

func (p *pool) work(ctx context.Context) error {
	for ctx.Err() == nil {
		req, err := p.frontier.Next(ctx)
		if err != nil {
			// Drained, closed or cancelled. The caller inspects its context.
			return nil
		}

		p.handle(ctx, req)
		p.frontier.Done(req)
	}
	return nil
}

// Peak returns the largest number of workers that ran at once.
func (p *pool) Peak() int {
	return int(p.peak.Load())
}

// Spawned returns how many workers were started.
func (p *pool) Spawned() int {
	return int(p.spawned.Load())
}

package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/alvesdmateus/easydeploy/internal/observability"
)

// PollFunc performs one reconciliation poll.
type PollFunc func(ctx context.Context) error

// Poller runs a PollFunc on an interval. A poll that would overlap one
// still in flight is skipped, never queued.
type Poller struct {
	fn       PollFunc
	interval time.Duration
	logger   zerolog.Logger
	metrics  *observability.Metrics

	inFlight atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	timers map[*time.Timer]struct{}
	wg     sync.WaitGroup
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollerLogger sets the poller logger.
func WithPollerLogger(logger zerolog.Logger) PollerOption {
	return func(p *Poller) {
		p.logger = logger.With().Str("component", "poller").Logger()
	}
}

// WithPollerMetrics records poll outcomes.
func WithPollerMetrics(m *observability.Metrics) PollerOption {
	return func(p *Poller) {
		p.metrics = m
	}
}

// NewPoller creates a stopped poller.
func NewPoller(fn PollFunc, interval time.Duration, opts ...PollerOption) *Poller {
	p := &Poller{
		fn:       fn,
		interval: interval,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins periodic polling until ctx is done or Stop is called.
// Calling Start on a running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil || p.interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Debug().Dur("interval", p.interval).Msg("Starting poller")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Run in its own goroutine so a slow poll makes later ticks skip.
				p.wg.Add(1)
				go func() {
					defer p.wg.Done()
					p.PollNow(ctx)
				}()
			}
		}
	}()
}

// Stop halts periodic polling, cancels pending triggers and waits for any
// running poll to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	for t := range p.timers {
		if t.Stop() {
			p.wg.Done()
		}
	}
	p.timers = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	p.logger.Debug().Msg("Poller stopped")
}

// PollNow runs one poll synchronously. It returns false when the poll was
// skipped because another one is in flight.
func (p *Poller) PollNow(ctx context.Context) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.metrics.RecordPoll("skipped")
		p.logger.Debug().Msg("Poll still in flight, skipping")
		return false
	}
	defer p.inFlight.Store(false)

	if err := p.fn(ctx); err != nil {
		p.metrics.RecordPoll("error")
		p.logger.Warn().Err(err).Msg("Poll failed")
		return true
	}
	p.metrics.RecordPoll("ok")
	return true
}

// TriggerAfter schedules a single poll after d. A fired trigger forgets
// its timer.
func (p *Poller) TriggerAfter(ctx context.Context, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timers == nil {
		p.timers = make(map[*time.Timer]struct{})
	}

	p.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		defer p.wg.Done()

		p.mu.Lock()
		delete(p.timers, timer)
		p.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		p.PollNow(ctx)
	})
	p.timers[timer] = struct{}{}
}

func (p *Poller) pendingTriggers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.timers)
}

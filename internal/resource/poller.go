package resource

import (
	"context"
	"sync"
	"time"

	"grimm.is/rampart/internal/cache"
	"grimm.is/rampart/internal/logging"
)

// Poller calls fetch immediately and then every interval, handing each
// result to deliver, until stopped. Results that arrive after Stop (or after
// a newer Start) are discarded.
type Poller[T any] struct {
	logger *logging.Logger

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	release func()
	done    chan struct{}
	running bool
}

// NewPoller creates a stopped poller.
func NewPoller[T any](logger *logging.Logger) *Poller[T] {
	if logger == nil {
		logger = logging.WithComponent("poller")
	}
	return &Poller[T]{logger: logger}
}

// Start begins polling, replacing any previous run. When observe is
// non-nil it is held for the poller's lifetime so the polled cache entry is
// not collected. deliver must not call Stop or Start.
func (p *Poller[T]) Start(ctx context.Context, interval time.Duration, observe func() func(), fetch func(context.Context) Result[T], deliver func(Result[T])) {
	p.Stop()

	p.mu.Lock()
	p.gen++
	gen := p.gen
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.running = true
	if observe != nil {
		p.release = observe()
	}
	done := p.done
	p.mu.Unlock()

	go p.run(ctx, gen, done, interval, fetch, deliver)
}

func (p *Poller[T]) run(ctx context.Context, gen uint64, done chan struct{}, interval time.Duration, fetch func(context.Context) Result[T], deliver func(Result[T])) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.poll(ctx, gen, fetch, deliver)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx, gen, fetch, deliver)
		}
	}
}

func (p *Poller[T]) poll(ctx context.Context, gen uint64, fetch func(context.Context) Result[T], deliver func(Result[T])) {
	r := fetch(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen || ctx.Err() != nil {
		p.logger.Debug("discarding late poll result")
		return
	}
	deliver(r)
}

// Stop ends polling. No deliver call starts after Stop returns; a fetch in
// flight is abandoned.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.gen++
	p.cancel()
	p.running = false
	release := p.release
	p.release = nil
	p.mu.Unlock()

	if release != nil {
		release()
	}
}

// Running reports whether the poller is active.
func (p *Poller[T]) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Wait blocks until the current run's goroutine has exited.
func (p *Poller[T]) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// ObserveKey adapts a cache key to Start's observe argument.
func ObserveKey(c *cache.Cache, key cache.Key) func() func() {
	return func() func() { return c.Observe(key) }
}

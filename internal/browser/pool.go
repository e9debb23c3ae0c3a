package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ErrResourceUnavailable indicates no renderer became free within the
// bounded acquisition wait.
var ErrResourceUnavailable = errors.New("browser pool exhausted")

// Factory creates a fresh renderer, typically a new browser process.
type Factory func() (Renderer, error)

// Pool shares a fixed number of renderers across concurrent monitor runs.
// Acquisition queues up to a bounded wait; an errored renderer is discarded
// and its slot refilled lazily rather than returned to the pool.
type Pool struct {
	factory Factory
	slots   chan Renderer
	wait    time.Duration
	inUse   atomic.Int64
	logger  *slog.Logger
}

// Lease is one acquired renderer. Exactly one of Release or Discard must be
// called when the caller is done.
type Lease struct {
	Renderer Renderer
	pool     *Pool
	done     atomic.Bool
}

// NewPool creates a pool of size slots. Renderers are created lazily on
// first acquisition of each slot.
func NewPool(size int, wait time.Duration, factory Factory, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}

	slots := make(chan Renderer, size)
	for i := 0; i < size; i++ {
		slots <- nil // lazy slot
	}

	return &Pool{
		factory: factory,
		slots:   slots,
		wait:    wait,
		logger:  logger,
	}
}

// Acquire obtains a renderer, waiting up to the pool's bounded wait. It
// fails with ErrResourceUnavailable when the pool stays exhausted.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	waitCtx, cancel := context.WithTimeout(ctx, p.wait)
	defer cancel()

	select {
	case r := <-p.slots:
		if r == nil {
			created, err := p.factory()
			if err != nil {
				p.slots <- nil // keep the slot available
				return nil, fmt.Errorf("failed to start renderer: %w", err)
			}
			r = created
		}
		p.inUse.Add(1)
		return &Lease{Renderer: r, pool: p}, nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, fmt.Errorf("acquire cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: no renderer free within %v", ErrResourceUnavailable, p.wait)
	}
}

// Release returns a healthy renderer to the pool.
func (l *Lease) Release() {
	if !l.done.CompareAndSwap(false, true) {
		return
	}
	l.pool.inUse.Add(-1)
	l.pool.slots <- l.Renderer
}

// Discard closes an errored renderer and frees its slot for lazy recreation.
func (l *Lease) Discard() {
	if !l.done.CompareAndSwap(false, true) {
		return
	}
	l.pool.inUse.Add(-1)
	if err := l.Renderer.Close(); err != nil && l.pool.logger != nil {
		l.pool.logger.Warn("failed to close discarded renderer", "error", err)
	}
	l.pool.slots <- nil
}

// InUse returns the number of currently leased renderers.
func (p *Pool) InUse() int {
	return int(p.inUse.Load())
}

// Close tears down all idle renderers. Leased renderers are closed by their
// holders via Discard.
func (p *Pool) Close() {
	for {
		select {
		case r := <-p.slots:
			if r != nil {
				_ = r.Close()
			}
		default:
			return
		}
	}
}

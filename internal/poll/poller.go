// Package poll provides the interval poller dashboard consumers use to
// refresh feed state (announcements, "is the seller live"). Ticks are
// fire-and-forget: a slow request never delays the next tick, and responses
// may complete out of order. Every request carries a monotonically increasing
// sequence number; a response is applied only when its sequence is the
// highest applied so far, so a stale result arriving late can never regress
// the visible state.
package poll

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Poller periodically fetches a value and applies the freshest response.
// The type parameter is the fetched snapshot (e.g. an announcement list).
type Poller[T any] struct {
	// Interval between ticks. Values <= 0 default to 8 seconds, the cadence
	// the dashboards use for announcement refresh.
	Interval time.Duration

	// Fetch performs one poll. Errors are transient by definition — they are
	// logged at debug level and the next tick self-corrects.
	Fetch func(ctx context.Context) (T, error)

	// Apply receives a response that is newer than anything applied before.
	// It is never called concurrently.
	Apply func(T)

	seq     atomic.Uint64
	mu      sync.Mutex
	applied uint64
}

// Run polls until ctx is cancelled. An immediate first fetch is issued before
// the ticker starts so consumers are not blind for a full interval. Run
// returns once ctx is done; in-flight fetches are abandoned to the context.
func (p *Poller[T]) Run(ctx context.Context) {
	interval := p.Interval
	if interval <= 0 {
		interval = 8 * time.Second
	}

	p.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick launches one fire-and-forget fetch with the next sequence number.
func (p *Poller[T]) tick(ctx context.Context) {
	seq := p.seq.Add(1)
	go func() {
		v, err := p.Fetch(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Debug().Err(err).Uint64("seq", seq).Msg("poll tick failed")
			}
			return
		}
		p.offer(seq, v)
	}()
}

// offer applies v only when seq is newer than the last applied response.
// Responses whose request was issued earlier than the currently applied one
// are silently discarded — stale data, not an error.
func (p *Poller[T]) offer(seq uint64, v T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq <= p.applied {
		return
	}
	p.applied = seq
	p.Apply(v)
}

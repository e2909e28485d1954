package session

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"
)

// ErrSweepRunning is returned when a sweep is requested while one is active.
var ErrSweepRunning = errors.New("sweep already running")

// Sweeper periodically removes expired sessions. At most one sweep runs at a
// time.
type Sweeper struct {
	store    Store
	interval time.Duration
	running  atomic.Bool

	// OnSwept, if set, receives the number of sessions removed by each sweep.
	OnSwept func(n int)
}

func NewSweeper(store Store, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{store: store, interval: interval}
}

// SweepOnce runs a single sweep unless another one is in progress.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	if !s.running.CompareAndSwap(false, true) {
		return 0, ErrSweepRunning
	}
	defer s.running.Store(false)
	n, err := s.store.SweepExpired(ctx)
	if err != nil {
		return n, err
	}
	if n > 0 {
		log.Printf("session sweep: removed %d expired sessions", n)
	}
	if s.OnSwept != nil {
		s.OnSwept(n)
	}
	return n, nil
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, ErrSweepRunning) {
				log.Printf("session sweep failed: %v", err)
			}
		}
	}
}

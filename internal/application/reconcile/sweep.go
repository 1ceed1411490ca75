package reconcile

import (
	"sync"
	"time"

	"github.com/lostfound-sync/internal/domain"
)

// DefaultSweepInterval is how often a mounted screen re-evaluates expiries.
const DefaultSweepInterval = 60 * time.Second

// Sweep drops every entity whose expiry is set and at or before now.
func Sweep[T domain.Expirable](c []T, now time.Time) []T {
	out := make([]T, 0, len(c))
	for _, v := range c {
		if exp := v.ExpiryTime(); exp != nil && !exp.After(now) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Sweeper fires a callback on a fixed interval until stopped.
type Sweeper struct {
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
	started  bool
}

func NewSweeper(interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs tick on every interval in its own goroutine. It must be called at most once.
func (s *Sweeper) Start(tick func(now time.Time)) {
	s.started = true
	go func() {
		defer close(s.done)
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-s.stop:
				return
			case now := <-t.C:
				tick(now)
			}
		}
	}()
}

// Stop cancels the ticker and waits for an in-flight tick to return. Safe to call repeatedly.
func (s *Sweeper) Stop() {
	s.once.Do(func() {
		close(s.stop)
		if s.started {
			<-s.done
		}
	})
}

// Package signal provides a coalescing change notification. Any number of Notify calls between
// two receives collapse into one wakeup.
package signal

import "sync"

// Signal has a single publisher; Notify and Close must be called from the same goroutine.
type Signal struct {
	ch   chan struct{}
	once sync.Once
}

func New() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Notify wakes a receiver without blocking.
func (s *Signal) Notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// C delivers wakeups and is closed by Close.
func (s *Signal) C() <-chan struct{} { return s.ch }

// Close ends the stream. Notify must not be called afterwards.
func (s *Signal) Close() {
	s.once.Do(func() { close(s.ch) })
}

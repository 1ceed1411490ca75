// Package actor runs closures one at a time on a single goroutine.
package actor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrStopped is returned by Call once the actor is halted.
var ErrStopped = errors.New("actor stopped")

type Actor struct {
	inbox   chan func()
	quit    chan struct{}
	done    chan struct{}
	alive   atomic.Bool
	started atomic.Bool
	stop    sync.Once
}

// New returns an actor whose inbox holds up to buffer pending closures.
func New(buffer int) *Actor {
	return &Actor{
		inbox: make(chan func(), buffer),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start launches the loop. Later calls are no-ops.
func (a *Actor) Start() {
	if !a.started.CompareAndSwap(false, true) {
		return
	}
	a.alive.Store(true)
	go a.run()
}

// Alive reports whether the actor is started and not halted. Closures check it to drop results
// that arrive after teardown began.
func (a *Actor) Alive() bool { return a.alive.Load() }

// Halt marks the actor dead without stopping the loop, so queued closures see Alive() == false.
func (a *Actor) Halt() { a.alive.Store(false) }

// Stop halts the actor, ends the loop and waits for the running closure to return. Queued
// closures are dropped.
func (a *Actor) Stop() {
	a.stop.Do(func() {
		a.Halt()
		close(a.quit)
		if a.started.Load() {
			<-a.done
		}
	})
}

func (a *Actor) run() {
	defer close(a.done)
	for {
		select {
		case fn := <-a.inbox:
			fn()
		case <-a.quit:
			return
		}
	}
}

// Post queues fn. It blocks while the inbox is full and gives up once the actor is stopped.
func (a *Actor) Post(fn func()) {
	select {
	case a.inbox <- fn:
	case <-a.quit:
	}
}

// Call runs fn on the actor and waits for it to finish.
func (a *Actor) Call(ctx context.Context, fn func()) error {
	if !a.Alive() {
		return ErrStopped
	}
	ran := make(chan struct{})
	wrapped := func() {
		fn()
		close(ran)
	}
	select {
	case a.inbox <- wrapped:
	case <-a.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ran:
		return nil
	case <-a.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

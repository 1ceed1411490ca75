// Package feed opens change-feed subscriptions against a backend transport and forwards typed
// events to their owner.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lostfound-sync/internal/domain"
	"github.com/lostfound-sync/internal/pkg/id"
)

// Change types as emitted by the backend.
const (
	TypeInsert = "INSERT"
	TypeUpdate = "UPDATE"
	TypeDelete = "DELETE"
)

// Record is one row image on the wire. Decode fills v from it.
type Record interface {
	Decode(v any) error
}

// RawChange is an undecoded change event. New is set for inserts and updates, Old for deletes.
type RawChange struct {
	Type string
	New  Record
	Old  Record
}

// Sink receives what an open channel produces. Transports call Fail at most once, after which
// no more changes are delivered.
type Sink interface {
	Change(RawChange)
	Fail(err error)
}

// Channel is one open backend subscription.
type Channel interface {
	Close() error
}

// Transport is the backend-facing subscribe capability.
type Transport interface {
	Open(ctx context.Context, resource, filter string, sink Sink) (Channel, error)
}

// Handler is the owner's side of a subscription.
type Handler interface {
	OnChange(RawChange)
	OnError(err error)
}

type key struct {
	resource string
	filter   string
}

// Subscriber opens subscriptions for one owner and keeps at most one active channel per
// (resource, filter) pair.
type Subscriber struct {
	transport Transport

	mu     sync.Mutex
	active map[key]*Handle
}

func NewSubscriber(t Transport) *Subscriber {
	return &Subscriber{transport: t, active: make(map[key]*Handle)}
}

// Open subscribes to resource's change feed. A failed channel is reported as an error wrapping
// domain.ErrConnection; nothing is retried.
func (s *Subscriber) Open(ctx context.Context, resource, filter string, h Handler) (*Handle, error) {
	k := key{resource: resource, filter: filter}

	s.mu.Lock()
	if _, ok := s.active[k]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("channel %s(%s) already open: %w", resource, filter, domain.ErrConflict)
	}
	hd := &Handle{ID: id.New(), Resource: resource, Filter: filter, owner: s, key: k, handler: h}
	s.active[k] = hd
	s.mu.Unlock()

	ch, err := s.transport.Open(ctx, resource, filter, hd)
	if err != nil {
		s.release(hd)
		return nil, fmt.Errorf("open %s: %v: %w", resource, err, domain.ErrConnection)
	}

	hd.mu.Lock()
	hd.ch = ch
	closed := hd.closed
	hd.mu.Unlock()
	if closed {
		// Closed while the transport was still opening.
		_ = ch.Close()
	}
	slog.Debug("subscription opened", "resource", resource, "filter", filter, "handle", hd.ID)
	return hd, nil
}

// CloseAll releases every handle still open.
func (s *Subscriber) CloseAll() {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.active))
	for _, h := range s.active {
		handles = append(handles, h)
	}
	s.mu.Unlock()
	for _, h := range handles {
		_ = h.Close()
	}
}

// Active reports how many channels are open.
func (s *Subscriber) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Subscriber) release(h *Handle) {
	s.mu.Lock()
	if s.active[h.key] == h {
		delete(s.active, h.key)
	}
	s.mu.Unlock()
}

// Handle binds a resource and filter to its handler. It is owned by whoever opened it.
type Handle struct {
	ID       string
	Resource string
	Filter   string

	owner   *Subscriber
	key     key
	handler Handler

	mu       sync.Mutex
	ch       Channel
	closed   bool
	failOnce sync.Once
}

// Close releases the underlying channel. Only the first call has an effect; after it returns
// the handler is never invoked again.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	ch := h.ch
	h.mu.Unlock()

	h.owner.release(h)
	slog.Debug("subscription closed", "resource", h.Resource, "handle", h.ID)
	if ch == nil {
		return nil
	}
	return ch.Close()
}

func (h *Handle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Change implements Sink.
func (h *Handle) Change(c RawChange) {
	if h.isClosed() {
		return
	}
	h.handler.OnChange(c)
}

// Fail implements Sink. The owner hears about a broken channel once.
func (h *Handle) Fail(err error) {
	if h.isClosed() {
		return
	}
	h.failOnce.Do(func() {
		h.owner.release(h)
		slog.Warn("subscription failed", "resource", h.Resource, "handle", h.ID, "err", err)
		h.handler.OnError(fmt.Errorf("%s feed: %v: %w", h.Resource, err, domain.ErrConnection))
	})
}

// Package feedtest provides an in-process feed.Transport and record helpers for tests of
// packages that subscribe to change feeds.
package feedtest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/lostfound-sync/internal/application/feed"
)

// MustJSON marshals v into a feed.JSONRecord and panics on error.
func MustJSON(v any) feed.JSONRecord {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return feed.JSONRecord(b)
}

// MemoryTransport is an in-process feed.Transport. Emit pushes a change to every open channel on a
// resource, in call order.
type MemoryTransport struct {
	mu      sync.Mutex
	OpenErr error
	chans   map[string][]*memChannel
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{chans: make(map[string][]*memChannel)}
}

type memChannel struct {
	t        *MemoryTransport
	resource string
	filter   string
	sink     feed.Sink
	closed   bool
}

func (c *memChannel) Close() error {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	c.closed = true
	list := c.t.chans[c.resource]
	for i, x := range list {
		if x == c {
			c.t.chans[c.resource] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return nil
}

func (t *MemoryTransport) Open(_ context.Context, resource, filter string, sink feed.Sink) (feed.Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.OpenErr != nil {
		return nil, t.OpenErr
	}
	c := &memChannel{t: t, resource: resource, filter: filter, sink: sink}
	t.chans[resource] = append(t.chans[resource], c)
	return c, nil
}

func (t *MemoryTransport) sinks(resource string) []feed.Sink {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]feed.Sink, 0, len(t.chans[resource]))
	for _, c := range t.chans[resource] {
		out = append(out, c.sink)
	}
	return out
}

// Emit delivers c to every channel open on resource.
func (t *MemoryTransport) Emit(resource string, c feed.RawChange) {
	for _, s := range t.sinks(resource) {
		s.Change(c)
	}
}

// Break fails every channel open on resource.
func (t *MemoryTransport) Break(resource string, err error) {
	for _, s := range t.sinks(resource) {
		s.Fail(err)
	}
}

// Listeners reports how many channels are open on resource.
func (t *MemoryTransport) Listeners(resource string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.chans[resource])
}

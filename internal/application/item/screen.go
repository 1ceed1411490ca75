// Package item keeps the merged found/lost item screen in sync with both source resources.
package item

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/lostfound-sync/internal/application/feed"
	"github.com/lostfound-sync/internal/application/reconcile"
	"github.com/lostfound-sync/internal/application/visibility"
	"github.com/lostfound-sync/internal/domain"
	"github.com/lostfound-sync/internal/pkg/actor"
	"github.com/lostfound-sync/internal/pkg/signal"
)

var ErrNotMounted = actor.ErrStopped

const defaultLimit = 100

type Options struct {
	Limit int
	Query visibility.Query
}

// Snapshot is an immutable projection of the screen.
type Snapshot struct {
	Items   []visibility.Entry `json:"items"`
	Found   int                `json:"found"`
	Lost    int                `json:"lost"`
	Loaded  bool               `json:"loaded"`
	Err     error              `json:"-"`
	Version uint64             `json:"version"`
}

// Screen merges found items and lost requests under a query. Any change on either source
// re-runs the merge.
type Screen struct {
	store Store
	sub   *feed.Subscriber
	limit int

	loop    *actor.Actor
	mounted atomic.Bool
	unmount sync.Once
	updates *signal.Signal
	snap    atomic.Pointer[Snapshot]

	// Owned by loop.
	query    visibility.Query
	found    []domain.FoundItem
	lost     []domain.LostRequest
	foundLog *reconcile.Journal
	lostLog  *reconcile.Journal
	inFlight int
	loaded   bool
	fetchErr error
	feedErr  error
	version  uint64
}

func NewScreen(store Store, transport feed.Transport, opts Options) *Screen {
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	s := &Screen{
		store:    store,
		sub:      feed.NewSubscriber(transport),
		limit:    opts.Limit,
		loop:     actor.New(64),
		updates:  signal.New(),
		query:    opts.Query,
		foundLog: reconcile.NewJournal(),
		lostLog:  reconcile.NewJournal(),
	}
	s.snap.Store(&Snapshot{})
	return s
}

// Mount starts the initial fetch and subscribes to both resources. Subscription failures leave
// the screen serving fetches only, with Snapshot().Err set.
func (s *Screen) Mount(ctx context.Context) error {
	if !s.mounted.CompareAndSwap(false, true) {
		return fmt.Errorf("item screen already mounted: %w", domain.ErrConflict)
	}
	s.loop.Start()

	s.loop.Post(func() { s.inFlight++ })
	go func() {
		res := s.fetch(ctx)
		s.loop.Post(func() { s.loadResult(res, 0, 0) })
	}()

	for _, res := range []string{domain.ResourceFoundItems, domain.ResourceLostRequests} {
		if _, err := s.sub.Open(ctx, res, "", feedHandler{s: s, resource: res}); err != nil {
			s.loop.Post(func() { s.fail(err) })
		}
	}
	return nil
}

// Unmount closes both subscriptions and stops the screen. Late fetch results are dropped.
func (s *Screen) Unmount() {
	if !s.mounted.Load() {
		return
	}
	s.unmount.Do(func() {
		s.loop.Halt()
		s.sub.CloseAll()
		s.loop.Stop()
		s.updates.Close()
	})
}

func (s *Screen) Snapshot() *Snapshot { return s.snap.Load() }

// Updates wakes up after every projection change. It is closed by Unmount.
func (s *Screen) Updates() <-chan struct{} { return s.updates.C() }

// SetQuery replaces the filter and reference point and re-merges.
func (s *Screen) SetQuery(ctx context.Context, q visibility.Query) error {
	return s.loop.Call(ctx, func() {
		s.query = q
		s.publish()
	})
}

// Refresh refetches both sources. A source that fails keeps its held rows.
func (s *Screen) Refresh(ctx context.Context) error {
	var foundMark, lostMark uint64
	began := false
	if err := s.loop.Call(ctx, func() {
		if ctx.Err() != nil {
			return
		}
		foundMark, lostMark = s.foundLog.Mark(), s.lostLog.Mark()
		s.inFlight++
		began = true
	}); err != nil {
		// Call can give up on ctx after the closure already ran; settle it on the loop.
		s.loop.Post(func() {
			if began {
				s.endFetch()
			}
		})
		return err
	}
	if !began {
		return ctx.Err()
	}
	res := s.fetch(ctx)
	s.loop.Post(func() { s.loadResult(res, foundMark, lostMark) })
	return res.err()
}

type fetched struct {
	found    []domain.FoundItem
	lost     []domain.LostRequest
	foundErr error
	lostErr  error
}

func (f fetched) err() error {
	var errs []error
	if f.foundErr != nil {
		errs = append(errs, fmt.Errorf("fetch %s: %v: %w", domain.ResourceFoundItems, f.foundErr, domain.ErrConnection))
	}
	if f.lostErr != nil {
		errs = append(errs, fmt.Errorf("fetch %s: %v: %w", domain.ResourceLostRequests, f.lostErr, domain.ErrConnection))
	}
	return errors.Join(errs...)
}

func (s *Screen) fetch(ctx context.Context) fetched {
	var f fetched
	f.found, f.foundErr = s.store.ListFound(ctx, s.limit)
	f.lost, f.lostErr = s.store.ListLost(ctx, s.limit)
	return f
}

// endFetch closes one fetch window. The journals are only needed while some fetch is open.
func (s *Screen) endFetch() {
	s.inFlight--
	if s.inFlight == 0 {
		s.foundLog.Forget(s.foundLog.Mark())
		s.lostLog.Forget(s.lostLog.Mark())
	}
}

func (s *Screen) loadResult(f fetched, foundMark, lostMark uint64) {
	defer s.endFetch()
	if !s.loop.Alive() {
		return
	}
	if f.foundErr == nil {
		s.found = reconcile.Rebase(s.found, feed.Valid(domain.ResourceFoundItems, f.found), s.foundLog, foundMark, reconcile.Replace[domain.FoundItem])
	}
	if f.lostErr == nil {
		s.lost = reconcile.Rebase(s.lost, feed.Valid(domain.ResourceLostRequests, f.lost), s.lostLog, lostMark, reconcile.Replace[domain.LostRequest])
	}
	s.fetchErr = f.err()
	if f.foundErr == nil || f.lostErr == nil {
		s.loaded = true
	}
	s.publish()
}

func (s *Screen) applyFound(ev domain.Event[domain.FoundItem]) {
	if !s.loop.Alive() {
		return
	}
	s.found = reconcile.Apply(s.found, ev)
	if s.inFlight > 0 {
		reconcile.Record(s.foundLog, ev)
	}
	s.publish()
}

func (s *Screen) applyLost(ev domain.Event[domain.LostRequest]) {
	if !s.loop.Alive() {
		return
	}
	s.lost = reconcile.Apply(s.lost, ev)
	if s.inFlight > 0 {
		reconcile.Record(s.lostLog, ev)
	}
	s.publish()
}

func (s *Screen) fail(err error) {
	s.feedErr = errors.Join(s.feedErr, err)
	s.publish()
}

func (s *Screen) publish() {
	s.version++
	found := make([]domain.Item, len(s.found))
	for i, f := range s.found {
		found[i] = f.ToItem()
	}
	lost := make([]domain.Item, len(s.lost))
	for i, l := range s.lost {
		lost[i] = l.ToItem()
	}
	err := s.fetchErr
	if err == nil {
		err = s.feedErr
	}
	s.snap.Store(&Snapshot{
		Items:   s.query.Run(found, lost),
		Found:   len(found),
		Lost:    len(lost),
		Loaded:  s.loaded,
		Err:     err,
		Version: s.version,
	})
	s.updates.Notify()
}

type feedHandler struct {
	s        *Screen
	resource string
}

func (h feedHandler) OnChange(c feed.RawChange) {
	switch h.resource {
	case domain.ResourceFoundItems:
		ev, err := feed.Decode[domain.FoundItem](c)
		if err != nil {
			slog.Warn("dropping found item change", "type", c.Type, "err", err)
			return
		}
		h.s.loop.Post(func() { h.s.applyFound(ev) })
	case domain.ResourceLostRequests:
		ev, err := feed.Decode[domain.LostRequest](c)
		if err != nil {
			slog.Warn("dropping lost request change", "type", c.Type, "err", err)
			return
		}
		h.s.loop.Post(func() { h.s.applyLost(ev) })
	}
}

func (h feedHandler) OnError(err error) {
	h.s.loop.Post(func() { h.s.fail(err) })
}

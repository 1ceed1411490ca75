// Package notification keeps one user's notification screen in sync with the backend.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lostfound-sync/internal/application/feed"
	"github.com/lostfound-sync/internal/application/grouping"
	"github.com/lostfound-sync/internal/application/reconcile"
	"github.com/lostfound-sync/internal/domain"
	"github.com/lostfound-sync/internal/pkg/actor"
	"github.com/lostfound-sync/internal/pkg/signal"
)

// ErrNotMounted is returned by calls made before Mount or after Unmount.
var ErrNotMounted = actor.ErrStopped

const defaultLimit = 50

// Options configure a Screen.
type Options struct {
	UserID        string
	Limit         int
	SweepInterval time.Duration
	Now           func() time.Time
}

// Snapshot is an immutable projection of the screen.
type Snapshot struct {
	Sections []grouping.SectionView `json:"sections"`
	Unread   int                    `json:"unread"`
	// Pending counts notifications marked read locally that the backend has not confirmed yet.
	Pending int  `json:"pending"`
	Loaded  bool `json:"loaded"`
	// Err is the last connection error. The sections still hold the last known good state.
	Err error `json:"-"`
	// Notice is the last failed mutation. Its optimistic state is kept.
	Notice  error  `json:"-"`
	Version uint64 `json:"version"`
}

// Screen owns one notification collection. All state changes run on its actor, fed by the initial
// fetch, the change feed, the sweep ticker and the caller's commands.
type Screen struct {
	store   Store
	sub     *feed.Subscriber
	grouper *grouping.Grouper
	opts    Options

	loop    *actor.Actor
	mounted atomic.Bool
	unmount sync.Once

	handle  *feed.Handle
	sweeper *reconcile.Sweeper
	updates *signal.Signal
	snap    atomic.Pointer[Snapshot]

	// Owned by loop.
	coll     []domain.Notification
	overlay  map[string]struct{}
	journal  *reconcile.Journal
	inFlight int
	loaded   bool
	fetchErr error
	feedErr  error
	notice   error
	version  uint64
}

func NewScreen(store Store, transport feed.Transport, grouper *grouping.Grouper, opts Options) *Screen {
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if grouper == nil {
		grouper = grouping.New(nil)
	}
	s := &Screen{
		store:   store,
		sub:     feed.NewSubscriber(transport),
		grouper: grouper,
		opts:    opts,
		loop:    actor.New(64),
		sweeper: reconcile.NewSweeper(opts.SweepInterval),
		updates: signal.New(),
		overlay: make(map[string]struct{}),
		journal: reconcile.NewJournal(),
	}
	s.snap.Store(&Snapshot{})
	return s
}

// Mount starts the screen: initial fetch, change feed subscription and sweep ticker. A feed that
// cannot be opened leaves the screen in fetch-only mode with Snapshot().Err set.
func (s *Screen) Mount(ctx context.Context) error {
	if !s.mounted.CompareAndSwap(false, true) {
		return fmt.Errorf("notification screen already mounted: %w", domain.ErrConflict)
	}
	s.loop.Start()

	s.startFetch(ctx)

	h, err := s.sub.Open(ctx, domain.ResourceNotifications, "user_id=eq."+s.opts.UserID, feedHandler{s})
	if err != nil {
		s.post(func() { s.fail(err) })
	} else {
		s.handle = h
	}

	s.sweeper.Start(func(now time.Time) {
		s.post(func() { s.sweep(now) })
	})
	return nil
}

// Unmount closes the subscription, stops the sweep ticker and then the screen goroutine. Late
// fetch results are dropped. It is safe to call more than once.
func (s *Screen) Unmount() {
	if !s.mounted.Load() {
		return
	}
	s.unmount.Do(func() {
		s.loop.Halt()
		if s.handle != nil {
			_ = s.handle.Close()
		}
		s.sub.CloseAll()
		s.sweeper.Stop()
		s.loop.Stop()
		s.updates.Close()
	})
}

// Snapshot returns the latest projection.
func (s *Screen) Snapshot() *Snapshot { return s.snap.Load() }

// Updates wakes up after every projection change. It is closed by Unmount.
func (s *Screen) Updates() <-chan struct{} { return s.updates.C() }

// Refresh refetches the whole collection. On failure the held collection stays as it was.
func (s *Screen) Refresh(ctx context.Context) error {
	var mark uint64
	began := false
	if err := s.call(ctx, func() {
		if ctx.Err() != nil {
			return
		}
		mark = s.journal.Mark()
		s.inFlight++
		began = true
	}); err != nil {
		// Call can give up on ctx after the closure already ran; settle it on the loop.
		s.post(func() {
			if began {
				s.endFetch()
			}
		})
		return err
	}
	if !began {
		return ctx.Err()
	}
	rows, err := s.store.ListByUser(ctx, s.opts.UserID, s.opts.Limit)
	s.post(func() { s.loadResult(rows, err, mark) })
	if err != nil {
		return fmt.Errorf("fetch notifications: %v: %w", err, domain.ErrConnection)
	}
	return nil
}

// MarkRead marks one notification read locally, then writes it to the backend. A failed write
// keeps the local state and is returned wrapped in domain.ErrMutation.
func (s *Screen) MarkRead(ctx context.Context, id string) error {
	var ids []string
	if err := s.call(ctx, func() {
		for _, n := range s.coll {
			if n.NotificationID == id && !n.Read && !n.Expired(s.opts.Now()) {
				ids = []string{id}
				s.overlay[id] = struct{}{}
				s.publish()
				return
			}
		}
	}); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return s.write(ctx, ids)
}

// MarkAllRead marks every currently visible notification read. Notifications that arrive or
// expire after the call are not affected.
func (s *Screen) MarkAllRead(ctx context.Context) error {
	var ids []string
	if err := s.call(ctx, func() {
		ids = grouping.MarkAllRead(s.view(), s.opts.Now())
		for _, id := range ids {
			s.overlay[id] = struct{}{}
		}
		if len(ids) > 0 {
			s.publish()
		}
	}); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return s.write(ctx, ids)
}

func (s *Screen) write(ctx context.Context, ids []string) error {
	err := s.store.MarkRead(ctx, s.opts.UserID, ids)
	if err == nil {
		return nil
	}
	err = fmt.Errorf("mark %d notification(s) read: %v: %w", len(ids), err, domain.ErrMutation)
	slog.Warn("notification write failed", "user", s.opts.UserID, "err", err)
	s.post(func() {
		s.notice = err
		s.publish()
	})
	return err
}

func (s *Screen) startFetch(ctx context.Context) {
	s.post(func() { s.inFlight++ })
	go func() {
		rows, err := s.store.ListByUser(ctx, s.opts.UserID, s.opts.Limit)
		s.post(func() { s.loadResult(rows, err, 0) })
	}()
}

func (s *Screen) post(fn func()) { s.loop.Post(fn) }

func (s *Screen) call(ctx context.Context, fn func()) error { return s.loop.Call(ctx, fn) }

// endFetch closes one fetch window. The journal is only needed while some fetch is open.
func (s *Screen) endFetch() {
	s.inFlight--
	if s.inFlight == 0 {
		s.journal.Forget(s.journal.Mark())
	}
}

func (s *Screen) loadResult(rows []domain.Notification, err error, mark uint64) {
	defer s.endFetch()
	if !s.loop.Alive() {
		return
	}
	if err != nil {
		s.fetchErr = fmt.Errorf("fetch notifications: %v: %w", err, domain.ErrConnection)
		s.publish()
		return
	}
	rows = feed.Valid(domain.ResourceNotifications, rows)
	s.coll = reconcile.Sweep(reconcile.Rebase(s.coll, rows, s.journal, mark, keepRead), s.opts.Now())
	s.loaded = true
	s.fetchErr = nil
	s.settle()
	s.publish()
}

func (s *Screen) apply(ev domain.Event[domain.Notification]) {
	if !s.loop.Alive() {
		return
	}
	s.coll = reconcile.Sweep(reconcile.ApplyMerge(s.coll, ev, keepRead), s.opts.Now())
	if s.inFlight > 0 {
		reconcile.Record(s.journal, ev)
	}
	s.settle()
	s.publish()
}

func (s *Screen) sweep(now time.Time) {
	if !s.loop.Alive() {
		return
	}
	swept := reconcile.Sweep(s.coll, now)
	if len(swept) == len(s.coll) {
		return
	}
	s.coll = swept
	s.settle()
	s.publish()
}

// fail records a subscription failure. The screen keeps serving fetches without live updates.
func (s *Screen) fail(err error) {
	s.feedErr = err
	s.publish()
}

// settle drops overlay entries the backend has confirmed or that no longer exist.
func (s *Screen) settle() {
	if len(s.overlay) == 0 {
		return
	}
	live := make(map[string]bool, len(s.coll))
	for _, n := range s.coll {
		live[n.NotificationID] = n.Read
	}
	for id := range s.overlay {
		if read, ok := live[id]; !ok || read {
			delete(s.overlay, id)
		}
	}
}

// view is the held collection with the optimistic overlay applied.
func (s *Screen) view() []domain.Notification {
	out := make([]domain.Notification, len(s.coll))
	copy(out, s.coll)
	for i := range out {
		if _, ok := s.overlay[out[i].NotificationID]; ok {
			out[i].Read = true
		}
	}
	return out
}

func (s *Screen) publish() {
	s.version++
	v := s.view()
	now := s.opts.Now()
	err := s.fetchErr
	if err == nil {
		err = s.feedErr
	}
	s.snap.Store(&Snapshot{
		Sections: s.grouper.Group(context.Background(), v),
		Unread:   grouping.Unread(v, now),
		Pending:  len(s.overlay),
		Loaded:   s.loaded,
		Err:      err,
		Notice:   s.notice,
		Version:  s.version,
	})
	s.updates.Notify()
}

type feedHandler struct{ s *Screen }

func (h feedHandler) OnChange(c feed.RawChange) {
	ev, err := feed.Decode[domain.Notification](c)
	if err != nil {
		slog.Warn("dropping notification change", "type", c.Type, "err", err)
		return
	}
	h.s.post(func() { h.s.apply(ev) })
}

func (h feedHandler) OnError(err error) {
	h.s.post(func() { h.s.fail(err) })
}

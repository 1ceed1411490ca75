package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lostfound-sync/internal/application/feed"
	"github.com/lostfound-sync/internal/application/feed/feedtest"
	"github.com/lostfound-sync/internal/application/grouping"
	"github.com/lostfound-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	args := m.Called(ctx, userID, limit)
	rows, _ := args.Get(0).([]domain.Notification)
	return rows, args.Error(1)
}

func (m *mockStore) MarkRead(ctx context.Context, userID string, ids []string) error {
	args := m.Called(ctx, userID, ids)
	return args.Error(0)
}

func row(id string, typ domain.NotificationType, read bool) domain.Notification {
	return domain.Notification{
		NotificationID: id,
		UserID:         "u1",
		Type:           typ,
		Title:          id,
		CreatedAt:      time.Now().Add(-time.Minute),
		Read:           read,
	}
}

func change(typ string, n domain.Notification) feed.RawChange {
	c := feed.RawChange{Type: typ}
	if typ == feed.TypeDelete {
		c.Old = feedtest.MustJSON(map[string]any{"id": n.NotificationID})
	} else {
		c.New = feedtest.MustJSON(n)
	}
	return c
}

func mount(t *testing.T, store *mockStore, tr *feedtest.MemoryTransport) *Screen {
	t.Helper()
	s := NewScreen(store, tr, grouping.New(nil), Options{UserID: "u1", Limit: 10, SweepInterval: time.Hour})
	require.NoError(t, s.Mount(context.Background()))
	t.Cleanup(s.Unmount)
	return s
}

func entries(s *Snapshot) map[string]grouping.Entry {
	out := make(map[string]grouping.Entry)
	for _, sec := range s.Sections {
		for _, e := range sec.Entries {
			out[e.NotificationID] = e
		}
	}
	return out
}

func waitFor(t *testing.T, s *Screen, cond func(*Snapshot) bool) *Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return cond(s.Snapshot()) }, time.Second, 5*time.Millisecond)
	return s.Snapshot()
}

func loaded(snap *Snapshot) bool { return snap.Loaded }

func TestScreen_MountLoadsAndGroups(t *testing.T) {
	store := &mockStore{}
	store.On("ListByUser", mock.Anything, "u1", 10).Return([]domain.Notification{
		row("n1", domain.NotificationMessage, false),
		row("n2", domain.NotificationMatch, true),
	}, nil)
	tr := feedtest.NewMemoryTransport()

	s := mount(t, store, tr)
	snap := waitFor(t, s, loaded)

	require.Len(t, snap.Sections, 2)
	assert.Equal(t, "Matches", snap.Sections[0].Title)
	assert.Equal(t, "Messages", snap.Sections[1].Title)
	assert.Equal(t, 1, snap.Unread)
	assert.NoError(t, snap.Err)
	assert.Equal(t, 1, tr.Listeners(domain.ResourceNotifications))
}

func TestScreen_InsertThenReadUpdate(t *testing.T) {
	store := &mockStore{}
	store.On("ListByUser", mock.Anything, "u1", 10).Return([]domain.Notification{}, nil)
	tr := feedtest.NewMemoryTransport()
	s := mount(t, store, tr)
	waitFor(t, s, loaded)

	tr.Emit(domain.ResourceNotifications, change(feed.TypeInsert, row("n1", domain.NotificationMatch, false)))
	tr.Emit(domain.ResourceNotifications, change(feed.TypeUpdate, row("n1", domain.NotificationMatch, true)))

	snap := waitFor(t, s, func(snap *Snapshot) bool {
		e, ok := entries(snap)["n1"]
		return ok && e.Read
	})
	require.Len(t, snap.Sections, 1)
	assert.Equal(t, "Matches", snap.Sections[0].Title)
	assert.Equal(t, 1, snap.Sections[0].Count)
	assert.Equal(t, 0, snap.Unread)
}

func TestScreen_ExpiredInsertNeverProjected(t *testing.T) {
	store := &mockStore{}
	store.On("ListByUser", mock.Anything, "u1", 10).Return([]domain.Notification{}, nil)
	tr := feedtest.NewMemoryTransport()
	s := mount(t, store, tr)
	waitFor(t, s, loaded)

	gone := row("n1", domain.NotificationReminder, false)
	past := time.Now().Add(-time.Second)
	gone.ExpiresAt = &past
	tr.Emit(domain.ResourceNotifications, change(feed.TypeInsert, gone))
	tr.Emit(domain.ResourceNotifications, change(feed.TypeInsert, row("n2", domain.NotificationReminder, false)))

	snap := waitFor(t, s, func(snap *Snapshot) bool {
		_, ok := entries(snap)["n2"]
		return ok
	})
	assert.NotContains(t, entries(snap), "n1")
}

func TestScreen_DeleteOfUnknownIdIsHarmless(t *testing.T) {
	store := &mockStore{}
	store.On("ListByUser", mock.Anything, "u1", 10).Return([]domain.Notification{row("n1", domain.NotificationStatus, false)}, nil)
	tr := feedtest.NewMemoryTransport()
	s := mount(t, store, tr)
	before := waitFor(t, s, loaded)

	tr.Emit(domain.ResourceNotifications, change(feed.TypeDelete, row("ghost", domain.NotificationStatus, false)))

	snap := waitFor(t, s, func(snap *Snapshot) bool { return snap.Version > before.Version })
	assert.Len(t, entries(snap), 1)
	assert.NoError(t, snap.Err)
}

func TestScreen_MarkAllReadRacingDelete(t *testing.T) {
	seed := []domain.Notification{
		row("n1", domain.NotificationMatch, false),
		row("n2", domain.NotificationMatch, false),
	}

	t.Run("delete lands first", func(t *testing.T) {
		store := &mockStore{}
		store.On("ListByUser", mock.Anything, "u1", 10).Return(seed, nil)
		store.On("MarkRead", mock.Anything, "u1", []string{"n2"}).Return(nil)
		tr := feedtest.NewMemoryTransport()
		s := mount(t, store, tr)
		waitFor(t, s, loaded)

		tr.Emit(domain.ResourceNotifications, change(feed.TypeDelete, seed[0]))
		waitFor(t, s, func(snap *Snapshot) bool { return len(entries(snap)) == 1 })
		require.NoError(t, s.MarkAllRead(context.Background()))

		snap := s.Snapshot()
		assert.NotContains(t, entries(snap), "n1")
		assert.True(t, entries(snap)["n2"].Read)
		store.AssertExpectations(t)
	})

	t.Run("mark all read lands first", func(t *testing.T) {
		store := &mockStore{}
		store.On("ListByUser", mock.Anything, "u1", 10).Return(seed, nil)
		store.On("MarkRead", mock.Anything, "u1", []string{"n1", "n2"}).Return(nil)
		tr := feedtest.NewMemoryTransport()
		s := mount(t, store, tr)
		waitFor(t, s, loaded)

		require.NoError(t, s.MarkAllRead(context.Background()))
		// A stale unread image of n2 must not clear the local read state.
		tr.Emit(domain.ResourceNotifications, change(feed.TypeUpdate, seed[1]))
		tr.Emit(domain.ResourceNotifications, change(feed.TypeDelete, seed[0]))

		snap := waitFor(t, s, func(snap *Snapshot) bool { return len(entries(snap)) == 1 })
		assert.NotContains(t, entries(snap), "n1")
		assert.True(t, entries(snap)["n2"].Read)
		assert.Equal(t, 0, snap.Unread)
	})
}

func TestScreen_OverlaySettlesOnConfirmation(t *testing.T) {
	store := &mockStore{}
	store.On("ListByUser", mock.Anything, "u1", 10).Return([]domain.Notification{row("n1", domain.NotificationMessage, false)}, nil)
	store.On("MarkRead", mock.Anything, "u1", []string{"n1"}).Return(nil)
	tr := feedtest.NewMemoryTransport()
	s := mount(t, store, tr)
	waitFor(t, s, loaded)

	require.NoError(t, s.MarkRead(context.Background(), "n1"))
	assert.Equal(t, 1, s.Snapshot().Pending)
	assert.True(t, entries(s.Snapshot())["n1"].Read)

	tr.Emit(domain.ResourceNotifications, change(feed.TypeUpdate, row("n1", domain.NotificationMessage, true)))
	snap := waitFor(t, s, func(snap *Snapshot) bool { return snap.Pending == 0 })
	assert.True(t, entries(snap)["n1"].Read)
}

func TestScreen_FailedMutationKeepsOverlay(t *testing.T) {
	store := &mockStore{}
	store.On("ListByUser", mock.Anything, "u1", 10).Return([]domain.Notification{row("n1", domain.NotificationMessage, false)}, nil)
	store.On("MarkRead", mock.Anything, "u1", []string{"n1"}).Return(errors.New("timeout"))
	tr := feedtest.NewMemoryTransport()
	s := mount(t, store, tr)
	waitFor(t, s, loaded)

	err := s.MarkRead(context.Background(), "n1")
	require.ErrorIs(t, err, domain.ErrMutation)

	snap := waitFor(t, s, func(snap *Snapshot) bool { return snap.Notice != nil })
	assert.ErrorIs(t, snap.Notice, domain.ErrMutation)
	assert.True(t, entries(snap)["n1"].Read)
	assert.Equal(t, 1, snap.Pending)
}

func TestScreen_MarkReadOfUnknownIdIsNoop(t *testing.T) {
	store := &mockStore{}
	store.On("ListByUser", mock.Anything, "u1", 10).Return([]domain.Notification{}, nil)
	s := mount(t, store, feedtest.NewMemoryTransport())
	waitFor(t, s, loaded)

	require.NoError(t, s.MarkRead(context.Background(), "nope"))
	store.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
}

func TestScreen_RefreshFailureKeepsLastKnownGood(t *testing.T) {
	store := &mockStore{}
	store.On("ListByUser", mock.Anything, "u1", 10).Return([]domain.Notification{row("n1", domain.NotificationMatch, false)}, nil).Once()
	store.On("ListByUser", mock.Anything, "u1", 10).Return(nil, errors.New("offline")).Once()
	s := mount(t, store, feedtest.NewMemoryTransport())
	waitFor(t, s, loaded)

	err := s.Refresh(context.Background())
	require.ErrorIs(t, err, domain.ErrConnection)

	snap := waitFor(t, s, func(snap *Snapshot) bool { return snap.Err != nil })
	assert.ErrorIs(t, snap.Err, domain.ErrConnection)
	assert.Contains(t, entries(snap), "n1")
}

func TestScreen_RefreshDropsRowsDeletedServerSide(t *testing.T) {
	store := &mockStore{}
	store.On("ListByUser", mock.Anything, "u1", 10).Return([]domain.Notification{
		row("n1", domain.NotificationMatch, false),
		row("n2", domain.NotificationMatch, false),
	}, nil).Once()
	store.On("ListByUser", mock.Anything, "u1", 10).Return([]domain.Notification{row("n2", domain.NotificationMatch, false)}, nil).Once()
	s := mount(t, store, feedtest.NewMemoryTransport())
	waitFor(t, s, loaded)

	require.NoError(t, s.Refresh(context.Background()))
	snap := waitFor(t, s, func(snap *Snapshot) bool { return len(entries(snap)) == 1 })
	assert.Contains(t, entries(snap), "n2")
}

func TestScreen_FeedFailureLeavesFetchOnlyMode(t *testing.T) {
	store := &mockStore{}
	store.On("ListByUser", mock.Anything, "u1", 10).Return([]domain.Notification{row("n1", domain.NotificationMatch, false)}, nil)
	tr := feedtest.NewMemoryTransport()
	tr.OpenErr = errors.New("refused")
	s := mount(t, store, tr)

	snap := waitFor(t, s, func(snap *Snapshot) bool { return snap.Loaded && snap.Err != nil })
	assert.ErrorIs(t, snap.Err, domain.ErrConnection)
	assert.Contains(t, entries(snap), "n1")
}

func TestScreen_ChannelFailureSurfaces(t *testing.T) {
	store := &mockStore{}
	store.On("ListByUser", mock.Anything, "u1", 10).Return([]domain.Notification{}, nil)
	tr := feedtest.NewMemoryTransport()
	s := mount(t, store, tr)
	waitFor(t, s, loaded)

	tr.Break(domain.ResourceNotifications, errors.New("socket closed"))
	snap := waitFor(t, s, func(snap *Snapshot) bool { return snap.Err != nil })
	assert.ErrorIs(t, snap.Err, domain.ErrConnection)
}

func TestScreen_UnmountDiscardsLateFetch(t *testing.T) {
	release := make(chan struct{})
	store := &mockStore{}
	store.On("ListByUser", mock.Anything, "u1", 10).
		Run(func(mock.Arguments) { <-release }).
		Return([]domain.Notification{row("n1", domain.NotificationMatch, false)}, nil)
	tr := feedtest.NewMemoryTransport()
	s := NewScreen(store, tr, nil, Options{UserID: "u1", Limit: 10})
	require.NoError(t, s.Mount(context.Background()))

	s.Unmount()
	close(release)

	assert.False(t, s.Snapshot().Loaded)
	assert.Equal(t, 0, tr.Listeners(domain.ResourceNotifications))
	_, open := <-s.Updates()
	assert.False(t, open)
	assert.ErrorIs(t, s.MarkAllRead(context.Background()), ErrNotMounted)

	// Unmount is idempotent.
	s.Unmount()
}

func TestScreen_MountTwiceConflicts(t *testing.T) {
	store := &mockStore{}
	store.On("ListByUser", mock.Anything, "u1", 10).Return([]domain.Notification{}, nil)
	s := mount(t, store, feedtest.NewMemoryTransport())
	assert.ErrorIs(t, s.Mount(context.Background()), domain.ErrConflict)
}

func TestScreen_FetchDropsInvalidRows(t *testing.T) {
	store := &mockStore{}
	store.On("ListByUser", mock.Anything, "u1", 10).Return([]domain.Notification{
		row("n1", domain.NotificationMatch, false),
		row("n2", "promo", false),
	}, nil)
	s := mount(t, store, feedtest.NewMemoryTransport())
	snap := waitFor(t, s, loaded)

	got := entries(snap)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "n1")
	assert.Equal(t, 1, snap.Unread)
}

func TestScreen_CancelledRefreshLeavesNoOpenFetch(t *testing.T) {
	store := &mockStore{}
	store.On("ListByUser", mock.Anything, "u1", 10).Return([]domain.Notification{}, nil).Once()
	tr := feedtest.NewMemoryTransport()
	s := mount(t, store, tr)
	waitFor(t, s, loaded)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 50; i++ {
		assert.ErrorIs(t, s.Refresh(ctx), context.Canceled)
	}

	tr.Emit(domain.ResourceNotifications, change(feed.TypeInsert, row("n9", domain.NotificationMessage, false)))
	waitFor(t, s, func(snap *Snapshot) bool { _, ok := entries(snap)["n9"]; return ok })

	var open, journaled int
	require.NoError(t, s.call(context.Background(), func() {
		open, journaled = s.inFlight, s.journal.Len()
	}))
	assert.Zero(t, open)
	assert.Zero(t, journaled)
	store.AssertNumberOfCalls(t, "ListByUser", 1)
}

package item

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lostfound-sync/internal/application/feed"
	"github.com/lostfound-sync/internal/application/feed/feedtest"
	"github.com/lostfound-sync/internal/application/visibility"
	"github.com/lostfound-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ListFound(ctx context.Context, limit int) ([]domain.FoundItem, error) {
	args := m.Called(ctx, limit)
	rows, _ := args.Get(0).([]domain.FoundItem)
	return rows, args.Error(1)
}

func (m *mockStore) ListLost(ctx context.Context, limit int) ([]domain.LostRequest, error) {
	args := m.Called(ctx, limit)
	rows, _ := args.Get(0).([]domain.LostRequest)
	return rows, args.Error(1)
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func found(id string, at time.Time, status string) domain.FoundItem {
	return domain.FoundItem{ItemID: id, Title: id, Status: status, CreatedAt: at}
}

func lost(id string, at time.Time, status string) domain.LostRequest {
	return domain.LostRequest{RequestID: id, Title: id, Status: status, CreatedAt: at}
}

func keys(s *Snapshot) []string {
	out := make([]string, len(s.Items))
	for i, e := range s.Items {
		out[i] = e.Key
	}
	return out
}

func mount(t *testing.T, store *mockStore, tr *feedtest.MemoryTransport, q visibility.Query) *Screen {
	t.Helper()
	s := NewScreen(store, tr, Options{Limit: 20, Query: q})
	require.NoError(t, s.Mount(context.Background()))
	t.Cleanup(s.Unmount)
	return s
}

func waitFor(t *testing.T, s *Screen, cond func(*Snapshot) bool) *Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return cond(s.Snapshot()) }, time.Second, 5*time.Millisecond)
	return s.Snapshot()
}

func loaded(snap *Snapshot) bool { return snap.Loaded }

func TestScreen_MergesBothSources(t *testing.T) {
	store := &mockStore{}
	store.On("ListFound", mock.Anything, 20).Return([]domain.FoundItem{found("a", t0, domain.StatusAvailable)}, nil)
	store.On("ListLost", mock.Anything, 20).Return([]domain.LostRequest{lost("b", t0, domain.StatusSearching)}, nil)
	tr := feedtest.NewMemoryTransport()

	s := mount(t, store, tr, visibility.Query{})
	snap := waitFor(t, s, loaded)

	assert.Equal(t, []string{"found:a", "lost:b"}, keys(snap))
	assert.Equal(t, 1, tr.Listeners(domain.ResourceFoundItems))
	assert.Equal(t, 1, tr.Listeners(domain.ResourceLostRequests))
}

func TestScreen_EventOnEitherSourceRemerges(t *testing.T) {
	store := &mockStore{}
	store.On("ListFound", mock.Anything, 20).Return([]domain.FoundItem{found("a", t0, domain.StatusAvailable)}, nil)
	store.On("ListLost", mock.Anything, 20).Return([]domain.LostRequest{}, nil)
	tr := feedtest.NewMemoryTransport()
	s := mount(t, store, tr, visibility.Query{Statuses: []string{domain.StatusAvailable, domain.StatusSearching}})
	waitFor(t, s, loaded)

	tr.Emit(domain.ResourceLostRequests, feed.RawChange{
		Type: feed.TypeInsert,
		New:  feedtest.MustJSON(lost("b", t0.Add(time.Hour), domain.StatusSearching)),
	})
	snap := waitFor(t, s, func(snap *Snapshot) bool { return len(snap.Items) == 2 })
	assert.Equal(t, []string{"lost:b", "found:a"}, keys(snap))

	// Claiming the found item filters it out.
	tr.Emit(domain.ResourceFoundItems, feed.RawChange{
		Type: feed.TypeUpdate,
		New:  feedtest.MustJSON(found("a", t0, domain.StatusClaimed)),
	})
	snap = waitFor(t, s, func(snap *Snapshot) bool { return len(snap.Items) == 1 })
	assert.Equal(t, []string{"lost:b"}, keys(snap))
	assert.Equal(t, 1, snap.Found)
}

func TestScreen_CollidingIdsStayApart(t *testing.T) {
	store := &mockStore{}
	store.On("ListFound", mock.Anything, 20).Return([]domain.FoundItem{found("x", t0, domain.StatusAvailable)}, nil)
	store.On("ListLost", mock.Anything, 20).Return([]domain.LostRequest{lost("x", t0, domain.StatusSearching)}, nil)
	tr := feedtest.NewMemoryTransport()
	s := mount(t, store, tr, visibility.Query{})
	waitFor(t, s, loaded)

	tr.Emit(domain.ResourceLostRequests, feed.RawChange{
		Type: feed.TypeDelete,
		Old:  feedtest.MustJSON(map[string]any{"id": "x"}),
	})
	snap := waitFor(t, s, func(snap *Snapshot) bool { return len(snap.Items) == 1 })
	assert.Equal(t, []string{"found:x"}, keys(snap))
}

func TestScreen_InvalidRowsAreDropped(t *testing.T) {
	store := &mockStore{}
	store.On("ListFound", mock.Anything, 20).Return([]domain.FoundItem{}, nil)
	store.On("ListLost", mock.Anything, 20).Return([]domain.LostRequest{}, nil)
	tr := feedtest.NewMemoryTransport()
	s := mount(t, store, tr, visibility.Query{})
	before := waitFor(t, s, loaded)

	bad := found("neg", t0, domain.StatusAvailable)
	bad.Price = -5
	tr.Emit(domain.ResourceFoundItems, feed.RawChange{Type: feed.TypeInsert, New: feedtest.MustJSON(bad)})
	tr.Emit(domain.ResourceFoundItems, feed.RawChange{Type: feed.TypeInsert, New: feedtest.MustJSON(found("ok", t0, ""))})

	snap := waitFor(t, s, func(snap *Snapshot) bool { return snap.Version > before.Version })
	assert.Equal(t, []string{"found:ok"}, keys(snap))
	assert.NoError(t, snap.Err)
}

func TestScreen_SetQueryNearMe(t *testing.T) {
	lat, lon := 52.52, 13.405
	near := found("near", t0, domain.StatusAvailable)
	near.Latitude, near.Longitude = &lat, &lon
	far := lost("far", t0.Add(time.Hour), domain.StatusSearching)

	store := &mockStore{}
	store.On("ListFound", mock.Anything, 20).Return([]domain.FoundItem{near}, nil)
	store.On("ListLost", mock.Anything, 20).Return([]domain.LostRequest{far}, nil)
	s := mount(t, store, feedtest.NewMemoryTransport(), visibility.Query{})
	waitFor(t, s, loaded)

	err := s.SetQuery(context.Background(), visibility.Query{Near: visibility.NearOptions{
		Ref:      &domain.Location{Lat: 52.5, Lon: 13.4},
		NearMe:   true,
		RadiusKm: 10,
	}})
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Equal(t, []string{"found:near"}, keys(snap))
	require.NotNil(t, snap.Items[0].DistanceKm)
	assert.Less(t, *snap.Items[0].DistanceKm, 10.0)
}

func TestScreen_PartialFetchFailure(t *testing.T) {
	store := &mockStore{}
	store.On("ListFound", mock.Anything, 20).Return([]domain.FoundItem{found("a", t0, "")}, nil)
	store.On("ListLost", mock.Anything, 20).Return(nil, errors.New("timeout"))
	s := mount(t, store, feedtest.NewMemoryTransport(), visibility.Query{})

	snap := waitFor(t, s, loaded)
	assert.Equal(t, []string{"found:a"}, keys(snap))
	assert.ErrorIs(t, snap.Err, domain.ErrConnection)
}

func TestScreen_RefreshFailureKeepsLastKnownGood(t *testing.T) {
	store := &mockStore{}
	store.On("ListFound", mock.Anything, 20).Return([]domain.FoundItem{found("a", t0, "")}, nil).Once()
	store.On("ListLost", mock.Anything, 20).Return([]domain.LostRequest{lost("b", t0, "")}, nil).Once()
	store.On("ListFound", mock.Anything, 20).Return(nil, errors.New("offline"))
	store.On("ListLost", mock.Anything, 20).Return(nil, errors.New("offline"))
	s := mount(t, store, feedtest.NewMemoryTransport(), visibility.Query{})
	waitFor(t, s, loaded)

	require.ErrorIs(t, s.Refresh(context.Background()), domain.ErrConnection)
	snap := waitFor(t, s, func(snap *Snapshot) bool { return snap.Err != nil })
	assert.Len(t, snap.Items, 2)
}

func TestScreen_UnmountReleasesBothChannels(t *testing.T) {
	store := &mockStore{}
	store.On("ListFound", mock.Anything, 20).Return([]domain.FoundItem{}, nil)
	store.On("ListLost", mock.Anything, 20).Return([]domain.LostRequest{}, nil)
	tr := feedtest.NewMemoryTransport()
	s := NewScreen(store, tr, Options{Limit: 20})
	require.NoError(t, s.Mount(context.Background()))

	s.Unmount()
	s.Unmount()

	assert.Equal(t, 0, tr.Listeners(domain.ResourceFoundItems))
	assert.Equal(t, 0, tr.Listeners(domain.ResourceLostRequests))
	assert.ErrorIs(t, s.SetQuery(context.Background(), visibility.Query{}), ErrNotMounted)
}

func TestScreen_FetchDropsInvalidRows(t *testing.T) {
	bad := lost("neg", t0, domain.StatusSearching)
	bad.Reward = -1
	store := &mockStore{}
	store.On("ListFound", mock.Anything, 20).Return([]domain.FoundItem{found("a", t0, "unknown")}, nil)
	store.On("ListLost", mock.Anything, 20).Return([]domain.LostRequest{bad, lost("b", t0, "")}, nil)

	s := mount(t, store, feedtest.NewMemoryTransport(), visibility.Query{})
	snap := waitFor(t, s, loaded)

	assert.Equal(t, []string{"lost:b"}, keys(snap))
	assert.NoError(t, snap.Err)
}

func TestScreen_CancelledRefreshLeavesNoOpenFetch(t *testing.T) {
	store := &mockStore{}
	store.On("ListFound", mock.Anything, 20).Return([]domain.FoundItem{}, nil).Once()
	store.On("ListLost", mock.Anything, 20).Return([]domain.LostRequest{}, nil).Once()
	tr := feedtest.NewMemoryTransport()
	s := mount(t, store, tr, visibility.Query{})
	before := waitFor(t, s, loaded)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 50; i++ {
		assert.ErrorIs(t, s.Refresh(ctx), context.Canceled)
	}

	tr.Emit(domain.ResourceFoundItems, feed.RawChange{Type: feed.TypeInsert, New: feedtest.MustJSON(found("x", t0, ""))})
	tr.Emit(domain.ResourceLostRequests, feed.RawChange{Type: feed.TypeInsert, New: feedtest.MustJSON(lost("y", t0, ""))})
	waitFor(t, s, func(snap *Snapshot) bool { return snap.Version > before.Version && len(snap.Items) == 2 })

	var open, journaled int
	require.NoError(t, s.loop.Call(context.Background(), func() {
		open, journaled = s.inFlight, s.foundLog.Len()+s.lostLog.Len()
	}))
	assert.Zero(t, open)
	assert.Zero(t, journaled)
}

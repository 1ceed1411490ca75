package grouping

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lostfound-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func n(id string, typ domain.NotificationType, age time.Duration) domain.Notification {
	return domain.Notification{NotificationID: id, Type: typ, Title: id, CreatedAt: now.Add(-age)}
}

func fixedGrouper(images ImageResolver) *Grouper {
	g := New(images)
	g.Now = func() time.Time { return now }
	return g
}

type fakeImages struct {
	urls map[string]string
}

func (f fakeImages) ImageURL(_ context.Context, ref string) (string, error) {
	if u, ok := f.urls[ref]; ok {
		return u, nil
	}
	return "", errors.New("no such object")
}

func TestGroup_FixedOrderOmitsEmpty(t *testing.T) {
	c := []domain.Notification{
		n("r1", domain.NotificationReminder, time.Minute),
		n("m1", domain.NotificationMatch, time.Hour),
		n("r2", domain.NotificationReminder, 2*time.Hour),
	}
	got := fixedGrouper(nil).Group(context.Background(), c)
	require.Len(t, got, 2)
	assert.Equal(t, "Matches", got[0].Title)
	assert.Equal(t, "Reminders", got[1].Title)
	assert.Equal(t, 2, got[1].Count)
	assert.Equal(t, "r1", got[1].Entries[0].NotificationID)
}

func TestGroup_EveryEntryInExactlyOneSection(t *testing.T) {
	types := []domain.NotificationType{
		domain.NotificationMatch, domain.NotificationMessage, domain.NotificationStatus, domain.NotificationReminder,
	}
	var c []domain.Notification
	for i := 0; i < 23; i++ {
		c = append(c, n(string(rune('a'+i)), types[i%3], time.Duration(i)*time.Minute))
	}
	got := fixedGrouper(nil).Group(context.Background(), c)

	seen := map[string]int{}
	total := 0
	for _, s := range got {
		assert.NotZero(t, s.Count)
		for _, e := range s.Entries {
			assert.Equal(t, s.Type, e.Type)
			seen[e.NotificationID]++
		}
		total += s.Count
	}
	assert.Equal(t, len(c), total)
	for _, x := range c {
		assert.Equal(t, 1, seen[x.NotificationID])
	}
	// Reminders never occur in this input, so the section is left out.
	assert.Len(t, got, 3)
}

func TestGroup_SkipsExpiredAndAddsCountdown(t *testing.T) {
	past := now.Add(-time.Second)
	future := now.Add(90 * time.Minute)
	expired := n("gone", domain.NotificationStatus, time.Hour)
	expired.ExpiresAt = &past
	live := n("live", domain.NotificationStatus, time.Hour)
	live.ExpiresAt = &future

	got := fixedGrouper(nil).Group(context.Background(), []domain.Notification{expired, live})
	require.Len(t, got, 1)
	require.Len(t, got[0].Entries, 1)
	assert.Equal(t, "live", got[0].Entries[0].NotificationID)
	assert.Equal(t, "expires in 1h 30m", got[0].Entries[0].ExpiresIn)
	assert.Equal(t, "1h ago", got[0].Entries[0].RelativeTime)
}

func TestGroup_UnreadCountsAndImages(t *testing.T) {
	a := n("a", domain.NotificationMessage, 0)
	a.Payload = map[string]any{"image": "items/a.jpg"}
	b := n("b", domain.NotificationMessage, 0)
	b.Read = true
	b.Payload = map[string]any{"image": "missing.jpg"}

	g := fixedGrouper(fakeImages{urls: map[string]string{"items/a.jpg": "https://cdn/items/a.jpg"}})
	got := g.Group(context.Background(), []domain.Notification{a, b})
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Unread)
	assert.Equal(t, "https://cdn/items/a.jpg", got[0].Entries[0].ImageURL)
	assert.Empty(t, got[0].Entries[1].ImageURL)
}

func TestMarkAllRead_OnlyVisibleUnread(t *testing.T) {
	past := now.Add(-time.Minute)
	expired := n("expired", domain.NotificationMatch, time.Hour)
	expired.ExpiresAt = &past
	read := n("read", domain.NotificationMatch, time.Hour)
	read.Read = true
	c := []domain.Notification{n("a", domain.NotificationMatch, 0), expired, read, n("b", domain.NotificationReminder, 0)}

	assert.Equal(t, []string{"a", "b"}, MarkAllRead(c, now))
	assert.Equal(t, 2, Unread(c, now))
}

func TestRelativeTime(t *testing.T) {
	cases := []struct {
		age  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{50 * time.Hour, "2d ago"},
		{10 * 24 * time.Hour, "May 22"},
		{400 * 24 * time.Hour, "Apr 28, 2023"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, RelativeTime(now.Add(-c.age), now), c.want)
	}
}

func TestCountdown(t *testing.T) {
	assert.Equal(t, "expires in 45s", Countdown(now.Add(45*time.Second), now))
	assert.Equal(t, "expires in 12m", Countdown(now.Add(12*time.Minute), now))
	assert.Equal(t, "expires in 2h 05m", Countdown(now.Add(2*time.Hour+5*time.Minute), now))
	assert.Equal(t, "expires in 3d 4h", Countdown(now.Add(76*time.Hour), now))
}

func TestCountdown_NeverOverstatesOrHitsZero(t *testing.T) {
	assert.Equal(t, "expires in 1s", Countdown(now.Add(300*time.Millisecond), now))
	assert.Equal(t, "expires in 1s", Countdown(now.Add(time.Nanosecond), now))
	assert.Equal(t, "expires in 59s", Countdown(now.Add(59*time.Second+900*time.Millisecond), now))
	assert.Equal(t, "expires in 59m", Countdown(now.Add(59*time.Minute+59600*time.Millisecond), now))
	assert.Equal(t, "expires in 23h 59m", Countdown(now.Add(24*time.Hour-time.Millisecond), now))
}

func TestRelativeTime_FutureReadsJustNow(t *testing.T) {
	assert.Equal(t, "just now", RelativeTime(now.Add(3*24*time.Hour), now))
}

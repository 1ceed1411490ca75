package reconcile

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/lostfound-sync/internal/domain"
	"github.com/stretchr/testify/assert"
)

func expiring(id string, at time.Time) domain.Notification {
	n := notif(id, false)
	n.ExpiresAt = &at
	return n
}

func TestSweep_RemovesExpired(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := []domain.Notification{
		expiring("past", now.Add(-time.Second)),
		expiring("exact", now),
		expiring("future", now.Add(time.Minute)),
		notif("forever", false),
	}
	out := Sweep(c, now)
	assert.Equal(t, []string{"future", "forever"}, ids(out))
}

func TestSweep_Monotonic(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := []domain.Notification{
		expiring("a", now.Add(-time.Hour)),
		expiring("b", now.Add(30*time.Second)),
		notif("c", false),
	}
	swept := Sweep(c, now)
	for _, later := range []time.Duration{0, time.Second, time.Minute, 24 * time.Hour} {
		out := Sweep(swept, now.Add(later))
		assert.NotContains(t, ids(out), "a")
	}
}

func TestSweep_Idempotent(t *testing.T) {
	now := time.Now()
	c := []domain.Notification{expiring("a", now.Add(-time.Minute)), notif("b", false)}
	once := Sweep(c, now)
	assert.Equal(t, once, Sweep(once, now))
}

func TestSweeper_TicksUntilStopped(t *testing.T) {
	var ticks atomic.Int32
	s := NewSweeper(5 * time.Millisecond)
	s.Start(func(time.Time) { ticks.Add(1) })

	assert.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, time.Millisecond)
	s.Stop()
	stopped := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, ticks.Load())

	s.Stop()
}

func TestSweeper_StopWithoutStart(t *testing.T) {
	s := NewSweeper(0)
	assert.Equal(t, DefaultSweepInterval, s.interval)
	assert.NotPanics(t, s.Stop)
}

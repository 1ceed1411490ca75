package actor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActor_RunsInPostOrder(t *testing.T) {
	a := New(8)
	a.Start()
	defer a.Stop()

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		a.Post(func() { got = append(got, i) })
	}
	require.NoError(t, a.Call(context.Background(), func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestActor_CallsAreSerialized(t *testing.T) {
	a := New(1)
	a.Start()
	defer a.Stop()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.Call(context.Background(), func() { counter++ })
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestActor_StopRejectsCalls(t *testing.T) {
	a := New(1)
	a.Start()
	a.Stop()
	a.Stop()

	assert.False(t, a.Alive())
	assert.ErrorIs(t, a.Call(context.Background(), func() {}), ErrStopped)

	// Post after stop must not block.
	done := make(chan struct{})
	go func() {
		a.Post(func() {})
		a.Post(func() {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("post blocked after stop")
	}
}

func TestActor_CallHonoursContext(t *testing.T) {
	a := New(0)
	a.Start()
	defer a.Stop()

	block := make(chan struct{})
	a.Post(func() { <-block })
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.Call(ctx, func() {}), context.DeadlineExceeded)
}

func TestActor_StopWithoutStart(t *testing.T) {
	a := New(1)
	a.Stop()
	assert.False(t, a.Alive())
}

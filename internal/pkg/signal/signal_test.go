package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignal_Coalesces(t *testing.T) {
	s := New()
	s.Notify()
	s.Notify()
	s.Notify()

	<-s.C()
	select {
	case <-s.C():
		t.Fatal("expected a single wakeup")
	default:
	}
}

func TestSignal_Close(t *testing.T) {
	s := New()
	s.Close()
	s.Close()
	_, ok := <-s.C()
	assert.False(t, ok)
}

package editsync

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestMonitor(t *testing.T) {
	monitor := NewMonitor()

	notify := monitor.NotifyChannel()
	woke := make(chan struct{})
	go func() {
		<-notify
		close(woke)
	}()

	monitor.NotifyAll()

	select {
	case <-woke:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for notify")
	}

	// the channel returned by NotifyAll is for the next update
	next := monitor.NotifyAll()
	select {
	case <-next:
		t.Fatal("next channel should be open")
	default:
	}
}

func TestCallbackList(t *testing.T) {
	callbacks := NewCallbackList[func() int]()

	removeA := callbacks.Add(func() int { return 1 })
	callbacks.Add(func() int { return 2 })
	callbacks.Add(func() int { return 3 })

	values := []int{}
	for _, callback := range callbacks.Get() {
		values = append(values, callback())
	}
	assert.Equal(t, values, []int{1, 2, 3})

	removeA()

	values = []int{}
	for _, callback := range callbacks.Get() {
		values = append(values, callback())
	}
	assert.Equal(t, values, []int{2, 3})

	// removing twice is a no-op
	removeA()
	assert.Equal(t, len(callbacks.Get()), 2)
}

func TestReconnect(t *testing.T) {
	// the wait includes time already elapsed since creation
	reconnect := NewReconnect(50 * time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	select {
	case <-reconnect.After():
	case <-time.After(10 * time.Millisecond):
		t.Fatal("elapsed reconnect should fire immediately")
	}

	reconnect = NewReconnect(50 * time.Millisecond)
	start := time.Now()
	<-reconnect.After()
	if time.Since(start) < 25*time.Millisecond {
		t.Fatal("fresh reconnect fired too early")
	}
}

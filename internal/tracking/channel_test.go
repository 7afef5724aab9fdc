package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, c *Channel) []Event {
	t.Helper()
	var got []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatal("channel did not close")
		}
	}
}

func TestChannelDeliversInPushOrder(t *testing.T) {
	c := NewChannel()
	for i := 0; i < 50; i++ {
		require.True(t, c.Push(NewProgress(string(rune('a'+i%26)))))
	}
	c.Close()

	got := drain(t, c)
	require.Len(t, got, 50)
	for i, ev := range got {
		require.Equal(t, NewProgress(string(rune('a'+i%26))), ev)
	}
}

func TestChannelPushAfterCloseIsNoop(t *testing.T) {
	c := NewChannel()
	require.True(t, c.Push(NewProgress("before")))
	c.Close()
	c.Close()

	require.False(t, c.Push(NewProgress("after")))
	require.True(t, c.Closed())
	require.Equal(t, []Event{NewProgress("before")}, drain(t, c))
}

func TestChannelDetachStopsDelivery(t *testing.T) {
	c := NewChannel()
	c.Push(NewProgress("one"))
	c.Push(NewProgress("two"))
	c.Detach()
	c.Detach()

	require.False(t, c.Push(NewProgress("three")))
	got := drain(t, c)
	require.LessOrEqual(t, len(got), 2)
}

func TestChannelProducerNeverBlocks(t *testing.T) {
	c := NewChannel()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			c.Push(NewProgress("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("push blocked without a reader")
	}
	c.Detach()
}

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNilServiceIsNoop(t *testing.T) {
	var s *Service
	s.Publish(context.Background(), "pythonrpg", "message", map[string]string{"x": "y"})
	require.NoError(t, s.Close())
}

func TestEmptyAddrReturnsNilService(t *testing.T) {
	s, err := New("", "")
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := New(mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	received := make(chan Event, 1)
	s.Subscribe(ctx, "pythonrpg", func(evt Event) {
		received <- evt
	})

	time.Sleep(50 * time.Millisecond)
	s.Publish(ctx, "pythonrpg", "join", map[string]string{"user": "tester"})

	select {
	case evt := <-received:
		require.Equal(t, "pythonrpg", evt.Room)
		require.Equal(t, "join", evt.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

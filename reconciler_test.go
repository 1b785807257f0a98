package chatango

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReconcilerBThenU(t *testing.T) {
	r := NewMessageReconciler()
	msg := &Message{TempID: "tmp1", Body: "hello"}

	complete, ready := r.OnB(msg)
	require.False(t, ready)
	require.Nil(t, complete)

	complete, ready = r.OnU("tmp1", "final1")
	require.True(t, ready)
	require.Same(t, msg, complete)
	require.Equal(t, "final1", complete.ID)

	mqueue, uqueue := r.Pending()
	require.Zero(t, mqueue)
	require.Zero(t, uqueue)
}

func TestReconcilerUThenB(t *testing.T) {
	r := NewMessageReconciler()
	msg := &Message{TempID: "tmp2", Body: "world"}

	complete, ready := r.OnU("tmp2", "final2")
	require.False(t, ready)
	require.Nil(t, complete)

	complete, ready = r.OnB(msg)
	require.True(t, ready)
	require.Same(t, msg, complete)
	require.Equal(t, "final2", complete.ID)

	mqueue, uqueue := r.Pending()
	require.Zero(t, mqueue)
	require.Zero(t, uqueue)
}

func TestReconcilerDrop(t *testing.T) {
	r := NewMessageReconciler()
	r.OnB(&Message{TempID: "tmp3"})
	mqueue, _ := r.Pending()
	require.Equal(t, 1, mqueue)

	r.Drop("tmp3")
	mqueue, uqueue := r.Pending()
	require.Zero(t, mqueue)
	require.Zero(t, uqueue)

	// A u frame for a dropped temp-id starts fresh, not completing anything.
	complete, ready := r.OnU("tmp3", "finalX")
	require.False(t, ready)
	require.Nil(t, complete)
}

func TestReconcilerReset(t *testing.T) {
	r := NewMessageReconciler()
	r.OnB(&Message{TempID: "a"})
	r.OnU("b", "finalB")

	r.Reset()
	mqueue, uqueue := r.Pending()
	require.Zero(t, mqueue)
	require.Zero(t, uqueue)
}

func TestReconcilerQueuesAreDisjoint(t *testing.T) {
	r := NewMessageReconciler()
	for i := 0; i < 50; i++ {
		id := string(rune('a' + i%26))
		r.OnB(&Message{TempID: id})
	}
	mqueue, uqueue := r.Pending()
	require.Positive(t, mqueue)
	require.Zero(t, uqueue)
}

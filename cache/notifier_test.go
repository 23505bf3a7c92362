package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierFanout(t *testing.T) {
	n := newNotifier()

	id1, ch1 := n.Subscribe(4)
	id2, ch2 := n.Subscribe(4)
	defer n.Unsubscribe(id1)
	defer n.Unsubscribe(id2)

	n.Publish(ChangeNotification{Key: "doc:a", NewValue: "v", Timestamp: time.Now()})

	for _, ch := range []<-chan ChangeNotification{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, "doc:a", got.Key)
			assert.NotEmpty(t, got.ID)
		case <-time.After(time.Second):
			t.Fatal("expected a notification")
		}
	}
}

func TestNotifierDropsWhenBufferFull(t *testing.T) {
	n := newNotifier()

	id, ch := n.Subscribe(1)
	defer n.Unsubscribe(id)

	n.Publish(ChangeNotification{Key: "doc:a"})
	n.Publish(ChangeNotification{Key: "doc:b"})

	got := <-ch
	assert.Equal(t, "doc:a", got.Key)
	assert.Empty(t, ch)
}

func TestNotifierUnsubscribeClosesChannel(t *testing.T) {
	n := newNotifier()

	id, ch := n.Subscribe(1)
	n.Unsubscribe(id)

	_, open := <-ch
	require.False(t, open)

	// Publishing after unsubscribe is a no-op.
	n.Publish(ChangeNotification{Key: "doc:a"})
}

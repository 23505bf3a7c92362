package cache

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChangeNotification is emitted when freshness polling replaces an entry's
// value.
type ChangeNotification struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	NewValue  any       `json:"newValue"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier fans change notifications out to subscribers. Sends are
// non-blocking: a subscriber that stops draining its channel drops
// notifications instead of stalling a polling pass.
type Notifier struct {
	mu   sync.RWMutex
	subs map[string]chan ChangeNotification
}

func newNotifier() *Notifier {
	return &Notifier{subs: make(map[string]chan ChangeNotification)}
}

// Subscribe registers a listener. The returned id is used to unsubscribe.
func (n *Notifier) Subscribe(buffer int) (string, <-chan ChangeNotification) {
	if buffer <= 0 {
		buffer = 16
	}
	id := uuid.New().String()
	ch := make(chan ChangeNotification, buffer)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (n *Notifier) Unsubscribe(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ch, ok := n.subs[id]; ok {
		delete(n.subs, id)
		close(ch)
	}
}

// Publish delivers a notification to every subscriber that has buffer room.
func (n *Notifier) Publish(notification ChangeNotification) {
	if notification.ID == "" {
		notification.ID = uuid.New().String()
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subs {
		select {
		case ch <- notification:
		default:
		}
	}
}

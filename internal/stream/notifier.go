package stream

import "sync"

// Notifier nudges the open streams of an event after a change, so they
// rebuild without waiting for their next tick. A nudge carries no data; a
// slow subscriber that already has one pending simply skips the extra one.
type Notifier struct {
	mu   sync.RWMutex
	subs map[string]map[chan struct{}]struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]map[chan struct{}]struct{})}
}

// Subscribe returns a wake channel for eventID and a function that releases it.
func (n *Notifier) Subscribe(eventID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	if n.subs[eventID] == nil {
		n.subs[eventID] = make(map[chan struct{}]struct{})
	}
	n.subs[eventID][ch] = struct{}{}
	n.mu.Unlock()

	return ch, func() {
		n.mu.Lock()
		delete(n.subs[eventID], ch)
		if len(n.subs[eventID]) == 0 {
			delete(n.subs, eventID)
		}
		n.mu.Unlock()
	}
}

func (n *Notifier) Notify(eventID string) {
	n.mu.RLock()
	for ch := range n.subs[eventID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	n.mu.RUnlock()
}

// Subscribers reports how many streams are open for eventID.
func (n *Notifier) Subscribers(eventID string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs[eventID])
}

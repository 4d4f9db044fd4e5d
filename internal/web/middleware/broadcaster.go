package middleware

import (
	"sync"

	"github.com/kozaktomas/face-gate/internal/constants"
	"github.com/kozaktomas/face-gate/internal/session"
)

// EventBroadcaster fans session events out to SSE listeners.
type EventBroadcaster struct {
	listeners []chan session.Event
	closed    bool
	mu        sync.RWMutex
}

// AddListener adds a new event listener. On a closed broadcaster the returned
// channel is already closed.
func (b *EventBroadcaster) AddListener() chan session.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan session.Event, constants.EventChannelBuffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan session.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// SendEvent sends an event to all listeners. Slow listeners miss events rather than block the session.
func (b *EventBroadcaster) SendEvent(event session.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.listeners {
		select {
		case ch <- event:
		default:
		}
	}
}

// Listeners returns the number of attached listeners.
func (b *EventBroadcaster) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Close closes every listener channel. Later events are discarded.
func (b *EventBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.listeners {
		close(ch)
	}
	b.listeners = nil
}

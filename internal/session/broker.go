package session

import (
	"sync"
	"time"

	"github.com/filedrop/backend/internal/admission"
)

// EventType names a session event pushed to subscribers.
type EventType string

const (
	EventFileAdded    EventType = "file:added"
	EventFileRejected EventType = "file:rejected"
	EventFileDeleted  EventType = "file:deleted"
	EventFileUploaded EventType = "file:uploaded"
	EventUploadFailed EventType = "upload:failed"
	EventClosed       EventType = "session:closed"
)

// Event is one change in a drop session.
type Event struct {
	Type      EventType              `json:"type"`
	SessionID string                 `json:"sessionId"`
	Files     []admission.RecordInfo `json:"files,omitempty"`
	Error     string                 `json:"error,omitempty"`
	At        time.Time              `json:"at"`
}

const subscriberBuffer = 64

// Broker fans session events out to subscribers. Slow subscribers lose
// events rather than blocking the engine.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe returns a channel of the session's events and a function that
// ends the subscription.
func (b *Broker) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan Event]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[sessionID]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(b.subs, sessionID)
				}
			}
		})
	}
}

// Publish delivers ev to the subscribers of its session.
func (b *Broker) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// CloseSession closes every subscription of the session.
func (b *Broker) CloseSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[sessionID] {
		close(ch)
	}
	delete(b.subs, sessionID)
}

// Subscribers returns the number of open subscriptions of a session.
func (b *Broker) Subscribers(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sessionID])
}

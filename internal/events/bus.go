// Package events provides the typed in-process event bus that decouples the
// ingestion pipeline and photo store from notification transports. Observers
// subscribe to lifecycle events; the websocket layer is just one subscriber.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a lifecycle event.
type EventType string

const (
	EventPhotoAdded         EventType = "photo_added"
	EventPhotoDeleted       EventType = "photo_deleted"
	EventPhotosCleared      EventType = "photos_cleared"
	EventWatchStatusChanged EventType = "watch_status_changed"
)

// Event is a published lifecycle event.
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// PhotoAdded is the payload of EventPhotoAdded.
type PhotoAdded struct {
	Filename     string    `json:"filename"`
	Path         string    `json:"path"`
	Thumbnail    string    `json:"thumbnail"`
	LastModified time.Time `json:"lastModified"`
}

// PhotoDeleted is the payload of EventPhotoDeleted.
type PhotoDeleted struct {
	Filename string `json:"filename"`
}

// WatchStatusChanged is the payload of EventWatchStatusChanged.
type WatchStatusChanged struct {
	IsWatching bool   `json:"isWatching"`
	Path       string `json:"path,omitempty"`
}

// Publisher is the narrow interface components use to emit events.
// Publishing is fire-and-forget: no acknowledgment, no error.
type Publisher interface {
	Publish(eventType EventType, payload interface{})
}

// Bus fans events out to subscriber channels. Slow subscribers are skipped
// rather than blocking publishers.
type Bus struct {
	mutex       sync.RWMutex
	subscribers []chan Event
	closed      bool
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make([]chan Event, 0),
	}
}

// Publish delivers an event to all current subscribers.
func (b *Bus) Publish(eventType EventType, payload interface{}) {
	event := Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	b.mutex.RLock()
	defer b.mutex.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber's buffer is full, skip this event for it
		}
	}
}

// Subscribe returns a channel that receives published events.
func (b *Bus) Subscribe() <-chan Event {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	ch := make(chan Event, 100)
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for i, sub := range b.subscribers {
		if sub == ch {
			close(sub)
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			break
		}
	}
}

// Close closes all subscriber channels. Publish becomes a no-op afterwards.
func (b *Bus) Close() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, sub := range b.subscribers {
		close(sub)
	}
	b.subscribers = nil
}

// Count returns the number of active subscribers.
func (b *Bus) Count() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	return len(b.subscribers)
}

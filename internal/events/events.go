// Package events provides the event bus the sync engine publishes on.
// UI layers subscribe here instead of registering listener callbacks on
// individual components.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/datumcloud/datum-sync/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventAuthState      EventType = "auth_state"      // Authentication state machine transition
	EventSessionChanged EventType = "session_changed" // Current session replaced or cleared
	EventHostChanged    EventType = "host_changed"    // Current host address refreshed by cluster discovery
	EventJobRunning     EventType = "job_running"     // Background job body started
	EventJobStopped     EventType = "job_stopped"     // Background job body finished (success or failure)
	EventSectionList    EventType = "section_list"    // Listing container contents changed
	EventActionError    EventType = "action_error"    // Tagged error surfaced to the UI layer
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// AuthStateEvent reports an authentication state machine transition.
type AuthStateEvent struct {
	BaseEvent
	State string // "no_account", "select_account", "authenticating", ...
	Email string // credential email involved, if any
}

// SessionChangedEvent reports the current session being replaced or cleared.
type SessionChangedEvent struct {
	BaseEvent
	UserKey string // empty when the session was cleared
}

// HostChangedEvent reports a refreshed current-host address.
type HostChangedEvent struct {
	BaseEvent
	HostKey  string
	HostAddr string
	HTTPPort int
}

// JobEvent reports a background job body starting or stopping.
type JobEvent struct {
	BaseEvent
	Kind    string // "heartbeat", "accountinfo", "logout"
	UserKey string
	Err     error // set on stopped events when the run failed
}

// SectionListEvent reports a listing container's contents changing.
type SectionListEvent struct {
	BaseEvent
	ContainerID string
	Count       int // accumulated section count after the change
	TotalCount  int
}

// ActionErrorEvent carries a tagged error for the UI layer.
type ActionErrorEvent struct {
	BaseEvent
	Action string
	Code   int
	Err    error
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers. Publishing never blocks;
// events are dropped when a subscriber's buffer is full.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// PublishJobRunning is a convenience method for job start notifications.
func (eb *EventBus) PublishJobRunning(kind, userKey string) {
	eb.Publish(&JobEvent{
		BaseEvent: BaseEvent{EventType: EventJobRunning, Time: time.Now()},
		Kind:      kind,
		UserKey:   userKey,
	})
}

// PublishJobStopped is a convenience method for job completion notifications.
func (eb *EventBus) PublishJobStopped(kind, userKey string, err error) {
	eb.Publish(&JobEvent{
		BaseEvent: BaseEvent{EventType: EventJobStopped, Time: time.Now()},
		Kind:      kind,
		UserKey:   userKey,
		Err:       err,
	})
}

// PublishActionError is a convenience method for surfacing tagged errors.
func (eb *EventBus) PublishActionError(action string, code int, err error) {
	eb.Publish(&ActionErrorEvent{
		BaseEvent: BaseEvent{EventType: EventActionError, Time: time.Now()},
		Action:    action,
		Code:      code,
		Err:       err,
	})
}

// Unsubscribe removes a subscription channel from a specific event type.
// This prevents leaks from abandoned subscriptions.
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			break
		}
	}
}

// GetDroppedEventCount returns the total number of events dropped due to
// full buffers.
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}

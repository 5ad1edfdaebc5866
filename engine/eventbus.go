package engine

import (
	"fmt"
	"log"
	"sync"
	"time"
)

type EventType int

var eventNames = map[EventType]string{
	EventRequestCreated:         "request.created",
	EventRequestStatusChanged:   "request.status_changed",
	EventAssignmentCreated:      "assignment.created",
	EventAssignmentTransitioned: "assignment.transitioned",
	EventAssignmentCancelled:    "assignment.cancelled",
	EventStaleAssignmentRemoved: "assignment.stale_removed",
	EventJobCredited:            "job.credited",
	EventConsistencyWarning:     "consistency.warning",
	EventMessagingConnected:     "messaging.connected",
	EventMessagingDisconnected:  "messaging.disconnected",
	EventCacheConnected:         "cache.connected",
	EventCacheDisconnected:      "cache.disconnected",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(t))
}

type SubscriberID int

type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

type subscriber struct {
	id     SubscriberID
	fn     func(Event)
	filter map[EventType]struct{}
}

// EventBus fans engine events out to subscribers synchronously, in
// subscription order. Events are emitted after the owning transaction has
// committed, so a failing subscriber can only lose its own side effect: a
// panic is recovered and logged and the remaining subscribers still run.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []subscriber
	nextID      SubscriberID
	logFn       func(format string, args ...any)
}

func NewEventBus() *EventBus {
	return &EventBus{logFn: log.Printf}
}

// Subscribe registers a handler for all event types.
func (eb *EventBus) Subscribe(fn func(Event)) SubscriberID {
	return eb.add(fn, nil)
}

// SubscribeTypes registers a handler for specific event types.
func (eb *EventBus) SubscribeTypes(fn func(Event), types ...EventType) SubscriberID {
	filter := make(map[EventType]struct{}, len(types))
	for _, t := range types {
		filter[t] = struct{}{}
	}
	return eb.add(fn, filter)
}

// On subscribes fn to one event type with its payload already asserted.
// An event carrying a different payload type is logged and skipped.
func On[T any](eb *EventBus, t EventType, fn func(T)) SubscriberID {
	return eb.SubscribeTypes(func(evt Event) {
		p, ok := evt.Payload.(T)
		if !ok {
			eb.logFn("engine: %s carried %T, want %T", evt.Type, evt.Payload, p)
			return
		}
		fn(p)
	}, t)
}

func (eb *EventBus) add(fn func(Event), filter map[EventType]struct{}) SubscriberID {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	eb.subscribers = append(eb.subscribers, subscriber{id: eb.nextID, fn: fn, filter: filter})
	return eb.nextID
}

// Unsubscribe removes a subscriber by ID.
func (eb *EventBus) Unsubscribe(id SubscriberID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, s := range eb.subscribers {
		if s.id == id {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			return
		}
	}
}

// Emit sends an event to all matching subscribers.
func (eb *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	eb.mu.RLock()
	subs := make([]subscriber, len(eb.subscribers))
	copy(subs, eb.subscribers)
	eb.mu.RUnlock()

	for _, s := range subs {
		if s.filter != nil {
			if _, ok := s.filter[evt.Type]; !ok {
				continue
			}
		}
		eb.deliver(s, evt)
	}
}

func (eb *EventBus) deliver(s subscriber, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logFn("engine: subscriber %d panicked on %s: %v", s.id, evt.Type, r)
		}
	}()
	s.fn(evt)
}

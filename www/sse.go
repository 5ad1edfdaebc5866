package www

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sahilp2023/agrocyle-sub001/engine"
)

const (
	sseKeepalive = 30 * time.Second
	sseBacklog   = 128
)

// SSEEvent is one frame on the dashboard stream. IDs increase by one per
// broadcast so a browser that lost its connection can resume with
// Last-Event-ID. Keepalives carry ID 0 and are not replayed.
type SSEEvent struct {
	ID    uint64
	Event string
	Data  string
}

// EventHub fans dashboard events out to connected browsers and keeps the
// last sseBacklog frames for clients reconnecting over a flaky link.
type EventHub struct {
	mu        sync.RWMutex
	clients   map[chan SSEEvent]struct{}
	backlog   []SSEEvent
	lastID    uint64
	broadcast chan SSEEvent
	stopOnce  sync.Once
	stopChan  chan struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients:   make(map[chan SSEEvent]struct{}),
		broadcast: make(chan SSEEvent, 256),
		stopChan:  make(chan struct{}),
	}
}

func (h *EventHub) Start() {
	go h.run()
}

func (h *EventHub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
}

func (h *EventHub) run() {
	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-h.stopChan:
			return
		case evt := <-h.broadcast:
			h.mu.Lock()
			h.lastID++
			evt.ID = h.lastID
			h.backlog = append(h.backlog, evt)
			if len(h.backlog) > sseBacklog {
				h.backlog = h.backlog[len(h.backlog)-sseBacklog:]
			}
			h.fanout(evt)
			h.mu.Unlock()
		case <-keepalive.C:
			h.mu.RLock()
			h.fanout(SSEEvent{Event: "keepalive", Data: "ping"})
			h.mu.RUnlock()
		}
	}
}

// fanout never blocks; a client that stopped reading loses frames and
// catches up through Last-Event-ID on its next connect. Caller holds mu.
func (h *EventHub) fanout(evt SSEEvent) {
	for ch := range h.clients {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (h *EventHub) Broadcast(event, data string) {
	select {
	case h.broadcast <- SSEEvent{Event: event, Data: data}:
	default:
		log.Printf("sse: broadcast queue full, dropping %s", event)
	}
}

func (h *EventHub) AddClient() chan SSEEvent {
	return h.AddClientSince(0)
}

// AddClientSince registers a client and queues every retained frame newer
// than lastID. A zero lastID is a fresh connection and gets no backlog.
func (h *EventHub) AddClientSince(lastID uint64) chan SSEEvent {
	ch := make(chan SSEEvent, sseBacklog+16)
	h.mu.Lock()
	defer h.mu.Unlock()
	if lastID > 0 {
		for _, evt := range h.backlog {
			if evt.ID > lastID {
				ch <- evt
			}
		}
	}
	h.clients[ch] = struct{}{}
	return ch
}

func (h *EventHub) RemoveClient(ch chan SSEEvent) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SetupEngineListeners wires engine events to SSE broadcasts.
func (h *EventHub) SetupEngineListeners(eng *engine.Engine) {
	engine.On(eng.Events, engine.EventRequestCreated, func(ev engine.RequestCreatedEvent) {
		h.broadcastJSON("request-update", map[string]any{"type": "created", "request_id": ev.RequestID, "hub_id": ev.HubID})
	})

	engine.On(eng.Events, engine.EventRequestStatusChanged, func(ev engine.RequestStatusChangedEvent) {
		h.broadcastJSON("request-update", map[string]any{"type": "status_changed", "request_id": ev.RequestID, "old_status": ev.OldStatus, "new_status": ev.NewStatus})
	})

	engine.On(eng.Events, engine.EventAssignmentCreated, func(ev engine.AssignmentCreatedEvent) {
		h.broadcastJSON("assignment-update", map[string]any{"type": "created", "assignment_id": ev.AssignmentID, "request_id": ev.RequestID, "operator_id": ev.PrimaryOperatorID})
	})

	engine.On(eng.Events, engine.EventAssignmentTransitioned, func(ev engine.AssignmentTransitionedEvent) {
		h.broadcastJSON("assignment-update", map[string]any{"type": "transitioned", "assignment_id": ev.AssignmentID, "operator_status": ev.NewOperatorStatus, "status": ev.Status})
	})

	engine.On(eng.Events, engine.EventAssignmentCancelled, func(ev engine.AssignmentCancelledEvent) {
		h.broadcastJSON("assignment-update", map[string]any{"type": "cancelled", "assignment_id": ev.AssignmentID, "reason": ev.Reason})
	})

	engine.On(eng.Events, engine.EventStaleAssignmentRemoved, func(ev engine.StaleAssignmentRemovedEvent) {
		h.broadcastJSON("assignment-update", map[string]any{"type": "stale_removed", "assignment_id": ev.AssignmentID, "request_id": ev.RequestID})
	})

	engine.On(eng.Events, engine.EventJobCredited, func(ev engine.JobCreditedEvent) {
		h.broadcastJSON("operator-update", map[string]any{"type": "credited", "operator_id": ev.OperatorID, "assignment_id": ev.AssignmentID, "source": ev.Source})
	})

	engine.On(eng.Events, engine.EventConsistencyWarning, func(ev engine.ConsistencyWarningEvent) {
		h.broadcastJSON("warning", map[string]any{"kind": ev.Kind, "operator_id": ev.OperatorID, "expected_hub_id": ev.ExpectedHubID, "actual_hub_id": ev.ActualHubID})
	})

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		h.Broadcast("system-status", `{"messaging":"connected"}`)
	}, engine.EventMessagingConnected)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		h.Broadcast("system-status", `{"messaging":"disconnected"}`)
	}, engine.EventMessagingDisconnected)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		h.Broadcast("system-status", `{"cache":"connected"}`)
	}, engine.EventCacheConnected)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		h.Broadcast("system-status", `{"cache":"disconnected"}`)
	}, engine.EventCacheDisconnected)
}

func (h *EventHub) broadcastJSON(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("sse: encode %s: %v", event, err)
		return
	}
	h.Broadcast(event, string(data))
}

// SSEHandler serves the SSE endpoint.
func (h *EventHub) SSEHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	ch := h.AddClientSince(lastID)
	defer h.RemoveClient(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			if err := writeFrame(w, evt); err != nil {
				log.Printf("sse: write error: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeFrame(w io.Writer, evt SSEEvent) error {
	if evt.ID > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", evt.ID); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data)
	return err
}

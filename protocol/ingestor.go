package protocol

import (
	"encoding/json"
	"log"
)

// FilterFunc returns true if the message should be processed.
type FilterFunc func(hdr *RawHeader) bool

// MessageHandler defines callbacks for all protocol message types.
// Embed NoOpHandler and override only the methods you need.
type MessageHandler interface {
	// Device -> Core
	HandleJobTransition(env *Envelope, p *JobTransition)
	HandleOperatorPresence(env *Envelope, p *OperatorPresence)

	// Core -> Device
	HandleJobTransitionResult(env *Envelope, p *JobTransitionResult)

	// Core -> Accounting
	HandleJobDelivered(env *Envelope, p *JobDelivered)
}

// Ingestor decodes the routing header first, so expired, foreign or
// malformed traffic is dropped before any payload is parsed, then dispatches
// by message type.
type Ingestor struct {
	filter FilterFunc
	routes map[string]func(*Envelope)
}

func NewIngestor(handler MessageHandler, filter FilterFunc) *Ingestor {
	return &Ingestor{
		filter: filter,
		routes: map[string]func(*Envelope){
			TypeJobTransition:       route(handler.HandleJobTransition),
			TypeOperatorPresence:    route(handler.HandleOperatorPresence),
			TypeJobTransitionResult: route(handler.HandleJobTransitionResult),
			TypeJobDelivered:        route(handler.HandleJobDelivered),
		},
	}
}

// HandleRaw is the entry point for raw message bytes from the messaging layer.
func (ing *Ingestor) HandleRaw(data []byte) {
	var hdr RawHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		log.Printf("protocol: header decode error: %v", err)
		return
	}
	if err := hdr.Validate(); err != nil {
		log.Printf("protocol: dropping message %q: %v", hdr.ID, err)
		return
	}
	if IsExpiredHeader(&hdr) {
		log.Printf("protocol: dropping expired message %s (type=%s)", hdr.ID, hdr.Type)
		return
	}
	if ing.filter != nil && !ing.filter(&hdr) {
		return
	}

	dispatch, ok := ing.routes[hdr.Type]
	if !ok {
		log.Printf("protocol: unknown message type: %s", hdr.Type)
		return
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("protocol: envelope decode error: %v", err)
		return
	}
	dispatch(&env)
}

// route binds a typed handler method to a decoder for its payload.
func route[T any](fn func(*Envelope, *T)) func(*Envelope) {
	return func(env *Envelope) {
		var p T
		if err := env.DecodePayload(&p); err != nil {
			log.Printf("protocol: payload decode error for %s: %v", env.Type, err)
			return
		}
		fn(env, &p)
	}
}

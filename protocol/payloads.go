package protocol

import (
	"encoding/json"
	"time"
)

// JobTransition is an operator's request to move an assignment to Status.
// Fields carries the stage payload (photos, bale_count, load_weight and so on)
// untouched; the orchestrator decides what to keep.
type JobTransition struct {
	AssignmentID int64           `json:"assignment_id"`
	OperatorID   int64           `json:"operator_id"`
	Status       string          `json:"status"`
	Fields       json.RawMessage `json:"fields,omitempty"`
}

// OperatorPresence is a location/online ping from an operator's device.
type OperatorPresence struct {
	OperatorID int64   `json:"operator_id"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Online     bool    `json:"online"`
}

// JobTransitionResult answers a JobTransition. On failure ErrorKind is one of
// not_found, unauthorized, invalid_transition, precondition_failed, conflict
// or internal, and Allowed lists the legal next states where relevant.
type JobTransitionResult struct {
	AssignmentID   int64    `json:"assignment_id"`
	OK             bool     `json:"ok"`
	Status         string   `json:"status,omitempty"`
	OperatorStatus string   `json:"operator_status,omitempty"`
	Replayed       bool     `json:"replayed,omitempty"`
	Dropped        []string `json:"dropped_fields,omitempty"`
	ErrorKind      string   `json:"error_kind,omitempty"`
	Error          string   `json:"error,omitempty"`
	Allowed        []string `json:"allowed,omitempty"`
}

// JobDelivered is the payout/inventory fact, emitted exactly once per assignment.
type JobDelivered struct {
	AssignmentID        int64     `json:"assignment_id"`
	RequestID           int64     `json:"request_id"`
	RequestUUID         string    `json:"request_uuid"`
	HubID               int64     `json:"hub_id"`
	PrimaryOperatorID   int64     `json:"primary_operator_id"`
	SecondaryOperatorID *int64    `json:"secondary_operator_id,omitempty"`
	CropType            string    `json:"crop_type"`
	Quantity            float64   `json:"quantity"`
	RatePerTonne        float64   `json:"rate_per_tonne"`
	FinalPrice          float64   `json:"final_price"`
	OperatorEarning     float64   `json:"operator_earning"`
	Source              string    `json:"source"`
	DeliveredAt         time.Time `json:"delivered_at"`
}

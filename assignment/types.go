package assignment

import (
	"fmt"

	"github.com/sahilp2023/agrocyle-sub001/store"
)

// Coarse statuses aliased from store for local use.
const (
	StatusAssigned   = store.AssignmentAssigned
	StatusInProgress = store.AssignmentInProgress
	StatusCompleted  = store.AssignmentCompleted
	StatusCancelled  = store.AssignmentCancelled
)

// Role is the kind of principal the identity layer vouched for.
type Role string

const (
	RoleRequester  Role = "requester"
	RoleHubManager Role = "hub_manager"
	RoleOperator   Role = "operator"
	RoleSystem     Role = "system"
)

// Principal is the verified caller. HubID is only meaningful for hub managers;
// zero means the manager may act on every hub.
type Principal struct {
	Role  Role
	ID    int64
	HubID int64
}

func (p Principal) String() string {
	return fmt.Sprintf("%s:%d", p.Role, p.ID)
}

func (p Principal) managesHub(hubID int64) bool {
	switch p.Role {
	case RoleSystem:
		return true
	case RoleHubManager:
		return p.HubID == 0 || p.HubID == hubID
	}
	return false
}

// CreateInput admits an operator (and optional transport operator) against a request.
type CreateInput struct {
	RequestID           int64  `json:"request_id"`
	PrimaryOperatorID   int64  `json:"primary_operator_id"`
	SecondaryOperatorID *int64 `json:"secondary_operator_id,omitempty"`
}

// UpdateInput is the hub-side correction. ActualQuantity force-completes the
// assignment; Cancel voids it and reopens the request.
type UpdateInput struct {
	ActualQuantity      *float64 `json:"actual_quantity,omitempty"`
	Cancel              bool     `json:"cancel,omitempty"`
	Reason              string   `json:"reason,omitempty"`
	SecondaryOperatorID *int64   `json:"secondary_operator_id,omitempty"`
	Remarks             string   `json:"remarks,omitempty"`
}

// Result describes the outcome of a state-changing call.
type Result struct {
	Assignment *store.Assignment `json:"assignment"`
	// Replayed is set when the call repeated the current state; nothing but
	// payload fields changed.
	Replayed bool `json:"replayed,omitempty"`
	// Credited is set when this call performed the delivered side effects.
	Credited bool     `json:"credited,omitempty"`
	Dropped  []string `json:"dropped_fields,omitempty"`
}

package assignment

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/sahilp2023/agrocyle-sub001/store"
)

// NewOperator registers a field operator with a hub. New operators start
// unverified and active.
type NewOperator struct {
	HubID      int64  `json:"hub_id"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Capability string `json:"capability"`
}

func (o *Orchestrator) RegisterOperator(ctx context.Context, p Principal, in NewOperator) (*store.Operator, error) {
	if !p.managesHub(in.HubID) {
		return nil, unauthorizedf("%s does not manage hub %d", p, in.HubID)
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}
	switch in.Capability {
	case store.CapabilityBaler, store.CapabilityTruck, store.CapabilityBoth:
	default:
		return nil, &ValidationError{Field: "capability", Reason: "must be baler, truck or both"}
	}

	var op *store.Operator
	err := o.db.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetHub(ctx, in.HubID); err != nil {
			return lookupErr("hub", in.HubID, err)
		}
		op = &store.Operator{HubID: in.HubID, Name: in.Name, Phone: in.Phone, Capability: in.Capability, Active: true}
		if err := tx.CreateOperator(ctx, op); err != nil {
			if store.IsUniqueViolation(err) {
				return &ConflictError{Reason: fmt.Sprintf("phone %s is already registered", in.Phone)}
			}
			return fmt.Errorf("create operator: %w", err)
		}
		var err error
		op, err = tx.GetOperator(ctx, op.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("assignment: operator %d registered at hub %d (%s)", op.ID, op.HubID, op.Capability)
	return op, nil
}

// SetOperatorVerified records the outcome of hub document checks.
func (o *Orchestrator) SetOperatorVerified(ctx context.Context, p Principal, id int64, verified bool) (*store.Operator, error) {
	return o.mutateOperator(ctx, p, id, "verified", verified, func(tx *store.Tx) error {
		return tx.SetOperatorVerified(ctx, id, verified)
	})
}

// SetOperatorActive deactivates or reactivates an operator. Existing
// assignments are untouched; only new admissions check the flag.
func (o *Orchestrator) SetOperatorActive(ctx context.Context, p Principal, id int64, active bool) (*store.Operator, error) {
	return o.mutateOperator(ctx, p, id, "active", active, func(tx *store.Tx) error {
		return tx.SetOperatorActive(ctx, id, active)
	})
}

func (o *Orchestrator) mutateOperator(ctx context.Context, p Principal, id int64, field string, value bool, fn func(tx *store.Tx) error) (*store.Operator, error) {
	var op *store.Operator
	err := o.db.WithTx(ctx, func(tx *store.Tx) error {
		cur, err := tx.GetOperator(ctx, id)
		if err != nil {
			return lookupErr("operator", id, err)
		}
		if !p.managesHub(cur.HubID) {
			return unauthorizedf("%s does not manage hub %d", p, cur.HubID)
		}
		if err := fn(tx); err != nil {
			return fmt.Errorf("set operator %d %s: %w", id, field, err)
		}
		if err := tx.AppendAudit(ctx, store.AuditOperator, id, field, fmt.Sprint(operatorFlag(cur, field)), fmt.Sprint(value), p.String()); err != nil {
			return fmt.Errorf("audit operator %d: %w", id, err)
		}
		op, err = tx.GetOperator(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return op, nil
}

func operatorFlag(op *store.Operator, field string) bool {
	if field == "verified" {
		return op.Verified
	}
	return op.Active
}

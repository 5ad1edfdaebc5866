package assignment

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/sahilp2023/agrocyle-sub001/config"
	"github.com/sahilp2023/agrocyle-sub001/store"
)

// Orchestrator owns every write to assignments and the request/operator
// fields they drive. Each public call is one transaction; events go out
// only after it commits.
type Orchestrator struct {
	db             *store.DB
	emitter        Emitter
	pricing        config.PricingConfig
	deliveredTopic string
	stationID      string
	now            func() time.Time
}

func NewOrchestrator(db *store.DB, emitter Emitter, pricing config.PricingConfig, deliveredTopic, stationID string) *Orchestrator {
	return &Orchestrator{
		db:             db,
		emitter:        emitter,
		pricing:        pricing,
		deliveredTopic: deliveredTopic,
		stationID:      stationID,
		now:            time.Now,
	}
}

// pending collects emitter calls made inside a transaction.
type pending []func()

func (p *pending) add(fn func()) { *p = append(*p, fn) }

func (p pending) fire() {
	for _, fn := range p {
		fn()
	}
}

// CreateAssignment admits an operator against a request. Terminal-failure
// assignments left on the request are snapshotted to the audit log and
// removed; any other existing assignment is a ConflictError.
func (o *Orchestrator) CreateAssignment(ctx context.Context, p Principal, in CreateInput) (*store.Assignment, error) {
	if p.Role != RoleHubManager && p.Role != RoleSystem {
		return nil, unauthorizedf("%s may not assign operators", p)
	}
	if in.RequestID <= 0 {
		return nil, &ValidationError{Field: "request_id", Reason: "required"}
	}
	if in.PrimaryOperatorID <= 0 {
		return nil, &ValidationError{Field: "primary_operator_id", Reason: "required"}
	}

	var a *store.Assignment
	var ev pending
	err := o.db.WithTx(ctx, func(tx *store.Tx) error {
		req, err := tx.GetRequestForUpdate(ctx, in.RequestID)
		if err != nil {
			return lookupErr("request", in.RequestID, err)
		}
		if !p.managesHub(req.HubID) {
			return unauthorizedf("%s does not manage hub %d", p, req.HubID)
		}
		if req.Status == store.RequestCompleted || req.Status == store.RequestCancelled {
			return preconditionf("request %d is %s", req.ID, req.Status)
		}

		primary, err := o.resolveOperator(ctx, tx, req.HubID, in.PrimaryOperatorID, &ev)
		if err != nil {
			return err
		}
		if err := checkEligible(primary, store.CapabilityBaler); err != nil {
			return err
		}
		if in.SecondaryOperatorID != nil {
			if *in.SecondaryOperatorID == in.PrimaryOperatorID {
				return preconditionf("secondary operator must differ from primary operator %d", in.PrimaryOperatorID)
			}
			secondary, err := o.resolveOperator(ctx, tx, req.HubID, *in.SecondaryOperatorID, &ev)
			if err != nil {
				return err
			}
			if err := checkEligible(secondary, store.CapabilityTruck); err != nil {
				return err
			}
		}

		existing, err := tx.ListAssignmentsByRequest(ctx, req.ID)
		if err != nil {
			return fmt.Errorf("list assignments for request %d: %w", req.ID, err)
		}
		for _, prev := range existing {
			if !prev.IsTerminalFailure() {
				return &ConflictError{Reason: fmt.Sprintf("request %d already has active assignment %d (%s)", req.ID, prev.ID, prev.OperatorStatus)}
			}
		}
		for _, prev := range existing {
			if err := o.removeStale(ctx, tx, prev, p, &ev); err != nil {
				return err
			}
		}

		a = &store.Assignment{
			RequestID:           req.ID,
			HubID:               req.HubID,
			PrimaryOperatorID:   in.PrimaryOperatorID,
			SecondaryOperatorID: in.SecondaryOperatorID,
			Status:              StatusAssigned,
			OperatorStatus:      OpPending,
			EstimatedEarning:    req.EstimatedQuantity * o.pricing.OperatorRate,
			AssignedAt:          o.now(),
		}
		if err := tx.InsertAssignment(ctx, a); err != nil {
			if store.IsUniqueViolation(err) {
				return &ConflictError{Reason: fmt.Sprintf("request %d already has an active assignment", req.ID)}
			}
			return fmt.Errorf("insert assignment: %w", err)
		}
		if err := tx.AppendAssignmentHistory(ctx, a.ID, a.Status, a.OperatorStatus, p.String(),
			fmt.Sprintf("assigned to operator %d", a.PrimaryOperatorID)); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		if req.Status != store.RequestScheduled {
			if err := tx.UpdateRequestStatus(ctx, req.ID, store.RequestScheduled); err != nil {
				return fmt.Errorf("schedule request %d: %w", req.ID, err)
			}
			old := req.Status
			ev.add(func() { o.emitter.EmitRequestStatusChanged(req.ID, old, store.RequestScheduled, p.String()) })
		}

		created := a
		ev.add(func() {
			o.emitter.EmitAssignmentCreated(created.ID, created.RequestID, created.HubID, created.PrimaryOperatorID, p.String())
		})

		a, err = tx.GetAssignment(ctx, a.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	ev.fire()
	log.Printf("assignment: created %d for request %d (operator %d)", a.ID, a.RequestID, a.PrimaryOperatorID)
	return a, nil
}

// removeStale snapshots a terminal-failure assignment into the audit log and deletes it.
func (o *Orchestrator) removeStale(ctx context.Context, tx *store.Tx, a *store.Assignment, p Principal, ev *pending) error {
	snap, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("snapshot assignment %d: %w", a.ID, err)
	}
	if err := tx.AppendAudit(ctx, store.AuditAssignment, a.ID, "stale_removed", string(snap), "", p.String()); err != nil {
		return fmt.Errorf("audit stale assignment %d: %w", a.ID, err)
	}
	if err := tx.DeleteAssignment(ctx, a.ID); err != nil {
		return fmt.Errorf("delete stale assignment %d: %w", a.ID, err)
	}
	id, requestID, s := a.ID, a.RequestID, string(snap)
	ev.add(func() { o.emitter.EmitStaleAssignmentRemoved(id, requestID, s) })
	return nil
}

// reopenRequest puts a scheduled or in-progress request back to confirmed so
// it can be reassigned.
func (o *Orchestrator) reopenRequest(ctx context.Context, tx *store.Tx, req *store.Request, actor string, ev *pending) error {
	if req.Status != store.RequestScheduled && req.Status != store.RequestInProgress {
		return nil
	}
	if err := tx.UpdateRequestStatus(ctx, req.ID, store.RequestConfirmed); err != nil {
		return fmt.Errorf("reopen request %d: %w", req.ID, err)
	}
	id, old := req.ID, req.Status
	req.Status = store.RequestConfirmed
	ev.add(func() { o.emitter.EmitRequestStatusChanged(id, old, store.RequestConfirmed, actor) })
	return nil
}

// lockAssignment takes the request lock before the assignment lock, the same
// order CreateAssignment uses.
func lockAssignment(ctx context.Context, tx *store.Tx, id int64) (*store.Request, *store.Assignment, error) {
	peek, err := tx.GetAssignment(ctx, id)
	if err != nil {
		return nil, nil, lookupErr("assignment", id, err)
	}
	req, err := tx.GetRequestForUpdate(ctx, peek.RequestID)
	if err != nil {
		return nil, nil, lookupErr("request", peek.RequestID, err)
	}
	a, err := tx.GetAssignmentForUpdate(ctx, id)
	if err != nil {
		return nil, nil, lookupErr("assignment", id, err)
	}
	return req, a, nil
}

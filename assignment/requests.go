package assignment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sahilp2023/agrocyle-sub001/store"
)

const dateLayout = "2006-01-02"

// NewRequest is a farmer's pickup ask. UUID is optional; a client that
// supplies one may retry the call safely.
type NewRequest struct {
	UUID              string  `json:"uuid,omitempty"`
	RequesterID       int64   `json:"requester_id,omitempty"`
	HubID             int64   `json:"hub_id"`
	ResidueSource     string  `json:"residue_source"`
	CropType          string  `json:"crop_type"`
	EstimatedQuantity float64 `json:"estimated_quantity"`
	HarvestEndDate    string  `json:"harvest_end_date"`
}

func (in *NewRequest) validate() error {
	in.CropType = strings.TrimSpace(in.CropType)
	if in.HubID <= 0 {
		return &ValidationError{Field: "hub_id", Reason: "required"}
	}
	if in.CropType == "" {
		return &ValidationError{Field: "crop_type", Reason: "required"}
	}
	q := in.EstimatedQuantity
	if q <= 0 || math.IsNaN(q) || math.IsInf(q, 0) {
		return &ValidationError{Field: "estimated_quantity", Reason: "must be a positive number"}
	}
	if in.HarvestEndDate != "" {
		if _, err := time.Parse(dateLayout, in.HarvestEndDate); err != nil {
			return &ValidationError{Field: "harvest_end_date", Reason: "expected YYYY-MM-DD"}
		}
	}
	if in.UUID != "" {
		if _, err := uuid.Parse(in.UUID); err != nil {
			return &ValidationError{Field: "uuid", Reason: "not a valid UUID"}
		}
	}
	return nil
}

// CreateRequest records a new pickup request priced from the crop rate table.
// The bool result is false when an earlier call with the same UUID already
// created the request, which is returned unchanged.
func (o *Orchestrator) CreateRequest(ctx context.Context, p Principal, in NewRequest) (*store.Request, bool, error) {
	switch p.Role {
	case RoleRequester:
		in.RequesterID = p.ID
	case RoleHubManager, RoleSystem:
		if in.RequesterID <= 0 {
			return nil, false, &ValidationError{Field: "requester_id", Reason: "required"}
		}
		if !p.managesHub(in.HubID) {
			return nil, false, unauthorizedf("%s does not manage hub %d", p, in.HubID)
		}
	default:
		return nil, false, unauthorizedf("%s may not create requests", p)
	}
	if err := in.validate(); err != nil {
		return nil, false, err
	}

	var req *store.Request
	created := false
	err := o.db.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetHub(ctx, in.HubID); err != nil {
			return lookupErr("hub", in.HubID, err)
		}
		if in.UUID != "" {
			existing, err := tx.GetRequestByUUID(ctx, in.UUID)
			if err == nil {
				if existing.RequesterID != in.RequesterID {
					return &ConflictError{Reason: fmt.Sprintf("request uuid %s belongs to another requester", in.UUID)}
				}
				req = existing
				return nil
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("lookup request uuid: %w", err)
			}
		} else {
			in.UUID = uuid.NewString()
		}

		rate := o.pricing.RateFor(in.CropType)
		r := &store.Request{
			UUID:              in.UUID,
			RequesterID:       in.RequesterID,
			ResidueSource:     in.ResidueSource,
			HubID:             in.HubID,
			CropType:          in.CropType,
			EstimatedQuantity: in.EstimatedQuantity,
			RatePerTonne:      rate,
			EstimatedPrice:    in.EstimatedQuantity * rate,
			HarvestEndDate:    in.HarvestEndDate,
			Status:            store.RequestPending,
		}
		if err := tx.CreateRequest(ctx, r); err != nil {
			if store.IsUniqueViolation(err) {
				return &ConflictError{Reason: fmt.Sprintf("request uuid %s already exists", in.UUID)}
			}
			return fmt.Errorf("create request: %w", err)
		}
		created = true
		var err error
		req, err = tx.GetRequest(ctx, r.ID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		o.emitter.EmitRequestCreated(req.ID, req.HubID, req.CropType, req.EstimatedQuantity, p.String())
		log.Printf("assignment: request %d created (%s, %.2f t, hub %d)", req.ID, req.CropType, req.EstimatedQuantity, req.HubID)
	}
	return req, created, nil
}

// mutateRequest locks the request, checks hub scope and runs fn. fn returns
// the new status, or "" to leave the status alone.
func (o *Orchestrator) mutateRequest(ctx context.Context, p Principal, id int64, fn func(tx *store.Tx, req *store.Request) (string, error)) (*store.Request, error) {
	var out *store.Request
	var ev pending
	err := o.db.WithTx(ctx, func(tx *store.Tx) error {
		req, err := tx.GetRequestForUpdate(ctx, id)
		if err != nil {
			return lookupErr("request", id, err)
		}
		if !p.managesHub(req.HubID) && !(p.Role == RoleRequester && p.ID == req.RequesterID) {
			return unauthorizedf("%s may not change request %d", p, id)
		}
		old := req.Status
		next, err := fn(tx, req)
		if err != nil {
			return err
		}
		if next != "" && next != old {
			ev.add(func() { o.emitter.EmitRequestStatusChanged(id, old, next, p.String()) })
		}
		out, err = tx.GetRequest(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	ev.fire()
	return out, nil
}

// ConfirmRequest moves a pending request to confirmed. Confirming twice is a no-op.
func (o *Orchestrator) ConfirmRequest(ctx context.Context, p Principal, id int64) (*store.Request, error) {
	if p.Role != RoleHubManager && p.Role != RoleSystem {
		return nil, unauthorizedf("%s may not confirm requests", p)
	}
	return o.mutateRequest(ctx, p, id, func(tx *store.Tx, req *store.Request) (string, error) {
		switch req.Status {
		case store.RequestConfirmed:
			return "", nil
		case store.RequestPending:
			return store.RequestConfirmed, tx.UpdateRequestStatus(ctx, id, store.RequestConfirmed)
		}
		return "", preconditionf("request %d is %s", id, req.Status)
	})
}

// StartRequest marks a scheduled request as in progress.
func (o *Orchestrator) StartRequest(ctx context.Context, p Principal, id int64) (*store.Request, error) {
	if p.Role != RoleHubManager && p.Role != RoleSystem {
		return nil, unauthorizedf("%s may not start requests", p)
	}
	return o.mutateRequest(ctx, p, id, func(tx *store.Tx, req *store.Request) (string, error) {
		switch req.Status {
		case store.RequestInProgress:
			return "", nil
		case store.RequestScheduled:
			return store.RequestInProgress, tx.UpdateRequestStatus(ctx, id, store.RequestInProgress)
		}
		return "", preconditionf("request %d is %s", id, req.Status)
	})
}

// CancelRequest cancels a request that has no live assignment. The hub must
// cancel the assignment first.
func (o *Orchestrator) CancelRequest(ctx context.Context, p Principal, id int64, reason string) (*store.Request, error) {
	return o.mutateRequest(ctx, p, id, func(tx *store.Tx, req *store.Request) (string, error) {
		switch req.Status {
		case store.RequestCancelled:
			return "", nil
		case store.RequestCompleted:
			return "", preconditionf("request %d is completed", id)
		}
		assignments, err := tx.ListAssignmentsByRequest(ctx, id)
		if err != nil {
			return "", fmt.Errorf("list assignments for request %d: %w", id, err)
		}
		for _, a := range assignments {
			if !a.IsTerminalFailure() {
				return "", &ConflictError{Reason: fmt.Sprintf("request %d has active assignment %d", id, a.ID)}
			}
		}
		reason = strings.TrimSpace(reason)
		if reason == "" {
			reason = "cancelled by " + string(p.Role)
		}
		return store.RequestCancelled, tx.CancelRequest(ctx, id, reason)
	})
}

// RescheduleRequest sets the planned pickup date without touching status.
func (o *Orchestrator) RescheduleRequest(ctx context.Context, p Principal, id int64, date string) (*store.Request, error) {
	if p.Role != RoleHubManager && p.Role != RoleSystem {
		return nil, unauthorizedf("%s may not reschedule requests", p)
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, &ValidationError{Field: "scheduled_date", Reason: "expected YYYY-MM-DD"}
	}
	return o.mutateRequest(ctx, p, id, func(tx *store.Tx, req *store.Request) (string, error) {
		if req.Status == store.RequestCompleted || req.Status == store.RequestCancelled {
			return "", preconditionf("request %d is %s", id, req.Status)
		}
		return "", tx.SetRequestScheduledDate(ctx, id, date)
	})
}

package assignment

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/sahilp2023/agrocyle-sub001/store"
)

// UpdateAssignment is the hub-side override. It can attach a transport
// operator, append remarks, cancel the assignment, or record the actual
// quantity, which force-completes the job through the same credit path the
// operator's delivered report uses.
func (o *Orchestrator) UpdateAssignment(ctx context.Context, p Principal, assignmentID int64, in UpdateInput) (*Result, error) {
	if p.Role != RoleHubManager && p.Role != RoleSystem {
		return nil, unauthorizedf("%s may not update assignments", p)
	}
	if in.ActualQuantity != nil {
		q := *in.ActualQuantity
		if q <= 0 || math.IsNaN(q) || math.IsInf(q, 0) {
			return nil, &ValidationError{Field: "actual_quantity", Reason: "must be a positive number"}
		}
		if in.Cancel {
			return nil, &ValidationError{Field: "cancel", Reason: "cannot cancel and record a quantity in one update"}
		}
	}

	res := &Result{}
	var ev pending
	err := o.db.WithTx(ctx, func(tx *store.Tx) error {
		req, a, err := lockAssignment(ctx, tx, assignmentID)
		if err != nil {
			return err
		}
		if !p.managesHub(a.HubID) {
			return unauthorizedf("%s does not manage hub %d", p, a.HubID)
		}
		if a.IsTerminalFailure() {
			return preconditionf("assignment %d is %s", a.ID, terminalLabel(a))
		}
		res.Assignment = a

		var details []string
		if in.SecondaryOperatorID != nil {
			if a.Status == StatusCompleted {
				return preconditionf("assignment %d is already completed", a.ID)
			}
			if *in.SecondaryOperatorID == a.PrimaryOperatorID {
				return preconditionf("secondary operator must differ from primary operator %d", a.PrimaryOperatorID)
			}
			op, err := o.resolveOperator(ctx, tx, a.HubID, *in.SecondaryOperatorID, &ev)
			if err != nil {
				return err
			}
			if err := checkEligible(op, store.CapabilityTruck); err != nil {
				return err
			}
			a.SecondaryOperatorID = in.SecondaryOperatorID
			details = append(details, fmt.Sprintf("transport operator %d", op.ID))
		}
		if appendRemark(a, in.Remarks) {
			details = append(details, "remarks")
		}

		switch {
		case in.Cancel:
			if a.Status == StatusCompleted {
				return &ConflictError{Reason: fmt.Sprintf("assignment %d is already completed", a.ID)}
			}
			reason := strings.TrimSpace(in.Reason)
			if reason == "" {
				reason = "cancelled by hub"
			}
			a.Status = StatusCancelled
			a.RejectionReason = reason
			if err := o.reopenRequest(ctx, tx, req, p.String(), &ev); err != nil {
				return err
			}
			details = append(details, "cancelled: "+reason)
			id, requestID := a.ID, a.RequestID
			ev.add(func() { o.emitter.EmitAssignmentCancelled(id, requestID, reason, p.String()) })

		case in.ActualQuantity != nil:
			settled := a.ActualQuantity
			a.ActualQuantity = in.ActualQuantity
			credited, err := o.credit(ctx, tx, a, req, store.CreditSourceHub, p.String(), &ev)
			if err != nil {
				return err
			}
			res.Credited = credited
			if !credited {
				// the winning path already settled the quantity on the request
				a.ActualQuantity = settled
				details = append(details, fmt.Sprintf("actual quantity %g not applied, job already credited", *in.ActualQuantity))
				break
			}
			now := o.now()
			a.Status = advanceStatus(a.Status, StatusCompleted)
			if a.CompletedAt == nil {
				a.CompletedAt = &now
			}
			details = append(details, fmt.Sprintf("actual quantity %g", *in.ActualQuantity))
		}

		if len(details) == 0 {
			return nil
		}
		if err := tx.SaveAssignment(ctx, a); err != nil {
			return fmt.Errorf("save assignment %d: %w", a.ID, err)
		}
		if err := tx.AppendAssignmentHistory(ctx, a.ID, a.Status, a.OperatorStatus, p.String(), "hub update: "+strings.Join(details, "; ")); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ev.fire()
	log.Printf("assignment: %d updated by %s (credited=%v)", assignmentID, p, res.Credited)
	return res, nil
}

func terminalLabel(a *store.Assignment) string {
	if a.OperatorStatus == OpRejected {
		return "rejected"
	}
	return "cancelled"
}

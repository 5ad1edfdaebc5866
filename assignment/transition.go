package assignment

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/sahilp2023/agrocyle-sub001/store"
)

const defaultRejectionReason = "no reason provided"

// Transition moves an assignment's operator job state to target, merging any
// stage payload. Repeating a terminal state merges the payload and succeeds
// without side effects. An illegal edge changes nothing.
func (o *Orchestrator) Transition(ctx context.Context, p Principal, assignmentID int64, target string, raw json.RawMessage) (*Result, error) {
	payload := ParsePayload(raw)
	res := &Result{Dropped: payload.Dropped}
	var ev pending

	err := o.db.WithTx(ctx, func(tx *store.Tx) error {
		req, a, err := lockAssignment(ctx, tx, assignmentID)
		if err != nil {
			return err
		}
		if err := authorizeTransition(p, a, target); err != nil {
			return err
		}
		res.Assignment = a

		from := a.OperatorStatus
		settled := a.Status == StatusCompleted
		if target == from && IsTerminal(target) {
			res.Replayed = true
			if mergeUnsettled(a, payload, settled) {
				if err := tx.SaveAssignment(ctx, a); err != nil {
					return fmt.Errorf("save assignment %d: %w", a.ID, err)
				}
			}
			return nil
		}
		if allowed := allowedFrom(a); !containsString(allowed, target) {
			return &InvalidTransitionError{Current: from, Target: target, Allowed: allowed}
		}

		mergeUnsettled(a, payload, settled)
		now := o.now()
		detail := from + " -> " + target

		switch target {
		case OpAccepted:
			a.AcceptedAt = &now
			a.Status = advanceStatus(a.Status, StatusInProgress)
		case OpEnRoute:
			a.EnRouteAt = &now
		case OpArrived:
			a.ArrivedAt = &now
		case OpWorkStarted:
			a.WorkStartedAt = &now
			a.Status = advanceStatus(a.Status, StatusInProgress)
		case OpWorkComplete:
			a.WorkCompleteAt = &now
		case OpRejected:
			reason := strings.TrimSpace(payload.Reason)
			if reason == "" {
				reason = defaultRejectionReason
			}
			a.RejectedAt = &now
			a.RejectionReason = reason
			a.Status = StatusCancelled
			detail += ": " + reason
			if err := o.reopenRequest(ctx, tx, req, p.String(), &ev); err != nil {
				return err
			}
			id, requestID := a.ID, a.RequestID
			ev.add(func() { o.emitter.EmitAssignmentCancelled(id, requestID, reason, p.String()) })
		case OpDelivered:
			a.DeliveredAt = &now
			a.Status = advanceStatus(a.Status, StatusCompleted)
			if a.CompletedAt == nil {
				a.CompletedAt = &now
			}
			source := store.CreditSourceOperator
			if p.Role == RoleHubManager {
				source = store.CreditSourceHub
			}
			credited, err := o.credit(ctx, tx, a, req, source, p.String(), &ev)
			if err != nil {
				return err
			}
			res.Credited = credited
		}
		a.OperatorStatus = target

		if err := tx.SaveAssignment(ctx, a); err != nil {
			return fmt.Errorf("save assignment %d: %w", a.ID, err)
		}
		if err := tx.AppendAssignmentHistory(ctx, a.ID, a.Status, a.OperatorStatus, p.String(), detail); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		id, requestID, status := a.ID, a.RequestID, a.Status
		ev.add(func() { o.emitter.EmitAssignmentTransitioned(id, requestID, from, target, status, p.String()) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	ev.fire()
	if res.Replayed {
		log.Printf("assignment: %d replayed %s by %s", assignmentID, target, p)
	} else {
		log.Printf("assignment: %d -> %s by %s", assignmentID, target, p)
	}
	return res, nil
}

// allowedFrom is the edge set narrowed by assignment status. A cancelled
// assignment accepts nothing. A completed one has been credited and may only
// move forward toward delivered.
func allowedFrom(a *store.Assignment) []string {
	switch a.Status {
	case StatusCancelled:
		return []string{}
	case StatusCompleted:
		out := []string{}
		for _, s := range AllowedNext(a.OperatorStatus) {
			if s != OpRejected {
				out = append(out, s)
			}
		}
		return out
	}
	return AllowedNext(a.OperatorStatus)
}

// mergeUnsettled merges the payload but keeps the actual quantity once the
// job has been credited, so the assignment agrees with its request.
func mergeUnsettled(a *store.Assignment, p Payload, settled bool) bool {
	if settled {
		p.ActualQuantity = nil
	}
	return p.MergeInto(a)
}

// authorizeTransition binds the principal to the assignment. The primary
// operator drives every stage; the transport operator and the hub dispatcher
// may only report delivery.
func authorizeTransition(p Principal, a *store.Assignment, target string) error {
	switch p.Role {
	case RoleSystem:
		return nil
	case RoleOperator:
		if p.ID == a.PrimaryOperatorID {
			return nil
		}
		if a.SecondaryOperatorID != nil && p.ID == *a.SecondaryOperatorID {
			if transportStages[target] {
				return nil
			}
			return unauthorizedf("operator %d is the transport operator on assignment %d and may not report %s", p.ID, a.ID, target)
		}
		return unauthorizedf("operator %d is not assigned to assignment %d", p.ID, a.ID)
	case RoleHubManager:
		if !p.managesHub(a.HubID) {
			return unauthorizedf("%s does not manage hub %d", p, a.HubID)
		}
		if target == OpDelivered {
			return nil
		}
		return unauthorizedf("hub staff may only report delivery on assignment %d", a.ID)
	}
	return unauthorizedf("%s may not change assignment %d", p, a.ID)
}

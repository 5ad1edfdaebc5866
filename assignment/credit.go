package assignment

import (
	"context"
	"fmt"
	"log"

	"github.com/sahilp2023/agrocyle-sub001/protocol"
	"github.com/sahilp2023/agrocyle-sub001/store"
)

// credit performs the delivered side effects at most once per assignment:
// operator counters, request completion and the job.delivered outbox message.
// The job_credits insert decides which caller gets to do them; a caller that
// loses returns false and writes nothing here.
func (o *Orchestrator) credit(ctx context.Context, tx *store.Tx, a *store.Assignment, req *store.Request, source, actor string, ev *pending) (bool, error) {
	qty := deliveredQuantity(a, req)
	won, err := tx.ClaimJobCredit(ctx, &store.JobCredit{
		AssignmentID:        a.ID,
		RequestID:           a.RequestID,
		OperatorID:          a.PrimaryOperatorID,
		SecondaryOperatorID: a.SecondaryOperatorID,
		Earning:             a.EstimatedEarning,
		Quantity:            qty,
		Source:              source,
	})
	if err != nil {
		return false, fmt.Errorf("claim job credit for assignment %d: %w", a.ID, err)
	}
	if !won {
		log.Printf("assignment: %d already credited, %s delivery records fields only", a.ID, source)
		return false, nil
	}
	if a.ActualQuantity == nil {
		a.ActualQuantity = &qty
	}

	if err := tx.IncrementOperatorTotals(ctx, a.PrimaryOperatorID, 1, a.EstimatedEarning); err != nil {
		return false, fmt.Errorf("credit operator %d: %w", a.PrimaryOperatorID, err)
	}
	if a.SecondaryOperatorID != nil {
		if err := tx.IncrementOperatorTotals(ctx, *a.SecondaryOperatorID, 1, 0); err != nil {
			return false, fmt.Errorf("credit transport operator %d: %w", *a.SecondaryOperatorID, err)
		}
	}
	if err := tx.CompleteRequest(ctx, req.ID, qty); err != nil {
		return false, fmt.Errorf("complete request %d: %w", req.ID, err)
	}

	deliveredAt := o.now()
	if a.DeliveredAt != nil {
		deliveredAt = *a.DeliveredAt
	}
	env, err := protocol.NewEnvelope(protocol.TypeJobDelivered,
		protocol.Address{Role: protocol.RoleCore, Node: o.stationID},
		protocol.Address{Role: protocol.RoleAccounting},
		&protocol.JobDelivered{
			AssignmentID:        a.ID,
			RequestID:           req.ID,
			RequestUUID:         req.UUID,
			HubID:               a.HubID,
			PrimaryOperatorID:   a.PrimaryOperatorID,
			SecondaryOperatorID: a.SecondaryOperatorID,
			CropType:            req.CropType,
			Quantity:            qty,
			RatePerTonne:        req.RatePerTonne,
			FinalPrice:          qty * req.RatePerTonne,
			OperatorEarning:     a.EstimatedEarning,
			Source:              source,
			DeliveredAt:         deliveredAt,
		})
	if err != nil {
		return false, fmt.Errorf("build delivered envelope: %w", err)
	}
	data, err := env.Encode()
	if err != nil {
		return false, fmt.Errorf("encode delivered envelope: %w", err)
	}
	if err := tx.EnqueueOutbox(ctx, o.deliveredTopic, data, protocol.TypeJobDelivered, o.stationID); err != nil {
		return false, fmt.Errorf("enqueue delivered fact: %w", err)
	}

	id, requestID, operatorID, earning, oldStatus := a.ID, req.ID, a.PrimaryOperatorID, a.EstimatedEarning, req.Status
	req.Status = store.RequestCompleted
	ev.add(func() {
		o.emitter.EmitJobCredited(id, requestID, operatorID, earning, qty, source)
		o.emitter.EmitRequestStatusChanged(requestID, oldStatus, store.RequestCompleted, actor)
	})
	return true, nil
}

// deliveredQuantity prefers the reported actual quantity, then the load
// weight, then the requester's estimate.
func deliveredQuantity(a *store.Assignment, req *store.Request) float64 {
	if a.ActualQuantity != nil {
		return *a.ActualQuantity
	}
	if a.LoadWeight != nil {
		return *a.LoadWeight
	}
	return req.EstimatedQuantity
}

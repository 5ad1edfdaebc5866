package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sahilp2023/agrocyle-sub001/store"
)

const wiringTimeout = 10 * time.Second

// Metric counter names kept in the presence cache.
const (
	MetricTransitions        = "transitions"
	MetricAssignmentsCreated = "assignments_created"
	MetricCancelled          = "assignments_cancelled"
	MetricStaleRemoved       = "stale_assignments_removed"
	MetricJobsCredited       = "jobs_credited"
)

// ConsistencyMetric is the counter name for a consistency warning kind.
func ConsistencyMetric(kind string) string {
	return "consistency:" + kind
}

func (e *Engine) wireEventHandlers() {
	// Request creation: audit
	On(e.Events, EventRequestCreated, func(ev RequestCreatedEvent) {
		e.logFn("engine: request %d created at hub %d: %.2f t %s", ev.RequestID, ev.HubID, ev.Quantity, ev.CropType)
		e.audit(store.AuditRequest, ev.RequestID, "created", "", fmt.Sprintf("%s %.2f t", ev.CropType, ev.Quantity), ev.Actor)
	})

	// Request status changes: audit
	On(e.Events, EventRequestStatusChanged, func(ev RequestStatusChangedEvent) {
		e.audit(store.AuditRequest, ev.RequestID, "status", ev.OldStatus, ev.NewStatus, ev.Actor)
	})

	// Assignment created: audit and count
	On(e.Events, EventAssignmentCreated, func(ev AssignmentCreatedEvent) {
		e.logFn("engine: assignment %d created for request %d, operator %d", ev.AssignmentID, ev.RequestID, ev.PrimaryOperatorID)
		e.audit(store.AuditAssignment, ev.AssignmentID, "created", "", fmt.Sprintf("request %d operator %d", ev.RequestID, ev.PrimaryOperatorID), ev.Actor)
		e.metric(MetricAssignmentsCreated)
	})

	// Transitions are already in assignment_history; only count them
	On(e.Events, EventAssignmentTransitioned, func(ev AssignmentTransitionedEvent) {
		e.logFn("engine: assignment %d %s -> %s (%s) by %s", ev.AssignmentID, ev.OldOperatorStatus, ev.NewOperatorStatus, ev.Status, ev.Actor)
		e.metric(MetricTransitions)
	})

	// Cancellation: audit and count
	On(e.Events, EventAssignmentCancelled, func(ev AssignmentCancelledEvent) {
		e.logFn("engine: assignment %d cancelled: %s", ev.AssignmentID, ev.Reason)
		e.audit(store.AuditAssignment, ev.AssignmentID, "cancelled", "", ev.Reason, ev.Actor)
		e.metric(MetricCancelled)
	})

	// Stale removal is snapshotted to audit_log inside the transaction
	On(e.Events, EventStaleAssignmentRemoved, func(ev StaleAssignmentRemovedEvent) {
		e.logFn("engine: stale assignment %d removed from request %d", ev.AssignmentID, ev.RequestID)
		e.metric(MetricStaleRemoved)
	})

	// Credit: audit, count and mirror operator totals into the cache
	On(e.Events, EventJobCredited, e.handleJobCredited)

	// Consistency warnings are queryable facts, not just log lines
	On(e.Events, EventConsistencyWarning, func(ev ConsistencyWarningEvent) {
		e.logFn("engine: consistency warning %s: operator %d expected hub %d, found hub %d", ev.Kind, ev.OperatorID, ev.ExpectedHubID, ev.ActualHubID)
		e.audit(store.AuditOperator, ev.OperatorID, ev.Kind, fmt.Sprintf("hub %d", ev.ExpectedHubID), fmt.Sprintf("hub %d", ev.ActualHubID), "system")
		e.metric(ConsistencyMetric(ev.Kind))
	})
}

func (e *Engine) handleJobCredited(ev JobCreditedEvent) {
	e.logFn("engine: assignment %d credited via %s: %.2f t, earning %.2f to operator %d", ev.AssignmentID, ev.Source, ev.Quantity, ev.Earning, ev.OperatorID)
	e.audit(store.AuditAssignment, ev.AssignmentID, "credited", "", fmt.Sprintf("%s %.2f t", ev.Source, ev.Quantity), ev.Source)
	e.metric(MetricJobsCredited)

	ctx, cancel := context.WithTimeout(context.Background(), wiringTimeout)
	defer cancel()
	e.presence.RecordCredit(ctx, ev.OperatorID, ev.Earning)

	a, err := e.db.GetAssignment(ctx, ev.AssignmentID)
	if err != nil {
		e.logFn("engine: get assignment %d for credit mirror: %v", ev.AssignmentID, err)
		return
	}
	if a.SecondaryOperatorID != nil {
		e.presence.RecordCredit(ctx, *a.SecondaryOperatorID, 0)
	}
}

func (e *Engine) audit(entityType string, entityID int64, action, oldValue, newValue, actor string) {
	ctx, cancel := context.WithTimeout(context.Background(), wiringTimeout)
	defer cancel()
	if err := e.db.AppendAudit(ctx, entityType, entityID, action, oldValue, newValue, actor); err != nil {
		e.logFn("engine: audit %s %d %s: %v", entityType, entityID, action, err)
	}
}

func (e *Engine) metric(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), wiringTimeout)
	defer cancel()
	e.presence.IncrMetric(ctx, name)
}

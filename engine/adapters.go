package engine

import "github.com/sahilp2023/agrocyle-sub001/assignment"

// assignmentEmitter bridges the assignment package's emitter interface to the EventBus.
type assignmentEmitter struct {
	bus *EventBus
}

var _ assignment.Emitter = (*assignmentEmitter)(nil)

func (e *assignmentEmitter) EmitRequestCreated(requestID, hubID int64, cropType string, quantity float64, actor string) {
	e.bus.Emit(Event{Type: EventRequestCreated, Payload: RequestCreatedEvent{
		RequestID: requestID,
		HubID:     hubID,
		CropType:  cropType,
		Quantity:  quantity,
		Actor:     actor,
	}})
}

func (e *assignmentEmitter) EmitRequestStatusChanged(requestID int64, oldStatus, newStatus, actor string) {
	e.bus.Emit(Event{Type: EventRequestStatusChanged, Payload: RequestStatusChangedEvent{
		RequestID: requestID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Actor:     actor,
	}})
}

func (e *assignmentEmitter) EmitAssignmentCreated(assignmentID, requestID, hubID, primaryOperatorID int64, actor string) {
	e.bus.Emit(Event{Type: EventAssignmentCreated, Payload: AssignmentCreatedEvent{
		AssignmentID:      assignmentID,
		RequestID:         requestID,
		HubID:             hubID,
		PrimaryOperatorID: primaryOperatorID,
		Actor:             actor,
	}})
}

func (e *assignmentEmitter) EmitAssignmentTransitioned(assignmentID, requestID int64, oldOperatorStatus, newOperatorStatus, status, actor string) {
	e.bus.Emit(Event{Type: EventAssignmentTransitioned, Payload: AssignmentTransitionedEvent{
		AssignmentID:      assignmentID,
		RequestID:         requestID,
		OldOperatorStatus: oldOperatorStatus,
		NewOperatorStatus: newOperatorStatus,
		Status:            status,
		Actor:             actor,
	}})
}

func (e *assignmentEmitter) EmitAssignmentCancelled(assignmentID, requestID int64, reason, actor string) {
	e.bus.Emit(Event{Type: EventAssignmentCancelled, Payload: AssignmentCancelledEvent{
		AssignmentID: assignmentID,
		RequestID:    requestID,
		Reason:       reason,
		Actor:        actor,
	}})
}

func (e *assignmentEmitter) EmitStaleAssignmentRemoved(assignmentID, requestID int64, snapshot string) {
	e.bus.Emit(Event{Type: EventStaleAssignmentRemoved, Payload: StaleAssignmentRemovedEvent{
		AssignmentID: assignmentID,
		RequestID:    requestID,
		Snapshot:     snapshot,
	}})
}

func (e *assignmentEmitter) EmitJobCredited(assignmentID, requestID, operatorID int64, earning, quantity float64, source string) {
	e.bus.Emit(Event{Type: EventJobCredited, Payload: JobCreditedEvent{
		AssignmentID: assignmentID,
		RequestID:    requestID,
		OperatorID:   operatorID,
		Earning:      earning,
		Quantity:     quantity,
		Source:       source,
	}})
}

func (e *assignmentEmitter) EmitConsistencyWarning(kind string, operatorID, expectedHubID, actualHubID int64, detail string) {
	e.bus.Emit(Event{Type: EventConsistencyWarning, Payload: ConsistencyWarningEvent{
		Kind:          kind,
		OperatorID:    operatorID,
		ExpectedHubID: expectedHubID,
		ActualHubID:   actualHubID,
		Detail:        detail,
	}})
}

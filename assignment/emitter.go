package assignment

// Emitter bridges orchestrator events to the engine. Calls happen after the
// owning transaction commits.
type Emitter interface {
	EmitRequestCreated(requestID, hubID int64, cropType string, quantity float64, actor string)
	EmitRequestStatusChanged(requestID int64, oldStatus, newStatus, actor string)
	EmitAssignmentCreated(assignmentID, requestID, hubID, primaryOperatorID int64, actor string)
	EmitAssignmentTransitioned(assignmentID, requestID int64, oldOperatorStatus, newOperatorStatus, status, actor string)
	EmitAssignmentCancelled(assignmentID, requestID int64, reason, actor string)
	EmitStaleAssignmentRemoved(assignmentID, requestID int64, snapshot string)
	EmitJobCredited(assignmentID, requestID, operatorID int64, earning, quantity float64, source string)
	EmitConsistencyWarning(kind string, operatorID, expectedHubID, actualHubID int64, detail string)
}

// NopEmitter discards every event.
type NopEmitter struct{}

func (NopEmitter) EmitRequestCreated(int64, int64, string, float64, string)              {}
func (NopEmitter) EmitRequestStatusChanged(int64, string, string, string)                {}
func (NopEmitter) EmitAssignmentCreated(int64, int64, int64, int64, string)              {}
func (NopEmitter) EmitAssignmentTransitioned(int64, int64, string, string, string, string) {}
func (NopEmitter) EmitAssignmentCancelled(int64, int64, string, string)                  {}
func (NopEmitter) EmitStaleAssignmentRemoved(int64, int64, string)                       {}
func (NopEmitter) EmitJobCredited(int64, int64, int64, float64, float64, string)         {}
func (NopEmitter) EmitConsistencyWarning(string, int64, int64, int64, string)            {}

var _ Emitter = NopEmitter{}

package engine

const (
	EventRequestCreated EventType = iota + 1
	EventRequestStatusChanged
	EventAssignmentCreated
	EventAssignmentTransitioned
	EventAssignmentCancelled
	EventStaleAssignmentRemoved
	EventJobCredited
	EventConsistencyWarning
	EventMessagingConnected
	EventMessagingDisconnected
	EventCacheConnected
	EventCacheDisconnected
)

// --- Event payloads ---

type RequestCreatedEvent struct {
	RequestID int64
	HubID     int64
	CropType  string
	Quantity  float64
	Actor     string
}

type RequestStatusChangedEvent struct {
	RequestID int64
	OldStatus string
	NewStatus string
	Actor     string
}

type AssignmentCreatedEvent struct {
	AssignmentID      int64
	RequestID         int64
	HubID             int64
	PrimaryOperatorID int64
	Actor             string
}

type AssignmentTransitionedEvent struct {
	AssignmentID      int64
	RequestID         int64
	OldOperatorStatus string
	NewOperatorStatus string
	Status            string
	Actor             string
}

type AssignmentCancelledEvent struct {
	AssignmentID int64
	RequestID    int64
	Reason       string
	Actor        string
}

type StaleAssignmentRemovedEvent struct {
	AssignmentID int64
	RequestID    int64
	Snapshot     string
}

type JobCreditedEvent struct {
	AssignmentID int64
	RequestID    int64
	OperatorID   int64
	Earning      float64
	Quantity     float64
	Source       string // "operator" or "hub"
}

// ConsistencyWarningEvent reports data that disagrees with itself but was
// tolerated, e.g. an operator found outside the hub it was assigned under.
type ConsistencyWarningEvent struct {
	Kind          string
	OperatorID    int64
	ExpectedHubID int64
	ActualHubID   int64
	Detail        string
}

type ConnectionEvent struct {
	Detail string
}

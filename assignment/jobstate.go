package assignment

// Operator job states, as reported by the field operator's device.
const (
	OpPending      = "pending"
	OpAccepted     = "accepted"
	OpEnRoute      = "en_route"
	OpArrived      = "arrived"
	OpWorkStarted  = "work_started"
	OpWorkComplete = "work_complete"
	OpRejected     = "rejected"
	OpDelivered    = "delivered"
)

// validTransitions is the complete edge set. States with no entry are terminal.
var validTransitions = map[string][]string{
	OpPending:      {OpAccepted, OpRejected},
	OpAccepted:     {OpEnRoute, OpWorkStarted},
	OpEnRoute:      {OpArrived},
	OpArrived:      {OpWorkStarted},
	OpWorkStarted:  {OpWorkComplete},
	OpWorkComplete: {OpDelivered},
	OpRejected:     {},
	OpDelivered:    {},
}

// transportStages are the targets a secondary (transport) operator may drive.
var transportStages = map[string]bool{
	OpDelivered: true,
}

// IsKnownState reports whether s is one of the operator job states.
func IsKnownState(s string) bool {
	_, ok := validTransitions[s]
	return ok
}

// IsValidTransition checks whether from -> to is an edge.
func IsValidTransition(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedNext returns a copy of the legal next states for from.
func AllowedNext(from string) []string {
	next := validTransitions[from]
	out := make([]string, len(next))
	copy(out, next)
	return out
}

// IsTerminal returns true for states with no outgoing edges.
func IsTerminal(s string) bool {
	return len(validTransitions[s]) == 0
}

// coarse status ordering; cancelled sits outside it.
var statusRank = map[string]int{
	StatusAssigned:   1,
	StatusInProgress: 2,
	StatusCompleted:  3,
}

// advanceStatus moves the coarse status forward only. A hub force-complete can
// land before the operator finishes reporting, and later stage reports must
// not pull the assignment back to in_progress.
func advanceStatus(current, next string) string {
	if current == StatusCancelled {
		return current
	}
	if statusRank[next] > statusRank[current] {
		return next
	}
	return current
}

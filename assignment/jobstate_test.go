package assignment

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionGraph(t *testing.T) {
	edges := map[string][]string{
		OpPending:      {OpAccepted, OpRejected},
		OpAccepted:     {OpEnRoute, OpWorkStarted},
		OpEnRoute:      {OpArrived},
		OpArrived:      {OpWorkStarted},
		OpWorkStarted:  {OpWorkComplete},
		OpWorkComplete: {OpDelivered},
	}
	all := []string{OpPending, OpAccepted, OpEnRoute, OpArrived, OpWorkStarted, OpWorkComplete, OpRejected, OpDelivered}

	for _, from := range all {
		allowed := map[string]bool{}
		for _, to := range edges[from] {
			allowed[to] = true
		}
		for _, to := range all {
			assert.Equalf(t, allowed[to], IsValidTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, IsTerminal(OpRejected))
	assert.True(t, IsTerminal(OpDelivered))
	assert.False(t, IsTerminal(OpWorkComplete))
	assert.Empty(t, AllowedNext(OpDelivered))
}

func TestAllowedNextIsACopy(t *testing.T) {
	next := AllowedNext(OpPending)
	next[0] = "mutated"
	assert.Equal(t, []string{OpAccepted, OpRejected}, AllowedNext(OpPending))
}

func TestUnknownStates(t *testing.T) {
	assert.False(t, IsKnownState("teleported"))
	assert.False(t, IsValidTransition(OpPending, "teleported"))
	assert.False(t, IsValidTransition("teleported", OpAccepted))
}

func TestAdvanceStatusIsMonotonic(t *testing.T) {
	assert.Equal(t, StatusInProgress, advanceStatus(StatusAssigned, StatusInProgress))
	assert.Equal(t, StatusCompleted, advanceStatus(StatusCompleted, StatusInProgress))
	assert.Equal(t, StatusCancelled, advanceStatus(StatusCancelled, StatusCompleted))
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, KindNotFound, Kind(&NotFoundError{Entity: "request", ID: 1}))
	assert.Equal(t, KindInvalidTransition, Kind(fmt.Errorf("wrapped: %w", &InvalidTransitionError{Current: OpPending, Target: OpDelivered})))
	assert.Equal(t, KindConflict, Kind(&ConflictError{}))
	assert.Equal(t, KindInternal, Kind(errors.New("disk full")))
}

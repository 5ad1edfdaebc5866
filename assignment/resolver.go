package assignment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/sahilp2023/agrocyle-sub001/store"
)

// resolveOperator looks the operator up within hubID first and falls back to
// the unscoped directory. A fallback hit is served but reported as a
// consistency warning, since it means the operator's hub affiliation and the
// request's hub disagree.
func (o *Orchestrator) resolveOperator(ctx context.Context, tx *store.Tx, hubID, operatorID int64, ev *pending) (*store.Operator, error) {
	op, err := tx.GetOperatorInHub(ctx, hubID, operatorID)
	if err == nil {
		return op, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get operator %d in hub %d: %w", operatorID, hubID, err)
	}
	op, err = tx.GetOperator(ctx, operatorID)
	if err != nil {
		return nil, lookupErr("operator", operatorID, err)
	}
	log.Printf("assignment: operator %d resolved outside hub %d (affiliated with hub %d)", operatorID, hubID, op.HubID)
	actual := op.HubID
	ev.add(func() {
		o.emitter.EmitConsistencyWarning("operator_hub_mismatch", operatorID, hubID, actual, "operator resolved by unscoped lookup")
	})
	return op, nil
}

func canServe(capability, needs string) bool {
	return capability == needs || capability == store.CapabilityBoth
}

func checkEligible(op *store.Operator, needs string) error {
	if !op.Verified {
		return preconditionf("operator %d is not verified", op.ID)
	}
	if !op.Active {
		return preconditionf("operator %d is inactive", op.ID)
	}
	if !canServe(op.Capability, needs) {
		return preconditionf("operator %d has capability %q and cannot serve as %s", op.ID, op.Capability, needs)
	}
	return nil
}

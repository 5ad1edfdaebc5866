package assignment

import (
	"context"
	"fmt"

	"github.com/sahilp2023/agrocyle-sub001/store"
)

// RequestFilter narrows ListRequests. Zero values match everything the
// principal may see.
type RequestFilter struct {
	HubID  int64
	Status string
	Limit  int
}

// scopeHub narrows hubID to the principal's hub. A manager asking for
// another hub is refused.
func (p Principal) scopeHub(hubID int64) (int64, error) {
	if p.Role == RoleHubManager && p.HubID != 0 {
		if hubID != 0 && hubID != p.HubID {
			return 0, unauthorizedf("%s does not manage hub %d", p, hubID)
		}
		return p.HubID, nil
	}
	return hubID, nil
}

func (o *Orchestrator) ListRequests(ctx context.Context, p Principal, f RequestFilter) ([]*store.Request, error) {
	switch p.Role {
	case RoleRequester:
		all, err := o.db.ListRequestsByRequester(ctx, p.ID, f.Limit)
		if err != nil {
			return nil, fmt.Errorf("list requests: %w", err)
		}
		out := all[:0]
		for _, r := range all {
			if (f.Status == "" || r.Status == f.Status) && (f.HubID == 0 || r.HubID == f.HubID) {
				out = append(out, r)
			}
		}
		return out, nil
	case RoleHubManager, RoleSystem:
		hubID, err := p.scopeHub(f.HubID)
		if err != nil {
			return nil, err
		}
		reqs, err := o.db.ListRequests(ctx, hubID, f.Status, f.Limit)
		if err != nil {
			return nil, fmt.Errorf("list requests: %w", err)
		}
		return reqs, nil
	}
	return nil, unauthorizedf("%s may not list requests", p)
}

// GetRequest returns a request to its hub's staff, its requester, or an
// operator assigned to it.
func (o *Orchestrator) GetRequest(ctx context.Context, p Principal, id int64) (*store.Request, error) {
	req, err := o.db.GetRequest(ctx, id)
	if err != nil {
		return nil, lookupErr("request", id, err)
	}
	if p.managesHub(req.HubID) || (p.Role == RoleRequester && p.ID == req.RequesterID) {
		return req, nil
	}
	if p.Role == RoleOperator {
		assignments, err := o.db.ListAssignmentsByRequest(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list assignments for request %d: %w", id, err)
		}
		for _, a := range assignments {
			if isAssignee(p, a) {
				return req, nil
			}
		}
	}
	return nil, unauthorizedf("%s may not view request %d", p, id)
}

func (o *Orchestrator) ListAssignments(ctx context.Context, p Principal, f store.AssignmentFilter) ([]*store.Assignment, error) {
	switch p.Role {
	case RoleOperator:
		f.OperatorID = p.ID
	case RoleHubManager, RoleSystem:
		hubID, err := p.scopeHub(f.HubID)
		if err != nil {
			return nil, err
		}
		f.HubID = hubID
	default:
		return nil, unauthorizedf("%s may not list assignments", p)
	}
	list, err := o.db.ListAssignments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return list, nil
}

func (o *Orchestrator) GetAssignment(ctx context.Context, p Principal, id int64) (*store.Assignment, error) {
	a, err := o.db.GetAssignment(ctx, id)
	if err != nil {
		return nil, lookupErr("assignment", id, err)
	}
	if !p.managesHub(a.HubID) && !isAssignee(p, a) {
		return nil, unauthorizedf("%s may not view assignment %d", p, id)
	}
	return a, nil
}

// AssignmentHistory returns the state-change trail, oldest first.
func (o *Orchestrator) AssignmentHistory(ctx context.Context, p Principal, id int64) ([]*store.AssignmentHistory, error) {
	if _, err := o.GetAssignment(ctx, p, id); err != nil {
		return nil, err
	}
	hist, err := o.db.ListAssignmentHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("history for assignment %d: %w", id, err)
	}
	return hist, nil
}

func (o *Orchestrator) ListOperators(ctx context.Context, p Principal, hubID int64) ([]*store.Operator, error) {
	if p.Role != RoleHubManager && p.Role != RoleSystem {
		return nil, unauthorizedf("%s may not list operators", p)
	}
	hubID, err := p.scopeHub(hubID)
	if err != nil {
		return nil, err
	}
	var ops []*store.Operator
	if hubID == 0 {
		ops, err = o.db.ListOperators(ctx)
	} else {
		ops, err = o.db.ListOperatorsByHub(ctx, hubID)
	}
	if err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	return ops, nil
}

// GetOperator returns an operator to its hub's staff or to the operator itself.
func (o *Orchestrator) GetOperator(ctx context.Context, p Principal, id int64) (*store.Operator, error) {
	op, err := o.db.GetOperator(ctx, id)
	if err != nil {
		return nil, lookupErr("operator", id, err)
	}
	if !p.managesHub(op.HubID) && !(p.Role == RoleOperator && p.ID == id) {
		return nil, unauthorizedf("%s may not view operator %d", p, id)
	}
	return op, nil
}

func isAssignee(p Principal, a *store.Assignment) bool {
	if p.Role != RoleOperator {
		return false
	}
	return a.PrimaryOperatorID == p.ID || (a.SecondaryOperatorID != nil && *a.SecondaryOperatorID == p.ID)
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// Assignment coarse statuses.
const (
	AssignmentAssigned   = "assigned"
	AssignmentInProgress = "in_progress"
	AssignmentCompleted  = "completed"
	AssignmentCancelled  = "cancelled"
)

// Assignment binds one Request to a primary operator, and optionally a
// secondary transport operator, at one hub.
type Assignment struct {
	ID                  int64    `json:"id"`
	RequestID           int64    `json:"request_id"`
	HubID               int64    `json:"hub_id"`
	PrimaryOperatorID   int64    `json:"primary_operator_id"`
	SecondaryOperatorID *int64   `json:"secondary_operator_id,omitempty"`
	Status              string   `json:"status"`
	OperatorStatus      string   `json:"operator_status"`
	EstimatedEarning    float64  `json:"estimated_earning"`
	RejectionReason     string   `json:"rejection_reason,omitempty"`
	Photos              []string `json:"photos"`
	BaleCount           *int64   `json:"bale_count,omitempty"`
	LoadWeight          *float64 `json:"load_weight,omitempty"`
	Moisture            *float64 `json:"moisture,omitempty"`
	TimeRequired        string   `json:"time_required,omitempty"`
	Signature           string   `json:"signature,omitempty"`
	Remarks             string   `json:"remarks,omitempty"`
	ActualQuantity      *float64 `json:"actual_quantity,omitempty"`

	AssignedAt     time.Time  `json:"assigned_at"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`
	EnRouteAt      *time.Time `json:"en_route_at,omitempty"`
	ArrivedAt      *time.Time `json:"arrived_at,omitempty"`
	WorkStartedAt  *time.Time `json:"work_started_at,omitempty"`
	WorkCompleteAt *time.Time `json:"work_complete_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	RejectedAt     *time.Time `json:"rejected_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsTerminalFailure reports whether the assignment no longer blocks reassignment.
func (a *Assignment) IsTerminalFailure() bool {
	return a.Status == AssignmentCancelled || a.OperatorStatus == "rejected"
}

// AssignmentHistory is one recorded state change.
type AssignmentHistory struct {
	ID             int64     `json:"id"`
	AssignmentID   int64     `json:"assignment_id"`
	Status         string    `json:"status"`
	OperatorStatus string    `json:"operator_status"`
	Actor          string    `json:"actor"`
	Detail         string    `json:"detail"`
	CreatedAt      time.Time `json:"created_at"`
}

const assignmentSelectCols = `id, request_id, hub_id, primary_operator_id, secondary_operator_id, status, operator_status, estimated_earning, rejection_reason, photos, bale_count, load_weight, moisture, time_required, signature, remarks, actual_quantity, assigned_at, accepted_at, en_route_at, arrived_at, work_started_at, work_complete_at, delivered_at, rejected_at, completed_at, updated_at`

func scanAssignment(row interface{ Scan(...any) error }) (*Assignment, error) {
	var a Assignment
	var secondary, baleCount sql.NullInt64
	var loadWeight, moisture, actualQty sql.NullFloat64
	var photos string
	var assignedAt, acceptedAt, enRouteAt, arrivedAt, workStartedAt, workCompleteAt, deliveredAt, rejectedAt, completedAt, updatedAt any

	err := row.Scan(&a.ID, &a.RequestID, &a.HubID, &a.PrimaryOperatorID, &secondary,
		&a.Status, &a.OperatorStatus, &a.EstimatedEarning, &a.RejectionReason,
		&photos, &baleCount, &loadWeight, &moisture, &a.TimeRequired, &a.Signature, &a.Remarks, &actualQty,
		&assignedAt, &acceptedAt, &enRouteAt, &arrivedAt, &workStartedAt, &workCompleteAt,
		&deliveredAt, &rejectedAt, &completedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	a.SecondaryOperatorID = int64Ptr(secondary)
	a.BaleCount = int64Ptr(baleCount)
	a.LoadWeight = floatPtr(loadWeight)
	a.Moisture = floatPtr(moisture)
	a.ActualQuantity = floatPtr(actualQty)
	if photos != "" {
		json.Unmarshal([]byte(photos), &a.Photos)
	}
	if a.Photos == nil {
		a.Photos = []string{}
	}
	a.AssignedAt = parseTime(assignedAt)
	a.AcceptedAt = parseTimePtr(acceptedAt)
	a.EnRouteAt = parseTimePtr(enRouteAt)
	a.ArrivedAt = parseTimePtr(arrivedAt)
	a.WorkStartedAt = parseTimePtr(workStartedAt)
	a.WorkCompleteAt = parseTimePtr(workCompleteAt)
	a.DeliveredAt = parseTimePtr(deliveredAt)
	a.RejectedAt = parseTimePtr(rejectedAt)
	a.CompletedAt = parseTimePtr(completedAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

func scanAssignments(rows *sql.Rows) ([]*Assignment, error) {
	defer rows.Close()
	var out []*Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *Queries) timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return q.dialect.TimeArg(*t)
}

// InsertAssignment creates the row. A second active assignment for the same
// request fails on idx_assignments_one_active; see IsUniqueViolation.
func (q *Queries) InsertAssignment(ctx context.Context, a *Assignment) error {
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now()
	}
	if a.Photos == nil {
		a.Photos = []string{}
	}
	id, err := q.insertID(ctx, `INSERT INTO assignments (request_id, hub_id, primary_operator_id, secondary_operator_id, status, operator_status, estimated_earning, assigned_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RequestID, a.HubID, a.PrimaryOperatorID, a.SecondaryOperatorID, a.Status, a.OperatorStatus, a.EstimatedEarning, q.timeArg(&a.AssignedAt))
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

func (q *Queries) GetAssignment(ctx context.Context, id int64) (*Assignment, error) {
	return scanAssignment(q.ex.QueryRowContext(ctx, q.Q(`SELECT `+assignmentSelectCols+` FROM assignments WHERE id=?`), id))
}

// GetAssignmentForUpdate serializes transitions on one assignment (PostgreSQL
// row lock; SQLite serializes on its single connection).
func (q *Queries) GetAssignmentForUpdate(ctx context.Context, id int64) (*Assignment, error) {
	return scanAssignment(q.ex.QueryRowContext(ctx, q.Q(`SELECT `+assignmentSelectCols+` FROM assignments WHERE id=?`+q.forUpdate()), id))
}

func (q *Queries) ListAssignmentsByRequest(ctx context.Context, requestID int64) ([]*Assignment, error) {
	rows, err := q.ex.QueryContext(ctx, q.Q(`SELECT `+assignmentSelectCols+` FROM assignments WHERE request_id=? ORDER BY id`+q.forUpdate()), requestID)
	if err != nil {
		return nil, err
	}
	return scanAssignments(rows)
}

// AssignmentFilter narrows ListAssignments; zero values match everything.
type AssignmentFilter struct {
	HubID      int64
	OperatorID int64
	Status     string
	Limit      int
}

func (q *Queries) ListAssignments(ctx context.Context, f AssignmentFilter) ([]*Assignment, error) {
	query := `SELECT ` + assignmentSelectCols + ` FROM assignments WHERE 1=1`
	var args []any
	if f.HubID != 0 {
		query += ` AND hub_id=?`
		args = append(args, f.HubID)
	}
	if f.OperatorID != 0 {
		query += ` AND (primary_operator_id=? OR secondary_operator_id=?)`
		args = append(args, f.OperatorID, f.OperatorID)
	}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, f.Status)
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, f.Limit)
	rows, err := q.ex.QueryContext(ctx, q.Q(query), args...)
	if err != nil {
		return nil, err
	}
	return scanAssignments(rows)
}

// SaveAssignment writes every mutable column of a in one statement.
func (q *Queries) SaveAssignment(ctx context.Context, a *Assignment) error {
	photos, err := json.Marshal(a.Photos)
	if err != nil {
		return err
	}
	return q.execOne(ctx, `UPDATE assignments SET
		secondary_operator_id=?, status=?, operator_status=?, rejection_reason=?,
		photos=?, bale_count=?, load_weight=?, moisture=?, time_required=?, signature=?, remarks=?, actual_quantity=?,
		accepted_at=?, en_route_at=?, arrived_at=?, work_started_at=?, work_complete_at=?,
		delivered_at=?, rejected_at=?, completed_at=?, updated_at=datetime('now','localtime')
		WHERE id=?`,
		a.SecondaryOperatorID, a.Status, a.OperatorStatus, a.RejectionReason,
		string(photos), a.BaleCount, a.LoadWeight, a.Moisture, a.TimeRequired, a.Signature, a.Remarks, a.ActualQuantity,
		q.timeArg(a.AcceptedAt), q.timeArg(a.EnRouteAt), q.timeArg(a.ArrivedAt), q.timeArg(a.WorkStartedAt), q.timeArg(a.WorkCompleteAt),
		q.timeArg(a.DeliveredAt), q.timeArg(a.RejectedAt), q.timeArg(a.CompletedAt),
		a.ID)
}

func (q *Queries) DeleteAssignment(ctx context.Context, id int64) error {
	return q.execOne(ctx, `DELETE FROM assignments WHERE id=?`, id)
}

func (q *Queries) AppendAssignmentHistory(ctx context.Context, assignmentID int64, status, operatorStatus, actor, detail string) error {
	_, err := q.ex.ExecContext(ctx, q.Q(`INSERT INTO assignment_history (assignment_id, status, operator_status, actor, detail) VALUES (?, ?, ?, ?, ?)`),
		assignmentID, status, operatorStatus, actor, detail)
	return err
}

func (q *Queries) ListAssignmentHistory(ctx context.Context, assignmentID int64) ([]*AssignmentHistory, error) {
	rows, err := q.ex.QueryContext(ctx, q.Q(`SELECT id, assignment_id, status, operator_status, actor, detail, created_at FROM assignment_history WHERE assignment_id=? ORDER BY id`), assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hist []*AssignmentHistory
	for rows.Next() {
		var h AssignmentHistory
		var createdAt any
		if err := rows.Scan(&h.ID, &h.AssignmentID, &h.Status, &h.OperatorStatus, &h.Actor, &h.Detail, &createdAt); err != nil {
			return nil, err
		}
		h.CreatedAt = parseTime(createdAt)
		hist = append(hist, &h)
	}
	return hist, rows.Err()
}

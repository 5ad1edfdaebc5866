package store

import (
	"context"
	"database/sql"
	"time"
)

// Credit sources.
const (
	CreditSourceOperator = "operator"
	CreditSourceHub      = "hub"
)

// JobCredit is the idempotency record for the delivered side effects. There is
// at most one per assignment; whichever path inserts it first owns the credit.
type JobCredit struct {
	ID                  int64     `json:"id"`
	AssignmentID        int64     `json:"assignment_id"`
	RequestID           int64     `json:"request_id"`
	OperatorID          int64     `json:"operator_id"`
	SecondaryOperatorID *int64    `json:"secondary_operator_id,omitempty"`
	Earning             float64   `json:"earning"`
	Quantity            float64   `json:"quantity"`
	Source              string    `json:"source"`
	CreatedAt           time.Time `json:"created_at"`
}

// ClaimJobCredit inserts the credit row keyed by assignment id. It returns
// false, with no error, when a credit for the assignment already exists.
func (q *Queries) ClaimJobCredit(ctx context.Context, c *JobCredit) (bool, error) {
	res, err := q.ex.ExecContext(ctx, q.Q(`INSERT INTO job_credits (assignment_id, request_id, operator_id, secondary_operator_id, earning, quantity, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (assignment_id) DO NOTHING`),
		c.AssignmentID, c.RequestID, c.OperatorID, c.SecondaryOperatorID, c.Earning, c.Quantity, c.Source)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (q *Queries) GetJobCredit(ctx context.Context, assignmentID int64) (*JobCredit, error) {
	var c JobCredit
	var secondary sql.NullInt64
	var createdAt any
	err := q.ex.QueryRowContext(ctx, q.Q(`SELECT id, assignment_id, request_id, operator_id, secondary_operator_id, earning, quantity, source, created_at FROM job_credits WHERE assignment_id=?`), assignmentID).
		Scan(&c.ID, &c.AssignmentID, &c.RequestID, &c.OperatorID, &secondary, &c.Earning, &c.Quantity, &c.Source, &createdAt)
	if err != nil {
		return nil, err
	}
	c.SecondaryOperatorID = int64Ptr(secondary)
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

func (q *Queries) CountJobCredits(ctx context.Context, operatorID int64) (int64, error) {
	var n int64
	err := q.ex.QueryRowContext(ctx, q.Q(`SELECT COUNT(*) FROM job_credits WHERE operator_id=?`), operatorID).Scan(&n)
	return n, err
}

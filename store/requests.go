package store

import (
	"context"
	"database/sql"
	"time"
)

// Request statuses, in lifecycle order. Cancelled is terminal.
const (
	RequestPending    = "pending"
	RequestConfirmed  = "confirmed"
	RequestScheduled  = "scheduled"
	RequestInProgress = "in_progress"
	RequestCompleted  = "completed"
	RequestCancelled  = "cancelled"
)

// Request is one farmer's pickup ask.
type Request struct {
	ID                int64      `json:"id"`
	UUID              string     `json:"uuid"`
	RequesterID       int64      `json:"requester_id"`
	ResidueSource     string     `json:"residue_source"`
	HubID             int64      `json:"hub_id"`
	CropType          string     `json:"crop_type"`
	EstimatedQuantity float64    `json:"estimated_quantity"`
	RatePerTonne      float64    `json:"rate_per_tonne"`
	EstimatedPrice    float64    `json:"estimated_price"`
	ActualQuantity    *float64   `json:"actual_quantity,omitempty"`
	FinalPrice        *float64   `json:"final_price,omitempty"`
	HarvestEndDate    string     `json:"harvest_end_date"`
	ScheduledDate     string     `json:"scheduled_date,omitempty"`
	Status            string     `json:"status"`
	CancelReason      string     `json:"cancel_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

const requestSelectCols = `id, uuid, requester_id, residue_source, hub_id, crop_type, estimated_quantity, rate_per_tonne, estimated_price, actual_quantity, final_price, harvest_end_date, scheduled_date, status, cancel_reason, created_at, updated_at, completed_at`

func scanRequest(row interface{ Scan(...any) error }) (*Request, error) {
	var r Request
	var actualQty, finalPrice sql.NullFloat64
	var createdAt, updatedAt, completedAt any
	err := row.Scan(&r.ID, &r.UUID, &r.RequesterID, &r.ResidueSource, &r.HubID, &r.CropType,
		&r.EstimatedQuantity, &r.RatePerTonne, &r.EstimatedPrice, &actualQty, &finalPrice,
		&r.HarvestEndDate, &r.ScheduledDate, &r.Status, &r.CancelReason,
		&createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	r.ActualQuantity = floatPtr(actualQty)
	r.FinalPrice = floatPtr(finalPrice)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	r.CompletedAt = parseTimePtr(completedAt)
	return &r, nil
}

func (q *Queries) CreateRequest(ctx context.Context, r *Request) error {
	if r.Status == "" {
		r.Status = RequestPending
	}
	id, err := q.insertID(ctx, `INSERT INTO requests (uuid, requester_id, residue_source, hub_id, crop_type, estimated_quantity, rate_per_tonne, estimated_price, harvest_end_date, status) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UUID, r.RequesterID, r.ResidueSource, r.HubID, r.CropType, r.EstimatedQuantity, r.RatePerTonne, r.EstimatedPrice, r.HarvestEndDate, r.Status)
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

func (q *Queries) GetRequest(ctx context.Context, id int64) (*Request, error) {
	return scanRequest(q.ex.QueryRowContext(ctx, q.Q(`SELECT `+requestSelectCols+` FROM requests WHERE id=?`), id))
}

// GetRequestForUpdate reads the request and, on PostgreSQL, holds its row lock
// until the transaction ends.
func (q *Queries) GetRequestForUpdate(ctx context.Context, id int64) (*Request, error) {
	return scanRequest(q.ex.QueryRowContext(ctx, q.Q(`SELECT `+requestSelectCols+` FROM requests WHERE id=?`+q.forUpdate()), id))
}

func (q *Queries) GetRequestByUUID(ctx context.Context, uuid string) (*Request, error) {
	return scanRequest(q.ex.QueryRowContext(ctx, q.Q(`SELECT `+requestSelectCols+` FROM requests WHERE uuid=?`), uuid))
}

// ListRequests filters by hub and status; zero values match everything.
func (q *Queries) ListRequests(ctx context.Context, hubID int64, status string, limit int) ([]*Request, error) {
	query := `SELECT ` + requestSelectCols + ` FROM requests WHERE 1=1`
	var args []any
	if hubID != 0 {
		query += ` AND hub_id=?`
		args = append(args, hubID)
	}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := q.ex.QueryContext(ctx, q.Q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reqs []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

func (q *Queries) UpdateRequestStatus(ctx context.Context, id int64, status string) error {
	return q.execOne(ctx, `UPDATE requests SET status=?, updated_at=datetime('now','localtime') WHERE id=?`, status, id)
}

func (q *Queries) CancelRequest(ctx context.Context, id int64, reason string) error {
	return q.execOne(ctx, `UPDATE requests SET status=?, cancel_reason=?, updated_at=datetime('now','localtime') WHERE id=?`,
		RequestCancelled, reason, id)
}

func (q *Queries) SetRequestScheduledDate(ctx context.Context, id int64, date string) error {
	return q.execOne(ctx, `UPDATE requests SET scheduled_date=?, updated_at=datetime('now','localtime') WHERE id=?`, date, id)
}

// CompleteRequest records the weighed quantity and recomputes the final price
// from the rate stored on the request.
func (q *Queries) CompleteRequest(ctx context.Context, id int64, actualQuantity float64) error {
	return q.execOne(ctx, `UPDATE requests SET status=?, actual_quantity=?, final_price=?*rate_per_tonne, completed_at=datetime('now','localtime'), updated_at=datetime('now','localtime') WHERE id=?`,
		RequestCompleted, actualQuantity, actualQuantity, id)
}

// ListRequestsByRequester returns one requester's requests, newest first.
func (q *Queries) ListRequestsByRequester(ctx context.Context, requesterID int64, limit int) ([]*Request, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.ex.QueryContext(ctx, q.Q(`SELECT `+requestSelectCols+` FROM requests WHERE requester_id=? ORDER BY id DESC LIMIT ?`), requesterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reqs []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

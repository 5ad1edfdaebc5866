package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Operator capability types.
const (
	CapabilityBaler = "baler"
	CapabilityTruck = "truck"
	CapabilityBoth  = "both"
)

type Operator struct {
	ID            int64      `json:"id"`
	HubID         int64      `json:"hub_id"`
	Name          string     `json:"name"`
	Phone         string     `json:"phone"`
	Capability    string     `json:"capability"`
	Verified      bool       `json:"verified"`
	Active        bool       `json:"active"`
	Online        bool       `json:"online"`
	Lat           *float64   `json:"lat,omitempty"`
	Lng           *float64   `json:"lng,omitempty"`
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty"`
	TotalJobs     int64      `json:"total_jobs"`
	TotalEarnings float64    `json:"total_earnings"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

const operatorSelectCols = `id, hub_id, name, phone, capability, verified, active, online, lat, lng, last_seen_at, total_jobs, total_earnings, created_at, updated_at`

func scanOperator(row interface{ Scan(...any) error }) (*Operator, error) {
	var o Operator
	var lat, lng sql.NullFloat64
	var lastSeen, createdAt, updatedAt any
	err := row.Scan(&o.ID, &o.HubID, &o.Name, &o.Phone, &o.Capability,
		&o.Verified, &o.Active, &o.Online, &lat, &lng, &lastSeen,
		&o.TotalJobs, &o.TotalEarnings, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	o.Lat = floatPtr(lat)
	o.Lng = floatPtr(lng)
	o.LastSeenAt = parseTimePtr(lastSeen)
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	return &o, nil
}

func scanOperators(rows *sql.Rows) ([]*Operator, error) {
	defer rows.Close()
	var ops []*Operator
	for rows.Next() {
		o, err := scanOperator(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, o)
	}
	return ops, rows.Err()
}

func (q *Queries) CreateOperator(ctx context.Context, o *Operator) error {
	id, err := q.insertID(ctx, `INSERT INTO operators (hub_id, name, phone, capability, verified, active) VALUES (?, ?, ?, ?, ?, ?)`,
		o.HubID, o.Name, o.Phone, o.Capability, o.Verified, o.Active)
	if err != nil {
		return err
	}
	o.ID = id
	return nil
}

func (q *Queries) GetOperator(ctx context.Context, id int64) (*Operator, error) {
	return scanOperator(q.ex.QueryRowContext(ctx, q.Q(`SELECT `+operatorSelectCols+` FROM operators WHERE id=?`), id))
}

// GetOperatorInHub is the hub-scoped lookup: it only finds the operator when
// their affiliation matches hubID.
func (q *Queries) GetOperatorInHub(ctx context.Context, hubID, id int64) (*Operator, error) {
	return scanOperator(q.ex.QueryRowContext(ctx, q.Q(`SELECT `+operatorSelectCols+` FROM operators WHERE id=? AND hub_id=?`), id, hubID))
}

func (q *Queries) ListOperators(ctx context.Context) ([]*Operator, error) {
	rows, err := q.ex.QueryContext(ctx, `SELECT `+operatorSelectCols+` FROM operators ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return scanOperators(rows)
}

func (q *Queries) ListOperatorsByHub(ctx context.Context, hubID int64) ([]*Operator, error) {
	rows, err := q.ex.QueryContext(ctx, q.Q(`SELECT `+operatorSelectCols+` FROM operators WHERE hub_id=? ORDER BY id`), hubID)
	if err != nil {
		return nil, err
	}
	return scanOperators(rows)
}

func (q *Queries) SetOperatorVerified(ctx context.Context, id int64, verified bool) error {
	return q.execOne(ctx, `UPDATE operators SET verified=?, updated_at=datetime('now','localtime') WHERE id=?`, verified, id)
}

// SetOperatorActive deactivates or reactivates an operator. Operators are never deleted.
func (q *Queries) SetOperatorActive(ctx context.Context, id int64, active bool) error {
	return q.execOne(ctx, `UPDATE operators SET active=?, updated_at=datetime('now','localtime') WHERE id=?`, active, id)
}

// UpdateOperatorPresence overwrites the presence columns in a single statement.
// Returns sql.ErrNoRows if the operator does not exist.
func (q *Queries) UpdateOperatorPresence(ctx context.Context, id int64, lat, lng float64, online bool) error {
	return q.execOne(ctx, `UPDATE operators SET lat=?, lng=?, online=?, last_seen_at=datetime('now','localtime') WHERE id=?`,
		lat, lng, online, id)
}

// MarkStaleOperatorsOffline flips online operators whose last ping is older
// than threshold to offline and returns their ids.
func (q *Queries) MarkStaleOperatorsOffline(ctx context.Context, threshold time.Duration) ([]int64, error) {
	cutoff := q.dialect.TimeArg(time.Now().Add(-threshold))
	rows, err := q.ex.QueryContext(ctx, q.Q(`
		UPDATE operators SET online=?
		WHERE online=? AND (last_seen_at IS NULL OR last_seen_at < ?)
		RETURNING id
	`), false, true, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IncrementOperatorTotals adds to the cumulative counters with an atomic
// UPDATE, never read-modify-write.
func (q *Queries) IncrementOperatorTotals(ctx context.Context, id int64, jobs int64, earnings float64) error {
	return q.execOne(ctx, `UPDATE operators SET total_jobs=total_jobs+?, total_earnings=total_earnings+?, updated_at=datetime('now','localtime') WHERE id=?`,
		jobs, earnings, id)
}

// execOne runs an UPDATE that must touch exactly one row.
func (q *Queries) execOne(ctx context.Context, query string, args ...any) error {
	res, err := q.ex.ExecContext(ctx, q.Q(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no row updated: %w", sql.ErrNoRows)
	}
	return nil
}

package store

import (
	"context"
	"strings"
	"time"
)

// Audit entity types.
const (
	AuditRequest    = "request"
	AuditAssignment = "assignment"
	AuditOperator   = "operator"
	AuditHub        = "hub"
)

const auditCols = `id, entity_type, entity_id, action, old_value, new_value, actor, created_at`

type AuditEntry struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id"`
	Action     string    `json:"action"`
	OldValue   string    `json:"old_value"`
	NewValue   string    `json:"new_value"`
	Actor      string    `json:"actor"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditFilter narrows the head-office audit view. Zero fields match all rows.
type AuditFilter struct {
	EntityType string
	EntityID   int64
	Action     string
	Limit      int
}

func (q *Queries) AppendAudit(ctx context.Context, entityType string, entityID int64, action, oldValue, newValue, actor string) error {
	if actor == "" {
		actor = "system"
	}
	_, err := q.ex.ExecContext(ctx, q.Q(`INSERT INTO audit_log (entity_type, entity_id, action, old_value, new_value, actor) VALUES (?, ?, ?, ?, ?, ?)`),
		entityType, entityID, action, oldValue, newValue, actor)
	return err
}

// ListAuditLog returns matching entries newest first. Limit defaults to 200.
func (q *Queries) ListAuditLog(ctx context.Context, f AuditFilter) ([]*AuditEntry, error) {
	var where []string
	var args []any
	if f.EntityType != "" {
		where = append(where, "entity_type=?")
		args = append(args, f.EntityType)
	}
	if f.EntityID > 0 {
		where = append(where, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Action != "" {
		where = append(where, "action=?")
		args = append(args, f.Action)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}

	query := `SELECT ` + auditCols + ` FROM audit_log`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id DESC LIMIT ?`
	return q.queryAudit(ctx, query, append(args, limit)...)
}

// ListEntityAudit is the full trail for one record, newest first.
func (q *Queries) ListEntityAudit(ctx context.Context, entityType string, entityID int64) ([]*AuditEntry, error) {
	return q.queryAudit(ctx, `SELECT `+auditCols+` FROM audit_log WHERE entity_type=? AND entity_id=? ORDER BY id DESC`, entityType, entityID)
}

func (q *Queries) queryAudit(ctx context.Context, query string, args ...any) ([]*AuditEntry, error) {
	rows, err := q.ex.QueryContext(ctx, q.Q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var createdAt any
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.OldValue, &e.NewValue, &e.Actor, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

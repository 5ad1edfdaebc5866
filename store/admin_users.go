package store

import (
	"context"
	"database/sql"
	"time"
)

// AdminUser is a hub staff login. HubID scopes dispatcher actions; nil means
// the account may act on every hub.
type AdminUser struct {
	ID           int64
	Username     string
	PasswordHash string
	HubID        *int64
	CreatedAt    time.Time
}

func (q *Queries) CreateAdminUser(ctx context.Context, username, passwordHash string, hubID *int64) error {
	_, err := q.ex.ExecContext(ctx, q.Q(`INSERT INTO admin_users (username, password_hash, hub_id) VALUES (?, ?, ?)`), username, passwordHash, hubID)
	return err
}

func (q *Queries) GetAdminUser(ctx context.Context, username string) (*AdminUser, error) {
	var u AdminUser
	var hubID sql.NullInt64
	var createdAt any
	err := q.ex.QueryRowContext(ctx, q.Q(`SELECT id, username, password_hash, hub_id, created_at FROM admin_users WHERE username=?`), username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &hubID, &createdAt)
	if err != nil {
		return nil, err
	}
	u.HubID = int64Ptr(hubID)
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

func (q *Queries) AdminUserExists(ctx context.Context) (bool, error) {
	var count int
	err := q.ex.QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_users`).Scan(&count)
	return count > 0, err
}

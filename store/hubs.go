package store

import (
	"context"
	"time"
)

// Hub is a regional collection and dispatch point.
type Hub struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	District  string    `json:"district"`
	CreatedAt time.Time `json:"created_at"`
}

const hubSelectCols = `id, code, name, district, created_at`

func scanHub(row interface{ Scan(...any) error }) (*Hub, error) {
	var h Hub
	var createdAt any
	if err := row.Scan(&h.ID, &h.Code, &h.Name, &h.District, &createdAt); err != nil {
		return nil, err
	}
	h.CreatedAt = parseTime(createdAt)
	return &h, nil
}

func (q *Queries) CreateHub(ctx context.Context, h *Hub) error {
	id, err := q.insertID(ctx, `INSERT INTO hubs (code, name, district) VALUES (?, ?, ?)`, h.Code, h.Name, h.District)
	if err != nil {
		return err
	}
	h.ID = id
	return nil
}

func (q *Queries) GetHub(ctx context.Context, id int64) (*Hub, error) {
	return scanHub(q.ex.QueryRowContext(ctx, q.Q(`SELECT `+hubSelectCols+` FROM hubs WHERE id=?`), id))
}

func (q *Queries) GetHubByCode(ctx context.Context, code string) (*Hub, error) {
	return scanHub(q.ex.QueryRowContext(ctx, q.Q(`SELECT `+hubSelectCols+` FROM hubs WHERE code=?`), code))
}

func (q *Queries) ListHubs(ctx context.Context) ([]*Hub, error) {
	rows, err := q.ex.QueryContext(ctx, `SELECT `+hubSelectCols+` FROM hubs ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hubs []*Hub
	for rows.Next() {
		h, err := scanHub(rows)
		if err != nil {
			return nil, err
		}
		hubs = append(hubs, h)
	}
	return hubs, rows.Err()
}

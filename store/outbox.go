package store

import (
	"context"
	"time"
)

type OutboxMessage struct {
	ID        int64
	Topic     string
	Payload   []byte
	MsgType   string
	StationID string
	Retries   int
	CreatedAt time.Time
	SentAt    *time.Time
}

// EnqueueOutbox stores a message for asynchronous publishing. Called inside
// the transaction that produced the fact, so the fact and its message commit together.
func (q *Queries) EnqueueOutbox(ctx context.Context, topic string, payload []byte, msgType, stationID string) error {
	_, err := q.ex.ExecContext(ctx, q.Q(`INSERT INTO outbox (topic, payload, msg_type, station_id) VALUES (?, ?, ?, ?)`),
		topic, payload, msgType, stationID)
	return err
}

func (q *Queries) ListPendingOutbox(ctx context.Context, limit int) ([]*OutboxMessage, error) {
	rows, err := q.ex.QueryContext(ctx, q.Q(`SELECT id, topic, payload, msg_type, station_id, retries, created_at FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []*OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		var createdAt any
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.MsgType, &m.StationID, &m.Retries, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (q *Queries) AckOutbox(ctx context.Context, id int64) error {
	_, err := q.ex.ExecContext(ctx, q.Q(`UPDATE outbox SET sent_at=datetime('now','localtime') WHERE id=?`), id)
	return err
}

func (q *Queries) IncrementOutboxRetries(ctx context.Context, id int64) error {
	_, err := q.ex.ExecContext(ctx, q.Q(`UPDATE outbox SET retries=retries+1 WHERE id=?`), id)
	return err
}

package messaging

import (
	"context"
	"log"
	"time"

	"github.com/sahilp2023/agrocyle-sub001/store"
)

const outboxBatch = 50

// OutboxDrainer periodically publishes pending outbox rows. A row is acked
// only after the publisher returns nil, so delivery is at-least-once and
// downstream consumers dedupe on assignment_id.
type OutboxDrainer struct {
	db       *store.DB
	pub      Publisher
	interval time.Duration
}

func NewOutboxDrainer(db *store.DB, pub Publisher, interval time.Duration) *OutboxDrainer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &OutboxDrainer{db: db, pub: pub, interval: interval}
}

// Run drains on every tick until ctx is cancelled.
func (d *OutboxDrainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain publishes one batch and returns how many rows were acked.
func (d *OutboxDrainer) Drain(ctx context.Context) int {
	msgs, err := d.db.ListPendingOutbox(ctx, outboxBatch)
	if err != nil {
		log.Printf("outbox: list pending: %v", err)
		return 0
	}
	sent := 0
	for _, msg := range msgs {
		if err := d.pub.Publish(ctx, msg.Topic, msg.Payload); err != nil {
			log.Printf("outbox: publish %s #%d to %s failed (retries=%d): %v", msg.MsgType, msg.ID, msg.Topic, msg.Retries, err)
			if err := d.db.IncrementOutboxRetries(ctx, msg.ID); err != nil {
				log.Printf("outbox: bump retries #%d: %v", msg.ID, err)
			}
			continue
		}
		if err := d.db.AckOutbox(ctx, msg.ID); err != nil {
			log.Printf("outbox: ack #%d: %v", msg.ID, err)
			continue
		}
		sent++
	}
	return sent
}

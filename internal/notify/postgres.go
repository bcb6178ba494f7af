package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresSink writes notifications to the notifications table. The unique
// (learner_id, training_id, content_version) index absorbs repeats.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

func (s *PostgresSink) Write(ctx context.Context, batch []Notification) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("notification sink pool is nil")
	}
	if len(batch) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	b := &pgx.Batch{}
	for _, n := range batch {
		b.Queue(
			`INSERT INTO notifications (id, learner_id, training_id, content_version, message, created_at)
			 VALUES ($1::uuid, $2, $3, $4, $5, $6)
			 ON CONFLICT (learner_id, training_id, content_version) DO NOTHING`,
			n.ID, n.LearnerID, n.TrainingID, n.ContentVersion, n.Message, n.CreatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, b)
	for range batch {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert notification: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close notification batch: %w", err)
	}
	return nil
}

func (s *PostgresSink) ForLearner(ctx context.Context, learnerID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, learner_id, training_id, content_version, message, created_at
		 FROM notifications
		 WHERE learner_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		learnerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Notification, error) {
		var n Notification
		err := row.Scan(&n.ID, &n.LearnerID, &n.TrainingID, &n.ContentVersion, &n.Message, &n.CreatedAt)
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan notifications: %w", err)
	}
	return out, nil
}

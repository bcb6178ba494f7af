package database

import (
	"context"
	"fmt"
)

// schema is applied in order by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS watch_signals (
		learner_id      TEXT NOT NULL,
		lesson_id       TEXT NOT NULL,
		watched_seconds INTEGER NOT NULL DEFAULT 0,
		is_completed    BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (learner_id, lesson_id)
	)`,
	`CREATE TABLE IF NOT EXISTS mini_unit_signals (
		learner_id     TEXT NOT NULL,
		mini_unit_id   TEXT NOT NULL,
		video_progress INTEGER NOT NULL DEFAULT 0 CHECK (video_progress BETWEEN 0 AND 100),
		quiz_completed BOOLEAN NOT NULL DEFAULT FALSE,
		is_completed   BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (learner_id, mini_unit_id)
	)`,
	`CREATE TABLE IF NOT EXISTS quiz_attempts (
		learner_id      TEXT NOT NULL,
		quiz_id         TEXT NOT NULL,
		attempt_ordinal INTEGER NOT NULL,
		score           DOUBLE PRECISION NOT NULL,
		passed          BOOLEAN NOT NULL,
		completed_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (learner_id, quiz_id, attempt_ordinal)
	)`,
	`CREATE TABLE IF NOT EXISTS training_progress (
		learner_id           TEXT NOT NULL,
		training_id          TEXT NOT NULL,
		video_progress       INTEGER NOT NULL DEFAULT 0,
		quiz_completed       BOOLEAN NOT NULL DEFAULT FALSE,
		mini_units_completed INTEGER NOT NULL DEFAULT 0,
		total_mini_units     INTEGER NOT NULL DEFAULT 0,
		progress             INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
		is_completed         BOOLEAN NOT NULL DEFAULT FALSE,
		completed_at         TIMESTAMPTZ,
		content_version      INTEGER NOT NULL DEFAULT 0,
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (learner_id, training_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_training_progress_training ON training_progress (training_id)`,
	`CREATE TABLE IF NOT EXISTS course_progress (
		learner_id   TEXT NOT NULL,
		course_id    TEXT NOT NULL,
		progress     INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
		is_completed BOOLEAN NOT NULL DEFAULT FALSE,
		completed_at TIMESTAMPTZ,
		enrolled_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (learner_id, course_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_course_progress_course ON course_progress (course_id)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id              UUID PRIMARY KEY,
		learner_id      TEXT NOT NULL,
		training_id     TEXT NOT NULL,
		content_version INTEGER NOT NULL,
		message         TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		read_at         TIMESTAMPTZ,
		UNIQUE (learner_id, training_id, content_version)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_learner ON notifications (learner_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS training_definitions (
		id         TEXT PRIMARY KEY,
		version    INTEGER NOT NULL,
		definition JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS learning_events (
		id          BIGSERIAL PRIMARY KEY,
		learner_id  TEXT NOT NULL,
		training_id TEXT NOT NULL DEFAULT '',
		event_type  TEXT NOT NULL,
		data        JSONB NOT NULL DEFAULT '{}',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_learning_events_learner ON learning_events (learner_id, created_at)`,
}

// Migrate creates the tables the service needs.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}

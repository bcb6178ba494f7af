// Package notify tells learners that a content change moved their progress.
// Delivery is best effort: failures are logged and never reach the caller.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-academy/internal/progress"
)

const (
	defaultBatchSize = 100

	// DefaultTemplate renders the message for one notice.
	DefaultTemplate = `"{{if .TrainingTitle}}{{.TrainingTitle}}{{else}}{{.TrainingID}}{{end}}" was updated and your progress has been recalculated.`
)

// Notification is one message for one learner.
type Notification struct {
	ID             string    `json:"id"`
	LearnerID      string    `json:"learner_id"`
	TrainingID     string    `json:"training_id"`
	ContentVersion int       `json:"content_version"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}

// Sink persists notifications. Writing a notification that already exists for
// the same (learner, training, version) is not an error.
type Sink interface {
	Write(ctx context.Context, batch []Notification) error
	ForLearner(ctx context.Context, learnerID string, limit int) ([]Notification, error)
}

// Deduper remembers which (learner, training, version) were notified.
type Deduper interface {
	// Claim reports whether the caller is first to notify for the key.
	Claim(ctx context.Context, learnerID, trainingID string, version int) (bool, error)
	// Release forgets a claim whose notification could not be written.
	Release(ctx context.Context, learnerID, trainingID string, version int) error
}

// Config holds dispatcher dependencies.
type Config struct {
	Sink      Sink
	Deduper   Deduper // nil disables dedupe beyond the sink's own
	BatchSize int
	Template  string
	Now       func() time.Time
}

// Dispatcher batches notifications into a Sink. It implements
// progress.Dispatcher.
type Dispatcher struct {
	sink      Sink
	deduper   Deduper
	batchSize int
	tmpl      *template.Template
	now       func() time.Time
}

var _ progress.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher. It fails on a missing sink or a bad
// template.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Sink == nil {
		return nil, fmt.Errorf("notification sink is nil")
	}
	text := cfg.Template
	if text == "" {
		text = DefaultTemplate
	}
	tmpl, err := template.New("notice").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse notification template: %w", err)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		sink:      cfg.Sink,
		deduper:   cfg.Deduper,
		batchSize: batchSize,
		tmpl:      tmpl,
		now:       now,
	}, nil
}

// Dispatch notifies each learner once per content version.
func (d *Dispatcher) Dispatch(ctx context.Context, notice progress.Notice, learnerIDs []string) {
	if len(learnerIDs) == 0 {
		return
	}

	message, err := d.render(notice)
	if err != nil {
		slog.Error("failed to render notification",
			"training_id", notice.TrainingID,
			"error", err,
		)
		return
	}

	pending := d.claim(ctx, notice, learnerIDs)
	skipped := len(learnerIDs) - len(pending)

	sent, failed := 0, 0
	for start := 0; start < len(pending); start += d.batchSize {
		end := min(start+d.batchSize, len(pending))
		batch := make([]Notification, 0, end-start)
		for _, learnerID := range pending[start:end] {
			batch = append(batch, Notification{
				ID:             uuid.NewString(),
				LearnerID:      learnerID,
				TrainingID:     notice.TrainingID,
				ContentVersion: notice.ContentVersion,
				Message:        message,
				CreatedAt:      d.now(),
			})
		}

		if err := d.sink.Write(ctx, batch); err != nil {
			failed += len(batch)
			slog.Error("failed to write notification batch",
				"training_id", notice.TrainingID,
				"batch_start", start,
				"batch_size", len(batch),
				"error", err,
			)
			d.release(ctx, notice, pending[start:end])
			continue
		}
		sent += len(batch)
	}

	slog.Info("notifications dispatched",
		"training_id", notice.TrainingID,
		"content_version", notice.ContentVersion,
		"sent", sent,
		"skipped", skipped,
		"failed", failed,
	)
}

func (d *Dispatcher) render(notice progress.Notice) (string, error) {
	var b strings.Builder
	if err := d.tmpl.Execute(&b, notice); err != nil {
		return "", err
	}
	return b.String(), nil
}

// claim drops duplicate ids and learners already notified for this version.
// A deduper error lets the learner through: a repeat beats a lost notice.
func (d *Dispatcher) claim(ctx context.Context, notice progress.Notice, learnerIDs []string) []string {
	seen := make(map[string]bool, len(learnerIDs))
	out := make([]string, 0, len(learnerIDs))
	for _, learnerID := range learnerIDs {
		if learnerID == "" || seen[learnerID] {
			continue
		}
		seen[learnerID] = true

		if d.deduper == nil {
			out = append(out, learnerID)
			continue
		}
		first, err := d.deduper.Claim(ctx, learnerID, notice.TrainingID, notice.ContentVersion)
		if err != nil {
			slog.Warn("notification dedupe unavailable",
				"learner_id", learnerID,
				"training_id", notice.TrainingID,
				"error", err,
			)
			first = true
		}
		if first {
			out = append(out, learnerID)
		}
	}
	return out
}

func (d *Dispatcher) release(ctx context.Context, notice progress.Notice, learnerIDs []string) {
	if d.deduper == nil {
		return
	}
	for _, learnerID := range learnerIDs {
		if err := d.deduper.Release(ctx, learnerID, notice.TrainingID, notice.ContentVersion); err != nil {
			slog.Warn("failed to release notification claim",
				"learner_id", learnerID,
				"training_id", notice.TrainingID,
				"error", err,
			)
		}
	}
}

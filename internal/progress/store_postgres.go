package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) GetWatchSignal(ctx context.Context, learnerID, lessonID string) (WatchSignal, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	sig := WatchSignal{LearnerID: learnerID, LessonID: lessonID}
	err := s.pool.QueryRow(ctx,
		`SELECT watched_seconds, is_completed, updated_at
		 FROM watch_signals
		 WHERE learner_id = $1 AND lesson_id = $2`,
		learnerID, lessonID,
	).Scan(&sig.WatchedSeconds, &sig.IsCompleted, &sig.UpdatedAt)
	if err != nil {
		return WatchSignal{}, notFound(err, "watch signal")
	}
	return sig, nil
}

func (s *PostgresStore) UpsertWatchSignal(ctx context.Context, sig WatchSignal) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if sig.LearnerID == "" || sig.LessonID == "" {
		return fmt.Errorf("learner_id and lesson_id are required")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO watch_signals (learner_id, lesson_id, watched_seconds, is_completed, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (learner_id, lesson_id) DO UPDATE
		 SET watched_seconds = EXCLUDED.watched_seconds,
		     is_completed = EXCLUDED.is_completed,
		     updated_at = EXCLUDED.updated_at`,
		sig.LearnerID, sig.LessonID, sig.WatchedSeconds, sig.IsCompleted, nowIfZero(sig.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert watch signal: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMiniUnitSignal(ctx context.Context, learnerID, miniUnitID string) (MiniUnitSignal, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	sig := MiniUnitSignal{LearnerID: learnerID, MiniUnitID: miniUnitID}
	err := s.pool.QueryRow(ctx,
		`SELECT video_progress, quiz_completed, is_completed, updated_at
		 FROM mini_unit_signals
		 WHERE learner_id = $1 AND mini_unit_id = $2`,
		learnerID, miniUnitID,
	).Scan(&sig.VideoProgress, &sig.QuizCompleted, &sig.IsCompleted, &sig.UpdatedAt)
	if err != nil {
		return MiniUnitSignal{}, notFound(err, "mini-unit signal")
	}
	return sig, nil
}

func (s *PostgresStore) UpsertMiniUnitSignal(ctx context.Context, sig MiniUnitSignal) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if sig.LearnerID == "" || sig.MiniUnitID == "" {
		return fmt.Errorf("learner_id and mini_unit_id are required")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO mini_unit_signals (learner_id, mini_unit_id, video_progress, quiz_completed, is_completed, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (learner_id, mini_unit_id) DO UPDATE
		 SET video_progress = EXCLUDED.video_progress,
		     quiz_completed = EXCLUDED.quiz_completed,
		     is_completed = EXCLUDED.is_completed,
		     updated_at = EXCLUDED.updated_at`,
		sig.LearnerID, sig.MiniUnitID, sig.VideoProgress, sig.QuizCompleted, sig.IsCompleted, nowIfZero(sig.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert mini-unit signal: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountCompletedMiniUnits(ctx context.Context, learnerID string, miniUnitIDs []string) (int, error) {
	if len(miniUnitIDs) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM mini_unit_signals
		 WHERE learner_id = $1 AND mini_unit_id = ANY($2) AND is_completed`,
		learnerID, miniUnitIDs,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completed mini-units: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) AppendQuizAttempt(ctx context.Context, rec QuizAttemptRecord) (QuizAttemptRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if rec.LearnerID == "" || rec.QuizID == "" {
		return QuizAttemptRecord{}, fmt.Errorf("learner_id and quiz_id are required")
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO quiz_attempts (learner_id, quiz_id, attempt_ordinal, score, passed, completed_at)
		 SELECT $1, $2, COALESCE(MAX(attempt_ordinal), 0) + 1, $3, $4, $5
		 FROM quiz_attempts
		 WHERE learner_id = $1 AND quiz_id = $2
		 RETURNING attempt_ordinal, completed_at`,
		rec.LearnerID, rec.QuizID, rec.Score, rec.Passed, nowIfZero(rec.CompletedAt),
	).Scan(&rec.AttemptOrdinal, &rec.CompletedAt)
	if err != nil {
		return QuizAttemptRecord{}, fmt.Errorf("append quiz attempt: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) CountQuizAttempts(ctx context.Context, learnerID, quizID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM quiz_attempts WHERE learner_id = $1 AND quiz_id = $2`,
		learnerID, quizID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count quiz attempts: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) HasPassingAttempt(ctx context.Context, learnerID, quizID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var passed bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM quiz_attempts
		   WHERE learner_id = $1 AND quiz_id = $2 AND passed
		 )`,
		learnerID, quizID,
	).Scan(&passed)
	if err != nil {
		return false, fmt.Errorf("check passing attempt: %w", err)
	}
	return passed, nil
}

const trainingProgressColumns = `learner_id, training_id, video_progress, quiz_completed,
	mini_units_completed, total_mini_units, progress, is_completed, completed_at,
	content_version, updated_at`

func (s *PostgresStore) GetTrainingProgress(ctx context.Context, learnerID, trainingID string) (TrainingProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+trainingProgressColumns+`
		 FROM training_progress
		 WHERE learner_id = $1 AND training_id = $2`,
		learnerID, trainingID,
	)
	if err != nil {
		return TrainingProgress{}, fmt.Errorf("query training progress: %w", err)
	}
	tp, err := pgx.CollectExactlyOneRow(rows, scanTrainingProgress)
	if err != nil {
		return TrainingProgress{}, notFound(err, "training progress")
	}
	return tp, nil
}

func (s *PostgresStore) UpsertTrainingProgress(ctx context.Context, tp TrainingProgress) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if tp.LearnerID == "" || tp.TrainingID == "" {
		return fmt.Errorf("learner_id and training_id are required")
	}

	// completed_at keeps the first completion once set.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO training_progress (`+trainingProgressColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (learner_id, training_id) DO UPDATE
		 SET video_progress = EXCLUDED.video_progress,
		     quiz_completed = EXCLUDED.quiz_completed,
		     mini_units_completed = EXCLUDED.mini_units_completed,
		     total_mini_units = EXCLUDED.total_mini_units,
		     progress = EXCLUDED.progress,
		     is_completed = EXCLUDED.is_completed,
		     completed_at = COALESCE(training_progress.completed_at, EXCLUDED.completed_at),
		     content_version = EXCLUDED.content_version,
		     updated_at = EXCLUDED.updated_at`,
		tp.LearnerID, tp.TrainingID, tp.VideoProgress, tp.QuizCompleted,
		tp.MiniUnitsCompleted, tp.TotalMiniUnits, tp.Progress, tp.IsCompleted, tp.CompletedAt,
		tp.ContentVersion, nowIfZero(tp.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert training progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTrainingProgress(ctx context.Context, trainingID string) ([]TrainingProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+trainingProgressColumns+`
		 FROM training_progress
		 WHERE training_id = $1
		 ORDER BY learner_id`,
		trainingID,
	)
	if err != nil {
		return nil, fmt.Errorf("query training progress: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanTrainingProgress)
	if err != nil {
		return nil, fmt.Errorf("scan training progress: %w", err)
	}
	return out, nil
}

const courseProgressColumns = `learner_id, course_id, progress, is_completed, completed_at, enrolled_at, updated_at`

func (s *PostgresStore) GetCourseProgress(ctx context.Context, learnerID, courseID string) (CourseProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+courseProgressColumns+`
		 FROM course_progress
		 WHERE learner_id = $1 AND course_id = $2`,
		learnerID, courseID,
	)
	if err != nil {
		return CourseProgress{}, fmt.Errorf("query course progress: %w", err)
	}
	cp, err := pgx.CollectExactlyOneRow(rows, scanCourseProgress)
	if err != nil {
		return CourseProgress{}, notFound(err, "course progress")
	}
	return cp, nil
}

func (s *PostgresStore) UpsertCourseProgress(ctx context.Context, cp CourseProgress) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if cp.LearnerID == "" || cp.CourseID == "" {
		return fmt.Errorf("learner_id and course_id are required")
	}

	now := time.Now()
	enrolledAt := cp.EnrolledAt
	if enrolledAt.IsZero() {
		enrolledAt = now
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO course_progress (`+courseProgressColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (learner_id, course_id) DO UPDATE
		 SET progress = EXCLUDED.progress,
		     is_completed = EXCLUDED.is_completed,
		     completed_at = COALESCE(course_progress.completed_at, EXCLUDED.completed_at),
		     updated_at = EXCLUDED.updated_at`,
		cp.LearnerID, cp.CourseID, cp.Progress, cp.IsCompleted, cp.CompletedAt, enrolledAt, nowIfZero(cp.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert course progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) EnsureCourseProgress(ctx context.Context, cp CourseProgress) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if cp.LearnerID == "" || cp.CourseID == "" {
		return false, fmt.Errorf("learner_id and course_id are required")
	}

	cmd, err := s.pool.Exec(ctx,
		`INSERT INTO course_progress (`+courseProgressColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (learner_id, course_id) DO NOTHING`,
		cp.LearnerID, cp.CourseID, cp.Progress, cp.IsCompleted, cp.CompletedAt, nowIfZero(cp.EnrolledAt), nowIfZero(cp.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("ensure course progress: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListCourseProgress(ctx context.Context, courseID string) ([]CourseProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+courseProgressColumns+`
		 FROM course_progress
		 WHERE course_id = $1
		 ORDER BY learner_id`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query course progress: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanCourseProgress)
	if err != nil {
		return nil, fmt.Errorf("scan course progress: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SaveTrainingDefinition(ctx context.Context, def TrainingDefinition) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if def.ID == "" {
		return fmt.Errorf("training id is required")
	}
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal training definition: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO training_definitions (id, version, definition, updated_at)
		 VALUES ($1, $2, $3::jsonb, now())
		 ON CONFLICT (id) DO UPDATE
		 SET version = EXCLUDED.version,
		     definition = EXCLUDED.definition,
		     updated_at = EXCLUDED.updated_at
		 WHERE training_definitions.version <= EXCLUDED.version`,
		def.ID, def.Version, string(data),
	)
	if err != nil {
		return fmt.Errorf("save training definition: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTrainingDefinitions(ctx context.Context) ([]TrainingDefinition, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT definition FROM training_definitions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query training definitions: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TrainingDefinition, error) {
		var data []byte
		if err := row.Scan(&data); err != nil {
			return TrainingDefinition{}, err
		}
		var def TrainingDefinition
		if err := json.Unmarshal(data, &def); err != nil {
			return TrainingDefinition{}, fmt.Errorf("decode training definition: %w", err)
		}
		return def, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan training definitions: %w", err)
	}
	return out, nil
}

func scanTrainingProgress(row pgx.CollectableRow) (TrainingProgress, error) {
	var tp TrainingProgress
	err := row.Scan(
		&tp.LearnerID,
		&tp.TrainingID,
		&tp.VideoProgress,
		&tp.QuizCompleted,
		&tp.MiniUnitsCompleted,
		&tp.TotalMiniUnits,
		&tp.Progress,
		&tp.IsCompleted,
		&tp.CompletedAt,
		&tp.ContentVersion,
		&tp.UpdatedAt,
	)
	return tp, err
}

func scanCourseProgress(row pgx.CollectableRow) (CourseProgress, error) {
	var cp CourseProgress
	err := row.Scan(
		&cp.LearnerID,
		&cp.CourseID,
		&cp.Progress,
		&cp.IsCompleted,
		&cp.CompletedAt,
		&cp.EnrolledAt,
		&cp.UpdatedAt,
	)
	return cp, err
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

func nowIfZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

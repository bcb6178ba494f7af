package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-academy/internal/quiz"
)

const (
	defaultConcurrency  = 8
	defaultPassingScore = 70
)

// Catalog provides content definitions and applies trainer edits.
type Catalog interface {
	GetTraining(ctx context.Context, id string) (TrainingDefinition, error)
	GetCourse(ctx context.Context, id string) (CourseDefinition, error)
	GetQuiz(ctx context.Context, id string) (QuizDefinition, error)
	CoursesForTraining(ctx context.Context, trainingID string) ([]string, error)
	// EditTraining applies edit and bumps the training's Version.
	EditTraining(ctx context.Context, id string, edit func(*TrainingDefinition) error) (TrainingDefinition, error)
}

// Notice identifies the content change learners are notified about.
type Notice struct {
	TrainingID     string
	TrainingTitle  string
	ContentVersion int
}

// Dispatcher delivers change notices. It is best effort and reports no errors.
type Dispatcher interface {
	Dispatch(ctx context.Context, notice Notice, learnerIDs []string)
}

// NopDispatcher drops all notices.
type NopDispatcher struct{}

func (NopDispatcher) Dispatch(context.Context, Notice, []string) {}

// ServiceConfig holds dependencies for the progress service.
type ServiceConfig struct {
	Store       Store
	Catalog     Catalog
	Dispatcher  Dispatcher
	Locker      Locker
	Events      EventLogger
	Weights     *Weights
	Concurrency int              // cascade workers (default 8)
	Now         func() time.Time // clock for completion timestamps
}

// Service records learner signals and maintains derived progress.
type Service struct {
	store       Store
	catalog     Catalog
	dispatcher  Dispatcher
	locker      Locker
	events      EventLogger
	weights     Weights
	concurrency int
	now         func() time.Time
}

// NewService creates a progress service.
func NewService(cfg ServiceConfig) *Service {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = NopDispatcher{}
	}
	locker := cfg.Locker
	if locker == nil {
		locker = NewKeyedMutex()
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	weights := DefaultWeights
	if cfg.Weights != nil {
		weights = *cfg.Weights
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:       store,
		catalog:     cfg.Catalog,
		dispatcher:  dispatcher,
		locker:      locker,
		events:      events,
		weights:     weights,
		concurrency: concurrency,
		now:         now,
	}
}

// Store returns the underlying store.
func (s *Service) Store() Store {
	return s.store
}

// RecordWatch stores a playback tick for the training's video and refreshes
// the learner's training progress.
func (s *Service) RecordWatch(ctx context.Context, learnerID, trainingID string, watchedSeconds int, completed bool) (TrainingProgress, error) {
	def, found, err := s.training(ctx, trainingID)
	if err != nil {
		return TrainingProgress{}, err
	}
	lessonID := trainingID
	if found {
		lessonID = def.LessonID()
	}

	if err := s.store.UpsertWatchSignal(ctx, WatchSignal{
		LearnerID:      learnerID,
		LessonID:       lessonID,
		WatchedSeconds: max(watchedSeconds, 0),
		IsCompleted:    completed,
		UpdatedAt:      s.now(),
	}); err != nil {
		return TrainingProgress{}, fmt.Errorf("record watch: %w", err)
	}

	return s.RefreshTraining(ctx, learnerID, trainingID)
}

// RecordMiniUnit stores a mini-unit signal and refreshes the progress of the
// training that contains it. A mini-unit that is not part of a known training
// is rejected with ErrInvalidSignal.
func (s *Service) RecordMiniUnit(ctx context.Context, trainingID string, sig MiniUnitSignal) (TrainingProgress, error) {
	def, found, err := s.training(ctx, trainingID)
	if err != nil {
		return TrainingProgress{}, err
	}
	if found && !def.HasMiniUnit(sig.MiniUnitID) {
		return TrainingProgress{}, fmt.Errorf("mini-unit %s is not part of training %s: %w", sig.MiniUnitID, trainingID, ErrInvalidSignal)
	}

	sig.VideoProgress = min(max(sig.VideoProgress, 0), 100)
	if sig.UpdatedAt.IsZero() {
		sig.UpdatedAt = s.now()
	}
	if err := s.store.UpsertMiniUnitSignal(ctx, sig); err != nil {
		return TrainingProgress{}, fmt.Errorf("record mini-unit: %w", err)
	}
	return s.RefreshTraining(ctx, sig.LearnerID, trainingID)
}

// QuizView is the randomized quiz a learner sees for their next attempt.
type QuizView struct {
	QuizID    string
	Attempt   int
	Questions []quiz.RandomizedQuestion
}

// QuizForLearner builds the view for the learner's next attempt. Building it
// again before the attempt is submitted yields the same view.
func (s *Service) QuizForLearner(ctx context.Context, learnerID, quizID string) (QuizView, error) {
	def, err := s.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return QuizView{}, fmt.Errorf("get quiz %s: %w", quizID, err)
	}
	prior, err := s.store.CountQuizAttempts(ctx, learnerID, quizID)
	if err != nil {
		return QuizView{}, err
	}
	attempt := prior + 1
	return QuizView{
		QuizID:    quizID,
		Attempt:   attempt,
		Questions: quiz.Randomize(def.Questions, def.QuestionsToShow, learnerID, quizID, attempt),
	}, nil
}

// QuizSubmission is the outcome of a submitted attempt.
type QuizSubmission struct {
	Attempt  QuizAttemptRecord
	Result   quiz.Result
	Progress TrainingProgress
}

// SubmitQuiz grades answers against the view of the learner's current attempt,
// appends the attempt and refreshes the training's progress.
func (s *Service) SubmitQuiz(ctx context.Context, learnerID, trainingID string, answers map[string]string) (QuizSubmission, error) {
	def, found, err := s.training(ctx, trainingID)
	if err != nil {
		return QuizSubmission{}, err
	}
	if !found || !def.HasQuiz || def.QuizID == "" {
		return QuizSubmission{}, fmt.Errorf("training %s has no quiz: %w", trainingID, ErrNotFound)
	}

	quizDef, err := s.catalog.GetQuiz(ctx, def.QuizID)
	if err != nil {
		return QuizSubmission{}, fmt.Errorf("get quiz %s: %w", def.QuizID, err)
	}
	view, err := s.QuizForLearner(ctx, learnerID, def.QuizID)
	if err != nil {
		return QuizSubmission{}, err
	}

	passing := quizDef.PassingScore
	if passing <= 0 {
		passing = defaultPassingScore
	}
	result := quiz.Grade(view.Questions, answers)

	rec, err := s.store.AppendQuizAttempt(ctx, QuizAttemptRecord{
		LearnerID:   learnerID,
		QuizID:      def.QuizID,
		Score:       result.Percent,
		Passed:      result.Passed(passing),
		CompletedAt: s.now(),
	})
	if err != nil {
		return QuizSubmission{}, fmt.Errorf("record attempt: %w", err)
	}
	if rec.AttemptOrdinal != view.Attempt {
		slog.Warn("attempt ordinal moved during submission",
			"learner_id", learnerID,
			"quiz_id", def.QuizID,
			"graded_attempt", view.Attempt,
			"stored_attempt", rec.AttemptOrdinal,
		)
	}

	s.logEvent(ctx, Event{
		LearnerID:  learnerID,
		TrainingID: trainingID,
		EventType:  EventQuizSubmitted,
		Data: map[string]any{
			"quiz_id": def.QuizID,
			"attempt": rec.AttemptOrdinal,
			"score":   result.Percent,
			"passed":  rec.Passed,
		},
	})

	tp, err := s.RefreshTraining(ctx, learnerID, trainingID)
	if err != nil {
		return QuizSubmission{}, err
	}
	return QuizSubmission{Attempt: rec, Result: result, Progress: tp}, nil
}

// RefreshTraining recomputes a learner's training progress from the stored
// signals, persists it and rolls the change up into every containing course.
// An unknown training yields a zero record.
func (s *Service) RefreshTraining(ctx context.Context, learnerID, trainingID string) (TrainingProgress, error) {
	def, found, err := s.training(ctx, trainingID)
	if err != nil {
		return TrainingProgress{}, err
	}
	if !found {
		return TrainingProgress{LearnerID: learnerID, TrainingID: trainingID}, nil
	}

	var stored *TrainingProgress
	old, err := s.store.GetTrainingProgress(ctx, learnerID, trainingID)
	switch {
	case err == nil:
		stored = &old
	case !errors.Is(err, ErrNotFound):
		return TrainingProgress{}, err
	}

	tp, err := s.recompute(ctx, learnerID, def, stored)
	if err != nil {
		return TrainingProgress{}, err
	}
	s.rollUp(ctx, learnerID, trainingID)
	return tp, nil
}

// recompute derives a learner's progress against def and persists it when it
// differs from stored.
func (s *Service) recompute(ctx context.Context, learnerID string, def TrainingDefinition, stored *TrainingProgress) (TrainingProgress, error) {
	state, err := s.loadState(ctx, learnerID, def)
	if err != nil {
		return TrainingProgress{}, err
	}
	res := s.weights.Calculate(state, def)

	tp := TrainingProgress{
		LearnerID:          learnerID,
		TrainingID:         def.ID,
		VideoProgress:      res.VideoProgress,
		QuizCompleted:      state.QuizCompleted,
		MiniUnitsCompleted: min(state.MiniUnitsCompleted, res.TotalMiniUnits),
		TotalMiniUnits:     res.TotalMiniUnits,
		Progress:           res.Progress,
		IsCompleted:        res.IsCompleted,
		ContentVersion:     def.Version,
		UpdatedAt:          s.now(),
	}
	if stored != nil {
		tp.CompletedAt = stored.CompletedAt
	}
	if tp.IsCompleted && tp.CompletedAt == nil {
		now := s.now()
		tp.CompletedAt = &now
	}

	if stored != nil && sameTrainingProgress(*stored, tp) {
		return *stored, nil
	}
	if err := s.store.UpsertTrainingProgress(ctx, tp); err != nil {
		return TrainingProgress{}, fmt.Errorf("save training progress: %w", err)
	}

	wasCompleted := stored != nil && stored.IsCompleted
	if tp.IsCompleted != wasCompleted {
		eventType := EventTrainingCompleted
		if wasCompleted {
			eventType = EventTrainingRegressed
		}
		s.logEvent(ctx, Event{
			LearnerID:  learnerID,
			TrainingID: def.ID,
			EventType:  eventType,
			Data: map[string]any{
				"progress":        tp.Progress,
				"content_version": tp.ContentVersion,
			},
		})
	}
	return tp, nil
}

func (s *Service) loadState(ctx context.Context, learnerID string, def TrainingDefinition) (TrainingState, error) {
	var state TrainingState

	if def.HasVideo {
		sig, err := s.store.GetWatchSignal(ctx, learnerID, def.LessonID())
		switch {
		case err == nil:
			state.WatchedSeconds = sig.WatchedSeconds
			state.VideoCompleted = sig.IsCompleted
		case !errors.Is(err, ErrNotFound):
			return TrainingState{}, err
		}
	}

	if def.HasQuiz && def.QuizID != "" {
		passed, err := s.store.HasPassingAttempt(ctx, learnerID, def.QuizID)
		if err != nil {
			return TrainingState{}, err
		}
		state.QuizCompleted = passed
	}

	if len(def.MiniUnitIDs) > 0 {
		n, err := s.store.CountCompletedMiniUnits(ctx, learnerID, def.MiniUnitIDs)
		if err != nil {
			return TrainingState{}, err
		}
		state.MiniUnitsCompleted = n
	}

	return state, nil
}

// rollUp refreshes every course containing the training. Failures are logged;
// training progress is already persisted.
func (s *Service) rollUp(ctx context.Context, learnerID, trainingID string) {
	courseIDs, err := s.catalog.CoursesForTraining(ctx, trainingID)
	if err != nil {
		slog.Warn("failed to list courses for training",
			"training_id", trainingID,
			"error", err,
		)
		return
	}
	for _, courseID := range courseIDs {
		if _, err := s.UpdateCourseProgress(ctx, learnerID, courseID); err != nil {
			slog.Warn("failed to update course progress",
				"learner_id", learnerID,
				"course_id", courseID,
				"error", err,
			)
		}
	}
}

// training loads a definition, reporting absence as found=false.
func (s *Service) training(ctx context.Context, id string) (TrainingDefinition, bool, error) {
	def, err := s.catalog.GetTraining(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TrainingDefinition{}, false, nil
		}
		return TrainingDefinition{}, false, fmt.Errorf("get training %s: %w", id, err)
	}
	return def, true, nil
}

func sameTrainingProgress(a, b TrainingProgress) bool {
	return a.VideoProgress == b.VideoProgress &&
		a.QuizCompleted == b.QuizCompleted &&
		a.MiniUnitsCompleted == b.MiniUnitsCompleted &&
		a.TotalMiniUnits == b.TotalMiniUnits &&
		a.Progress == b.Progress &&
		a.IsCompleted == b.IsCompleted &&
		a.ContentVersion == b.ContentVersion &&
		(a.CompletedAt == nil) == (b.CompletedAt == nil)
}

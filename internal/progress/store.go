package progress

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Store persists learner signals and the progress records derived from them.
type Store interface {
	GetWatchSignal(ctx context.Context, learnerID, lessonID string) (WatchSignal, error)
	UpsertWatchSignal(ctx context.Context, sig WatchSignal) error
	GetMiniUnitSignal(ctx context.Context, learnerID, miniUnitID string) (MiniUnitSignal, error)
	UpsertMiniUnitSignal(ctx context.Context, sig MiniUnitSignal) error
	CountCompletedMiniUnits(ctx context.Context, learnerID string, miniUnitIDs []string) (int, error)

	AppendQuizAttempt(ctx context.Context, rec QuizAttemptRecord) (QuizAttemptRecord, error)
	CountQuizAttempts(ctx context.Context, learnerID, quizID string) (int, error)
	HasPassingAttempt(ctx context.Context, learnerID, quizID string) (bool, error)

	GetTrainingProgress(ctx context.Context, learnerID, trainingID string) (TrainingProgress, error)
	UpsertTrainingProgress(ctx context.Context, tp TrainingProgress) error
	ListTrainingProgress(ctx context.Context, trainingID string) ([]TrainingProgress, error)

	GetCourseProgress(ctx context.Context, learnerID, courseID string) (CourseProgress, error)
	UpsertCourseProgress(ctx context.Context, cp CourseProgress) error
	// EnsureCourseProgress inserts cp only when no record exists for the
	// learner and course. It never overwrites and reports whether it inserted.
	EnsureCourseProgress(ctx context.Context, cp CourseProgress) (bool, error)
	ListCourseProgress(ctx context.Context, courseID string) ([]CourseProgress, error)

	DefinitionStore
}

// DefinitionStore persists edited training definitions so that versions keep
// increasing across restarts.
type DefinitionStore interface {
	// SaveTrainingDefinition stores def unless a higher version is stored.
	SaveTrainingDefinition(ctx context.Context, def TrainingDefinition) error
	ListTrainingDefinitions(ctx context.Context) ([]TrainingDefinition, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	watch     map[string]WatchSignal
	miniUnits map[string]MiniUnitSignal
	attempts  map[string][]QuizAttemptRecord
	trainings map[string]TrainingProgress
	courses   map[string]CourseProgress
	defs      map[string]TrainingDefinition
	mu        sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		watch:     make(map[string]WatchSignal),
		miniUnits: make(map[string]MiniUnitSignal),
		attempts:  make(map[string][]QuizAttemptRecord),
		trainings: make(map[string]TrainingProgress),
		courses:   make(map[string]CourseProgress),
		defs:      make(map[string]TrainingDefinition),
	}
}

func (s *MemoryStore) GetWatchSignal(_ context.Context, learnerID, lessonID string) (WatchSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, ok := s.watch[key(learnerID, lessonID)]
	if !ok {
		return WatchSignal{}, fmt.Errorf("watch signal %s/%s: %w", learnerID, lessonID, ErrNotFound)
	}
	return sig, nil
}

func (s *MemoryStore) UpsertWatchSignal(_ context.Context, sig WatchSignal) error {
	if sig.LearnerID == "" || sig.LessonID == "" {
		return fmt.Errorf("learner_id and lesson_id are required")
	}
	if sig.UpdatedAt.IsZero() {
		sig.UpdatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.watch[key(sig.LearnerID, sig.LessonID)] = sig
	return nil
}

func (s *MemoryStore) GetMiniUnitSignal(_ context.Context, learnerID, miniUnitID string) (MiniUnitSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, ok := s.miniUnits[key(learnerID, miniUnitID)]
	if !ok {
		return MiniUnitSignal{}, fmt.Errorf("mini-unit signal %s/%s: %w", learnerID, miniUnitID, ErrNotFound)
	}
	return sig, nil
}

func (s *MemoryStore) UpsertMiniUnitSignal(_ context.Context, sig MiniUnitSignal) error {
	if sig.LearnerID == "" || sig.MiniUnitID == "" {
		return fmt.Errorf("learner_id and mini_unit_id are required")
	}
	if sig.UpdatedAt.IsZero() {
		sig.UpdatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.miniUnits[key(sig.LearnerID, sig.MiniUnitID)] = sig
	return nil
}

func (s *MemoryStore) CountCompletedMiniUnits(_ context.Context, learnerID string, miniUnitIDs []string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, id := range miniUnitIDs {
		if sig, ok := s.miniUnits[key(learnerID, id)]; ok && sig.IsCompleted {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) AppendQuizAttempt(_ context.Context, rec QuizAttemptRecord) (QuizAttemptRecord, error) {
	if rec.LearnerID == "" || rec.QuizID == "" {
		return QuizAttemptRecord{}, fmt.Errorf("learner_id and quiz_id are required")
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(rec.LearnerID, rec.QuizID)
	rec.AttemptOrdinal = len(s.attempts[k]) + 1
	s.attempts[k] = append(s.attempts[k], rec)
	return rec, nil
}

func (s *MemoryStore) CountQuizAttempts(_ context.Context, learnerID, quizID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.attempts[key(learnerID, quizID)]), nil
}

func (s *MemoryStore) HasPassingAttempt(_ context.Context, learnerID, quizID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.attempts[key(learnerID, quizID)] {
		if rec.Passed {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetTrainingProgress(_ context.Context, learnerID, trainingID string) (TrainingProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tp, ok := s.trainings[key(learnerID, trainingID)]
	if !ok {
		return TrainingProgress{}, fmt.Errorf("training progress %s/%s: %w", learnerID, trainingID, ErrNotFound)
	}
	return tp, nil
}

func (s *MemoryStore) UpsertTrainingProgress(_ context.Context, tp TrainingProgress) error {
	if tp.LearnerID == "" || tp.TrainingID == "" {
		return fmt.Errorf("learner_id and training_id are required")
	}
	if tp.UpdatedAt.IsZero() {
		tp.UpdatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(tp.LearnerID, tp.TrainingID)
	if prev, ok := s.trainings[k]; ok && prev.CompletedAt != nil {
		tp.CompletedAt = prev.CompletedAt
	}
	s.trainings[k] = tp
	return nil
}

func (s *MemoryStore) ListTrainingProgress(_ context.Context, trainingID string) ([]TrainingProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TrainingProgress
	for _, tp := range s.trainings {
		if tp.TrainingID == trainingID {
			out = append(out, tp)
		}
	}
	slices.SortFunc(out, func(a, b TrainingProgress) int { return strings.Compare(a.LearnerID, b.LearnerID) })
	return out, nil
}

func (s *MemoryStore) GetCourseProgress(_ context.Context, learnerID, courseID string) (CourseProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.courses[key(learnerID, courseID)]
	if !ok {
		return CourseProgress{}, fmt.Errorf("course progress %s/%s: %w", learnerID, courseID, ErrNotFound)
	}
	return cp, nil
}

func (s *MemoryStore) UpsertCourseProgress(_ context.Context, cp CourseProgress) error {
	if cp.LearnerID == "" || cp.CourseID == "" {
		return fmt.Errorf("learner_id and course_id are required")
	}
	now := time.Now()
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(cp.LearnerID, cp.CourseID)
	if prev, ok := s.courses[k]; ok {
		cp.EnrolledAt = prev.EnrolledAt
		if prev.CompletedAt != nil {
			cp.CompletedAt = prev.CompletedAt
		}
	}
	if cp.EnrolledAt.IsZero() {
		cp.EnrolledAt = now
	}
	s.courses[k] = cp
	return nil
}

func (s *MemoryStore) ListCourseProgress(_ context.Context, courseID string) ([]CourseProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []CourseProgress
	for _, cp := range s.courses {
		if cp.CourseID == courseID {
			out = append(out, cp)
		}
	}
	slices.SortFunc(out, func(a, b CourseProgress) int { return strings.Compare(a.LearnerID, b.LearnerID) })
	return out, nil
}

func (s *MemoryStore) EnsureCourseProgress(_ context.Context, cp CourseProgress) (bool, error) {
	if cp.LearnerID == "" || cp.CourseID == "" {
		return false, fmt.Errorf("learner_id and course_id are required")
	}
	now := time.Now()
	if cp.EnrolledAt.IsZero() {
		cp.EnrolledAt = now
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(cp.LearnerID, cp.CourseID)
	if _, ok := s.courses[k]; ok {
		return false, nil
	}
	s.courses[k] = cp
	return true, nil
}

func (s *MemoryStore) SaveTrainingDefinition(_ context.Context, def TrainingDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("training id is required")
	}
	def.MiniUnitIDs = slices.Clone(def.MiniUnitIDs)

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.defs[def.ID]; ok && prev.Version > def.Version {
		return nil
	}
	s.defs[def.ID] = def
	return nil
}

func (s *MemoryStore) ListTrainingDefinitions(_ context.Context) ([]TrainingDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TrainingDefinition, 0, len(s.defs))
	for _, def := range s.defs {
		def.MiniUnitIDs = slices.Clone(def.MiniUnitIDs)
		out = append(out, def)
	}
	slices.SortFunc(out, func(a, b TrainingDefinition) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func key(a, b string) string {
	return a + "\x00" + b
}

// Package catalog holds course, training and quiz definitions and applies
// trainer edits to them.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/p-n-ai/pai-academy/internal/progress"
)

// Catalog is an in-memory content catalog. It is safe for concurrent use.
// Trainer edits are written through to a DefinitionStore once one is
// attached with Restore.
type Catalog struct {
	mu        sync.RWMutex
	courses   map[string]progress.CourseDefinition
	trainings map[string]progress.TrainingDefinition
	quizzes   map[string]progress.QuizDefinition

	editMu sync.Mutex // serializes EditTraining
	defs   progress.DefinitionStore
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		courses:   make(map[string]progress.CourseDefinition),
		trainings: make(map[string]progress.TrainingDefinition),
		quizzes:   make(map[string]progress.QuizDefinition),
	}
}

// AddCourse inserts or replaces a course.
func (c *Catalog) AddCourse(course progress.CourseDefinition) {
	course.TrainingIDs = slices.Clone(course.TrainingIDs)
	c.mu.Lock()
	c.courses[course.ID] = course
	c.mu.Unlock()
}

// AddTraining inserts or replaces a training. Version starts at 1.
func (c *Catalog) AddTraining(def progress.TrainingDefinition) {
	def.MiniUnitIDs = slices.Clone(def.MiniUnitIDs)
	if def.Version <= 0 {
		def.Version = 1
	}
	c.mu.Lock()
	c.trainings[def.ID] = def
	c.mu.Unlock()
}

// AddQuiz inserts or replaces a quiz.
func (c *Catalog) AddQuiz(q progress.QuizDefinition) {
	q.Questions = slices.Clone(q.Questions)
	c.mu.Lock()
	c.quizzes[q.ID] = q
	c.mu.Unlock()
}

func (c *Catalog) GetTraining(_ context.Context, id string) (progress.TrainingDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.trainings[id]
	if !ok {
		return progress.TrainingDefinition{}, fmt.Errorf("training %s: %w", id, progress.ErrNotFound)
	}
	def.MiniUnitIDs = slices.Clone(def.MiniUnitIDs)
	return def, nil
}

func (c *Catalog) GetCourse(_ context.Context, id string) (progress.CourseDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	course, ok := c.courses[id]
	if !ok {
		return progress.CourseDefinition{}, fmt.Errorf("course %s: %w", id, progress.ErrNotFound)
	}
	course.TrainingIDs = slices.Clone(course.TrainingIDs)
	return course, nil
}

func (c *Catalog) GetQuiz(_ context.Context, id string) (progress.QuizDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quizzes[id]
	if !ok {
		return progress.QuizDefinition{}, fmt.Errorf("quiz %s: %w", id, progress.ErrNotFound)
	}
	return q, nil
}

// CoursesForTraining returns the sorted IDs of every course listing the training.
func (c *Catalog) CoursesForTraining(_ context.Context, trainingID string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ids []string
	for id, course := range c.courses {
		if slices.Contains(course.TrainingIDs, trainingID) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Restore attaches store and replaces loaded trainings with the edits
// persisted in it. A loaded definition whose version is higher than the
// stored one was bumped at the source and wins.
func (c *Catalog) Restore(ctx context.Context, store progress.DefinitionStore) error {
	stored, err := store.ListTrainingDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("list training definitions: %w", err)
	}

	c.editMu.Lock()
	defer c.editMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	restored := 0
	for _, def := range stored {
		cur, ok := c.trainings[def.ID]
		if !ok {
			slog.Warn("edited training no longer in catalog, ignoring", "training_id", def.ID)
			continue
		}
		if cur.Version > def.Version {
			continue
		}
		def.MiniUnitIDs = slices.Clone(def.MiniUnitIDs)
		c.trainings[def.ID] = def
		restored++
	}
	c.defs = store

	slog.Info("training edits restored", "stored", len(stored), "restored", restored)
	return nil
}

// EditTraining applies edit to a copy of the training and stores the result
// with its version bumped. A failed edit or a failed write to the attached
// DefinitionStore leaves the training unchanged.
func (c *Catalog) EditTraining(ctx context.Context, id string, edit func(*progress.TrainingDefinition) error) (progress.TrainingDefinition, error) {
	c.editMu.Lock()
	defer c.editMu.Unlock()

	c.mu.RLock()
	cur, ok := c.trainings[id]
	store := c.defs
	c.mu.RUnlock()
	if !ok {
		return progress.TrainingDefinition{}, fmt.Errorf("training %s: %w", id, progress.ErrNotFound)
	}

	next := cur
	next.MiniUnitIDs = slices.Clone(cur.MiniUnitIDs)
	if err := edit(&next); err != nil {
		return progress.TrainingDefinition{}, err
	}
	if next.ID != id {
		return progress.TrainingDefinition{}, fmt.Errorf("edit may not change training id %s: %w", id, progress.ErrInvalidEdit)
	}
	next.Version = cur.Version + 1
	next.MiniUnitIDs = slices.Clone(next.MiniUnitIDs)

	if store != nil {
		if err := store.SaveTrainingDefinition(ctx, next); err != nil {
			return progress.TrainingDefinition{}, fmt.Errorf("persist training %s: %w", id, err)
		}
	}

	c.mu.Lock()
	c.trainings[id] = next
	c.mu.Unlock()

	out := next
	out.MiniUnitIDs = slices.Clone(next.MiniUnitIDs)
	return out, nil
}

// Courses returns all courses sorted by ID.
func (c *Catalog) Courses() []progress.CourseDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]progress.CourseDefinition, 0, len(c.courses))
	for _, course := range c.courses {
		out = append(out, course)
	}
	slices.SortFunc(out, func(a, b progress.CourseDefinition) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Trainings returns all trainings sorted by ID.
func (c *Catalog) Trainings() []progress.TrainingDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]progress.TrainingDefinition, 0, len(c.trainings))
	for _, def := range c.trainings {
		out = append(out, def)
	}
	slices.SortFunc(out, func(a, b progress.TrainingDefinition) int { return strings.Compare(a.ID, b.ID) })
	return out
}

package progress

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// RecalculateTrainingProgressForAllUsers recomputes every stored progress
// record of a training against its current definition and returns the
// learners whose completion status changed. Runs for the same training are
// serialized.
func (s *Service) RecalculateTrainingProgressForAllUsers(ctx context.Context, trainingID string) ([]string, error) {
	unlock, err := s.locker.Lock(ctx, trainingLockKey(trainingID))
	if err != nil {
		return nil, fmt.Errorf("lock training %s: %w", trainingID, err)
	}
	defer unlock()

	return s.cascade(ctx, trainingID)
}

// EditTraining applies a structural edit to a training and cascades it to
// every tracked learner. The edit and the cascade hold the same lock.
func (s *Service) EditTraining(ctx context.Context, trainingID string, edit func(*TrainingDefinition) error) (TrainingDefinition, []string, error) {
	unlock, err := s.locker.Lock(ctx, trainingLockKey(trainingID))
	if err != nil {
		return TrainingDefinition{}, nil, fmt.Errorf("lock training %s: %w", trainingID, err)
	}
	defer unlock()

	def, err := s.catalog.EditTraining(ctx, trainingID, edit)
	if err != nil {
		return TrainingDefinition{}, nil, err
	}
	slog.Info("training edited",
		"training_id", trainingID,
		"version", def.Version,
		"mini_units", len(def.MiniUnitIDs),
	)

	affected, err := s.cascade(ctx, trainingID)
	if err != nil {
		return def, nil, err
	}
	return def, affected, nil
}

// AddMiniUnit appends a mini-unit to a training.
func (s *Service) AddMiniUnit(ctx context.Context, trainingID, miniUnitID string) (TrainingDefinition, []string, error) {
	return s.EditTraining(ctx, trainingID, func(def *TrainingDefinition) error {
		if miniUnitID == "" {
			return fmt.Errorf("mini-unit id is empty: %w", ErrInvalidEdit)
		}
		if def.HasMiniUnit(miniUnitID) {
			return fmt.Errorf("mini-unit %s already in training %s: %w", miniUnitID, trainingID, ErrInvalidEdit)
		}
		def.MiniUnitIDs = append(def.MiniUnitIDs, miniUnitID)
		return nil
	})
}

// RemoveMiniUnit removes a mini-unit from a training.
func (s *Service) RemoveMiniUnit(ctx context.Context, trainingID, miniUnitID string) (TrainingDefinition, []string, error) {
	return s.EditTraining(ctx, trainingID, func(def *TrainingDefinition) error {
		kept := def.MiniUnitIDs[:0:0]
		for _, id := range def.MiniUnitIDs {
			if id != miniUnitID {
				kept = append(kept, id)
			}
		}
		if len(kept) == len(def.MiniUnitIDs) {
			return fmt.Errorf("mini-unit %s in training %s: %w", miniUnitID, trainingID, ErrNotFound)
		}
		def.MiniUnitIDs = kept
		return nil
	})
}

// UpdateTraining replaces a training's structure. The ID and version are kept.
func (s *Service) UpdateTraining(ctx context.Context, def TrainingDefinition) (TrainingDefinition, []string, error) {
	return s.EditTraining(ctx, def.ID, func(cur *TrainingDefinition) error {
		id, version := cur.ID, cur.Version
		*cur = def
		cur.ID, cur.Version = id, version
		return nil
	})
}

// cascade runs with the training lock held.
func (s *Service) cascade(ctx context.Context, trainingID string) ([]string, error) {
	def, found, err := s.training(ctx, trainingID)
	if err != nil {
		return nil, err
	}
	if !found {
		return []string{}, nil
	}

	records, err := s.store.ListTrainingProgress(ctx, trainingID)
	if err != nil {
		return nil, fmt.Errorf("list progress for training %s: %w", trainingID, err)
	}

	var (
		mu        sync.Mutex
		affected  []string
		processed []string
	)

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, rec := range records {
		g.Go(func() error {
			updated, err := s.recompute(ctx, rec.LearnerID, def, &rec)
			if err != nil {
				slog.Error("failed to recalculate training progress",
					"learner_id", rec.LearnerID,
					"training_id", trainingID,
					"error", err,
				)
				return nil
			}

			mu.Lock()
			processed = append(processed, rec.LearnerID)
			if updated.IsCompleted != rec.IsCompleted {
				affected = append(affected, rec.LearnerID)
			}
			mu.Unlock()
			return nil
		})
	}
	// Workers log and skip failing learners, so an error here is unexpected.
	if err := g.Wait(); err != nil {
		slog.Error("training recalculation worker failed",
			"training_id", trainingID,
			"error", err,
		)
	}

	slices.Sort(affected)
	slices.Sort(processed)

	for _, learnerID := range processed {
		s.rollUp(ctx, learnerID, trainingID)
	}

	slog.Info("training progress recalculated",
		"training_id", trainingID,
		"version", def.Version,
		"records", len(records),
		"processed", len(processed),
		"affected", len(affected),
	)

	if len(affected) > 0 {
		s.dispatcher.Dispatch(ctx, Notice{
			TrainingID:     def.ID,
			TrainingTitle:  def.Title,
			ContentVersion: def.Version,
		}, affected)
	}

	if affected == nil {
		affected = []string{}
	}
	return affected, nil
}

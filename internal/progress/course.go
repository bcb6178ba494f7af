package progress

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// CourseSummary is the computed progress of a learner in a course.
type CourseSummary struct {
	LearnerID              string `json:"learner_id"`
	CourseID               string `json:"course_id"`
	Progress               int    `json:"progress"`
	IsCompleted            bool   `json:"is_completed"`
	CompletedTrainingCount int    `json:"completed_training_count"`
	TotalTrainingCount     int    `json:"total_training_count"`
}

// AggregateCourse averages training progress. The course is complete only
// when every training is, and a course without trainings is never complete.
func AggregateCourse(trainings []TrainingProgress) (progress int, completed bool, completedCount int) {
	if len(trainings) == 0 {
		return 0, false, 0
	}

	var sum float64
	for _, tp := range trainings {
		sum += float64(min(max(tp.Progress, 0), 100))
		if tp.IsCompleted {
			completedCount++
		}
	}

	completed = completedCount == len(trainings)
	progress = int(math.Round(sum / float64(len(trainings))))
	progress = min(max(progress, 0), 100)
	if !completed && progress == 100 {
		progress = 99
	}
	if completed {
		progress = 100
	}
	return progress, completed, completedCount
}

// CalculateCourseProgress computes a learner's course progress over the
// course's published trainings without persisting the result. A learner seen
// for the first time is enrolled with a zero record. An unknown course yields
// a zero summary.
func (s *Service) CalculateCourseProgress(ctx context.Context, learnerID, courseID string) (CourseSummary, error) {
	summary := CourseSummary{LearnerID: learnerID, CourseID: courseID}

	course, err := s.catalog.GetCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return summary, nil
		}
		return summary, fmt.Errorf("get course %s: %w", courseID, err)
	}

	if err := s.ensureEnrollment(ctx, learnerID, courseID); err != nil {
		return summary, err
	}

	var trainings []TrainingProgress
	for _, trainingID := range course.TrainingIDs {
		def, found, err := s.training(ctx, trainingID)
		if err != nil {
			return summary, err
		}
		if !found || !def.Published {
			continue
		}

		tp, err := s.store.GetTrainingProgress(ctx, learnerID, trainingID)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				return summary, err
			}
			tp = TrainingProgress{LearnerID: learnerID, TrainingID: trainingID}
		}
		trainings = append(trainings, tp)
	}

	summary.Progress, summary.IsCompleted, summary.CompletedTrainingCount = AggregateCourse(trainings)
	summary.TotalTrainingCount = len(trainings)
	return summary, nil
}

// UpdateCourseProgress computes and persists a learner's course progress.
func (s *Service) UpdateCourseProgress(ctx context.Context, learnerID, courseID string) (CourseProgress, error) {
	_, cp, err := s.updateCourse(ctx, learnerID, courseID)
	return cp, err
}

// CourseProgressFor recomputes and persists a learner's course progress on
// read and returns the summary it was computed from.
func (s *Service) CourseProgressFor(ctx context.Context, learnerID, courseID string) (CourseSummary, error) {
	summary, _, err := s.updateCourse(ctx, learnerID, courseID)
	return summary, err
}

func (s *Service) updateCourse(ctx context.Context, learnerID, courseID string) (CourseSummary, CourseProgress, error) {
	summary, err := s.CalculateCourseProgress(ctx, learnerID, courseID)
	if err != nil {
		return summary, CourseProgress{}, err
	}

	cp, err := s.store.GetCourseProgress(ctx, learnerID, courseID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return summary, CourseProgress{}, err
		}
		// Unknown course: nothing was enrolled, nothing to persist.
		return summary, CourseProgress{LearnerID: learnerID, CourseID: courseID}, nil
	}

	cp.Progress = summary.Progress
	cp.IsCompleted = summary.IsCompleted
	cp.UpdatedAt = s.now()
	if cp.IsCompleted && cp.CompletedAt == nil {
		now := s.now()
		cp.CompletedAt = &now
	}
	if err := s.store.UpsertCourseProgress(ctx, cp); err != nil {
		return summary, CourseProgress{}, fmt.Errorf("save course progress: %w", err)
	}
	return summary, cp, nil
}

// ensureEnrollment creates a zero record for a learner new to the course.
// It never touches an existing record, so a concurrent roll-up is kept.
func (s *Service) ensureEnrollment(ctx context.Context, learnerID, courseID string) error {
	now := s.now()
	if _, err := s.store.EnsureCourseProgress(ctx, CourseProgress{
		LearnerID:  learnerID,
		CourseID:   courseID,
		EnrolledAt: now,
		UpdatedAt:  now,
	}); err != nil {
		return fmt.Errorf("enroll learner: %w", err)
	}
	return nil
}

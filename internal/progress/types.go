// Package progress derives training and course completion from learner
// signals and keeps the derived records in step with content edits.
package progress

import (
	"errors"
	"time"

	"github.com/p-n-ai/pai-academy/internal/quiz"
)

var (
	// ErrNotFound is returned by stores and catalogs for absent records.
	ErrNotFound = errors.New("not found")
	// ErrInvalidEdit is returned when a trainer edit cannot be applied.
	ErrInvalidEdit = errors.New("invalid edit")
	// ErrInvalidSignal is returned for a learner signal that does not fit the
	// training it is reported against.
	ErrInvalidSignal = errors.New("invalid signal")
)

// WatchSignal is a learner's playback state for one lesson video.
type WatchSignal struct {
	LearnerID      string    `json:"learner_id"`
	LessonID       string    `json:"lesson_id"`
	WatchedSeconds int       `json:"watched_seconds"`
	IsCompleted    bool      `json:"is_completed"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MiniUnitSignal is a learner's state for one mini-unit of a training.
type MiniUnitSignal struct {
	LearnerID     string    `json:"learner_id"`
	MiniUnitID    string    `json:"mini_unit_id"`
	VideoProgress int       `json:"video_progress"`
	QuizCompleted bool      `json:"quiz_completed"`
	IsCompleted   bool      `json:"is_completed"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// QuizAttemptRecord is one graded attempt. Records are append-only and the
// store assigns AttemptOrdinal.
type QuizAttemptRecord struct {
	LearnerID      string    `json:"learner_id"`
	QuizID         string    `json:"quiz_id"`
	AttemptOrdinal int       `json:"attempt_ordinal"`
	Score          float64   `json:"score"`
	Passed         bool      `json:"passed"`
	CompletedAt    time.Time `json:"completed_at"`
}

// TrainingProgress is the materialized progress of a learner in a training.
// CompletedAt records the first completion and is never cleared, while
// IsCompleted follows the current content and may flip back to false.
type TrainingProgress struct {
	LearnerID          string     `json:"learner_id"`
	TrainingID         string     `json:"training_id"`
	VideoProgress      int        `json:"video_progress"`
	QuizCompleted      bool       `json:"quiz_completed"`
	MiniUnitsCompleted int        `json:"mini_units_completed"`
	TotalMiniUnits     int        `json:"total_mini_units"`
	Progress           int        `json:"progress"`
	IsCompleted        bool       `json:"is_completed"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	ContentVersion     int        `json:"content_version"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// CourseProgress is the materialized progress of a learner in a course.
type CourseProgress struct {
	LearnerID   string     `json:"learner_id"`
	CourseID    string     `json:"course_id"`
	Progress    int        `json:"progress"`
	IsCompleted bool       `json:"is_completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	EnrolledAt  time.Time  `json:"enrolled_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TrainingDefinition is the structural definition of a training.
type TrainingDefinition struct {
	ID                  string   `yaml:"id" json:"id"`
	Title               string   `yaml:"title" json:"title"`
	Published           bool     `yaml:"published" json:"published"`
	HasVideo            bool     `yaml:"has_video" json:"has_video"`
	VideoLessonID       string   `yaml:"video_lesson_id" json:"video_lesson_id,omitempty"`
	VideoDuration       int      `yaml:"video_duration" json:"video_duration"`
	MinimumWatchSeconds int      `yaml:"minimum_watch_seconds" json:"minimum_watch_seconds"`
	HasQuiz             bool     `yaml:"has_quiz" json:"has_quiz"`
	QuizID              string   `yaml:"quiz_id" json:"quiz_id,omitempty"`
	MiniUnitIDs         []string `yaml:"mini_unit_ids" json:"mini_unit_ids"`
	Version             int      `yaml:"version" json:"version"`
}

// LessonID is the lesson whose watch signal drives the video component.
func (d TrainingDefinition) LessonID() string {
	if d.VideoLessonID != "" {
		return d.VideoLessonID
	}
	return d.ID
}

// RequiredWatchSeconds is the minimum watch threshold, falling back to the
// full video duration.
func (d TrainingDefinition) RequiredWatchSeconds() int {
	if d.MinimumWatchSeconds > 0 {
		return d.MinimumWatchSeconds
	}
	return d.VideoDuration
}

// HasMiniUnit reports whether id is one of the training's mini-units.
func (d TrainingDefinition) HasMiniUnit(id string) bool {
	for _, m := range d.MiniUnitIDs {
		if m == id {
			return true
		}
	}
	return false
}

// CourseDefinition is an ordered collection of trainings.
type CourseDefinition struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	TrainingIDs []string `yaml:"training_ids" json:"training_ids"`
}

// QuizDefinition is a question pool with its presentation settings.
// QuestionsToShow of 0 shows the whole pool.
type QuizDefinition struct {
	ID              string
	Title           string
	PassingScore    float64
	QuestionsToShow int
	Questions       []quiz.Question
}

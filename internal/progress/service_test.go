package progress_test

import (
	"errors"
	"testing"

	"github.com/p-n-ai/pai-academy/internal/progress"
	"github.com/p-n-ai/pai-academy/internal/quiz"
)

func TestService_RecordWatch(t *testing.T) {
	svc, _, _ := newFixture(t, nil)
	ctx := t.Context()

	tp, err := svc.RecordWatch(ctx, "alice", "video", 45, false)
	if err != nil {
		t.Fatalf("RecordWatch() error = %v", err)
	}
	if tp.Progress != 75 || tp.VideoProgress != 75 || tp.IsCompleted {
		t.Errorf("got %+v, want progress 75 not completed", tp)
	}

	// Playback may move backwards; the engine follows the latest signal.
	tp, err = svc.RecordWatch(ctx, "alice", "video", 30, false)
	if err != nil {
		t.Fatalf("RecordWatch() error = %v", err)
	}
	if tp.Progress != 50 {
		t.Errorf("Progress = %d, want 50", tp.Progress)
	}

	tp, err = svc.RecordWatch(ctx, "alice", "video", 60, true)
	if err != nil {
		t.Fatalf("RecordWatch() error = %v", err)
	}
	if tp.Progress != 100 || !tp.IsCompleted {
		t.Errorf("got %+v, want completed", tp)
	}
	if tp.CompletedAt == nil || !tp.CompletedAt.Equal(fixedNow) {
		t.Errorf("CompletedAt = %v, want %v", tp.CompletedAt, fixedNow)
	}
	if tp.ContentVersion != 1 {
		t.Errorf("ContentVersion = %d, want 1", tp.ContentVersion)
	}
}

func TestService_RecordWatch_UnknownTraining(t *testing.T) {
	svc, _, _ := newFixture(t, nil)

	tp, err := svc.RecordWatch(t.Context(), "alice", "missing", 45, false)
	if err != nil {
		t.Fatalf("RecordWatch() error = %v", err)
	}
	if tp.Progress != 0 || tp.IsCompleted {
		t.Errorf("got %+v, want zero record", tp)
	}
	if _, err := svc.Store().GetTrainingProgress(t.Context(), "alice", "missing"); !errors.Is(err, progress.ErrNotFound) {
		t.Errorf("GetTrainingProgress() error = %v, want ErrNotFound", err)
	}
}

func TestService_RecordMiniUnit(t *testing.T) {
	svc, _, _ := newFixture(t, nil)

	tp := completeMiniUnit(t, svc, "alice", "minis", "m1")
	if tp.Progress != 50 || tp.MiniUnitsCompleted != 1 || tp.TotalMiniUnits != 2 {
		t.Errorf("got %+v, want 1 of 2 at 50", tp)
	}

	tp = completeMiniUnit(t, svc, "alice", "minis", "m2")
	if tp.Progress != 100 || !tp.IsCompleted {
		t.Errorf("got %+v, want completed", tp)
	}
}

func TestService_RecordMiniUnit_ForeignMiniUnit(t *testing.T) {
	svc, _, _ := newFixture(t, nil)
	ctx := t.Context()

	sig := progress.MiniUnitSignal{LearnerID: "alice", MiniUnitID: "m3", IsCompleted: true}
	if _, err := svc.RecordMiniUnit(ctx, "minis", sig); !errors.Is(err, progress.ErrInvalidSignal) {
		t.Fatalf("RecordMiniUnit() error = %v, want ErrInvalidSignal", err)
	}
	if _, err := svc.Store().GetMiniUnitSignal(ctx, "alice", "m3"); !errors.Is(err, progress.ErrNotFound) {
		t.Errorf("rejected signal was stored: %v", err)
	}

	// m3 belongs to "full", so the same signal is accepted there.
	tp, err := svc.RecordMiniUnit(ctx, "full", sig)
	if err != nil {
		t.Fatalf("RecordMiniUnit(full) error = %v", err)
	}
	if tp.MiniUnitsCompleted != 1 {
		t.Errorf("MiniUnitsCompleted = %d, want 1", tp.MiniUnitsCompleted)
	}
}

func TestService_RecordMiniUnit_RollsUpCourse(t *testing.T) {
	svc, _, _ := newFixture(t, nil)
	completeMiniUnit(t, svc, "alice", "minis", "m1")

	cp, err := svc.Store().GetCourseProgress(t.Context(), "alice", "go")
	if err != nil {
		t.Fatalf("GetCourseProgress() error = %v", err)
	}
	// video 0, minis 50, quizzed 0; draft is unpublished.
	if cp.Progress != 17 {
		t.Errorf("course Progress = %d, want 17", cp.Progress)
	}
}

func TestService_QuizForLearner(t *testing.T) {
	svc, c, _ := newFixture(t, nil)
	ctx := t.Context()

	first, err := svc.QuizForLearner(ctx, "alice", "basics")
	if err != nil {
		t.Fatalf("QuizForLearner() error = %v", err)
	}
	if first.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", first.Attempt)
	}
	if len(first.Questions) != 2 {
		t.Fatalf("len(Questions) = %d, want 2", len(first.Questions))
	}

	again, err := svc.QuizForLearner(ctx, "alice", "basics")
	if err != nil {
		t.Fatalf("QuizForLearner() error = %v", err)
	}
	def, err := c.GetQuiz(ctx, "basics")
	if err != nil {
		t.Fatal(err)
	}
	want := quiz.Randomize(def.Questions, 0, "alice", "basics", 1)
	for i := range want {
		if again.Questions[i].ID != want[i].ID {
			t.Errorf("question %d = %s, want %s", i, again.Questions[i].ID, want[i].ID)
		}
	}

	if _, err := svc.QuizForLearner(ctx, "alice", "missing"); !errors.Is(err, progress.ErrNotFound) {
		t.Errorf("QuizForLearner(missing) error = %v, want ErrNotFound", err)
	}
}

func TestService_SubmitQuiz(t *testing.T) {
	svc, _, _ := newFixture(t, nil)
	ctx := t.Context()

	// A wrong attempt first.
	sub, err := svc.SubmitQuiz(ctx, "alice", "quizzed", map[string]string{"capital": "London"})
	if err != nil {
		t.Fatalf("SubmitQuiz() error = %v", err)
	}
	if sub.Attempt.AttemptOrdinal != 1 || sub.Attempt.Passed {
		t.Errorf("attempt = %+v, want ordinal 1 not passed", sub.Attempt)
	}
	if sub.Progress.Progress != 0 || sub.Progress.QuizCompleted {
		t.Errorf("progress = %+v, want 0", sub.Progress)
	}

	view, err := svc.QuizForLearner(ctx, "alice", "basics")
	if err != nil {
		t.Fatalf("QuizForLearner() error = %v", err)
	}
	if view.Attempt != 2 {
		t.Errorf("Attempt = %d, want 2", view.Attempt)
	}

	var parisID string
	for _, q := range view.Questions {
		if q.ID == "capital" {
			parisID = q.Options[q.CorrectIndex].ID
		}
	}
	if parisID != "capital-opt-1" {
		t.Fatalf("correct option id = %q, want capital-opt-1", parisID)
	}

	sub, err = svc.SubmitQuiz(ctx, "alice", "quizzed", map[string]string{"capital": parisID, "keyword": " FUNC "})
	if err != nil {
		t.Fatalf("SubmitQuiz() error = %v", err)
	}
	if sub.Attempt.AttemptOrdinal != 2 || !sub.Attempt.Passed {
		t.Errorf("attempt = %+v, want ordinal 2 passed", sub.Attempt)
	}
	if sub.Result.Correct != 2 || sub.Result.Percent != 100 {
		t.Errorf("result = %+v, want 2 correct", sub.Result)
	}
	if !sub.Progress.IsCompleted || sub.Progress.Progress != 100 {
		t.Errorf("progress = %+v, want completed", sub.Progress)
	}
}

func TestService_SubmitQuiz_TrainingWithoutQuiz(t *testing.T) {
	svc, _, _ := newFixture(t, nil)

	_, err := svc.SubmitQuiz(t.Context(), "alice", "video", map[string]string{})
	if !errors.Is(err, progress.ErrNotFound) {
		t.Errorf("SubmitQuiz() error = %v, want ErrNotFound", err)
	}
}

func TestService_RefreshTraining_SkipsUnchangedWrite(t *testing.T) {
	svc, _, _ := newFixture(t, nil)
	ctx := t.Context()

	first, err := svc.RecordWatch(ctx, "alice", "video", 30, false)
	if err != nil {
		t.Fatalf("RecordWatch() error = %v", err)
	}
	again, err := svc.RefreshTraining(ctx, "alice", "video")
	if err != nil {
		t.Fatalf("RefreshTraining() error = %v", err)
	}
	if again != first {
		t.Errorf("RefreshTraining() = %+v, want %+v", again, first)
	}
}

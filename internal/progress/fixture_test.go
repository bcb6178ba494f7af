package progress_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/progress"
	"github.com/p-n-ai/pai-academy/internal/quiz"
)

var fixedNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// newFixture builds a catalog with:
//
//	course "go"      -> video, minis, quizzed, draft (unpublished)
//	training video   -> 60s video only
//	training minis   -> mini-units m1, m2
//	training quizzed -> quiz "basics", passing 50
//	training full    -> video + quiz + m1..m3 (in no course)
func newFixture(t *testing.T, store progress.Store) (*progress.Service, *catalog.Catalog, *recordingDispatcher) {
	t.Helper()

	c := catalog.New()
	c.AddTraining(progress.TrainingDefinition{ID: "video", Title: "Video", Published: true, HasVideo: true, VideoDuration: 60})
	c.AddTraining(progress.TrainingDefinition{ID: "minis", Title: "Minis", Published: true, MiniUnitIDs: []string{"m1", "m2"}})
	c.AddTraining(progress.TrainingDefinition{ID: "quizzed", Title: "Quizzed", Published: true, HasQuiz: true, QuizID: "basics"})
	c.AddTraining(progress.TrainingDefinition{ID: "draft", Title: "Draft", Published: false, MiniUnitIDs: []string{"d1"}})
	c.AddTraining(progress.TrainingDefinition{
		ID: "full", Title: "Full", Published: true,
		HasVideo: true, VideoDuration: 120, MinimumWatchSeconds: 60,
		HasQuiz: true, QuizID: "basics",
		MiniUnitIDs: []string{"m1", "m2", "m3"},
	})
	c.AddCourse(progress.CourseDefinition{ID: "go", Title: "Go", TrainingIDs: []string{"video", "minis", "quizzed", "draft"}})

	c.AddQuiz(progress.QuizDefinition{
		ID:           "basics",
		PassingScore: 50,
		Questions: []quiz.Question{
			{
				ID: "capital", Kind: quiz.KindMultipleChoice, Text: "Capital of France?", Points: 1,
				Options: []quiz.Option{{Text: "London"}, {Text: "Paris"}, {Text: "Berlin"}, {Text: "Madrid"}},
				Correct: quiz.Answer{Index: 1, IsIndex: true},
			},
			{
				ID: "keyword", Kind: quiz.KindFreeForm, Text: "Keyword declaring a function?", Points: 1,
				Correct: quiz.Answer{Value: "func"},
			},
		},
	})

	if store == nil {
		store = progress.NewMemoryStore()
	}
	d := &recordingDispatcher{}
	svc := progress.NewService(progress.ServiceConfig{
		Store:       store,
		Catalog:     c,
		Dispatcher:  d,
		Concurrency: 4,
		Now:         func() time.Time { return fixedNow },
	})
	return svc, c, d
}

type dispatchCall struct {
	Notice   progress.Notice
	Learners []string
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
}

func (d *recordingDispatcher) Dispatch(_ context.Context, n progress.Notice, learnerIDs []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{Notice: n, Learners: append([]string(nil), learnerIDs...)})
}

func (d *recordingDispatcher) Calls() []dispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatchCall(nil), d.calls...)
}

func completeMiniUnit(t *testing.T, svc *progress.Service, learnerID, trainingID, miniUnitID string) progress.TrainingProgress {
	t.Helper()
	tp, err := svc.RecordMiniUnit(t.Context(), trainingID, progress.MiniUnitSignal{
		LearnerID:     learnerID,
		MiniUnitID:    miniUnitID,
		VideoProgress: 100,
		QuizCompleted: true,
		IsCompleted:   true,
	})
	if err != nil {
		t.Fatalf("RecordMiniUnit(%s, %s) error = %v", learnerID, miniUnitID, err)
	}
	return tp
}

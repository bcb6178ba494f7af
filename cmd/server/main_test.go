package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/notify"
	"github.com/p-n-ai/pai-academy/internal/platform/config"
	"github.com/p-n-ai/pai-academy/internal/progress"
	"github.com/p-n-ai/pai-academy/internal/quiz"
)

func newTestApp(t *testing.T) *app {
	t.Helper()

	cat := catalog.New()
	cat.AddTraining(progress.TrainingDefinition{ID: "minis", Title: "Minis", Published: true, MiniUnitIDs: []string{"m1", "m2"}})
	cat.AddTraining(progress.TrainingDefinition{ID: "video", Title: "Video", Published: true, HasVideo: true, VideoDuration: 60})
	cat.AddTraining(progress.TrainingDefinition{ID: "quizzed", Title: "Quizzed", Published: true, HasQuiz: true, QuizID: "basics"})
	cat.AddCourse(progress.CourseDefinition{ID: "go", Title: "Go", TrainingIDs: []string{"minis", "video"}})
	cat.AddQuiz(progress.QuizDefinition{
		ID: "basics",
		Questions: []quiz.Question{{
			ID: "capital", Kind: quiz.KindMultipleChoice, Text: "Capital of France?", Points: 1,
			Options: []quiz.Option{{Text: "London"}, {Text: "Paris"}, {Text: "Berlin"}, {Text: "Madrid"}},
			Correct: quiz.Answer{Index: 1, IsIndex: true},
		}},
	})

	sink := notify.NewMemorySink()
	dispatcher, err := notify.NewDispatcher(notify.Config{Sink: sink, Deduper: notify.NewMemoryDeduper()})
	if err != nil {
		t.Fatal(err)
	}

	return &app{
		svc: progress.NewService(progress.ServiceConfig{
			Catalog:    cat,
			Dispatcher: dispatcher,
		}),
		catalog:       cat,
		notifications: sink,
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestHealthEndpoints(t *testing.T) {
	mux := newMux(newTestApp(t))

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestReadyz_FailingCheck(t *testing.T) {
	a := newTestApp(t)
	a.checks = []readinessCheck{{name: "database", check: func(context.Context) error { return errors.New("down") }}}

	rec := do(t, newMux(a), http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestQuizFlow(t *testing.T) {
	mux := newMux(newTestApp(t))

	rec := do(t, mux, http.MethodGet, "/v1/learners/alice/quizzes/basics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "correct") {
		t.Errorf("quiz view leaks answers: %s", rec.Body.String())
	}
	view := decode[quizResponse](t, rec)
	if view.Attempt != 1 || len(view.Questions) != 1 || len(view.Questions[0].Options) != 4 {
		t.Fatalf("view = %+v", view)
	}

	rec = do(t, mux, http.MethodPost, "/v1/learners/alice/quizzes/basics/attempts",
		`{"training_id": "quizzed", "answers": {"capital": "capital-opt-1"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	sub := decode[submitResponse](t, rec)
	if !sub.Attempt.Passed || !sub.Progress.IsCompleted {
		t.Errorf("submission = %+v, want passed and completed", sub)
	}

	rec = do(t, mux, http.MethodGet, "/v1/learners/alice/quizzes/basics", "")
	if view := decode[quizResponse](t, rec); view.Attempt != 2 {
		t.Errorf("next Attempt = %d, want 2", view.Attempt)
	}
}

func TestSubmitQuiz_Errors(t *testing.T) {
	mux := newMux(newTestApp(t))

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"malformed body", "/v1/learners/alice/quizzes/basics/attempts", `{`, http.StatusBadRequest},
		{"missing training", "/v1/learners/alice/quizzes/basics/attempts", `{"answers": {}}`, http.StatusBadRequest},
		{"unknown training", "/v1/learners/alice/quizzes/basics/attempts", `{"training_id": "nope"}`, http.StatusNotFound},
		{"quiz mismatch", "/v1/learners/alice/quizzes/other/attempts", `{"training_id": "quizzed"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), `"error"`) {
				t.Errorf("body = %s, want error field", rec.Body.String())
			}
		})
	}
}

func TestProgressAndEditFlow(t *testing.T) {
	a := newTestApp(t)
	mux := newMux(a)

	for _, id := range []string{"m1", "m2"} {
		rec := do(t, mux, http.MethodPost, "/v1/learners/alice/mini-units/"+id, `{"training_id": "minis", "is_completed": true}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("mini-unit %s status = %d, body %s", id, rec.Code, rec.Body.String())
		}
	}
	rec := do(t, mux, http.MethodPost, "/v1/learners/alice/mini-units/m9", `{"training_id": "minis", "is_completed": true}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("foreign mini-unit status = %d, want 400", rec.Code)
	}
	rec = do(t, mux, http.MethodPost, "/v1/learners/alice/trainings/video/watch", `{"watched_seconds": 30}`)
	if tp := decode[progress.TrainingProgress](t, rec); tp.Progress != 50 {
		t.Errorf("video Progress = %d, want 50", tp.Progress)
	}

	rec = do(t, mux, http.MethodGet, "/v1/learners/alice/courses/go/progress", "")
	summary := decode[progress.CourseSummary](t, rec)
	if summary.Progress != 75 || summary.IsCompleted || summary.CompletedTrainingCount != 1 {
		t.Errorf("summary = %+v, want 75 with one training done", summary)
	}

	rec = do(t, mux, http.MethodPost, "/v1/trainings/minis/mini-units", `{"mini_unit_id": "m3"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("add status = %d, body %s", rec.Code, rec.Body.String())
	}
	edit := decode[editResponse](t, rec)
	if edit.Training.Version != 2 || len(edit.Affected) != 1 || edit.Affected[0] != "alice" {
		t.Errorf("edit = %+v, want version 2 affecting alice", edit)
	}

	rec = do(t, mux, http.MethodPost, "/v1/trainings/minis/mini-units", `{"mini_unit_id": "m3"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate add status = %d, want 409", rec.Code)
	}

	rec = do(t, mux, http.MethodPost, "/v1/trainings/minis/recalculate", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"affected_learners":[]`) {
		t.Errorf("recalculate = %d %s, want no affected learners", rec.Code, rec.Body.String())
	}

	rec = do(t, mux, http.MethodGet, "/v1/learners/alice/notifications", "")
	var notes struct {
		Notifications []notify.Notification `json:"notifications"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&notes); err != nil {
		t.Fatal(err)
	}
	if len(notes.Notifications) != 1 || notes.Notifications[0].ContentVersion != 2 {
		t.Errorf("notifications = %+v, want one for version 2", notes.Notifications)
	}

	rec = do(t, mux, http.MethodDelete, "/v1/trainings/minis/mini-units/m3", "")
	if edit := decode[editResponse](t, rec); len(edit.Affected) != 1 {
		t.Errorf("remove affected = %v, want [alice]", edit.Affected)
	}

	rec = do(t, mux, http.MethodDelete, "/v1/trainings/minis/mini-units/m3", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second remove status = %d, want 404", rec.Code)
	}
}

func TestGetCourseProgress_PersistsRecompute(t *testing.T) {
	a := newTestApp(t)
	mux := newMux(a)
	ctx := t.Context()

	// A training record written without a course roll-up.
	if err := a.svc.Store().UpsertTrainingProgress(ctx, progress.TrainingProgress{
		LearnerID: "carol", TrainingID: "minis", Progress: 100, IsCompleted: true,
	}); err != nil {
		t.Fatalf("UpsertTrainingProgress() error = %v", err)
	}
	if _, err := a.svc.Store().GetCourseProgress(ctx, "carol", "go"); !errors.Is(err, progress.ErrNotFound) {
		t.Fatalf("GetCourseProgress() before read error = %v, want ErrNotFound", err)
	}

	rec := do(t, mux, http.MethodGet, "/v1/learners/carol/courses/go/progress", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	summary := decode[progress.CourseSummary](t, rec)

	stored, err := a.svc.Store().GetCourseProgress(ctx, "carol", "go")
	if err != nil {
		t.Fatalf("GetCourseProgress() error = %v", err)
	}
	if stored.Progress != summary.Progress || stored.Progress != 50 {
		t.Errorf("stored Progress = %d, summary %d, want 50", stored.Progress, summary.Progress)
	}
}

func TestUpdateTrainingAndCourseRecompute(t *testing.T) {
	a := newTestApp(t)
	mux := newMux(a)

	rec := do(t, mux, http.MethodPost, "/v1/learners/bob/courses/go/progress", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("recompute status = %d, body %s", rec.Code, rec.Body.String())
	}
	if cp := decode[progress.CourseProgress](t, rec); cp.LearnerID != "bob" || cp.Progress != 0 || cp.IsCompleted {
		t.Errorf("course progress = %+v, want empty enrollment for bob", cp)
	}

	for _, id := range []string{"m1", "m2"} {
		do(t, mux, http.MethodPost, "/v1/learners/bob/mini-units/"+id, `{"training_id": "minis", "is_completed": true}`)
	}

	body := `{"id": "ignored", "title": "Minis v2", "published": true, "mini_unit_ids": ["m1", "m2", "m3", "m4"], "version": 9}`
	rec = do(t, mux, http.MethodPut, "/v1/trainings/minis", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}
	edit := decode[editResponse](t, rec)
	if edit.Training.ID != "minis" || edit.Training.Version != 2 || edit.Training.Title != "Minis v2" {
		t.Errorf("training = %+v, want minis v2 at version 2", edit.Training)
	}
	if len(edit.Affected) != 1 || edit.Affected[0] != "bob" {
		t.Errorf("affected = %v, want [bob]", edit.Affected)
	}

	rec = do(t, mux, http.MethodPut, "/v1/trainings/nope", `{"title": "x"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown training status = %d, want 404", rec.Code)
	}
	rec = do(t, mux, http.MethodPut, "/v1/trainings/minis", `{`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", rec.Code)
	}
}

func TestCourseReport(t *testing.T) {
	a := newTestApp(t)
	mux := newMux(a)

	do(t, mux, http.MethodPost, "/v1/learners/alice/trainings/video/watch", `{"watched_seconds": 60}`)

	rec := do(t, mux, http.MethodGet, "/v1/courses/go/report.xlsx", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != xlsxMIME {
		t.Errorf("Content-Type = %q", ct)
	}

	f, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Progress")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1][0] != "alice" {
		t.Errorf("rows = %v, want header and alice", rows)
	}

	rec = do(t, mux, http.MethodGet, "/v1/courses/nope/report.xlsx", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing course status = %d, want 404", rec.Code)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		cfg       config.LogConfig
		wantDebug bool
	}{
		{config.LogConfig{Level: "debug", Format: "text"}, true},
		{config.LogConfig{Level: "info", Format: "json"}, false},
		{config.LogConfig{Level: "nonsense"}, false},
	}
	for _, tt := range tests {
		logger := newLogger(tt.cfg)
		if got := logger.Enabled(t.Context(), -4); got != tt.wantDebug {
			t.Errorf("newLogger(%+v) debug enabled = %v, want %v", tt.cfg, got, tt.wantDebug)
		}
	}
}

func TestSetup_MemoryMode(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Store:       config.StoreMemory,
		CatalogPath: dir,
		Cascade:     config.CascadeConfig{Concurrency: 2, LockTTL: 30},
		Notify:      config.NotifyConfig{BatchSize: 10, DedupeTTL: 1},
	}

	a, cleanup, err := setup(t.Context(), cfg)
	if err != nil {
		t.Fatalf("setup() error = %v", err)
	}
	defer cleanup()

	if a.svc == nil || a.catalog == nil || a.notifications == nil {
		t.Errorf("app not fully wired: %+v", a)
	}
	if len(a.checks) != 0 {
		t.Errorf("memory mode should have no readiness checks, got %d", len(a.checks))
	}
}

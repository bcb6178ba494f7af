package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/notify"
	"github.com/p-n-ai/pai-academy/internal/progress"
	"github.com/p-n-ai/pai-academy/internal/quiz"
	"github.com/p-n-ai/pai-academy/internal/report"
)

const (
	maxBodyBytes = 1 << 20
	xlsxMIME     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var errBadRequest = errors.New("bad request")

// app holds what the HTTP handlers need.
type app struct {
	svc           *progress.Service
	catalog       *catalog.Catalog
	notifications notify.Sink
	checks        []readinessCheck
}

type readinessCheck struct {
	name  string
	check func(context.Context) error
}

// newMux creates the HTTP router.
func newMux(a *app) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)

	mux.HandleFunc("GET /v1/learners/{learnerID}/quizzes/{quizID}", a.handleGetQuiz)
	mux.HandleFunc("POST /v1/learners/{learnerID}/quizzes/{quizID}/attempts", a.handleSubmitQuiz)
	mux.HandleFunc("POST /v1/learners/{learnerID}/trainings/{trainingID}/watch", a.handleWatch)
	mux.HandleFunc("POST /v1/learners/{learnerID}/mini-units/{miniUnitID}", a.handleMiniUnit)
	mux.HandleFunc("GET /v1/learners/{learnerID}/courses/{courseID}/progress", a.handleCourseProgress)
	mux.HandleFunc("POST /v1/learners/{learnerID}/courses/{courseID}/progress", a.handleUpdateCourseProgress)
	mux.HandleFunc("GET /v1/learners/{learnerID}/notifications", a.handleNotifications)

	mux.HandleFunc("PUT /v1/trainings/{trainingID}", a.handleUpdateTraining)
	mux.HandleFunc("POST /v1/trainings/{trainingID}/mini-units", a.handleAddMiniUnit)
	mux.HandleFunc("DELETE /v1/trainings/{trainingID}/mini-units/{miniUnitID}", a.handleRemoveMiniUnit)
	mux.HandleFunc("POST /v1/trainings/{trainingID}/recalculate", a.handleRecalculate)
	mux.HandleFunc("GET /v1/courses/{courseID}/report.xlsx", a.handleCourseReport)
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (a *app) handleReadyz(w http.ResponseWriter, r *http.Request) {
	for _, c := range a.checks {
		if err := c.check(r.Context()); err != nil {
			slog.Warn("readiness check failed", "check", c.name, "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

type quizResponse struct {
	QuizID    string                `json:"quiz_id"`
	Attempt   int                   `json:"attempt"`
	Questions []quiz.PublicQuestion `json:"questions"`
}

func (a *app) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.QuizForLearner(r.Context(), r.PathValue("learnerID"), r.PathValue("quizID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizResponse{
		QuizID:    view.QuizID,
		Attempt:   view.Attempt,
		Questions: quiz.Public(view.Questions),
	})
}

type submitRequest struct {
	TrainingID string            `json:"training_id"`
	Answers    map[string]string `json:"answers"`
}

type submitResponse struct {
	Attempt  progress.QuizAttemptRecord `json:"attempt"`
	Result   quiz.Result                `json:"result"`
	Progress progress.TrainingProgress  `json:"progress"`
}

func (a *app) handleSubmitQuiz(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.TrainingID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "training_id is required")
		return
	}

	def, err := a.catalog.GetTraining(r.Context(), req.TrainingID)
	if err != nil {
		writeError(w, err)
		return
	}
	if def.QuizID != r.PathValue("quizID") {
		writeErrorMessage(w, http.StatusBadRequest, "quiz does not belong to training")
		return
	}

	sub, err := a.svc.SubmitQuiz(r.Context(), r.PathValue("learnerID"), req.TrainingID, req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{Attempt: sub.Attempt, Result: sub.Result, Progress: sub.Progress})
}

type watchRequest struct {
	WatchedSeconds int  `json:"watched_seconds"`
	Completed      bool `json:"completed"`
}

func (a *app) handleWatch(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	tp, err := a.svc.RecordWatch(r.Context(), r.PathValue("learnerID"), r.PathValue("trainingID"), req.WatchedSeconds, req.Completed)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tp)
}

type miniUnitRequest struct {
	TrainingID    string `json:"training_id"`
	VideoProgress int    `json:"video_progress"`
	QuizCompleted bool   `json:"quiz_completed"`
	IsCompleted   bool   `json:"is_completed"`
}

func (a *app) handleMiniUnit(w http.ResponseWriter, r *http.Request) {
	var req miniUnitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.TrainingID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "training_id is required")
		return
	}

	tp, err := a.svc.RecordMiniUnit(r.Context(), req.TrainingID, progress.MiniUnitSignal{
		LearnerID:     r.PathValue("learnerID"),
		MiniUnitID:    r.PathValue("miniUnitID"),
		VideoProgress: req.VideoProgress,
		QuizCompleted: req.QuizCompleted,
		IsCompleted:   req.IsCompleted,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tp)
}

func (a *app) handleCourseProgress(w http.ResponseWriter, r *http.Request) {
	summary, err := a.svc.CourseProgressFor(r.Context(), r.PathValue("learnerID"), r.PathValue("courseID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *app) handleUpdateCourseProgress(w http.ResponseWriter, r *http.Request) {
	cp, err := a.svc.UpdateCourseProgress(r.Context(), r.PathValue("learnerID"), r.PathValue("courseID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

func (a *app) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeErrorMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := a.notifications.ForLearner(r.Context(), r.PathValue("learnerID"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

type editResponse struct {
	Training progress.TrainingDefinition `json:"training"`
	Affected []string                    `json:"affected_learners"`
}

func (a *app) handleUpdateTraining(w http.ResponseWriter, r *http.Request) {
	var def progress.TrainingDefinition
	if err := decodeJSON(w, r, &def); err != nil {
		writeError(w, err)
		return
	}
	def.ID = r.PathValue("trainingID")

	updated, affected, err := a.svc.UpdateTraining(r.Context(), def)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, editResponse{Training: updated, Affected: affected})
}

func (a *app) handleAddMiniUnit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MiniUnitID string `json:"mini_unit_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	def, affected, err := a.svc.AddMiniUnit(r.Context(), r.PathValue("trainingID"), req.MiniUnitID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, editResponse{Training: def, Affected: affected})
}

func (a *app) handleRemoveMiniUnit(w http.ResponseWriter, r *http.Request) {
	def, affected, err := a.svc.RemoveMiniUnit(r.Context(), r.PathValue("trainingID"), r.PathValue("miniUnitID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, editResponse{Training: def, Affected: affected})
}

func (a *app) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	affected, err := a.svc.RecalculateTrainingProgressForAllUsers(r.Context(), r.PathValue("trainingID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"affected_learners": affected})
}

func (a *app) handleCourseReport(w http.ResponseWriter, r *http.Request) {
	course, err := a.catalog.GetCourse(r.Context(), r.PathValue("courseID"))
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := report.BuildRows(r.Context(), a.svc.Store(), course)
	if err != nil {
		writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteCourseReport(&buf, course, rows); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", xlsxMIME)
	w.Header().Set("Content-Disposition", `attachment; filename="`+course.ID+`-progress.xlsx"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, progress.ErrInvalidSignal):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, progress.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, progress.ErrInvalidEdit):
		writeErrorMessage(w, http.StatusConflict, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

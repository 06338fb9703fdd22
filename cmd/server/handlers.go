package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geograpy/geograpy/internal/difficulty"
	"github.com/geograpy/geograpy/internal/exam"
	"github.com/geograpy/geograpy/internal/report"
	"github.com/geograpy/geograpy/internal/tracker"
)

const (
	maxBodyBytes = 1 << 20
	readyTimeout = 2 * time.Second
	xlsxType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type api struct {
	svc    *tracker.Service
	checks []readiness
}

// newMux creates the HTTP router with health checks and the progress API.
func newMux(svc *tracker.Service, checks ...readiness) *http.ServeMux {
	a := &api{svc: svc, checks: checks}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)
	mux.HandleFunc("GET /v1/difficulties", a.handleDifficulties)
	mux.HandleFunc("GET /v1/users/{id}/stats", a.handleStats)
	mux.HandleFunc("GET /v1/users/{id}/export.xlsx", a.handleExport)
	mux.HandleFunc("POST /v1/users/{id}/exams", a.handleRecordExam)
	mux.HandleFunc("PUT /v1/users/{id}/difficulty", a.handleSelectDifficulty)
	mux.HandleFunc("DELETE /v1/users/{id}/difficulty", a.handleResetDifficulty)
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (a *api) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	for _, c := range a.checks {
		if err := c.check(ctx); err != nil {
			slog.Warn("readiness check failed", "dependency", c.name, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":     "not ready",
				"dependency": c.name,
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (a *api) handleDifficulties(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"default":      difficulty.DefaultKey,
		"difficulties": a.svc.Difficulties(),
	})
}

type statsResponse struct {
	tracker.Stats
	Summary []report.Line `json:"summary"`
}

func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	st := a.svc.Stats(r.PathValue("id"))
	writeJSON(w, http.StatusOK, statsResponse{Stats: st, Summary: report.Summary(st)})
}

func (a *api) handleExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var buf bytes.Buffer
	if err := report.WriteWorkbook(&buf, a.svc.Stats(id)); err != nil {
		slog.Error("failed to build workbook", "user_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", xlsxType)
	w.Header().Set("Content-Disposition", `attachment; filename="progress.xlsx"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (a *api) handleRecordExam(w http.ResponseWriter, r *http.Request) {
	var res tracker.ExamResult
	if !decodeBody(w, r, &res) {
		return
	}

	out, err := a.svc.RecordExam(r.PathValue("id"), res)
	switch {
	case errors.Is(err, exam.ErrNoQuestions), errors.Is(err, exam.ErrInvalidResult):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, tracker.ErrLoadFailed):
		writeError(w, http.StatusServiceUnavailable, "progress store unavailable")
		return
	case err != nil:
		slog.Error("failed to record exam", "user_id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record exam")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type selectRequest struct {
	Difficulty string `json:"difficulty"`
}

func (a *api) handleSelectDifficulty(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	d, err := a.svc.SelectDifficulty(r.PathValue("id"), req.Difficulty)
	switch {
	case errors.Is(err, tracker.ErrDifficultyLocked):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      err.Error(),
			"difficulty": d.Key,
		})
		return
	case errors.Is(err, tracker.ErrLoadFailed):
		writeError(w, http.StatusServiceUnavailable, "progress store unavailable")
		return
	case err != nil:
		slog.Error("failed to select difficulty", "user_id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to select difficulty")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"difficulty": d.Key,
		"details":    d.Details(),
	})
}

func (a *api) handleResetDifficulty(w http.ResponseWriter, r *http.Request) {
	err := a.svc.ResetDifficulty(r.PathValue("id"))
	if errors.Is(err, tracker.ErrLoadFailed) {
		writeError(w, http.StatusServiceUnavailable, "progress store unavailable")
		return
	}
	if err != nil {
		slog.Error("failed to reset difficulty", "user_id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reset difficulty")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

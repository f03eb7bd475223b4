// Package server implements the ThoughtCaptcha backend wire contract
// for local development and testing.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/thoughtcaptcha/internal/model"
	"github.com/pavelanni/thoughtcaptcha/internal/qgen"
	"github.com/pavelanni/thoughtcaptcha/internal/store"
)

// Generator produces a follow-up question from submission content.
type Generator interface {
	GenerateQuestion(ctx context.Context, systemPrompt, content string) (string, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store       *store.Store
	gen         Generator
	teacherHash []byte
}

// New creates a Handler. gen may be nil, in which case the fallback
// question is served. A non-empty teacherPassword puts the teacher
// endpoints behind basic auth.
func New(s *store.Store, gen Generator, teacherPassword string) (*Handler, error) {
	h := &Handler{store: s, gen: gen}
	if teacherPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(teacherPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash teacher password: %w", err)
		}
		h.teacherHash = hash
	}
	return h, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/assignments/current", h.handleCurrentAssignment)
	r.Post("/submit-assignment", h.handleSubmitAssignment)
	r.Post("/generate-question", h.handleGenerateQuestion)
	r.Post("/verify-response", h.handleVerifyResponse)
	r.Get("/prompt", h.handleGetPrompt)
	r.Get("/assignments", h.handleListAssignments)

	r.Group(func(r chi.Router) {
		r.Use(h.requireTeacher)
		r.Get("/submissions", h.handleListSubmissions)
		r.Put("/prompt", h.handleUpdatePrompt)
		r.Post("/assignments", h.handleCreateAssignment)
		r.Put("/assignments/{id}/set-current", h.handleSetCurrentAssignment)
	})
}

func (h *Handler) handleCurrentAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.CurrentAssignment()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "No current assignment set.")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleSubmitAssignment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OriginalContent string `json:"original_content"`
		AssignmentID    *int64 `json:"assignment_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.OriginalContent) == "" {
		writeError(w, http.StatusBadRequest, "original_content is required")
		return
	}

	id, err := h.store.CreateSubmission(req.OriginalContent, req.AssignmentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	slog.Info("stored submission", "id", id, "assignment_id", req.AssignmentID)
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) handleGenerateQuestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubmissionID int64 `json:"submission_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.store.GetSubmission(req.SubmissionID)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	systemPrompt, err := h.store.GetSystemPrompt()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	question := qgen.FallbackQuestion
	if h.gen != nil {
		generated, err := h.gen.GenerateQuestion(r.Context(), systemPrompt, sub.OriginalContent)
		if err != nil {
			slog.Warn("question generation failed, serving fallback",
				"submission_id", sub.ID, "error", err)
		} else {
			question = generated
		}
	}

	if err := h.store.SetGeneratedQuestion(sub.ID, question); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"generated_question": question})
}

func (h *Handler) handleVerifyResponse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubmissionID    int64  `json:"submission_id"`
		StudentResponse string `json:"student_response"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.store.GetSubmission(req.SubmissionID); errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.store.SetStudentResponse(req.SubmissionID, req.StudentResponse); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	slog.Info("recorded verification response", "submission_id", req.SubmissionID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Verification response recorded."})
}

func (h *Handler) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.ListSubmissions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if subs == nil {
		subs = []model.Submission{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (h *Handler) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	text, err := h.store.GetSystemPrompt()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if text == "" {
		text = qgen.DefaultSystemPrompt
	}
	writeJSON(w, http.StatusOK, model.SystemPrompt{PromptText: text})
}

func (h *Handler) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	var req model.SystemPrompt
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.PromptText) == "" {
		writeError(w, http.StatusBadRequest, "prompt_text is required")
		return
	}
	if err := h.store.SetSystemPrompt(req.PromptText); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *Handler) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	as, err := h.store.ListAssignments()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if as == nil {
		as = []model.Assignment{}
	}
	writeJSON(w, http.StatusOK, as)
}

func (h *Handler) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PromptText string `json:"prompt_text"`
		IsCurrent  bool   `json:"is_current"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.PromptText) == "" {
		writeError(w, http.StatusBadRequest, "prompt_text is required")
		return
	}

	a, err := h.store.CreateAssignment(req.PromptText, req.IsCurrent)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) handleSetCurrentAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid assignment id")
		return
	}

	err = h.store.SetCurrentAssignment(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "assignment not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

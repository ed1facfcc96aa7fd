package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jakechorley/fairshare/pkg/core/balancer"
	"github.com/jakechorley/fairshare/pkg/core/ledger"
	"github.com/jakechorley/fairshare/pkg/core/model"
	"github.com/jakechorley/fairshare/pkg/core/schedule"
	"github.com/jakechorley/fairshare/pkg/core/services"
	"github.com/jakechorley/fairshare/pkg/db"
)

// Engine is the part of services.Engine the HTTP layer uses
type Engine interface {
	Catalog() *model.Catalog
	Schedule() *schedule.Schedule
	Workload() ledger.State
	Select(req balancer.Request) (balancer.Result, error)
	Assign(ctx context.Context, req balancer.Request) (services.Assignment, error)
	RecordAssignment(ctx context.Context, req services.RecordRequest) (model.WorkerID, error)
	ResetAll(ctx context.Context)
	Assignments(ctx context.Context, since time.Time) ([]db.AssignmentRow, error)
}

// Handler serves the allocation API
type Handler struct {
	engine   Engine
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler creates a handler backed by the engine
func NewHandler(engine Engine, logger *zap.Logger) *Handler {
	return &Handler{
		engine:   engine,
		validate: validator.New(),
		logger:   logger,
	}
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Select finds the least-loaded eligible worker without recording the assignment
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.engine.Select(req.toBalancer())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSelectionDTO(result))
}

// Assign selects a worker and records the assignment atomically.
// NotFound is a 200 response with a null candidate.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if !h.decode(w, r, &req) {
		return
	}

	assignment, err := h.engine.Assign(r.Context(), req.toBalancer())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAssignmentDTO(assignment))
}

// Record records an assignment decided elsewhere
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	if !h.decode(w, r, &req) {
		return
	}

	worker, err := h.engine.RecordAssignment(r.Context(), req.toService())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, RecordResponse{Worker: string(worker)})
}

// Reset zeroes the ledger
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.engine.ResetAll(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// GetSchedule returns the compiled segments of one resource type plus all gaps and issues
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "resourceType")
	rt, ok := h.engine.Catalog().ResourceType(name)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown resource type", errors.New(name))
		return
	}

	writeJSON(w, http.StatusOK, toScheduleDTO(h.engine.Schedule(), rt))
}

// GetWorkload returns the ledger contents
func (h *Handler) GetWorkload(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toWorkloadDTO(h.engine.Workload()))
}

// GetAssignments returns the assignment trail, optionally from ?since=<RFC3339> onwards
func (h *Handler) GetAssignments(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		var err error
		if since, err = time.Parse(time.RFC3339, raw); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid since parameter", err)
			return
		}
	}

	rows, err := h.engine.Assignments(r.Context(), since)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAssignmentRecordDTOs(rows))
}

// decode reads and validates a JSON body, writing a 400 on failure
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return false
	}
	return true
}

// writeEngineError maps engine errors to statuses: rejected-up-front inputs are 422
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, balancer.ErrUnknownResourceType):
		writeError(w, http.StatusUnprocessableEntity, "Unknown resource type", err)
	case errors.Is(err, services.ErrUnknownCapability):
		writeError(w, http.StatusUnprocessableEntity, "Unknown capability", err)
	default:
		h.logger.Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/clinicsync/admissions/pkg/common/logger"
	"github.com/clinicsync/admissions/pkg/common/models"
	"github.com/clinicsync/admissions/pkg/extraction"
	"github.com/clinicsync/admissions/pkg/reconcile"
	"github.com/clinicsync/admissions/pkg/runlog"
	"github.com/gorilla/mux"
)

type RunReader interface {
	Latest(ctx context.Context) (*runlog.Run, error)
	Recent(ctx context.Context, limit int) ([]runlog.Run, error)
}

// HTTPHandler exposes manual reconciliation triggers and run history.
// Authorization is left to the surrounding router.
type HTTPHandler struct {
	controller *Controller
	runs       RunReader
	maxBody    int64
}

func NewHTTPHandler(controller *Controller, runs RunReader, maxBody int64) *HTTPHandler {
	return &HTTPHandler{controller: controller, runs: runs, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/sync/previous-day", h.handlePreviousDay).Methods(http.MethodPost)
	router.HandleFunc("/sync/range", h.handleRange).Methods(http.MethodPost)
	router.HandleFunc("/sync/runs/latest", h.handleLatestRun).Methods(http.MethodGet)
	router.HandleFunc("/sync/runs", h.handleRuns).Methods(http.MethodGet)
}

type rangeRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type errorResponse struct {
	Error  string                       `json:"error"`
	Result *models.ReconciliationResult `json:"result,omitempty"`
}

func (h *HTTPHandler) handlePreviousDay(w http.ResponseWriter, r *http.Request) {
	result, err := h.controller.ReconcileForPreviousDay(r.Context())
	h.respond(w, result, err)
}

func (h *HTTPHandler) handleRange(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var req rangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.WithError(err).Warn("invalid reconciliation range payload")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	start, err := h.parseDate("start_date", req.StartDate)
	if err != nil {
		h.respond(w, nil, err)
		return
	}
	end, err := h.parseDate("end_date", req.EndDate)
	if err != nil {
		h.respond(w, nil, err)
		return
	}

	result, err := h.controller.ReconcileForDateRange(r.Context(), start, end)
	h.respond(w, result, err)
}

func (h *HTTPHandler) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Latest(r.Context())
	if err != nil {
		if errors.Is(err, runlog.ErrRunNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "no reconciliation run recorded"})
			return
		}
		logger.Log.WithError(err).Error("failed to fetch latest reconciliation run")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *HTTPHandler) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be between 1 and 500"})
			return
		}
		limit = parsed
	}

	runs, err := h.runs.Recent(r.Context(), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list reconciliation runs")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "count": len(runs)})
}

func (h *HTTPHandler) parseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ValidationError{reason: fmt.Errorf("%s is required", field)}
	}
	t, err := time.ParseInLocation(dateLayout, value, h.controller.Location())
	if err != nil {
		return time.Time{}, ValidationError{reason: fmt.Errorf("%s must be YYYY-MM-DD", field)}
	}
	return t, nil
}

func (h *HTTPHandler) respond(w http.ResponseWriter, result *models.ReconciliationResult, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, result)
		return
	}

	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Log.WithError(err).WithField("status", status).Error("reconciliation request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Result: result})
}

// StatusFor maps reconciliation failures onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidationError(err):
		return http.StatusBadRequest
	case extraction.IsConfigurationError(err):
		return http.StatusServiceUnavailable
	case extraction.IsConnectionError(err):
		return http.StatusBadGateway
	case reconcile.IsCommitError(err):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Warn("failed to encode response")
	}
}

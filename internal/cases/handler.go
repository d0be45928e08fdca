package cases

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/physio-quota-tracker/internal/pms"
	"github.com/wolfman30/physio-quota-tracker/internal/quota"
	"github.com/wolfman30/physio-quota-tracker/pkg/logging"
)

// Reader is the read side of the case store.
type Reader interface {
	List(ctx context.Context, clinicID string, filter Filter) ([]Case, error)
	Get(ctx context.Context, clinicID, caseID string) (*Case, error)
	Summary(ctx context.Context, clinicID string) (*Summary, error)
}

// Handler serves a clinic's cases.
type Handler struct {
	reader Reader
	logger *logging.Logger
}

// NewHandler creates a cases handler.
func NewHandler(reader Reader, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{reader: reader, logger: logger}
}

// RegisterRoutes mounts case endpoints.
// Expected to be mounted under /api/v1/clinics/{clinicID}
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/cases", h.ListCases)
	r.Get("/cases/summary", h.GetSummary)
	r.Get("/cases/{caseID}", h.GetCase)
}

// ListCasesResponse is the response for listing cases.
type ListCasesResponse struct {
	Cases []Case `json:"cases"`
	Count int    `json:"count"`
}

// ListCases handles GET /api/v1/clinics/{clinicID}/cases
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	if clinicID == "" {
		http.Error(w, `{"error": "clinic_id required"}`, http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	var filter Filter
	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	switch status := quota.Status(q.Get("status")); status {
	case "":
	case quota.StatusActive, quota.StatusWarning, quota.StatusCritical:
		filter.Status = status
	default:
		http.Error(w, `{"error": "invalid status"}`, http.StatusBadRequest)
		return
	}
	if raw := q.Get("pms_type"); raw != "" {
		t, err := pms.ParseType(raw)
		if err != nil {
			http.Error(w, `{"error": "unknown pms type"}`, http.StatusBadRequest)
			return
		}
		filter.PMSType = t
	}

	list, err := h.reader.List(r.Context(), clinicID, filter)
	if err != nil {
		h.logger.Error("failed to list cases", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "failed to list cases"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ListCasesResponse{Cases: list, Count: len(list)}, h.logger)
}

// GetCase handles GET /api/v1/clinics/{clinicID}/cases/{caseID}
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	caseID := chi.URLParam(r, "caseID")

	c, err := h.reader.Get(r.Context(), clinicID, caseID)
	if errors.Is(err, ErrCaseNotFound) {
		http.Error(w, `{"error": "case not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to get case", "clinic_id", clinicID, "case_id", caseID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, c, h.logger)
}

// GetSummary handles GET /api/v1/clinics/{clinicID}/cases/summary
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")

	sum, err := h.reader.Summary(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to summarize cases", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sum, h.logger)
}

func writeJSON(w http.ResponseWriter, status int, body any, logger *logging.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

package synclog

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/physio-quota-tracker/pkg/logging"
)

// Reader lists sync history.
type Reader interface {
	Recent(ctx context.Context, clinicID string, limit int) ([]Entry, error)
}

// Handler serves a clinic's sync history.
type Handler struct {
	reader Reader
	logger *logging.Logger
}

func NewHandler(reader Reader, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{reader: reader, logger: logger}
}

// RegisterRoutes mounts under /api/v1/clinics/{clinicID}.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sync-logs", h.ListRecent)
}

// ListRecent handles GET /api/v1/clinics/{clinicID}/sync-logs
func (h *Handler) ListRecent(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, `{"error": "invalid limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.reader.Recent(r.Context(), clinicID, limit)
	if err != nil {
		h.logger.Error("failed to list sync logs", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "failed to list sync logs"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"sync_logs": entries, "count": len(entries)}); err != nil {
		h.logger.Error("failed to encode sync logs", "error", err)
	}
}

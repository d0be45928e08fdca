package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/physio-quota-tracker/internal/pms"
	"github.com/wolfman30/physio-quota-tracker/internal/quota"
	"github.com/wolfman30/physio-quota-tracker/pkg/logging"
)

// SettingsStore is the persistence the handler needs.
type SettingsStore interface {
	Get(ctx context.Context, clinicID string) (*Settings, error)
	Set(ctx context.Context, settings *Settings) error
}

// Handler provides HTTP endpoints for clinic settings management.
type Handler struct {
	store  SettingsStore
	logger *logging.Logger
}

// NewHandler creates a new clinic settings HTTP handler.
func NewHandler(store SettingsStore, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// RegisterRoutes mounts settings endpoints.
// Expected to be mounted under /api/v1/clinics/{clinicID}
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)
}

type settingsResponse struct {
	Settings *Settings `json:"settings"`
	Warnings []string  `json:"warnings,omitempty"`
}

// GetSettings returns the settings for a clinic.
// GET /api/v1/clinics/{clinicID}/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	if clinicID == "" {
		http.Error(w, `{"error": "clinic_id required"}`, http.StatusBadRequest)
		return
	}

	settings, err := h.store.Get(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to get clinic settings", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, settingsResponse{Settings: settings, Warnings: settings.Warnings()}, h.logger)
}

// UpdateSettingsRequest is the request body for a partial settings update.
type UpdateSettingsRequest struct {
	Name           string        `json:"name,omitempty"`
	Timezone       string        `json:"timezone,omitempty"`
	WCTags         []string      `json:"wc_tags,omitempty"`
	EPCTags        []string      `json:"epc_tags,omitempty"`
	QuotaOverrides *quota.Quotas `json:"quota_overrides,omitempty"`
	PMSConnections []string      `json:"pms_connections,omitempty"`
	AutoSync       *bool         `json:"auto_sync,omitempty"`
}

// UpdateSettings applies a partial update to a clinic's settings.
// PUT /api/v1/clinics/{clinicID}/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	if clinicID == "" {
		http.Error(w, `{"error": "clinic_id required"}`, http.StatusBadRequest)
		return
	}

	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	settings, err := h.store.Get(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to get clinic settings", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	if req.Name != "" {
		settings.Name = req.Name
	}
	if req.Timezone != "" {
		settings.Timezone = req.Timezone
	}
	if req.WCTags != nil {
		settings.WCTags = req.WCTags
	}
	if req.EPCTags != nil {
		settings.EPCTags = req.EPCTags
	}
	if req.QuotaOverrides != nil {
		settings.QuotaOverrides = *req.QuotaOverrides
	}
	if req.PMSConnections != nil {
		conns := make([]pms.Type, 0, len(req.PMSConnections))
		for _, raw := range req.PMSConnections {
			t, err := pms.ParseType(raw)
			if err != nil {
				http.Error(w, `{"error": "unknown pms type"}`, http.StatusBadRequest)
				return
			}
			conns = append(conns, t)
		}
		settings.PMSConnections = conns
	}
	if req.AutoSync != nil {
		settings.AutoSync = *req.AutoSync
	}

	if err := h.store.Set(r.Context(), settings); err != nil {
		if errors.Is(err, ErrInvalidSettings) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()}, h.logger)
			return
		}
		h.logger.Error("failed to save clinic settings", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "failed to save settings"}`, http.StatusInternalServerError)
		return
	}

	warnings := settings.Warnings()
	if len(warnings) > 0 {
		h.logger.Warn("clinic settings saved with warnings", "clinic_id", clinicID, "warnings", warnings)
	} else {
		h.logger.Info("clinic settings updated", "clinic_id", clinicID)
	}
	writeJSON(w, http.StatusOK, settingsResponse{Settings: settings, Warnings: warnings}, h.logger)
}

func writeJSON(w http.ResponseWriter, status int, body any, logger *logging.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

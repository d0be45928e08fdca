package syncjobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/physio-quota-tracker/internal/pms"
	"github.com/wolfman30/physio-quota-tracker/internal/reconcile"
	"github.com/wolfman30/physio-quota-tracker/internal/synclog"
	"github.com/wolfman30/physio-quota-tracker/pkg/logging"
)

// Handler exposes the manual sync trigger.
type Handler struct {
	runner Runner
	jobs   Enqueuer
	logger *logging.Logger
}

// NewHandler creates a sync handler. jobs may be nil, in which case async
// requests are rejected.
func NewHandler(runner Runner, jobs Enqueuer, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{runner: runner, jobs: jobs, logger: logger}
}

// SyncRequest is the body of POST /sync.
type SyncRequest struct {
	PMSType string `json:"pms_type"`
	Async   bool   `json:"async"`
	// Trigger defaults to manual; onboarding flows pass "onboarding".
	Trigger string `json:"trigger,omitempty"`
}

// QueuedResponse is returned for an accepted async sync.
type QueuedResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// RegisterRoutes registers sync routes on a router already scoped to a clinic.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sync", h.TriggerSync)
}

// TriggerSync handles POST /api/v1/clinics/{clinicID}/sync.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	clinicID := strings.TrimSpace(chi.URLParam(r, "clinicID"))
	if clinicID == "" {
		http.Error(w, `{"error": "missing clinicID"}`, http.StatusBadRequest)
		return
	}

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid json"}`, http.StatusBadRequest)
		return
	}
	pmsType, err := pms.ParseType(req.PMSType)
	if err != nil {
		http.Error(w, `{"error": "unknown pms_type"}`, http.StatusBadRequest)
		return
	}
	trigger := synclog.ParseTrigger(req.Trigger)

	if req.Async {
		if h.jobs == nil {
			http.Error(w, `{"error": "async sync unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		queued, err := h.jobs.Enqueue(r.Context(), Request{
			ClinicID: clinicID,
			PMSType:  pmsType,
			Trigger:  trigger,
		})
		if err != nil {
			h.logger.Error("failed to enqueue sync", "clinic_id", clinicID, "error", err)
			http.Error(w, `{"error": "failed to enqueue sync"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusAccepted, QueuedResponse{RequestID: queued.ID, Status: "queued"})
		return
	}

	if h.runner == nil {
		http.Error(w, `{"error": "sync unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	// A started sync runs to completion even if the caller goes away.
	res, err := h.runner.RunTriggered(context.WithoutCancel(r.Context()), clinicID, pmsType, trigger)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, reconcile.ErrSyncInProgress):
		http.Error(w, `{"error": "sync already in progress"}`, http.StatusConflict)
	case errors.Is(err, pms.ErrUnknownPMS):
		http.Error(w, `{"error": "pms not configured"}`, http.StatusBadRequest)
	case res != nil:
		// The run started and failed; the result carries the sync id and error.
		writeJSON(w, http.StatusBadGateway, res)
	default:
		h.logger.Error("sync failed to start", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "sync failed"}`, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

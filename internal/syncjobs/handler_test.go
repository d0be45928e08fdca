package syncjobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/physio-quota-tracker/internal/pms"
	"github.com/wolfman30/physio-quota-tracker/internal/reconcile"
	"github.com/wolfman30/physio-quota-tracker/internal/synclog"
)

func newSyncRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1/clinics/{clinicID}", h.RegisterRoutes)
	return r
}

func postSync(t *testing.T, router http.Handler, clinicID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/clinics/"+clinicID+"/sync", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestTriggerSyncRunsInline(t *testing.T) {
	runner := newFakeRunner()
	router := newSyncRouter(NewHandler(runner, nil, nil))

	rec := postSync(t, router, "c1", `{"pms_type":"Cliniko"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res reconcile.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "sync-c1", res.SyncID)
	assert.Equal(t, pms.Cliniko, runner.calls[0].pmsType)
	assert.Equal(t, synclog.TriggerManual, runner.calls[0].trigger)
}

func TestTriggerSyncInlineSurvivesClientDisconnect(t *testing.T) {
	runner := newFakeRunner()
	router := newSyncRouter(NewHandler(runner, nil, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/clinics/c1/sync", strings.NewReader(`{"pms_type":"cliniko"}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, runner.calls, 1)
	assert.NoError(t, runner.calls[0].ctxErr)
}

func TestTriggerSyncAsync(t *testing.T) {
	jobs := &recordingEnqueuer{}
	router := newSyncRouter(NewHandler(newFakeRunner(), jobs, nil))

	rec := postSync(t, router, "c1", `{"pms_type":"nookal","async":true,"trigger":"onboarding"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp QueuedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, "queued", resp.Status)

	reqs := jobs.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, synclog.TriggerOnboarding, reqs[0].Trigger)
}

func TestTriggerSyncErrors(t *testing.T) {
	runner := newFakeRunner()
	runner.errs["busy"] = reconcile.ErrSyncInProgress
	runner.errs["down"] = errors.New("fetch failed")
	router := newSyncRouter(NewHandler(runner, nil, nil))

	tests := []struct {
		name     string
		clinicID string
		body     string
		want     int
	}{
		{"invalid json", "c1", `{`, http.StatusBadRequest},
		{"unknown pms", "c1", `{"pms_type":"acme"}`, http.StatusBadRequest},
		{"in progress", "busy", `{"pms_type":"cliniko"}`, http.StatusConflict},
		{"fatal sync", "down", `{"pms_type":"cliniko"}`, http.StatusBadGateway},
		{"async unavailable", "c1", `{"pms_type":"cliniko","async":true}`, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postSync(t, router, tt.clinicID, tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

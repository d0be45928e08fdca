package synclog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/physio-quota-tracker/internal/pms"
)

var fixedNow = time.Date(2025, 6, 2, 3, 4, 5, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := NewStore(db)
	store.now = func() time.Time { return fixedNow }
	return store, mock
}

func TestParseTrigger(t *testing.T) {
	assert.Equal(t, TriggerScheduled, ParseTrigger("scheduled"))
	assert.Equal(t, TriggerOnboarding, ParseTrigger("onboarding"))
	assert.Equal(t, TriggerManual, ParseTrigger(""))
	assert.Equal(t, TriggerManual, ParseTrigger("cron"))
}

func TestStore_Start(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO sync_logs").
		WithArgs(sqlmock.AnyArg(), "clinic-1", "cliniko", "scheduled", "running", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := store.Start(context.Background(), "clinic-1", pms.Cliniko, TriggerScheduled)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Complete(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("UPDATE sync_logs SET").
		WithArgs("log-1", "completed", 10, 2, 8, 40, 5, 3, 2025, sqlmock.AnyArg(), "", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Complete(context.Background(), "log-1", Counts{
		PatientsProcessed:  10,
		PatientsAdded:      2,
		PatientsUpdated:    8,
		AppointmentsSynced: 40,
		CasesCreated:       5,
		CasesUpdated:       3,
		ActiveYear:         2025,
		Issues:             []string{"patient p9: timeout", "patient p10: timeout"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FailOnlyOnce(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("UPDATE sync_logs SET").
		WithArgs("log-1", "failed", 0, 0, 0, 0, 0, 0, 0, sqlmock.AnyArg(), "pms: fetch failed", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE sync_logs SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Fail(context.Background(), "log-1", Counts{}, "pms: fetch failed"))
	err := store.Complete(context.Background(), "log-1", Counts{})
	assert.ErrorIs(t, err, ErrLogNotRunning)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func recentRows() *sqlmock.Rows {
	started := fixedNow.Add(-time.Minute)
	return sqlmock.NewRows([]string{
		"id", "clinic_id", "pms_type", "trigger", "status",
		"patients_processed", "patients_added", "patients_updated", "appointments_synced",
		"cases_created", "cases_updated", "active_year", "issues",
		"error_message", "started_at", "completed_at",
	}).
		AddRow("log-2", "clinic-1", "nookal", "manual", "running", 0, 0, 0, 0, 0, 0, 0, "{}", "", started, nil).
		AddRow("log-1", "clinic-1", "nookal", "scheduled", "completed", 10, 1, 9, 30, 4, 4, 2025, `{"patient p9: timeout","patient p10: timeout"}`, "", started, fixedNow)
}

func TestStore_Recent(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT (.+) FROM sync_logs").
		WithArgs("clinic-1", 20).
		WillReturnRows(recentRows())

	entries, err := store.Recent(context.Background(), "clinic-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, StatusRunning, entries[0].Status)
	assert.Nil(t, entries[0].CompletedAt)
	assert.Equal(t, StatusCompleted, entries[1].Status)
	assert.Equal(t, TriggerScheduled, entries[1].Trigger)
	assert.Equal(t, pms.Nookal, entries[1].PMSType)
	assert.Equal(t, []string{"patient p9: timeout", "patient p10: timeout"}, entries[1].Counts.Issues)
	require.NotNil(t, entries[1].CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_ListRecent(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery("SELECT (.+) FROM sync_logs").
		WithArgs("clinic-1", 5).
		WillReturnRows(recentRows())

	r := chi.NewRouter()
	r.Route("/api/v1/clinics/{clinicID}", NewHandler(store, nil).RegisterRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/clinics/clinic-1/sync-logs?limit=5", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body struct {
		SyncLogs []Entry `json:"sync_logs"`
		Count    int     `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/clinics/clinic-1/sync-logs?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

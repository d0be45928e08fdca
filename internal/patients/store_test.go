package patients

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/physio-quota-tracker/internal/pms"
	"github.com/wolfman30/physio-quota-tracker/internal/quota"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestStore_Save(t *testing.T) {
	mock := newMock(t)
	store := NewStoreWithDB(mock)

	date := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	pull := &pms.Pull{
		Patients: []pms.Patient{
			{PMSPatientID: "p1", FirstName: "Ada", LastName: "Lovelace"},
			{PMSPatientID: "p2", FirstName: " Alan ", LastName: "Turing"},
			{PMSPatientID: " "},
		},
		Appointments: []pms.Appointment{
			{PMSAppointmentID: "a1", PMSPatientID: "p1", AppointmentType: "WC", Status: "Completed", Date: &date},
			{PMSAppointmentID: "a2", PMSPatientID: "ghost", AppointmentType: "EPC", Status: "completed", Date: &date},
			{PMSAppointmentID: "", PMSPatientID: "p1"},
		},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO patients`).
		WithArgs(pgxmock.AnyArg(), "clinic-1", "cliniko", "p1", "Ada", "Lovelace", "", "", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "inserted"}).AddRow("pat-1", true))
	mock.ExpectQuery(`INSERT INTO patients`).
		WithArgs(pgxmock.AnyArg(), "clinic-1", "cliniko", "p2", "Alan", "Turing", "", "", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "inserted"}).AddRow("pat-2", false))
	mock.ExpectExec(`INSERT INTO appointments`).
		WithArgs(pgxmock.AnyArg(), "clinic-1", "cliniko", "p1", "a1", "WC", "Completed", pgxmock.AnyArg(), "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO appointments`).
		WithArgs(pgxmock.AnyArg(), "clinic-1", "cliniko", "ghost", "a2", "EPC", "completed", pgxmock.AnyArg(), "").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	res, err := store.Save(context.Background(), "clinic-1", pms.Cliniko, pull)
	require.NoError(t, err)
	assert.Equal(t, SaveResult{PatientsAdded: 1, PatientsUpdated: 1, AppointmentsSynced: 1, AppointmentsSkipped: 2}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveRollsBackOnError(t *testing.T) {
	mock := newMock(t)
	store := NewStoreWithDB(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO patients`).
		WithArgs(pgxmock.AnyArg(), "clinic-1", "nookal", "p1", "", "", "", "", pgxmock.AnyArg()).
		WillReturnError(errors.New("db down"))
	mock.ExpectRollback()

	_, err := store.Save(context.Background(), "clinic-1", pms.Nookal, &pms.Pull{
		Patients: []pms.Patient{{PMSPatientID: "p1"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "patients: upsert patient p1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveNilPull(t *testing.T) {
	mock := newMock(t)
	res, err := NewStoreWithDB(mock).Save(context.Background(), "clinic-1", pms.Halaxy, nil)
	require.NoError(t, err)
	assert.Equal(t, SaveResult{}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LatestCompletedAppointment(t *testing.T) {
	mock := newMock(t)
	store := NewStoreWithDB(mock)

	latest := time.Date(2024, 12, 30, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT MAX\(appointment_date\)`).
		WithArgs("clinic-1").
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(&latest))

	got, err := store.LatestCompletedAppointment(context.Background(), "clinic-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2024, got.Year())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListWithAppointments(t *testing.T) {
	mock := newMock(t)
	store := NewStoreWithDB(mock)

	d1 := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, pms_patient_id, first_name, last_name, email, phone, program_type, sessions_used, quota\s+FROM patients`).
		WithArgs("clinic-1", "cliniko").
		WillReturnRows(pgxmock.NewRows([]string{"id", "pms_patient_id", "first_name", "last_name", "email", "phone", "program_type", "sessions_used", "quota"}).
			AddRow("pat-1", "p1", "Ada", "Lovelace", "ada@example.com", "", "WC", 2, 8).
			AddRow("pat-2", "p2", "Alan", "Turing", "", "", "", 0, 0))
	mock.ExpectQuery(`SELECT id, patient_id, pms_appointment_id, appointment_type, status, appointment_date, practitioner_name\s+FROM appointments`).
		WithArgs("clinic-1", "cliniko").
		WillReturnRows(pgxmock.NewRows([]string{"id", "patient_id", "pms_appointment_id", "appointment_type", "status", "appointment_date", "practitioner_name"}).
			AddRow("ap-1", "pat-1", "a1", "WC", "completed", &d1, "Dr Smith").
			AddRow("ap-2", "pat-1", "a2", "WC", "booked", &d2, "Dr Smith").
			AddRow("ap-3", "pat-9", "a3", "EPC", "completed", &d2, ""))

	got, err := store.ListWithAppointments(context.Background(), "clinic-1", pms.Cliniko)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, quota.ProgramWC, got[0].Program)
	assert.Equal(t, "Ada Lovelace", got[0].Name())
	require.Len(t, got[0].Appointments, 2)
	assert.Equal(t, "a1", got[0].Appointments[0].PMSAppointmentID)
	assert.Empty(t, got[1].Appointments)

	appts := got[0].QuotaAppointments()
	require.Len(t, appts, 2)
	assert.Equal(t, "WC", appts[0].Type)
	assert.Equal(t, d1, *appts[0].Date)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListWithAppointmentsEmpty(t *testing.T) {
	mock := newMock(t)
	store := NewStoreWithDB(mock)

	mock.ExpectQuery(`FROM patients`).
		WithArgs("clinic-1", "halaxy").
		WillReturnRows(pgxmock.NewRows([]string{"id", "pms_patient_id", "first_name", "last_name", "email", "phone", "program_type", "sessions_used", "quota"}))

	got, err := store.ListWithAppointments(context.Background(), "clinic-1", pms.Halaxy)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateQuota(t *testing.T) {
	mock := newMock(t)
	store := NewStoreWithDB(mock)

	mock.ExpectExec(`UPDATE patients`).
		WithArgs("pat-1", "EPC", 3, 5).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE patients`).
		WithArgs("missing", "Private", 0, 0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.UpdateQuota(context.Background(), "pat-1", quota.ProgramEPC, 3, 5))
	err := store.UpdateQuota(context.Background(), "missing", quota.ProgramPrivate, 0, 0)
	assert.ErrorIs(t, err, ErrPatientNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

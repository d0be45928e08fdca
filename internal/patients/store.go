package patients

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/physio-quota-tracker/internal/pms"
	"github.com/wolfman30/physio-quota-tracker/internal/quota"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is the database surface the store needs; satisfied by *pgxpool.Pool and pgxmock.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store reads and writes patients and appointments in Postgres.
type Store struct {
	db DB
}

// NewStore creates a store backed by a pgx pool.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("patients: pgx pool required")
	}
	return &Store{db: pool}
}

// NewStoreWithDB allows injecting a mock database for testing.
func NewStoreWithDB(db DB) *Store {
	return &Store{db: db}
}

const upsertPatientSQL = `
	INSERT INTO patients (id, clinic_id, pms_type, pms_patient_id, first_name, last_name, email, phone, date_of_birth)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (clinic_id, pms_type, pms_patient_id) DO UPDATE SET
		first_name = EXCLUDED.first_name,
		last_name = EXCLUDED.last_name,
		email = EXCLUDED.email,
		phone = EXCLUDED.phone,
		date_of_birth = EXCLUDED.date_of_birth,
		updated_at = now()
	RETURNING id, (xmax = 0) AS inserted
`

const upsertAppointmentSQL = `
	INSERT INTO appointments (id, clinic_id, pms_type, patient_id, pms_appointment_id, appointment_type, status, appointment_date, practitioner_name)
	SELECT $1, $2, $3, p.id, $5, $6, $7, $8, $9
	FROM patients p
	WHERE p.clinic_id = $2 AND p.pms_type = $3 AND p.pms_patient_id = $4
	ON CONFLICT (clinic_id, pms_type, pms_appointment_id) DO UPDATE SET
		patient_id = EXCLUDED.patient_id,
		appointment_type = EXCLUDED.appointment_type,
		status = EXCLUDED.status,
		appointment_date = EXCLUDED.appointment_date,
		practitioner_name = EXCLUDED.practitioner_name,
		updated_at = now()
`

// Save writes a whole pull in one transaction: patients first, then their
// appointments. Appointments whose patient is unknown are skipped.
func (s *Store) Save(ctx context.Context, clinicID string, pmsType pms.Type, pull *pms.Pull) (SaveResult, error) {
	var res SaveResult
	if pull == nil {
		return res, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("patients: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range pull.Patients {
		if strings.TrimSpace(p.PMSPatientID) == "" {
			continue
		}
		_, inserted, err := upsertPatient(ctx, tx, clinicID, pmsType, p)
		if err != nil {
			return SaveResult{}, err
		}
		if inserted {
			res.PatientsAdded++
		} else {
			res.PatientsUpdated++
		}
	}

	for _, a := range pull.Appointments {
		if strings.TrimSpace(a.PMSAppointmentID) == "" || strings.TrimSpace(a.PMSPatientID) == "" {
			res.AppointmentsSkipped++
			continue
		}
		stored, err := upsertAppointment(ctx, tx, clinicID, pmsType, a)
		if err != nil {
			return SaveResult{}, err
		}
		if stored {
			res.AppointmentsSynced++
		} else {
			res.AppointmentsSkipped++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return SaveResult{}, fmt.Errorf("patients: commit: %w", err)
	}
	return res, nil
}

func upsertPatient(ctx context.Context, q querier, clinicID string, pmsType pms.Type, p pms.Patient) (string, bool, error) {
	var (
		id       string
		inserted bool
	)
	err := q.QueryRow(ctx, upsertPatientSQL,
		uuid.New().String(),
		clinicID,
		string(pmsType),
		p.PMSPatientID,
		strings.TrimSpace(p.FirstName),
		strings.TrimSpace(p.LastName),
		p.Email,
		p.Phone,
		p.DateOfBirth,
	).Scan(&id, &inserted)
	if err != nil {
		return "", false, fmt.Errorf("patients: upsert patient %s: %w", p.PMSPatientID, err)
	}
	return id, inserted, nil
}

func upsertAppointment(ctx context.Context, q querier, clinicID string, pmsType pms.Type, a pms.Appointment) (bool, error) {
	tag, err := q.Exec(ctx, upsertAppointmentSQL,
		uuid.New().String(),
		clinicID,
		string(pmsType),
		a.PMSPatientID,
		a.PMSAppointmentID,
		strings.TrimSpace(a.AppointmentType),
		strings.TrimSpace(a.Status),
		a.Date,
		a.PractitionerName,
	)
	if err != nil {
		return false, fmt.Errorf("patients: upsert appointment %s: %w", a.PMSAppointmentID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// LatestCompletedAppointment returns the date of the clinic's most recent
// completed appointment across all patients and PMS types, or nil.
func (s *Store) LatestCompletedAppointment(ctx context.Context, clinicID string) (*time.Time, error) {
	query := `
		SELECT MAX(appointment_date)
		FROM appointments
		WHERE clinic_id = $1
		  AND appointment_date IS NOT NULL
		  AND lower(status) IN ('completed', 'attended', 'finished')
	`
	var latest *time.Time
	if err := s.db.QueryRow(ctx, query, clinicID).Scan(&latest); err != nil {
		return nil, fmt.Errorf("patients: latest completed appointment: %w", err)
	}
	return latest, nil
}

// ListWithAppointments returns the clinic's patients for a PMS, each with its
// appointments ordered by date.
func (s *Store) ListWithAppointments(ctx context.Context, clinicID string, pmsType pms.Type) ([]Patient, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, pms_patient_id, first_name, last_name, email, phone, program_type, sessions_used, quota
		FROM patients
		WHERE clinic_id = $1 AND pms_type = $2
		ORDER BY last_name, first_name, id
	`, clinicID, string(pmsType))
	if err != nil {
		return nil, fmt.Errorf("patients: list patients: %w", err)
	}

	var out []Patient
	index := make(map[string]int)
	for rows.Next() {
		p := Patient{ClinicID: clinicID, PMSType: pmsType}
		var program string
		if err := rows.Scan(&p.ID, &p.PMSPatientID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &program, &p.SessionsUsed, &p.Quota); err != nil {
			rows.Close()
			return nil, fmt.Errorf("patients: scan patient: %w", err)
		}
		p.Program = quota.Program(program)
		index[p.ID] = len(out)
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("patients: list patients: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	apptRows, err := s.db.Query(ctx, `
		SELECT id, patient_id, pms_appointment_id, appointment_type, status, appointment_date, practitioner_name
		FROM appointments
		WHERE clinic_id = $1 AND pms_type = $2
		ORDER BY patient_id, appointment_date NULLS FIRST, id
	`, clinicID, string(pmsType))
	if err != nil {
		return nil, fmt.Errorf("patients: list appointments: %w", err)
	}
	defer apptRows.Close()

	for apptRows.Next() {
		var a Appointment
		if err := apptRows.Scan(&a.ID, &a.PatientID, &a.PMSAppointmentID, &a.Type, &a.Status, &a.Date, &a.PractitionerName); err != nil {
			return nil, fmt.Errorf("patients: scan appointment: %w", err)
		}
		i, ok := index[a.PatientID]
		if !ok {
			continue
		}
		out[i].Appointments = append(out[i].Appointments, a)
	}
	if err := apptRows.Err(); err != nil {
		return nil, fmt.Errorf("patients: list appointments: %w", err)
	}
	return out, nil
}

// UpdateQuota records a patient's evaluated program and session usage.
func (s *Store) UpdateQuota(ctx context.Context, patientID string, program quota.Program, sessionsUsed, total int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE patients
		SET program_type = $2, sessions_used = $3, quota = $4, updated_at = now()
		WHERE id = $1
	`, patientID, string(program), sessionsUsed, total)
	if err != nil {
		return fmt.Errorf("patients: update quota: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

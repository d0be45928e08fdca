package cases

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/physio-quota-tracker/internal/pms"
	"github.com/wolfman30/physio-quota-tracker/internal/quota"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

type db interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists cases in Postgres.
type Store struct {
	db db
}

// NewStore creates a case store backed by a pgx pool.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("cases: pgx pool required")
	}
	return &Store{db: pool}
}

// NewStoreWithDB allows injecting a mock database for testing.
func NewStoreWithDB(db db) *Store {
	return &Store{db: db}
}

// Upsert creates or refreshes the case for (clinic, patient, PMS) in a single
// statement and reports whether the row was created.
func (s *Store) Upsert(ctx context.Context, c *Case) (bool, error) {
	if c == nil {
		return false, fmt.Errorf("cases: case required")
	}
	query := `
		INSERT INTO cases (
			id, clinic_id, patient_id, pms_type, case_number, patient_name, program_type,
			sessions_used, quota, sessions_remaining, status, priority, alert_message,
			last_visit, next_visit, last_appointment_type, practitioner_name
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''), $14, $15, $16, $17)
		ON CONFLICT (clinic_id, patient_id, pms_type) DO UPDATE SET
			patient_name = EXCLUDED.patient_name,
			program_type = EXCLUDED.program_type,
			sessions_used = EXCLUDED.sessions_used,
			quota = EXCLUDED.quota,
			sessions_remaining = EXCLUDED.sessions_remaining,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			alert_message = EXCLUDED.alert_message,
			last_visit = EXCLUDED.last_visit,
			next_visit = EXCLUDED.next_visit,
			last_appointment_type = EXCLUDED.last_appointment_type,
			practitioner_name = EXCLUDED.practitioner_name,
			updated_at = now()
		RETURNING id, case_number, created_at, updated_at, (xmax = 0) AS inserted
	`
	var inserted bool
	err := s.db.QueryRow(ctx, query,
		uuid.New().String(),
		c.ClinicID,
		c.PatientID,
		string(c.PMSType),
		c.CaseNumber,
		c.PatientName,
		string(c.ProgramType),
		c.SessionsUsed,
		c.Quota,
		c.SessionsRemaining,
		string(c.Status),
		string(c.Priority),
		c.AlertMessage,
		c.LastVisit,
		c.NextVisit,
		c.LastAppointmentType,
		c.PractitionerName,
	).Scan(&c.ID, &c.CaseNumber, &c.CreatedAt, &c.UpdatedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("cases: upsert case for patient %s: %w", c.PatientID, err)
	}
	return inserted, nil
}

const selectColumns = `
	id, clinic_id, patient_id, pms_type, case_number, patient_name, program_type,
	sessions_used, quota, sessions_remaining, status, priority, COALESCE(alert_message, ''),
	last_visit, next_visit, last_appointment_type, practitioner_name, created_at, updated_at
`

type scanner interface {
	Scan(dest ...any) error
}

func scanCase(row scanner) (*Case, error) {
	var c Case
	var pmsType, program, status, prio string
	if err := row.Scan(
		&c.ID,
		&c.ClinicID,
		&c.PatientID,
		&pmsType,
		&c.CaseNumber,
		&c.PatientName,
		&program,
		&c.SessionsUsed,
		&c.Quota,
		&c.SessionsRemaining,
		&status,
		&prio,
		&c.AlertMessage,
		&c.LastVisit,
		&c.NextVisit,
		&c.LastAppointmentType,
		&c.PractitionerName,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.PMSType = pms.Type(pmsType)
	c.ProgramType = quota.Program(program)
	c.Status = quota.Status(status)
	c.Priority = quota.Priority(prio)
	return &c, nil
}

// List returns a clinic's cases, most urgent first.
func (s *Store) List(ctx context.Context, clinicID string, filter Filter) ([]Case, error) {
	args := []any{clinicID}
	var where strings.Builder
	where.WriteString("clinic_id = $1")
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		fmt.Fprintf(&where, " AND status = $%d", len(args))
	}
	if filter.PMSType != "" {
		args = append(args, string(filter.PMSType))
		fmt.Fprintf(&where, " AND pms_type = $%d", len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	args = append(args, limit)

	query := `SELECT` + selectColumns + `FROM cases WHERE ` + where.String() + fmt.Sprintf(`
		ORDER BY CASE priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'normal' THEN 2 ELSE 3 END,
			sessions_remaining, patient_name
		LIMIT $%d`, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cases: list: %w", err)
	}
	defer rows.Close()

	out := make([]Case, 0)
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("cases: scan: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cases: list: %w", err)
	}
	return out, nil
}

// Get fetches one case scoped to the clinic.
func (s *Store) Get(ctx context.Context, clinicID, caseID string) (*Case, error) {
	query := `SELECT` + selectColumns + `FROM cases WHERE id = $1 AND clinic_id = $2`
	c, err := scanCase(s.db.QueryRow(ctx, query, caseID, clinicID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("cases: get: %w", err)
	}
	return c, nil
}

// Summary counts a clinic's cases by status.
func (s *Store) Summary(ctx context.Context, clinicID string) (*Summary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT status, COUNT(*)
		FROM cases
		WHERE clinic_id = $1
		GROUP BY status
	`, clinicID)
	if err != nil {
		return nil, fmt.Errorf("cases: summary: %w", err)
	}
	defer rows.Close()

	sum := &Summary{ClinicID: clinicID}
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("cases: summary scan: %w", err)
		}
		n := int(count)
		sum.Total += n
		switch quota.Status(status) {
		case quota.StatusActive:
			sum.Active += n
		case quota.StatusWarning:
			sum.Warning += n
		case quota.StatusCritical:
			sum.Critical += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cases: summary: %w", err)
	}
	return sum, nil
}

// Package synclog records one audit row per sync attempt.
package synclog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/wolfman30/physio-quota-tracker/internal/pms"
)

// ErrLogNotRunning is returned when completing a log that is not running.
var ErrLogNotRunning = errors.New("synclog: log is not running")

// Status is the lifecycle state of a sync attempt.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Trigger names what started a sync.
type Trigger string

const (
	TriggerManual     Trigger = "manual"
	TriggerScheduled  Trigger = "scheduled"
	TriggerOnboarding Trigger = "onboarding"
)

// ParseTrigger returns the trigger for raw, defaulting to manual.
func ParseTrigger(raw string) Trigger {
	switch t := Trigger(raw); t {
	case TriggerScheduled, TriggerOnboarding:
		return t
	default:
		return TriggerManual
	}
}

// Counts are the totals written when a sync finishes.
type Counts struct {
	PatientsProcessed  int      `json:"patients_processed"`
	PatientsAdded      int      `json:"patients_added"`
	PatientsUpdated    int      `json:"patients_updated"`
	AppointmentsSynced int      `json:"appointments_synced"`
	CasesCreated       int      `json:"cases_created"`
	CasesUpdated       int      `json:"cases_updated"`
	ActiveYear         int      `json:"active_year,omitempty"`
	Issues             []string `json:"issues"`
}

// Entry is a stored sync attempt.
type Entry struct {
	ID           string     `json:"id"`
	ClinicID     string     `json:"clinic_id"`
	PMSType      pms.Type   `json:"pms_type"`
	Trigger      Trigger    `json:"trigger"`
	Status       Status     `json:"status"`
	Counts       Counts     `json:"counts"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Store writes sync logs through database/sql.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a sync log store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Start opens a running log row and returns its id.
func (s *Store) Start(ctx context.Context, clinicID string, pmsType pms.Type, trigger Trigger) (string, error) {
	id := uuid.New().String()
	query := `
		INSERT INTO sync_logs (id, clinic_id, pms_type, trigger, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.ExecContext(ctx, query, id, clinicID, string(pmsType), string(trigger), string(StatusRunning), s.now().UTC()); err != nil {
		return "", fmt.Errorf("synclog: start: %w", err)
	}
	return id, nil
}

// Complete closes a running log as completed.
func (s *Store) Complete(ctx context.Context, id string, counts Counts) error {
	return s.finish(ctx, id, StatusCompleted, counts, "")
}

// Fail closes a running log as failed with the error message.
func (s *Store) Fail(ctx context.Context, id string, counts Counts, message string) error {
	return s.finish(ctx, id, StatusFailed, counts, message)
}

func (s *Store) finish(ctx context.Context, id string, status Status, c Counts, message string) error {
	issues := c.Issues
	if issues == nil {
		issues = []string{}
	}
	query := `
		UPDATE sync_logs SET
			status = $2,
			patients_processed = $3,
			patients_added = $4,
			patients_updated = $5,
			appointments_synced = $6,
			cases_created = $7,
			cases_updated = $8,
			active_year = $9,
			issues = $10,
			error_message = NULLIF($11, ''),
			completed_at = $12
		WHERE id = $1 AND status = 'running'
	`
	res, err := s.db.ExecContext(ctx, query,
		id,
		string(status),
		c.PatientsProcessed,
		c.PatientsAdded,
		c.PatientsUpdated,
		c.AppointmentsSynced,
		c.CasesCreated,
		c.CasesUpdated,
		c.ActiveYear,
		pq.Array(issues),
		message,
		s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("synclog: finish %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("synclog: finish %s: %w", id, err)
	}
	if n == 0 {
		return ErrLogNotRunning
	}
	return nil
}

// Recent returns a clinic's latest sync attempts, newest first.
func (s *Store) Recent(ctx context.Context, clinicID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, clinic_id, pms_type, trigger, status,
			patients_processed, patients_added, patients_updated, appointments_synced,
			cases_created, cases_updated, active_year, issues,
			COALESCE(error_message, ''), started_at, completed_at
		FROM sync_logs
		WHERE clinic_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, clinicID, limit)
	if err != nil {
		return nil, fmt.Errorf("synclog: recent: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var (
			e                        Entry
			pmsType, trigger, status string
			completedAt              sql.NullTime
		)
		if err := rows.Scan(
			&e.ID, &e.ClinicID, &pmsType, &trigger, &status,
			&e.Counts.PatientsProcessed, &e.Counts.PatientsAdded, &e.Counts.PatientsUpdated, &e.Counts.AppointmentsSynced,
			&e.Counts.CasesCreated, &e.Counts.CasesUpdated, &e.Counts.ActiveYear, pq.Array(&e.Counts.Issues),
			&e.ErrorMessage, &e.StartedAt, &completedAt,
		); err != nil {
			return nil, fmt.Errorf("synclog: scan: %w", err)
		}
		e.PMSType = pms.Type(pmsType)
		e.Trigger = Trigger(trigger)
		e.Status = Status(status)
		if completedAt.Valid {
			t := completedAt.Time
			e.CompletedAt = &t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("synclog: recent: %w", err)
	}
	return out, nil
}

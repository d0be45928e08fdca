// Package reconcile runs a clinic's quota sync: it pulls patients and
// appointments from a PMS, re-evaluates every patient's funded sessions and
// refreshes their cases. Manual, scheduled and onboarding syncs all go
// through Service.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/physio-quota-tracker/internal/cases"
	"github.com/wolfman30/physio-quota-tracker/internal/clinic"
	"github.com/wolfman30/physio-quota-tracker/internal/observability/metrics"
	"github.com/wolfman30/physio-quota-tracker/internal/patients"
	"github.com/wolfman30/physio-quota-tracker/internal/pms"
	"github.com/wolfman30/physio-quota-tracker/internal/quota"
	"github.com/wolfman30/physio-quota-tracker/internal/synclog"
	"github.com/wolfman30/physio-quota-tracker/pkg/logging"
)

var tracer = otel.Tracer("physio.internal.reconcile")

const defaultLockTTL = 15 * time.Minute

// SettingsStore loads clinic settings.
type SettingsStore interface {
	Get(ctx context.Context, clinicID string) (*clinic.Settings, error)
}

// PatientStore persists pulls and patient quota fields.
type PatientStore interface {
	Save(ctx context.Context, clinicID string, pmsType pms.Type, pull *pms.Pull) (patients.SaveResult, error)
	LatestCompletedAppointment(ctx context.Context, clinicID string) (*time.Time, error)
	ListWithAppointments(ctx context.Context, clinicID string, pmsType pms.Type) ([]patients.Patient, error)
	UpdateQuota(ctx context.Context, patientID string, program quota.Program, sessionsUsed, total int) error
}

// CaseStore upserts cases.
type CaseStore interface {
	Upsert(ctx context.Context, c *cases.Case) (bool, error)
}

// SyncLog records sync attempts.
type SyncLog interface {
	Start(ctx context.Context, clinicID string, pmsType pms.Type, trigger synclog.Trigger) (string, error)
	Complete(ctx context.Context, id string, counts synclog.Counts) error
	Fail(ctx context.Context, id string, counts synclog.Counts, message string) error
}

// Archiver keeps a copy of the raw pull.
type Archiver interface {
	Put(ctx context.Context, clinicID string, pmsType pms.Type, syncID string, pull *pms.Pull) error
}

// Locker grants a clinic-wide lease so only one sync runs per clinic.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// Config wires a Service.
type Config struct {
	Sources  *pms.Registry
	Settings SettingsStore
	Patients PatientStore
	Cases    CaseStore
	SyncLog  SyncLog

	// Optional collaborators.
	Archive Archiver
	Locker  Locker
	Metrics *metrics.SyncMetrics
	Logger  *logging.Logger

	LockTTL  time.Duration
	Defaults quota.Quotas
	Now      func() time.Time
}

// Result summarizes one sync run.
type Result struct {
	SyncID             string          `json:"sync_id"`
	ClinicID           string          `json:"clinic_id"`
	PMSType            pms.Type        `json:"pms_type"`
	Trigger            synclog.Trigger `json:"trigger"`
	Success            bool            `json:"success"`
	PatientsProcessed  int             `json:"patients_processed"`
	PatientsAdded      int             `json:"patients_added"`
	PatientsUpdated    int             `json:"patients_updated"`
	AppointmentsSynced int             `json:"appointments_synced"`
	CasesCreated       int             `json:"cases_created"`
	CasesUpdated       int             `json:"cases_updated"`
	ActiveYear         int             `json:"active_year"`
	Issues             []string        `json:"issues"`
	Error              string          `json:"error,omitempty"`
}

func (r *Result) counts() synclog.Counts {
	return synclog.Counts{
		PatientsProcessed:  r.PatientsProcessed,
		PatientsAdded:      r.PatientsAdded,
		PatientsUpdated:    r.PatientsUpdated,
		AppointmentsSynced: r.AppointmentsSynced,
		CasesCreated:       r.CasesCreated,
		CasesUpdated:       r.CasesUpdated,
		ActiveYear:         r.ActiveYear,
		Issues:             r.Issues,
	}
}

// Service is the single entry point for quota syncs.
type Service struct {
	sources  *pms.Registry
	settings SettingsStore
	patients PatientStore
	cases    CaseStore
	syncLog  SyncLog
	archive  Archiver
	locker   Locker
	metrics  *metrics.SyncMetrics
	logger   *logging.Logger
	lockTTL  time.Duration
	defaults quota.Quotas
	now      func() time.Time
}

// New validates cfg and builds a Service.
func New(cfg Config) (*Service, error) {
	switch {
	case cfg.Sources == nil:
		return nil, errors.New("reconcile: pms registry required")
	case cfg.Settings == nil:
		return nil, errors.New("reconcile: settings store required")
	case cfg.Patients == nil:
		return nil, errors.New("reconcile: patient store required")
	case cfg.Cases == nil:
		return nil, errors.New("reconcile: case store required")
	case cfg.SyncLog == nil:
		return nil, errors.New("reconcile: sync log required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		sources:  cfg.Sources,
		settings: cfg.Settings,
		patients: cfg.Patients,
		cases:    cfg.Cases,
		syncLog:  cfg.SyncLog,
		archive:  cfg.Archive,
		locker:   cfg.Locker,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		lockTTL:  cfg.LockTTL,
		defaults: quota.DefaultQuotas().Merge(cfg.Defaults),
		now:      cfg.Now,
	}, nil
}

// LockKey is the lock held while a clinic syncs.
func LockKey(clinicID string) string {
	return "sync:lock:" + clinicID
}

// Run syncs a clinic from one PMS as a manual trigger.
func (s *Service) Run(ctx context.Context, clinicID string, pmsType pms.Type) (*Result, error) {
	return s.RunTriggered(ctx, clinicID, pmsType, synclog.TriggerManual)
}

// RunTriggered syncs a clinic from one PMS. Fetch and persist failures fail
// the whole run; failures for individual patients are collected in
// Result.Issues and the run still succeeds.
func (s *Service) RunTriggered(ctx context.Context, clinicID string, pmsType pms.Type, trigger synclog.Trigger) (*Result, error) {
	ctx, span := tracer.Start(ctx, "reconcile.run")
	defer span.End()

	clinicID = strings.TrimSpace(clinicID)
	if clinicID == "" {
		return nil, ErrClinicRequired
	}
	span.SetAttributes(
		attribute.String("physio.clinic_id", clinicID),
		attribute.String("physio.pms_type", string(pmsType)),
		attribute.String("physio.trigger", string(trigger)),
	)

	source, err := s.sources.Source(pmsType)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %s: %w", pmsType, err)
	}

	if s.locker != nil {
		key := LockKey(clinicID)
		token, ok, err := s.locker.Acquire(ctx, key, s.lockTTL)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("reconcile: acquire lock: %w", err)
		}
		if !ok {
			return nil, ErrSyncInProgress
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				s.logger.Warn("reconcile: release lock failed", "clinic_id", clinicID, "error", err)
			}
		}()
	}

	started := s.now()
	syncID, err := s.syncLog.Start(ctx, clinicID, pmsType, trigger)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("reconcile: open sync log: %w", err)
	}
	span.SetAttributes(attribute.String("physio.sync_id", syncID))

	res := &Result{
		SyncID:   syncID,
		ClinicID: clinicID,
		PMSType:  pmsType,
		Trigger:  trigger,
		Issues:   []string{},
	}
	logger := s.logger.ForClinic(clinicID, string(pmsType)).With("sync_id", syncID, "trigger", string(trigger))
	logger.Info("reconcile: sync started")

	if err := s.sync(ctx, source, res, logger); err != nil {
		res.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "sync failed")
		if logErr := s.syncLog.Fail(context.WithoutCancel(ctx), syncID, res.counts(), err.Error()); logErr != nil {
			logger.Error("reconcile: close sync log failed", "error", logErr)
		}
		s.metrics.ObserveSync(string(pmsType), string(synclog.StatusFailed), s.now().Sub(started).Seconds())
		logger.Error("reconcile: sync failed", "error", err)
		return res, err
	}

	res.Success = true
	if err := s.syncLog.Complete(context.WithoutCancel(ctx), syncID, res.counts()); err != nil {
		logger.Error("reconcile: close sync log failed", "error", err)
	}
	s.metrics.ObserveSync(string(pmsType), string(synclog.StatusCompleted), s.now().Sub(started).Seconds())
	logger.Info("reconcile: sync completed",
		"patients_processed", res.PatientsProcessed,
		"cases_created", res.CasesCreated,
		"cases_updated", res.CasesUpdated,
		"issues", len(res.Issues),
		"active_year", res.ActiveYear,
	)
	return res, nil
}

func (s *Service) sync(ctx context.Context, source pms.Source, res *Result, logger *logging.Logger) error {
	settings, err := s.settings.Get(ctx, res.ClinicID)
	if err != nil {
		return fmt.Errorf("reconcile: load settings: %w", err)
	}

	pull, err := s.fetch(ctx, source, res.ClinicID)
	if err != nil {
		return fmt.Errorf("reconcile: fetch from %s: %w", res.PMSType, err)
	}

	if s.archive != nil {
		if err := s.archive.Put(ctx, res.ClinicID, res.PMSType, res.SyncID, pull); err != nil {
			logger.Warn("reconcile: archive snapshot failed", "error", err)
		}
	}

	saved, err := s.patients.Save(ctx, res.ClinicID, res.PMSType, pull)
	if err != nil {
		return fmt.Errorf("reconcile: persist pull: %w", err)
	}
	res.PatientsAdded = saved.PatientsAdded
	res.PatientsUpdated = saved.PatientsUpdated
	res.AppointmentsSynced = saved.AppointmentsSynced
	if saved.AppointmentsSkipped > 0 {
		logger.Warn("reconcile: appointments skipped", "count", saved.AppointmentsSkipped)
	}

	now := s.now()
	latest, err := s.patients.LatestCompletedAppointment(ctx, res.ClinicID)
	if err != nil {
		return fmt.Errorf("reconcile: active year: %w", err)
	}
	rules := settings.Rules(s.defaults)
	res.ActiveYear = quota.ActiveYear(latest, now, rules.Location)

	list, err := s.patients.ListWithAppointments(ctx, res.ClinicID, res.PMSType)
	if err != nil {
		return fmt.Errorf("reconcile: list patients: %w", err)
	}

	eval := quota.NewEvaluator(rules, res.ActiveYear, now)
	for _, p := range list {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("reconcile: interrupted after %d patients: %w", res.PatientsProcessed, err)
		}
		res.PatientsProcessed++

		outcome, err := s.processPatient(ctx, eval, res, p)
		if err != nil {
			issue := fmt.Sprintf("patient %s: %v", p.PMSPatientID, err)
			res.Issues = append(res.Issues, issue)
			s.metrics.ObservePatientIssue(string(res.PMSType))
			logger.Warn("reconcile: patient failed", "patient_id", p.ID, "pms_patient_id", p.PMSPatientID, "error", err)
			continue
		}
		switch outcome {
		case caseCreated:
			res.CasesCreated++
		case caseUpdated:
			res.CasesUpdated++
		}
	}
	return nil
}

func (s *Service) fetch(ctx context.Context, source pms.Source, clinicID string) (*pms.Pull, error) {
	ctx, span := tracer.Start(ctx, "reconcile.fetch")
	defer span.End()

	pull, err := source.Pull(ctx, clinicID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if pull == nil {
		pull = &pms.Pull{}
	}
	span.SetAttributes(
		attribute.Int("physio.patients", len(pull.Patients)),
		attribute.Int("physio.appointments", len(pull.Appointments)),
	)
	return pull, nil
}

type caseOutcome int

const (
	caseNone caseOutcome = iota
	caseCreated
	caseUpdated
)

func (s *Service) processPatient(ctx context.Context, eval *quota.Evaluator, res *Result, p patients.Patient) (caseOutcome, error) {
	out := eval.Evaluate(p.Program, p.QuotaAppointments())

	if out.Program != p.Program || out.SessionsUsed != p.SessionsUsed || out.Quota != p.Quota {
		if err := s.patients.UpdateQuota(ctx, p.ID, out.Program, out.SessionsUsed, out.Quota); err != nil {
			return caseNone, err
		}
	}
	if !out.Eligible {
		return caseNone, nil
	}

	created, err := s.cases.Upsert(ctx, buildCase(res.ClinicID, res.PMSType, p, out))
	if err != nil {
		s.metrics.ObserveCaseUpsert("failed")
		return caseNone, err
	}
	if created {
		s.metrics.ObserveCaseUpsert("created")
		return caseCreated, nil
	}
	s.metrics.ObserveCaseUpsert("updated")
	return caseUpdated, nil
}

func buildCase(clinicID string, pmsType pms.Type, p patients.Patient, out quota.Outcome) *cases.Case {
	c := &cases.Case{
		ClinicID:          clinicID,
		PatientID:         p.ID,
		PMSType:           pmsType,
		CaseNumber:        cases.CaseNumber(p.PMSPatientID),
		PatientName:       p.Name(),
		ProgramType:       out.Program,
		SessionsUsed:      out.SessionsUsed,
		Quota:             out.Quota,
		SessionsRemaining: out.Remaining,
		Status:            out.Derivation.Status,
		Priority:          out.Derivation.Priority,
		AlertMessage:      out.Derivation.Alert,
	}
	if out.LastVisit != nil {
		c.LastVisit = out.LastVisit.Date
		c.LastAppointmentType = out.LastVisit.Type
	}
	if out.NextVisit != nil {
		c.NextVisit = out.NextVisit.Date
	}
	c.PractitionerName = lastPractitioner(p.Appointments)
	return c
}

// lastPractitioner is the practitioner on the latest dated completed visit.
func lastPractitioner(appts []patients.Appointment) string {
	var latest *patients.Appointment
	for i := range appts {
		a := &appts[i]
		if a.Date == nil || !quota.IsCompletedStatus(a.Status) {
			continue
		}
		if latest == nil || a.Date.After(*latest.Date) {
			latest = a
		}
	}
	if latest == nil {
		return ""
	}
	return latest.PractitionerName
}

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/physio-quota-tracker/internal/cases"
	"github.com/wolfman30/physio-quota-tracker/internal/clinic"
	"github.com/wolfman30/physio-quota-tracker/internal/patients"
	"github.com/wolfman30/physio-quota-tracker/internal/pms"
	"github.com/wolfman30/physio-quota-tracker/internal/quota"
	"github.com/wolfman30/physio-quota-tracker/internal/synclog"
)

type fakeSettings struct {
	settings map[string]*clinic.Settings
	err      error
}

func (f *fakeSettings) Get(_ context.Context, clinicID string) (*clinic.Settings, error) {
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.settings[clinicID]; ok {
		return s, nil
	}
	return clinic.DefaultSettings(clinicID), nil
}

type patientRow struct {
	patients.Patient
	key string
}

// memPatients keeps patients and appointments in memory, mirroring the
// Postgres store's upsert keys.
type memPatients struct {
	mu       sync.Mutex
	patients map[string]*patientRow // clinic|pms|pms_patient_id
	appts    map[string]patients.Appointment
	apptOwn  map[string]string // appointment key -> clinic|pms
	seq      int
	saveErr  error
	updates  int
}

func newMemPatients() *memPatients {
	return &memPatients{
		patients: make(map[string]*patientRow),
		appts:    make(map[string]patients.Appointment),
		apptOwn:  make(map[string]string),
	}
}

func (m *memPatients) Save(_ context.Context, clinicID string, pmsType pms.Type, pull *pms.Pull) (patients.SaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res patients.SaveResult
	if m.saveErr != nil {
		return res, m.saveErr
	}
	scope := clinicID + "|" + string(pmsType)
	for _, p := range pull.Patients {
		key := scope + "|" + p.PMSPatientID
		if row, ok := m.patients[key]; ok {
			row.FirstName, row.LastName = p.FirstName, p.LastName
			res.PatientsUpdated++
			continue
		}
		m.seq++
		m.patients[key] = &patientRow{key: key, Patient: patients.Patient{
			ID:           fmt.Sprintf("pat-%03d", m.seq),
			ClinicID:     clinicID,
			PMSType:      pmsType,
			PMSPatientID: p.PMSPatientID,
			FirstName:    p.FirstName,
			LastName:     p.LastName,
		}}
		res.PatientsAdded++
	}
	for _, a := range pull.Appointments {
		owner, ok := m.patients[scope+"|"+a.PMSPatientID]
		if !ok {
			res.AppointmentsSkipped++
			continue
		}
		key := scope + "|" + a.PMSAppointmentID
		m.appts[key] = patients.Appointment{
			ID:               key,
			PatientID:        owner.ID,
			PMSAppointmentID: a.PMSAppointmentID,
			Type:             a.AppointmentType,
			Status:           a.Status,
			Date:             a.Date,
			PractitionerName: a.PractitionerName,
		}
		m.apptOwn[key] = clinicID
		res.AppointmentsSynced++
	}
	return res, nil
}

func (m *memPatients) LatestCompletedAppointment(_ context.Context, clinicID string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *time.Time
	for key, a := range m.appts {
		if m.apptOwn[key] != clinicID || a.Date == nil || !quota.IsCompletedStatus(a.Status) {
			continue
		}
		if latest == nil || a.Date.After(*latest) {
			d := *a.Date
			latest = &d
		}
	}
	return latest, nil
}

func (m *memPatients) ListWithAppointments(_ context.Context, clinicID string, pmsType pms.Type) ([]patients.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []patients.Patient
	for _, row := range m.patients {
		if row.ClinicID != clinicID || row.PMSType != pmsType {
			continue
		}
		p := row.Patient
		p.Appointments = nil
		for _, a := range m.appts {
			if a.PatientID == p.ID {
				p.Appointments = append(p.Appointments, a)
			}
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memPatients) UpdateQuota(_ context.Context, patientID string, program quota.Program, used, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.patients {
		if row.ID == patientID {
			row.Program, row.SessionsUsed, row.Quota = program, used, total
			m.updates++
			return nil
		}
	}
	return patients.ErrPatientNotFound
}

func (m *memPatients) byPMSID(clinicID string, pmsType pms.Type, pmsPatientID string) patients.Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.patients[clinicID+"|"+string(pmsType)+"|"+pmsPatientID].Patient
}

// memCases enforces one case per (clinic, patient, pms).
type memCases struct {
	mu     sync.Mutex
	rows   map[string]cases.Case
	failOn map[string]bool // patient ids whose upsert fails
	// afterUpsert runs after each successful upsert.
	afterUpsert func()
}

func newMemCases() *memCases {
	return &memCases{rows: make(map[string]cases.Case), failOn: make(map[string]bool)}
}

func (m *memCases) Upsert(_ context.Context, c *cases.Case) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn[c.PatientID] {
		return false, errors.New("transient database error")
	}
	key := c.ClinicID + "|" + c.PatientID + "|" + string(c.PMSType)
	existing, ok := m.rows[key]
	if ok {
		c.ID = existing.ID
	} else {
		c.ID = "case-" + c.PatientID
	}
	m.rows[key] = *c
	if m.afterUpsert != nil {
		m.afterUpsert()
	}
	return !ok, nil
}

func (m *memCases) forPatient(patientID string) (cases.Case, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.rows {
		if c.PatientID == patientID {
			return c, true
		}
	}
	return cases.Case{}, false
}

type logEntry struct {
	status  synclog.Status
	trigger synclog.Trigger
	counts  synclog.Counts
	message string
}

type memSyncLog struct {
	mu      sync.Mutex
	entries map[string]*logEntry
	order   []string
}

func newMemSyncLog() *memSyncLog {
	return &memSyncLog{entries: make(map[string]*logEntry)}
}

func (m *memSyncLog) Start(_ context.Context, _ string, _ pms.Type, trigger synclog.Trigger) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("sync-%d", len(m.order)+1)
	m.entries[id] = &logEntry{status: synclog.StatusRunning, trigger: trigger}
	m.order = append(m.order, id)
	return id, nil
}

func (m *memSyncLog) Complete(ctx context.Context, id string, counts synclog.Counts) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.finish(id, synclog.StatusCompleted, counts, "")
}

func (m *memSyncLog) Fail(ctx context.Context, id string, counts synclog.Counts, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.finish(id, synclog.StatusFailed, counts, message)
}

func (m *memSyncLog) finish(id string, status synclog.Status, counts synclog.Counts, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.status != synclog.StatusRunning {
		return synclog.ErrLogNotRunning
	}
	e.status, e.counts, e.message = status, counts, message
	return nil
}

func (m *memSyncLog) last() *logEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.order) == 0 {
		return nil
	}
	return m.entries[m.order[len(m.order)-1]]
}

type memLocker struct {
	mu       sync.Mutex
	held     map[string]string
	released int
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]string)}
}

func (l *memLocker) Acquire(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	l.held[key] = "token-" + key
	return l.held[key], true, nil
}

func (l *memLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		l.released++
	}
	return nil
}

type recordingArchive struct {
	syncIDs []string
	err     error
}

func (a *recordingArchive) Put(_ context.Context, _ string, _ pms.Type, syncID string, _ *pms.Pull) error {
	a.syncIDs = append(a.syncIDs, syncID)
	return a.err
}

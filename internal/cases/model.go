// Package cases stores the derived per-patient quota cases and serves them
// to the clinic dashboard.
package cases

import (
	"errors"
	"time"

	"github.com/wolfman30/physio-quota-tracker/internal/pms"
	"github.com/wolfman30/physio-quota-tracker/internal/quota"
)

// ErrCaseNotFound is returned when a case does not exist for the clinic.
var ErrCaseNotFound = errors.New("cases: case not found")

// Case is the dashboard snapshot of one patient's quota state for one PMS.
type Case struct {
	ID                  string         `json:"id"`
	ClinicID            string         `json:"clinic_id"`
	PatientID           string         `json:"patient_id"`
	PMSType             pms.Type       `json:"pms_type"`
	CaseNumber          string         `json:"case_number"`
	PatientName         string         `json:"patient_name"`
	ProgramType         quota.Program  `json:"program_type"`
	SessionsUsed        int            `json:"sessions_used"`
	Quota               int            `json:"quota"`
	SessionsRemaining   int            `json:"sessions_remaining"`
	Status              quota.Status   `json:"status"`
	Priority            quota.Priority `json:"priority"`
	AlertMessage        string         `json:"alert_message,omitempty"`
	LastVisit           *time.Time     `json:"last_visit,omitempty"`
	NextVisit           *time.Time     `json:"next_visit,omitempty"`
	LastAppointmentType string         `json:"last_appointment_type,omitempty"`
	PractitionerName    string         `json:"practitioner_name,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// CaseNumber is the stable case number for a PMS patient.
func CaseNumber(pmsPatientID string) string {
	return "CASE-" + pmsPatientID
}

// Filter narrows List results.
type Filter struct {
	Status  quota.Status
	PMSType pms.Type
	Limit   int
}

// Summary counts a clinic's cases by status.
type Summary struct {
	ClinicID string `json:"clinic_id"`
	Total    int    `json:"total"`
	Active   int    `json:"active"`
	Warning  int    `json:"warning"`
	Critical int    `json:"critical"`
}

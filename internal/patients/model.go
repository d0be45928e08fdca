// Package patients persists the patients and appointments pulled from a
// clinic's practice-management system.
package patients

import (
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/physio-quota-tracker/internal/pms"
	"github.com/wolfman30/physio-quota-tracker/internal/quota"
)

// ErrPatientNotFound is returned when a patient id does not exist.
var ErrPatientNotFound = errors.New("patients: patient not found")

// Patient is a synced patient with its quota fields.
type Patient struct {
	ID           string
	ClinicID     string
	PMSType      pms.Type
	PMSPatientID string
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Program      quota.Program
	SessionsUsed int
	Quota        int
	Appointments []Appointment
}

// Name returns the patient's display name.
func (p Patient) Name() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// QuotaAppointments converts appointments for the quota rules.
func (p Patient) QuotaAppointments() []quota.Appointment {
	out := make([]quota.Appointment, 0, len(p.Appointments))
	for _, a := range p.Appointments {
		out = append(out, quota.Appointment{Type: a.Type, Status: a.Status, Date: a.Date})
	}
	return out
}

// Appointment is a synced appointment.
type Appointment struct {
	ID               string
	PatientID        string
	PMSAppointmentID string
	Type             string
	Status           string
	Date             *time.Time
	PractitionerName string
}

// SaveResult counts what a Save call wrote.
type SaveResult struct {
	PatientsAdded       int
	PatientsUpdated     int
	AppointmentsSynced  int
	AppointmentsSkipped int
}

// Package pms defines the records pulled from a clinic's practice-management
// system and the sources that supply them.
package pms

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Type identifies a practice-management system.
type Type string

const (
	Cliniko Type = "cliniko"
	Nookal  Type = "nookal"
	Halaxy  Type = "halaxy"
)

// ErrUnknownPMS is returned for a PMS type with no registered source.
var ErrUnknownPMS = errors.New("pms: unknown practice management system")

// ParseType normalizes a PMS name.
func ParseType(raw string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(raw))); t {
	case Cliniko, Nookal, Halaxy:
		return t, nil
	default:
		return "", ErrUnknownPMS
	}
}

// Patient is a patient record as exported by a PMS.
type Patient struct {
	PMSPatientID string     `json:"pms_patient_id"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	DateOfBirth  *time.Time `json:"date_of_birth,omitempty"`
}

// Appointment is an appointment record as exported by a PMS.
type Appointment struct {
	PMSAppointmentID string     `json:"pms_appointment_id"`
	PMSPatientID     string     `json:"pms_patient_id"`
	AppointmentType  string     `json:"appointment_type"`
	Status           string     `json:"status"`
	Date             *time.Time `json:"appointment_date,omitempty"`
	PractitionerName string     `json:"practitioner_name,omitempty"`
}

// Pull is everything fetched for one clinic in a sync.
type Pull struct {
	Patients     []Patient     `json:"patients"`
	Appointments []Appointment `json:"appointments"`
	FetchedAt    time.Time     `json:"fetched_at"`
}

// Source fetches a clinic's patients and appointments from a PMS.
type Source interface {
	Pull(ctx context.Context, clinicID string) (*Pull, error)
}

// Registry maps PMS types to their sources.
type Registry struct {
	sources map[Type]Source
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[Type]Source)}
}

// Register adds or replaces the source for a PMS type.
func (r *Registry) Register(t Type, src Source) {
	if src == nil {
		return
	}
	r.sources[t] = src
}

// Source returns the source for a PMS type.
func (r *Registry) Source(t Type) (Source, error) {
	if r == nil {
		return nil, ErrUnknownPMS
	}
	src, ok := r.sources[t]
	if !ok {
		return nil, ErrUnknownPMS
	}
	return src, nil
}

// Types lists the registered PMS types.
func (r *Registry) Types() []Type {
	if r == nil {
		return nil
	}
	out := make([]Type, 0, len(r.sources))
	for _, t := range []Type{Cliniko, Nookal, Halaxy} {
		if _, ok := r.sources[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

package pms

import (
	"context"
	"sync"
	"time"
)

// MemorySource serves fixed pulls per clinic. It backs local demos and tests.
type MemorySource struct {
	mu    sync.RWMutex
	pulls map[string]Pull
	err   error
}

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{pulls: make(map[string]Pull)}
}

// Set stores the pull returned for a clinic.
func (s *MemorySource) Set(clinicID string, pull Pull) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulls[clinicID] = pull
}

// FailWith makes every Pull return err; nil clears it.
func (s *MemorySource) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Pull returns a copy of the stored pull, or an empty one.
func (s *MemorySource) Pull(_ context.Context, clinicID string) (*Pull, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	pull := s.pulls[clinicID]
	out := &Pull{
		Patients:     append([]Patient(nil), pull.Patients...),
		Appointments: append([]Appointment(nil), pull.Appointments...),
		FetchedAt:    pull.FetchedAt,
	}
	if out.FetchedAt.IsZero() {
		out.FetchedAt = time.Now().UTC()
	}
	return out, nil
}

package quota

import "fmt"

// Status is the derived state of a case.
type Status string

const (
	StatusActive   Status = "active"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Priority orders cases on the clinic dashboard.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Derivation is the status tuple for a remaining-sessions figure.
type Derivation struct {
	Status   Status
	Priority Priority
	Alert    string
}

// Derive maps remaining sessions to status, priority and alert text.
// Bands are checked from most to least severe.
func Derive(scheme Scheme, remaining int) Derivation {
	switch {
	case remaining <= 0:
		return Derivation{
			Status:   StatusCritical,
			Priority: PriorityUrgent,
			Alert:    fmt.Sprintf("%s quota exhausted — renewal needed immediately", scheme),
		}
	case remaining <= 2:
		return Derivation{
			Status:   StatusWarning,
			Priority: PriorityHigh,
			Alert:    fmt.Sprintf("%s referral expires soon — %d sessions left", scheme, remaining),
		}
	case remaining == 3:
		return Derivation{
			Status:   StatusWarning,
			Priority: PriorityNormal,
			Alert:    fmt.Sprintf("%s sessions running low — %d sessions left", scheme, remaining),
		}
	default:
		return Derivation{Status: StatusActive, Priority: PriorityLow}
	}
}

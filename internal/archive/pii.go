package archive

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/wolfman30/physio-quota-tracker/internal/pms"
)

// HashContact returns the hex-encoded SHA-256 hash of a normalized email or phone.
func HashContact(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	h := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", h)
}

// RedactPatients returns a copy of patients with contact details hashed.
// Names and dates are kept so a snapshot can be replayed.
func RedactPatients(in []pms.Patient) []pms.Patient {
	out := make([]pms.Patient, len(in))
	for i, p := range in {
		p.Email = HashContact(p.Email)
		p.Phone = HashContact(p.Phone)
		out[i] = p
	}
	return out
}

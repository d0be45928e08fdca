package archive

import (
	"time"

	"github.com/wolfman30/physio-quota-tracker/internal/pms"
)

// Snapshot is the raw PMS pull archived for one sync.
type Snapshot struct {
	Version      string            `json:"version"` // "1.0"
	SyncID       string            `json:"sync_id"`
	ClinicID     string            `json:"clinic_id"`
	PMSType      pms.Type          `json:"pms_type"`
	FetchedAt    time.Time         `json:"fetched_at"`
	ArchivedAt   time.Time         `json:"archived_at"`
	Patients     []pms.Patient     `json:"patients"`
	Appointments []pms.Appointment `json:"appointments"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	SyncID           string `json:"sync_id"`
	ClinicID         string `json:"clinic_id"`
	PMSType          string `json:"pms_type"`
	S3Key            string `json:"s3_key"`
	PatientCount     int    `json:"patient_count"`
	AppointmentCount int    `json:"appointment_count"`
	ArchivedAt       string `json:"archived_at"`
}

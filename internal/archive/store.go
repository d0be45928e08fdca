// Package archive keeps a copy of every raw PMS pull in S3 so a sync can be
// audited or replayed.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wolfman30/physio-quota-tracker/internal/pms"
	"github.com/wolfman30/physio-quota-tracker/pkg/logging"
)

// S3API is the subset of the S3 client used by SnapshotStore.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// SnapshotStore archives PMS pulls to S3.
type SnapshotStore struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	now      func() time.Time
}

// NewSnapshotStore creates a SnapshotStore. If bucket is empty, all operations are no-ops.
func NewSnapshotStore(s3Client S3API, bucket string, logger *logging.Logger) *SnapshotStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &SnapshotStore{bucket: bucket, s3Client: s3Client, logger: logger, now: time.Now}
}

// Enabled returns true if archival is configured (bucket is set).
func (s *SnapshotStore) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// SnapshotKey is the object key for a sync's snapshot.
func SnapshotKey(clinicID string, pmsType pms.Type, syncID string, at time.Time) string {
	return fmt.Sprintf("snapshots/v1/%s/%s/%d/%02d/%02d/%s.json",
		clinicID, pmsType, at.Year(), at.Month(), at.Day(), syncID)
}

// Put writes the pull as JSON and appends it to the monthly manifest.
func (s *SnapshotStore) Put(ctx context.Context, clinicID string, pmsType pms.Type, syncID string, pull *pms.Pull) error {
	if !s.Enabled() || pull == nil {
		return nil
	}

	now := s.now().UTC()
	snap := Snapshot{
		Version:      "1.0",
		SyncID:       syncID,
		ClinicID:     clinicID,
		PMSType:      pmsType,
		FetchedAt:    pull.FetchedAt,
		ArchivedAt:   now,
		Patients:     RedactPatients(pull.Patients),
		Appointments: pull.Appointments,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("archive: marshal snapshot: %w", err)
	}

	key := SnapshotKey(clinicID, pmsType, syncID, now)
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}

	s.logger.Info("archived pms snapshot to S3",
		"clinic_id", clinicID,
		"pms_type", string(pmsType),
		"sync_id", syncID,
		"s3_key", key,
		"patients", len(pull.Patients),
		"appointments", len(pull.Appointments),
	)

	entry := ManifestEntry{
		SyncID:           syncID,
		ClinicID:         clinicID,
		PMSType:          string(pmsType),
		S3Key:            key,
		PatientCount:     len(pull.Patients),
		AppointmentCount: len(pull.Appointments),
		ArchivedAt:       now.Format(time.RFC3339),
	}
	if err := s.AppendManifest(ctx, entry); err != nil {
		// the snapshot itself is already stored
		s.logger.Warn("failed to append manifest", "error", err, "sync_id", syncID)
	}
	return nil
}

// AppendManifest appends a JSONL line to the monthly manifest file.
// Uses read-modify-write since S3 doesn't support append.
func (s *SnapshotStore) AppendManifest(ctx context.Context, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	now := s.now().UTC()
	manifestKey := fmt.Sprintf("snapshots/v1/manifests/%d-%02d.jsonl", now.Year(), now.Month())

	var existing []byte
	getResp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	switch {
	case err == nil:
		existing, err = io.ReadAll(getResp.Body)
		getResp.Body.Close()
		if err != nil {
			return fmt.Errorf("archive: read manifest: %w", err)
		}
	case isNotFound(err):
		s.logger.Debug("manifest not found, creating new", "key", manifestKey)
	default:
		return fmt.Errorf("archive: s3 get manifest: %w", err)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	return errors.As(err, &nsk)
}

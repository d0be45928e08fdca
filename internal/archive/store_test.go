package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/physio-quota-tracker/internal/pms"
)

// mockS3Client records PutObject/GetObject calls for testing.
type mockS3Client struct {
	putCalls []putCall
	objects  map[string][]byte // key -> body
	getErr   error
}

type putCall struct {
	bucket string
	key    string
	body   []byte
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(input.Body)
	m.putCalls = append(m.putCalls, putCall{
		bucket: *input.Bucket,
		key:    *input.Key,
		body:   body,
	})
	m.objects[*input.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
	}, nil
}

func testPull() *pms.Pull {
	d := time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)
	return &pms.Pull{
		Patients: []pms.Patient{
			{PMSPatientID: "p1", FirstName: "Ada", Email: "Ada@Example.com", Phone: "0400 000 000"},
		},
		Appointments: []pms.Appointment{
			{PMSAppointmentID: "a1", PMSPatientID: "p1", AppointmentType: "WC", Status: "completed", Date: &d},
		},
		FetchedAt: d,
	}
}

func TestSnapshotStore_Put(t *testing.T) {
	mock := newMockS3()
	store := NewSnapshotStore(mock, "test-bucket", nil)
	store.now = func() time.Time { return time.Date(2026, 2, 12, 15, 0, 0, 0, time.UTC) }

	require.NoError(t, store.Put(context.Background(), "clinic-1", pms.Cliniko, "sync-9", testPull()))

	// snapshot + manifest
	require.Len(t, mock.putCalls, 2)
	assert.Equal(t, "test-bucket", mock.putCalls[0].bucket)
	assert.Equal(t, "snapshots/v1/clinic-1/cliniko/2026/02/12/sync-9.json", mock.putCalls[0].key)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(mock.putCalls[0].body, &snap))
	assert.Equal(t, "sync-9", snap.SyncID)
	require.Len(t, snap.Patients, 1)
	assert.Equal(t, HashContact("ada@example.com"), snap.Patients[0].Email)
	assert.NotContains(t, string(mock.putCalls[0].body), "0400 000 000")
	assert.Len(t, snap.Appointments, 1)

	assert.Equal(t, "snapshots/v1/manifests/2026-02.jsonl", mock.putCalls[1].key)
	var entry ManifestEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(mock.putCalls[1].body), &entry))
	assert.Equal(t, 1, entry.AppointmentCount)
}

func TestSnapshotStore_Disabled(t *testing.T) {
	store := NewSnapshotStore(nil, "", nil)
	assert.False(t, store.Enabled())
	assert.NoError(t, store.Put(context.Background(), "clinic-1", pms.Nookal, "sync-1", testPull()))

	var nilStore *SnapshotStore
	assert.False(t, nilStore.Enabled())
}

func TestSnapshotStore_ManifestAppend(t *testing.T) {
	mock := newMockS3()
	store := NewSnapshotStore(mock, "test-bucket", nil)

	require.NoError(t, store.AppendManifest(context.Background(), ManifestEntry{SyncID: "sync-1"}))
	require.NoError(t, store.AppendManifest(context.Background(), ManifestEntry{SyncID: "sync-2"}))

	lastPut := mock.putCalls[len(mock.putCalls)-1]
	lines := bytes.Split(bytes.TrimSpace(lastPut.body), []byte("\n"))
	assert.Len(t, lines, 2)
}

func TestSnapshotStore_ManifestFailureDoesNotFailPut(t *testing.T) {
	mock := newMockS3()
	mock.getErr = errors.New("access denied")
	store := NewSnapshotStore(mock, "test-bucket", nil)

	require.NoError(t, store.Put(context.Background(), "clinic-1", pms.Halaxy, "sync-1", testPull()))
	assert.Len(t, mock.putCalls, 1)
}

func TestRedactPatients(t *testing.T) {
	in := []pms.Patient{{PMSPatientID: "p1", Email: " a@b.co ", Phone: ""}}
	out := RedactPatients(in)
	assert.Equal(t, HashContact("a@b.co"), out[0].Email)
	assert.Empty(t, out[0].Phone)
	assert.Equal(t, " a@b.co ", in[0].Email, "input must not be modified")
}

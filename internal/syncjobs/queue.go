// Package syncjobs moves sync requests from their triggers (the API, the
// scheduler, onboarding) to the reconcile service through a queue.
package syncjobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/physio-quota-tracker/internal/pms"
	"github.com/wolfman30/physio-quota-tracker/internal/synclog"
)

// ErrInvalidRequest marks a request that can never be processed.
var ErrInvalidRequest = errors.New("syncjobs: invalid sync request")

// QueueClient is the transport sync requests travel on.
type QueueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is a received queue message.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
	// Attempts is the delivery count reported by the transport; zero when unknown.
	Attempts int
}

// Request asks for one clinic to be synced from one PMS.
type Request struct {
	ID          string          `json:"id"`
	ClinicID    string          `json:"clinic_id"`
	PMSType     pms.Type        `json:"pms_type"`
	Trigger     synclog.Trigger `json:"trigger"`
	RequestedAt time.Time       `json:"requested_at"`
}

// Validate checks the request names a clinic and a known PMS.
func (r Request) Validate() error {
	if strings.TrimSpace(r.ClinicID) == "" {
		return fmt.Errorf("%w: clinic_id required", ErrInvalidRequest)
	}
	if _, err := pms.ParseType(string(r.PMSType)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func encodeRequest(req Request) (Request, string, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Trigger == "" {
		req.Trigger = synclog.TriggerManual
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Request{}, "", fmt.Errorf("syncjobs: encode request: %w", err)
	}
	return req, string(body), nil
}

func decodeRequest(body string) (Request, error) {
	var req Request
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	t, err := pms.ParseType(string(req.PMSType))
	if err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.PMSType = t
	req.Trigger = synclog.ParseTrigger(string(req.Trigger))
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

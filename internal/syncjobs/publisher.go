package syncjobs

import (
	"context"
	"fmt"

	"github.com/wolfman30/physio-quota-tracker/pkg/logging"
)

// Publisher enqueues sync requests for asynchronous processing.
type Publisher struct {
	queue  QueueClient
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue QueueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("syncjobs: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

// Enqueue validates and publishes a request, filling in its id, trigger and
// timestamp when unset.
func (p *Publisher) Enqueue(ctx context.Context, req Request) (Request, error) {
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	req, body, err := encodeRequest(req)
	if err != nil {
		return Request{}, err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return Request{}, fmt.Errorf("syncjobs: failed to enqueue sync: %w", err)
	}
	p.logger.Debug("sync request enqueued",
		"request_id", req.ID,
		"clinic_id", req.ClinicID,
		"pms_type", string(req.PMSType),
		"trigger", string(req.Trigger),
	)
	return req, nil
}

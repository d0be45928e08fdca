package syncjobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/physio-quota-tracker/internal/observability/metrics"
	"github.com/wolfman30/physio-quota-tracker/internal/pms"
	"github.com/wolfman30/physio-quota-tracker/internal/reconcile"
	"github.com/wolfman30/physio-quota-tracker/internal/synclog"
	"github.com/wolfman30/physio-quota-tracker/pkg/logging"
)

// Runner executes one sync.
type Runner interface {
	RunTriggered(ctx context.Context, clinicID string, pmsType pms.Type, trigger synclog.Trigger) (*reconcile.Result, error)
}

// Job outcomes recorded in metrics.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeDropped   = "dropped"
)

// Processor turns a queued request body into a sync run. It is shared by the
// long-running worker and the Lambda handler.
type Processor struct {
	runner  Runner
	metrics *metrics.SyncMetrics
	logger  *logging.Logger
}

// NewProcessor creates a Processor. metrics may be nil.
func NewProcessor(runner Runner, m *metrics.SyncMetrics, logger *logging.Logger) *Processor {
	if runner == nil {
		panic("syncjobs: runner cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Processor{runner: runner, metrics: m, logger: logger}
}

// Process runs the sync described by body. A nil return means the message is
// finished with and can be deleted: it succeeded, was skipped because another
// sync holds the clinic lock, or can never succeed. A non-nil return means the
// message should be redelivered.
func (p *Processor) Process(ctx context.Context, body string) error {
	req, err := decodeRequest(body)
	if err != nil {
		p.logger.Warn("dropping invalid sync request", "error", err)
		p.metrics.ObserveJob("unknown", OutcomeDropped)
		return nil
	}

	logger := p.logger.ForClinic(req.ClinicID, string(req.PMSType)).With(
		"request_id", req.ID,
		"trigger", string(req.Trigger),
	)

	res, err := p.runner.RunTriggered(ctx, req.ClinicID, req.PMSType, req.Trigger)
	switch {
	case err == nil:
		logger.Info("sync job completed",
			"sync_id", res.SyncID,
			"cases_created", res.CasesCreated,
			"cases_updated", res.CasesUpdated,
			"issues", len(res.Issues),
		)
		p.metrics.ObserveJob(string(req.Trigger), OutcomeSucceeded)
		return nil
	case errors.Is(err, reconcile.ErrSyncInProgress):
		logger.Info("sync job skipped: clinic already syncing")
		p.metrics.ObserveJob(string(req.Trigger), OutcomeSkipped)
		return nil
	case errors.Is(err, pms.ErrUnknownPMS), errors.Is(err, reconcile.ErrClinicRequired):
		logger.Warn("dropping unrunnable sync request", "error", err)
		p.metrics.ObserveJob(string(req.Trigger), OutcomeDropped)
		return nil
	default:
		logger.Error("sync job failed", "error", err)
		p.metrics.ObserveJob(string(req.Trigger), OutcomeFailed)
		return fmt.Errorf("syncjobs: request %s: %w", req.ID, err)
	}
}

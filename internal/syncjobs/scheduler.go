package syncjobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/physio-quota-tracker/internal/clinic"
	"github.com/wolfman30/physio-quota-tracker/internal/synclog"
	"github.com/wolfman30/physio-quota-tracker/pkg/logging"
)

// Enqueuer publishes sync requests.
type Enqueuer interface {
	Enqueue(ctx context.Context, req Request) (Request, error)
}

// ClinicDirectory lists clinics and their settings.
type ClinicDirectory interface {
	ListClinicIDs(ctx context.Context) ([]string, error)
	Get(ctx context.Context, clinicID string) (*clinic.Settings, error)
}

// Scheduler periodically enqueues a sync for every connected PMS of every
// clinic with auto-sync enabled.
type Scheduler struct {
	clinics ClinicDirectory
	jobs    Enqueuer
	logger  *logging.Logger

	tick <-chan time.Time
	stop func()
}

type SchedulerConfig struct {
	Clinics ClinicDirectory
	Jobs    Enqueuer
	Logger  *logging.Logger

	Interval time.Duration
	Tick     <-chan time.Time
	Stop     func()
}

func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Clinics == nil {
		return nil, errors.New("syncjobs: scheduler requires clinic directory")
	}
	if cfg.Jobs == nil {
		return nil, errors.New("syncjobs: scheduler requires enqueuer")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	tick := cfg.Tick
	stop := cfg.Stop
	if tick == nil {
		interval := cfg.Interval
		if interval <= 0 {
			interval = 6 * time.Hour
		}
		ticker := time.NewTicker(interval)
		tick = ticker.C
		stop = ticker.Stop
	}

	return &Scheduler{
		clinics: cfg.Clinics,
		jobs:    cfg.Jobs,
		logger:  logger,
		tick:    tick,
		stop:    stop,
	}, nil
}

// Start schedules once immediately and then on every tick until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	defer func() {
		if s.stop != nil {
			s.stop()
		}
	}()

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.tick:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	n, err := s.ScheduleOnce(ctx)
	if err != nil {
		s.logger.Error("scheduled sync pass incomplete", "enqueued", n, "error", err)
		return
	}
	s.logger.Info("scheduled sync pass complete", "enqueued", n)
}

// ScheduleOnce enqueues one request per auto-sync clinic and connection. It
// keeps going past individual failures and returns the first error seen.
func (s *Scheduler) ScheduleOnce(ctx context.Context) (int, error) {
	ids, err := s.clinics.ListClinicIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("syncjobs: list clinics: %w", err)
	}

	var firstErr error
	enqueued := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return enqueued, err
		}
		settings, err := s.clinics.Get(ctx, id)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("syncjobs: settings for %s: %w", id, err)
			}
			continue
		}
		if !settings.AutoSync {
			continue
		}
		for _, t := range settings.PMSConnections {
			_, err := s.jobs.Enqueue(ctx, Request{
				ClinicID: id,
				PMSType:  t,
				Trigger:  synclog.TriggerScheduled,
			})
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			enqueued++
		}
	}
	return enqueued, firstErr
}

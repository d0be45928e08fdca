package bootstrap

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/physio-quota-tracker/internal/archive"
	"github.com/wolfman30/physio-quota-tracker/internal/cases"
	"github.com/wolfman30/physio-quota-tracker/internal/clinic"
	appconfig "github.com/wolfman30/physio-quota-tracker/internal/config"
	"github.com/wolfman30/physio-quota-tracker/internal/observability/metrics"
	"github.com/wolfman30/physio-quota-tracker/internal/patients"
	"github.com/wolfman30/physio-quota-tracker/internal/quota"
	"github.com/wolfman30/physio-quota-tracker/internal/reconcile"
	"github.com/wolfman30/physio-quota-tracker/internal/syncjobs"
	"github.com/wolfman30/physio-quota-tracker/internal/synclog"
	"github.com/wolfman30/physio-quota-tracker/pkg/logging"
)

// SyncDeps are the connections a sync service is built from.
type SyncDeps struct {
	Config  *appconfig.Config
	Pool    *pgxpool.Pool
	SQLDB   *sql.DB
	Redis   *redis.Client
	S3      archive.S3API
	Metrics *metrics.SyncMetrics
	Logger  *logging.Logger
}

// SyncRuntime is the wired sync stack shared by the API and the workers.
type SyncRuntime struct {
	Service     *reconcile.Service
	ClinicStore *clinic.Store
	Cases       *cases.Store
	SyncLogs    *synclog.Store
	Snapshots   *archive.SnapshotStore
}

// BuildSyncRuntime wires the reconcile service over Postgres and Redis. The
// snapshot archive is enabled only when both an S3 client and bucket are set.
func BuildSyncRuntime(deps SyncDeps) (*SyncRuntime, error) {
	if deps.Config == nil {
		return nil, errors.New("bootstrap: config required")
	}
	if deps.Pool == nil || deps.SQLDB == nil {
		return nil, errors.New("bootstrap: database required")
	}
	if deps.Redis == nil {
		return nil, errors.New("bootstrap: redis required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	cfg := deps.Config

	rt := &SyncRuntime{
		ClinicStore: BuildClinicStore(deps.Redis),
		Cases:       cases.NewStore(deps.Pool),
		SyncLogs:    synclog.NewStore(deps.SQLDB),
	}

	var archiver reconcile.Archiver
	if deps.S3 != nil && cfg.SnapshotBucket != "" {
		rt.Snapshots = archive.NewSnapshotStore(deps.S3, cfg.SnapshotBucket, logger)
		archiver = rt.Snapshots
	}

	svc, err := reconcile.New(reconcile.Config{
		Sources:  BuildSources(cfg, logger),
		Settings: rt.ClinicStore,
		Patients: patients.NewStore(deps.Pool),
		Cases:    rt.Cases,
		SyncLog:  rt.SyncLogs,
		Archive:  archiver,
		Locker:   syncjobs.NewRedisLocker(deps.Redis),
		Metrics:  deps.Metrics,
		Logger:   logger,
		LockTTL:  cfg.SyncLockTTL,
		Defaults: quota.Quotas{WC: cfg.DefaultWCQuota, EPC: cfg.DefaultEPCQuota},
	})
	if err != nil {
		return nil, err
	}
	rt.Service = svc
	return rt, nil
}

package mainconfig

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/physio-quota-tracker/internal/app/bootstrap"
	"github.com/wolfman30/physio-quota-tracker/internal/archive"
	appconfig "github.com/wolfman30/physio-quota-tracker/internal/config"
	"github.com/wolfman30/physio-quota-tracker/internal/observability/metrics"
	"github.com/wolfman30/physio-quota-tracker/internal/syncjobs"
	"github.com/wolfman30/physio-quota-tracker/pkg/logging"
)

// Stack is everything a binary needs to run or enqueue syncs.
type Stack struct {
	DB        *bootstrap.Databases
	Redis     *redis.Client
	Runtime   *bootstrap.SyncRuntime
	Metrics   *metrics.SyncMetrics
	Queue     syncjobs.QueueClient
	Publisher *syncjobs.Publisher
	Processor *syncjobs.Processor
}

// BuildStack connects to Postgres, Redis and AWS and wires the sync runtime.
func BuildStack(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg prometheus.Registerer) (*Stack, error) {
	dbs, err := bootstrap.OpenDatabases(ctx, cfg)
	if err != nil {
		return nil, err
	}
	stack := &Stack{DB: dbs}

	stack.Redis = bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if stack.Redis == nil {
		stack.Close()
		return nil, errors.New("redis is required for clinic settings and sync locks")
	}

	var awsCfg aws.Config
	needAWS := cfg.SnapshotBucket != "" || (strings.TrimSpace(cfg.SyncQueueURL) != "" && !cfg.UseMemoryQueue)
	if needAWS {
		awsCfg, err = LoadAWSConfig(ctx, cfg)
		if err != nil {
			stack.Close()
			return nil, err
		}
	}

	var s3Client archive.S3API
	if cfg.SnapshotBucket != "" {
		s3Client = NewS3Client(awsCfg, cfg)
	}

	stack.Metrics = metrics.NewSyncMetrics(reg)
	stack.Runtime, err = bootstrap.BuildSyncRuntime(bootstrap.SyncDeps{
		Config:  cfg,
		Pool:    dbs.Pool,
		SQLDB:   dbs.SQLDB,
		Redis:   stack.Redis,
		S3:      s3Client,
		Metrics: stack.Metrics,
		Logger:  logger,
	})
	if err != nil {
		stack.Close()
		return nil, err
	}

	var sqsClient syncjobs.SQSAPI
	if needAWS && strings.TrimSpace(cfg.SyncQueueURL) != "" {
		sqsClient = NewSQSClient(awsCfg, cfg)
	}
	stack.Queue, err = bootstrap.BuildQueue(cfg, sqsClient, logger)
	if err != nil {
		stack.Close()
		return nil, err
	}
	stack.Publisher = syncjobs.NewPublisher(stack.Queue, logger)
	stack.Processor = syncjobs.NewProcessor(stack.Runtime.Service, stack.Metrics, logger)
	return stack, nil
}

// Close releases connections.
func (s *Stack) Close() {
	if s == nil {
		return
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	s.DB.Close()
}

package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/physio-quota-tracker/internal/clinic"
	appconfig "github.com/wolfman30/physio-quota-tracker/internal/config"
	"github.com/wolfman30/physio-quota-tracker/internal/pms"
	"github.com/wolfman30/physio-quota-tracker/internal/syncjobs"
	"github.com/wolfman30/physio-quota-tracker/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildClinicStore returns the clinic settings store when Redis is available.
func BuildClinicStore(redisClient *redis.Client) *clinic.Store {
	if redisClient == nil {
		return nil
	}
	return clinic.NewStore(redisClient)
}

// BuildSources registers a feed source for every PMS with a configured URL.
func BuildSources(cfg *appconfig.Config, logger *logging.Logger) *pms.Registry {
	reg := pms.NewRegistry()
	if cfg == nil {
		return reg
	}
	for name, url := range cfg.PMSFeedURLs {
		t, err := pms.ParseType(name)
		if err != nil || strings.TrimSpace(url) == "" {
			continue
		}
		reg.Register(t, pms.NewFeedSource(pms.FeedConfig{
			BaseURL: url,
			Token:   cfg.PMSFeedToken,
			Pager: pms.PagerConfig{
				Concurrency: cfg.PMSPageConcurrency,
				BatchDelay:  cfg.PMSPageBatchDelay,
			},
		}, logger))
	}
	return reg
}

// BuildQueue picks the sync request transport: an in-memory queue when
// configured (or when no SQS queue URL is set outside production), otherwise SQS.
func BuildQueue(cfg *appconfig.Config, sqsClient syncjobs.SQSAPI, logger *logging.Logger) (syncjobs.QueueClient, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.UseMemoryQueue {
		logger.Info("using in-memory sync queue")
		return syncjobs.NewMemoryQueue(0), nil
	}
	if strings.TrimSpace(cfg.SyncQueueURL) == "" {
		if cfg.Env == "production" {
			return nil, errors.New("bootstrap: SYNC_QUEUE_URL required in production")
		}
		logger.Warn("SYNC_QUEUE_URL not set, falling back to in-memory sync queue")
		return syncjobs.NewMemoryQueue(0), nil
	}
	if sqsClient == nil {
		return nil, errors.New("bootstrap: sqs client required for SYNC_QUEUE_URL")
	}
	return syncjobs.NewSQSQueue(sqsClient, cfg.SyncQueueURL), nil
}

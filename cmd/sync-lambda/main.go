package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/physio-quota-tracker/cmd/mainconfig"
	appconfig "github.com/wolfman30/physio-quota-tracker/internal/config"
	"github.com/wolfman30/physio-quota-tracker/pkg/logging"
)

// Runs one reconcile per SQS record. The event source mapping must enable
// ReportBatchItemFailures so failed records are retried alone.
func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	// Lambda has no scrape endpoint; metrics go to a private registry.
	stack, err := mainconfig.BuildStack(context.Background(), cfg, logger, prometheus.NewRegistry())
	if err != nil {
		logger.Error("failed to build sync stack", "error", err)
		os.Exit(1)
	}
	defer stack.Close()

	lambda.Start(stack.Processor.HandleSQSEvent)
}

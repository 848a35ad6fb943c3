package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/playground/pkg/channels/kafka"
	"github.com/dukex/playground/pkg/cmd"
	"github.com/dukex/playground/pkg/log"
	"github.com/dukex/playground/pkg/otelhelper"
	"github.com/dukex/playground/pkg/pipeline"
	"github.com/dukex/playground/pkg/state"
)

const defaultRequestTimeout = 2 * time.Minute

func run(ctx context.Context, command *cli.Command, workerID string) error {
	logger := log.WithModule("playground-worker").With("worker_id", workerID)

	logger.InfoContext(ctx, "Initializing Playground Worker")

	tracer := otelhelper.Tracer("playground-worker")

	if command.Bool("otel") {
		t, shutdown, err := otelhelper.NewTracer(ctx, "playground-worker")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
			}
		}()

		tracer = t
	}

	transport, err := cmd.NewTransport(command.String("event-bus"), kafka.ParseBrokers(command.String("kafka-brokers")), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := transport.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close transport", "error", err)
		}
	}()

	bus, err := transport.EventBus("playground-worker")
	if err != nil {
		return err
	}

	config := pipeline.DefaultWorkerConfig()
	config.Concurrency = int64(command.Int("worker-concurrency"))
	config.RequestTimeout = command.Duration("request-timeout")
	config.ValidateRequests = command.Bool("validate-requests")

	httpClient := &http.Client{Timeout: config.RequestTimeout}

	worker, err := pipeline.NewWorker(bus, config, logger,
		pipeline.WithHTTPClient(httpClient),
		pipeline.WithSpecLoader(state.HTTPSpecLoader(httpClient)),
		pipeline.WithTracer(tracer),
		pipeline.WithWorkerID(workerID),
	)
	if err != nil {
		return err
	}

	return NewWorkerManager(workerID, worker, logger).Start(ctx)
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/playground/pkg/channels/kafka"
	"github.com/dukex/playground/pkg/cmd"
	"github.com/dukex/playground/pkg/log"
	"github.com/dukex/playground/pkg/middleware"
	"github.com/dukex/playground/pkg/notify"
	"github.com/dukex/playground/pkg/otelhelper"
	"github.com/dukex/playground/pkg/pipeline"
	"github.com/dukex/playground/pkg/revalidate"
	"github.com/dukex/playground/pkg/services"
	"github.com/dukex/playground/pkg/state"
)

const (
	defaultRequestTimeout = 2 * time.Minute
	shutdownTimeout       = 10 * time.Second
)

func run(ctx context.Context, command *cli.Command) error {
	logger := log.WithModule("playground-api")

	logger.InfoContext(ctx, "Initializing Playground API")

	tracer, shutdownTracer, err := setupTracer(ctx, command.Bool("otel"))
	if err != nil {
		return err
	}

	defer func() {
		if err := shutdownTracer(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		}
	}()

	repo, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := repo.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	transport, err := cmd.NewTransport(command.String("event-bus"), kafka.ParseBrokers(command.String("kafka-brokers")), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := transport.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close transport", "error", err)
		}
	}()

	httpClient := &http.Client{Timeout: command.Duration("request-timeout")}
	specLoader := state.HTTPSpecLoader(httpClient)

	session := cmd.NewSession(cmd.FilterByApp(repo, command.String("app-id")), specLoader, logger)
	defer func() {
		if err := session.Store.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close store", "error", err)
		}
	}()

	// A failed first load is kept in the state and retried by the revalidation schedule.
	if err := session.Store.Load(ctx); err != nil {
		logger.WarnContext(ctx, "Initial load failed", "error", err)
	}

	bus, err := transport.EventBus("playground-api")
	if err != nil {
		return err
	}

	headers := map[string]string{}
	if token := command.String("api-token"); token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	client := pipeline.NewClient(bus, session.Store, pipeline.ClientConfig{
		ProjectID: command.String("project-id"),
		Headers:   headers,
	}, logger)

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline client: %w", err)
	}

	if transport.InProcess() {
		worker, err := startEmbeddedWorker(ctx, transport, command, httpClient, specLoader, tracer, logger)
		if err != nil {
			return err
		}

		defer worker.Wait()
	}

	notifier := notify.NewLog(logger)
	variants := services.NewVariants(repo, session.Store, notifier, logger)

	hook := middleware.New(session.Store, middleware.Services{
		Runner:   client,
		Variants: variants,
		Notifier: notifier,
		Tracker:  session.Tracker,
		Logger:   logger,
	})

	if expr := command.String("revalidate-schedule"); expr != "" {
		scheduler, err := revalidate.NewScheduler(expr, session.Store, command.Duration("request-timeout"), logger)
		if err != nil {
			return err
		}

		if err := scheduler.Start(ctx); err != nil {
			return err
		}

		defer func() {
			if err := scheduler.Stop(context.WithoutCancel(ctx)); err != nil {
				logger.ErrorContext(ctx, "Failed to stop revalidation scheduler", "error", err)
			}
		}()
	}

	api := NewAPI(logger, hook, session.Store, variants)

	return serve(ctx, api, command.Int("port"), logger)
}

func serve(ctx context.Context, api *API, port int, logger *slog.Logger) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- api.Start(port)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
	}

	logger.InfoContext(ctx, "Shutting down Playground API")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	return api.Shutdown(shutdownCtx)
}

func startEmbeddedWorker(
	ctx context.Context,
	transport *cmd.Transport,
	command *cli.Command,
	httpClient *http.Client,
	specLoader state.SpecLoader,
	tracer trace.Tracer,
	logger *slog.Logger,
) (*pipeline.Worker, error) {
	bus, err := transport.EventBus("playground-worker")
	if err != nil {
		return nil, err
	}

	config := pipeline.DefaultWorkerConfig()
	config.Concurrency = int64(command.Int("worker-concurrency"))
	config.RequestTimeout = command.Duration("request-timeout")
	config.ValidateRequests = command.Bool("validate-requests")

	worker, err := pipeline.NewWorker(bus, config, logger,
		pipeline.WithHTTPClient(httpClient),
		pipeline.WithSpecLoader(specLoader),
		pipeline.WithTracer(tracer),
		pipeline.WithWorkerID("embedded-"+uuid.New().String()[:8]),
	)
	if err != nil {
		return nil, err
	}

	if err := worker.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start embedded worker: %w", err)
	}

	logger.InfoContext(ctx, "Embedded worker started")

	return worker, nil
}

// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func setupTracer(ctx context.Context, enabled bool) (trace.Tracer, otelhelper.ShutdownFunc, error) {
	if !enabled {
		return otelhelper.Tracer("playground"), func(context.Context) error { return nil }, nil
	}

	tracer, shutdown, err := otelhelper.NewTracer(ctx, "playground-api")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	return tracer, shutdown, nil
}

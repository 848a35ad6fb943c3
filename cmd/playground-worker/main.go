// Package main provides the worker that runs variants against their application services.
package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/dukex/playground/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "playground-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers to run variants against their services",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.IntFlag{
				Name:    "worker-concurrency",
				Usage:   "Concurrent runs",
				Value:   8,
				Sources: cli.EnvVars("WORKER_CONCURRENCY"),
			},
			&cli.DurationFlag{
				Name:    "request-timeout",
				Usage:   "Timeout of one call to an application service",
				Value:   defaultRequestTimeout,
				Sources: cli.EnvVars("REQUEST_TIMEOUT"),
			},
			&cli.BoolFlag{
				Name:    "validate-requests",
				Usage:   "Validate run payloads against the service schema before sending them",
				Sources: cli.EnvVars("VALIDATE_REQUESTS"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			return run(ctx, command, workerID)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("playground-worker").Error("Worker stopped", "error", err)
		os.Exit(1)
	}
}

// Package main provides the playground API server.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/playground/pkg/log"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "playground-api",
		Usage:                 "Edit, compare and run application variants",
		EnableShellCompletion: true,
		Flags:                 flags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			return run(ctx, command)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("playground-api").Error("Playground API stopped", "error", err)
		os.Exit(1)
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Variant storage URL (file://, redis://, postgres://)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka). gochannel runs an embedded worker",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "revalidate-schedule",
			Usage:   "Cron expression for refetching variants and specs (empty disables)",
			Value:   "@every 5m",
			Sources: cli.EnvVars("REVALIDATE_SCHEDULE"),
		},
		&cli.StringFlag{
			Name:    "api-token",
			Usage:   "Bearer token sent to the application services",
			Sources: cli.EnvVars("API_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "project-id",
			Usage:   "Project id sent with every run",
			Sources: cli.EnvVars("PROJECT_ID"),
		},
		&cli.StringFlag{
			Name:    "app-id",
			Usage:   "Only load the variants of this application",
			Sources: cli.EnvVars("APP_ID"),
		},
		&cli.IntFlag{
			Name:    "worker-concurrency",
			Usage:   "Concurrent runs of the embedded worker",
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
	}
}

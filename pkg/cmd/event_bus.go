// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	wmgochannel "github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/dukex/playground/pkg/channels/gochannel"
	"github.com/dukex/playground/pkg/channels/kafka"
	"github.com/dukex/playground/pkg/eventbus"
)

var ErrUnsupportedEventBus = errors.New("unsupported event bus provider")

// Transport hands out event buses over one provider. With "gochannel" every bus shares a single
// in-process pub/sub, so the API and an embedded worker see each other's messages. With "kafka"
// each service gets its own consumer group.
type Transport struct {
	provider string
	brokers  []string
	logger   *slog.Logger
	local    *wmgochannel.GoChannel
}

func NewTransport(provider string, brokers []string, logger *slog.Logger) (*Transport, error) {
	t := &Transport{
		provider: provider,
		brokers:  brokers,
		logger:   logger,
	}

	switch provider {
	case "gochannel":
		pubSub, _, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create in-process pub/sub: %w", err)
		}

		t.local = pubSub
	case "kafka":
		if len(brokers) == 0 {
			return nil, kafka.ErrNoBrokers
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEventBus, provider)
	}

	return t, nil
}

// InProcess reports whether buses only reach subscribers in this process.
func (t *Transport) InProcess() bool {
	return t.local != nil
}

// EventBus creates a bus for one service.
func (t *Transport) EventBus(serviceName string) (eventbus.EventBus, error) {
	logger := t.logger.With("service", serviceName)

	if t.local != nil {
		return eventbus.NewWatermillEventBus(t.local, t.local, logger), nil
	}

	pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), serviceName, t.brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
	}

	return eventbus.NewWatermillEventBus(pub, sub, logger), nil
}

// Close releases the shared in-process pub/sub.
func (t *Transport) Close() error {
	if t.local != nil {
		return t.local.Close()
	}

	return nil
}

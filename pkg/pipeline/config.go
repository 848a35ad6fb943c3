package pipeline

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// WorkerConfig bounds how a worker talks to generation backends.
type WorkerConfig struct {
	// Concurrency caps the requests in flight.
	Concurrency int64 `validate:"required,min=1"`
	// RequestTimeout applies to each generation call.
	RequestTimeout time.Duration `validate:"required"`
	// ValidateRequests checks bodies against the backend's request schema before sending them.
	ValidateRequests bool
	// BreakerFailures is the run of consecutive failures that opens a backend's breaker.
	BreakerFailures uint32 `validate:"required,min=1"`
	// BreakerTimeout is how long an open breaker rejects calls.
	BreakerTimeout time.Duration `validate:"required"`
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:     8,
		RequestTimeout:  2 * time.Minute,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

func (c WorkerConfig) Validate() error {
	return validate.Struct(c)
}

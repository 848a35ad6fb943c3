package models

import (
	"time"

	"github.com/dukex/playground/pkg/enhanced"
)

// Error types of failed runs that carry no HTTP status.
const (
	// ErrorTypeNetwork tags results whose request never produced an HTTP response.
	ErrorTypeNetwork = "network_error"
	// ErrorTypeValidation tags request bodies rejected before they were sent.
	ErrorTypeValidation = "validation_error"
)

// APIResponse is the generation backend's success payload.
type APIResponse struct {
	Version     string `json:"version,omitempty"`
	Data        any    `json:"data"`
	ContentType string `json:"content_type,omitempty"`
	Tree        any    `json:"tree,omitempty"`
	TraceID     string `json:"trace_id,omitempty"`
}

type ResultMetadata struct {
	Timestamp  time.Time `json:"timestamp"`
	StatusCode int       `json:"statusCode,omitempty"`
	RawError   any       `json:"rawError,omitempty"`
	Type       string    `json:"type,omitempty"`
}

// RunResult is the outcome of one run. Exactly one of Response and Error is set.
type RunResult struct {
	Response *APIResponse   `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata ResultMetadata `json:"metadata"`
}

func (r *RunResult) Failed() bool {
	return r != nil && r.Error != ""
}

// RunSlot is the per (row, variant) execution record.
type RunSlot struct {
	IsRunning bool            `json:"isRunning"`
	Result    *RunResult      `json:"result,omitempty"`
	ResultRef enhanced.Digest `json:"resultRef,omitempty"`
}

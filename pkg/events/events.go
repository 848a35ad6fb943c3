// Package events defines the run protocol exchanged between the playground and its workers.
package events

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dukex/playground/pkg/enhanced"
	"github.com/dukex/playground/pkg/models"
)

type EventType string

// Topic carries run requests and their results.
const Topic = "playground.runs"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunVariantInputRowEvent       EventType = "runVariantInputRow"
	RunVariantInputRowResultEvent EventType = "runVariantInputRowResult"
)

// ErrUnknownEventType is returned when decoding a message outside the protocol.
var ErrUnknownEventType = errors.New("unknown event type")

var validate = validator.New(validator.WithRequiredStructEnabled())

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]any),
	}
}

// RunRequest asks a worker to run one variant against one generation row. History is set for
// chat rows and InputRow for completion rows.
type RunRequest struct {
	Variant   *models.Variant   `json:"variant"              validate:"required"`
	RowID     string            `json:"row_id"               validate:"required"`
	InputRow  *enhanced.Node    `json:"input_row,omitempty"`
	History   []*enhanced.Node  `json:"history,omitempty"`
	AppID     string            `json:"app_id,omitempty"`
	URI       string            `json:"uri"                  validate:"required,url"`
	Headers   map[string]string `json:"headers,omitempty"`
	ProjectID string            `json:"project_id,omitempty"`
}

type RunVariantInputRow struct {
	BaseEvent

	Payload RunRequest `json:"payload"`
}

func (e RunVariantInputRow) GetType() EventType {
	return RunVariantInputRowEvent
}

func (e RunVariantInputRow) Validate() error {
	return validate.Struct(e.Payload)
}

func NewRunVariantInputRow(req RunRequest) RunVariantInputRow {
	return RunVariantInputRow{
		BaseEvent: NewBaseEvent(RunVariantInputRowEvent),
		Payload:   req,
	}
}

// RunResultPayload is the single answer to a RunRequest.
type RunResultPayload struct {
	RowID     string           `json:"row_id"     validate:"required"`
	VariantID string           `json:"variant_id" validate:"required"`
	Result    models.RunResult `json:"result"`
}

type RunVariantInputRowResult struct {
	BaseEvent

	Payload RunResultPayload `json:"payload"`
}

func (e RunVariantInputRowResult) GetType() EventType {
	return RunVariantInputRowResultEvent
}

func (e RunVariantInputRowResult) Validate() error {
	return validate.Struct(e.Payload)
}

func NewRunVariantInputRowResult(rowID, variantID string, result models.RunResult) RunVariantInputRowResult {
	return RunVariantInputRowResult{
		BaseEvent: NewBaseEvent(RunVariantInputRowResultEvent),
		Payload:   RunResultPayload{RowID: rowID, VariantID: variantID, Result: result},
	}
}

// New returns an empty event of the given type to decode into.
func New(eventType EventType) (any, error) {
	switch eventType {
	case RunVariantInputRowEvent:
		return &RunVariantInputRow{}, nil
	case RunVariantInputRowResultEvent:
		return &RunVariantInputRowResult{}, nil
	default:
		return nil, ErrUnknownEventType
	}
}

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/dukex/playground/pkg/eventbus"
	"github.com/dukex/playground/pkg/events"
	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/openapi"
	"github.com/dukex/playground/pkg/otelhelper"
	"github.com/dukex/playground/pkg/state"
	"github.com/dukex/playground/pkg/transform"
	"github.com/dukex/playground/pkg/validation"
)

const schemaCacheSize = 128

// HTTPError is a generation call answered with a failure status.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, string(e.Body))
}

type WorkerOption func(*Worker)

func WithHTTPClient(client *http.Client) WorkerOption {
	return func(w *Worker) {
		w.client = client
	}
}

func WithTracer(tracer trace.Tracer) WorkerOption {
	return func(w *Worker) {
		w.tracer = tracer
	}
}

// WithSpecLoader sets how request schemas are loaded when request validation is on.
func WithSpecLoader(loader state.SpecLoader) WorkerOption {
	return func(w *Worker) {
		w.loadSpec = loader
	}
}

func WithWorkerID(id string) WorkerOption {
	return func(w *Worker) {
		w.id = id
	}
}

// Worker performs generation calls for run requests and publishes exactly one result per request.
// Requests run concurrently up to the configured limit; each backend URI has its own circuit breaker.
type Worker struct {
	id       string
	bus      eventbus.EventBus
	client   *http.Client
	config   WorkerConfig
	sem      *semaphore.Weighted
	tracer   trace.Tracer
	loadSpec state.SpecLoader
	schemas  *lru.Cache[string, *openapi.Schema]
	logger   *slog.Logger

	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker

	wg sync.WaitGroup
}

func NewWorker(bus eventbus.EventBus, config WorkerConfig, logger *slog.Logger, opts ...WorkerOption) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid worker config: %w", err)
	}

	schemas, err := lru.New[string, *openapi.Schema](schemaCacheSize)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		bus:      bus,
		config:   config,
		sem:      semaphore.NewWeighted(config.Concurrency),
		tracer:   otelhelper.Tracer("playground-worker"),
		schemas:  schemas,
		breakers: map[string]*gobreaker.CircuitBreaker{},
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.client == nil {
		w.client = &http.Client{Timeout: config.RequestTimeout}
	}

	if w.loadSpec == nil {
		w.loadSpec = state.HTTPSpecLoader(w.client)
	}

	w.logger = logger.With("module", "worker", "worker_id", w.id)

	return w, nil
}

// Start registers the request handler and subscribes to the bus.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker subscriptions")

	if err := w.bus.Handle(events.RunVariantInputRowEvent, w.HandleRequest); err != nil {
		return err
	}

	return w.bus.Subscribe(ctx)
}

// Wait blocks until every accepted request has published its result.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// HandleRequest accepts a run request and processes it in the background once a slot is free.
func (w *Worker) HandleRequest(ctx context.Context, event any) error {
	req, ok := event.(*events.RunVariantInputRow)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for run request")

		return nil
	}

	if err := w.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		defer w.sem.Release(1)

		w.Process(ctx, req.Payload)
	}()

	return nil
}

// Process runs one request and publishes its result.
func (w *Worker) Process(ctx context.Context, req events.RunRequest) {
	variantID := req.Variant.ID

	attrs := append(otelhelper.RunAttributes(variantID, req.RowID, req.AppID, req.URI),
		attribute.String(otelhelper.WorkerIDKey, w.id))
	if req.ProjectID != "" {
		attrs = append(attrs, attribute.String(otelhelper.ProjectIDKey, req.ProjectID))
	}

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "runVariantInputRow", attrs...)
	defer span.End()

	logger := w.logger.With("variant_id", variantID, "row_id", req.RowID)
	logger.InfoContext(ctx, "Processing run request")

	result := w.Execute(ctx, req)
	if result.Failed() {
		otelhelper.SetError(span, errors.New(result.Error), attribute.Int(otelhelper.StatusCodeKey, result.Metadata.StatusCode))
		logger.WarnContext(ctx, "Run failed", "error", result.Error, "status_code", result.Metadata.StatusCode)
	}

	out := events.NewRunVariantInputRowResult(req.RowID, variantID, result)
	out.WorkerID = w.id

	if err := w.bus.Publish(ctx, req.RowID, out); err != nil {
		logger.ErrorContext(ctx, "Failed to publish run result", "error", err)
	}
}

// Execute performs the generation call. It never fails: every outcome is a result.
func (w *Worker) Execute(ctx context.Context, req events.RunRequest) models.RunResult {
	body := transform.TransformToRequestBody(req.Variant, req.InputRow, req.History)

	if w.config.ValidateRequests {
		if err := w.validateBody(ctx, req.URI, body); err != nil {
			return failure(err.Error(), models.ResultMetadata{Type: models.ErrorTypeValidation})
		}
	}

	endpoint, err := GenerateURL(req.URI, req.AppID, req.ProjectID)
	if err != nil {
		return failure(err.Error(), models.ResultMetadata{Type: models.ErrorTypeNetwork})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return failure(err.Error(), models.ResultMetadata{Type: models.ErrorTypeNetwork})
	}

	out, err := w.breaker(req.URI).Execute(func() (any, error) {
		return w.post(ctx, endpoint, payload, req.Headers)
	})
	if err == nil {
		resp, _ := out.(*models.APIResponse)

		return models.RunResult{
			Response: resp,
			Metadata: models.ResultMetadata{Timestamp: time.Now().UTC(), StatusCode: http.StatusOK},
		}
	}

	httpErr := &HTTPError{}
	if errors.As(err, &httpErr) {
		return failure(validation.ParseDetail(httpErr.Body), models.ResultMetadata{
			StatusCode: httpErr.StatusCode,
			RawError:   rawError(httpErr.Body),
		})
	}

	return failure(err.Error(), models.ResultMetadata{Type: models.ErrorTypeNetwork})
}

func (w *Worker) post(ctx context.Context, endpoint string, payload []byte, headers map[string]string) (*models.APIResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: respBody}
	}

	var out models.APIResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &out, nil
}

func (w *Worker) breaker(uri string) *gobreaker.CircuitBreaker {
	w.breakersMu.Lock()
	defer w.breakersMu.Unlock()

	if cb, ok := w.breakers[uri]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    uri,
		Timeout: w.config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= w.config.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			httpErr := &HTTPError{}
			if errors.As(err, &httpErr) {
				return httpErr.StatusCode < http.StatusInternalServerError
			}

			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			w.logger.Warn("Backend circuit changed state", "uri", name, "from", from.String(), "to", to.String())
		},
	})
	w.breakers[uri] = cb

	return cb
}

func (w *Worker) validateBody(ctx context.Context, uri string, body map[string]any) error {
	schema, ok := w.schemas.Get(uri)
	if !ok {
		doc, err := w.loadSpec(ctx, uri)
		if err != nil {
			return err
		}

		schema, err = openapi.RunRequestSchema(doc)
		if err != nil {
			return err
		}

		w.schemas.Add(uri, schema)
	}

	return openapi.ValidateBody(schema, body)
}

// GenerateURL is the generation endpoint of a backend. Empty query values are omitted.
func GenerateURL(uri, appID, projectID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(uri, "/") + "/generate")
	if err != nil {
		return "", fmt.Errorf("invalid backend uri %q: %w", uri, err)
	}

	q := u.Query()

	if appID != "" {
		q.Set("application_id", appID)
	}

	if projectID != "" {
		q.Set("project_id", projectID)
	}

	u.RawQuery = q.Encode()

	return u.String(), nil
}

func failure(msg string, md models.ResultMetadata) models.RunResult {
	md.Timestamp = time.Now().UTC()

	return models.RunResult{Error: msg, Metadata: md}
}

func rawError(body []byte) any {
	var v any
	if err := json.Unmarshal(body, &v); err == nil {
		return v
	}

	return string(body)
}

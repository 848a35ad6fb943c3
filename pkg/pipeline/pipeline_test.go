package pipeline_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/playground/pkg/channels/gochannel"
	"github.com/dukex/playground/pkg/content"
	"github.com/dukex/playground/pkg/eventbus"
	"github.com/dukex/playground/pkg/events"
	"github.com/dukex/playground/pkg/log"
	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/openapi"
	"github.com/dukex/playground/pkg/pipeline"
	"github.com/dukex/playground/pkg/state"
	"github.com/dukex/playground/pkg/testutil"
	"github.com/dukex/playground/pkg/transform"
)

const waitFor = 5 * time.Second

type call struct {
	body  map[string]any
	query url.Values
	auth  string
}

type backend struct {
	*httptest.Server

	mu    sync.Mutex
	calls []call
}

func newBackend(t *testing.T, status int, response string, gate <-chan struct{}) *backend {
	t.Helper()

	b := &backend{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		b.mu.Lock()
		b.calls = append(b.calls, call{body: body, query: r.URL.Query(), auth: r.Header.Get("Authorization")})
		b.mu.Unlock()

		if gate != nil {
			<-gate
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(b.Close)

	return b
}

func (b *backend) Calls() []call {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]call{}, b.calls...)
}

type env struct {
	store   *state.Store
	content *content.Store
	client  *pipeline.Client
	worker  *pipeline.Worker
}

func newStore(t *testing.T, spec string, records ...*models.VariantRecord) (*state.Store, *content.Store) {
	t.Helper()

	cs := content.NewStore(nil)
	tr := transform.New(cs)
	schema := testutil.RequestSchema(t, spec)
	doc := testutil.ParseSpec(t, spec)

	fetcher := state.FetcherFunc(func(context.Context) (*state.FetchResult, error) {
		variants := make([]*models.Variant, 0, len(records))

		for _, r := range records {
			v, err := tr.TransformVariant(r, schema)
			if err != nil {
				return nil, err
			}

			variants = append(variants, v)
		}

		return &state.FetchResult{Spec: doc, Variants: variants}, nil
	})

	s := state.NewStore(cs, tr, log.Discard(), state.WithFetcher(fetcher))
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Load(t.Context()))
	require.NoError(t, s.Flush(t.Context()))

	return s, cs
}

func newEnv(t *testing.T, spec string, records ...*models.VariantRecord) *env {
	t.Helper()

	s, cs := newStore(t, spec, records...)

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	client := pipeline.NewClient(eventbus.NewWatermillEventBus(pub, sub, log.Discard()), s, pipeline.ClientConfig{
		ProjectID: "project-1",
		Headers:   map[string]string{"Authorization": "Bearer token"},
	}, log.Discard())
	require.NoError(t, client.Start(t.Context()))

	worker, err := pipeline.NewWorker(eventbus.NewWatermillEventBus(pub, sub, log.Discard()), pipeline.DefaultWorkerConfig(), log.Discard())
	require.NoError(t, err)
	require.NoError(t, worker.Start(t.Context()))

	return &env{store: s, content: cs, client: client, worker: worker}
}

func (e *env) firstRow(t *testing.T) string {
	t.Helper()

	inputs := e.store.Snapshot().GenerationData.Inputs
	require.NotEmpty(t, inputs.Items)

	return inputs.Items[0].ID
}

func (e *env) setVariable(t *testing.T, rowID, key, value string) {
	t.Helper()

	_, err := e.store.Mutate(t.Context(), func(_ context.Context, st *models.State) (*models.State, error) {
		st.FindRow(rowID).Field(key).Value = value

		return st, nil
	}, state.MutateOptions{})
	require.NoError(t, err)
}

func (e *env) waitResult(t *testing.T, rowID, variantID string) *models.RunSlot {
	t.Helper()

	var slot *models.RunSlot

	require.Eventually(t, func() bool {
		slot = e.store.Snapshot().RunSlot(rowID, variantID)

		return slot != nil && !slot.IsRunning && slot.Result != nil
	}, waitFor, 10*time.Millisecond)

	return slot
}

func TestRunRowMergesResponse(t *testing.T) {
	gate := make(chan struct{})
	server := newBackend(t, http.StatusOK, `{"data": "Paris", "trace_id": "trace-1"}`, gate)

	e := newEnv(t, testutil.CompletionSpec, testutil.CreateTestRecord(testutil.WithURI(server.URL)))
	rowID := e.firstRow(t)
	e.setVariable(t, rowID, "country", "France")

	require.NoError(t, e.client.RunRow(t.Context(), "variant-1", rowID))

	slot := e.store.Snapshot().RunSlot(rowID, "variant-1")
	require.NotNil(t, slot)
	assert.True(t, slot.IsRunning)
	assert.Nil(t, slot.Result)

	close(gate)

	slot = e.waitResult(t, rowID, "variant-1")
	require.False(t, slot.Result.Failed())
	assert.Equal(t, "Paris", slot.Result.Response.Data)
	assert.Equal(t, http.StatusOK, slot.Result.Metadata.StatusCode)

	stored, err := e.content.ResponseLazy(slot.ResultRef)
	require.NoError(t, err)
	assert.Equal(t, "trace-1", stored.TraceID)

	calls := server.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]any{"country": "France"}, calls[0].body["inputs"])
	assert.Contains(t, calls[0].body["ag_config"], "prompt")
	assert.Equal(t, "app-1", calls[0].query.Get("application_id"))
	assert.Equal(t, "project-1", calls[0].query.Get("project_id"))
	assert.Equal(t, "Bearer token", calls[0].auth)
}

func TestRunRowReportsValidationDetail(t *testing.T) {
	detail := `{"detail": [{"type": "greater_than_equal", "loc": ["body", "ag_config", "prompt", "temperature"], "msg": "Input should be greater than or equal to 0", "ctx": {"ge": 0}}]}`
	server := newBackend(t, http.StatusUnprocessableEntity, detail, nil)

	e := newEnv(t, testutil.CompletionSpec, testutil.CreateTestRecord(testutil.WithURI(server.URL)))
	rowID := e.firstRow(t)

	require.NoError(t, e.client.RunRow(t.Context(), "variant-1", rowID))

	slot := e.waitResult(t, rowID, "variant-1")
	assert.Equal(t, "Temperature must be greater than equal 0", slot.Result.Error)
	assert.Equal(t, http.StatusUnprocessableEntity, slot.Result.Metadata.StatusCode)
	assert.NotNil(t, slot.Result.Metadata.RawError)
	assert.Nil(t, slot.Result.Response)
	assert.Empty(t, slot.ResultRef)
}

func TestRunRowReportsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	e := newEnv(t, testutil.CompletionSpec, testutil.CreateTestRecord(testutil.WithURI(server.URL)))
	rowID := e.firstRow(t)

	require.NoError(t, e.client.RunRow(t.Context(), "variant-1", rowID))

	slot := e.waitResult(t, rowID, "variant-1")
	assert.NotEmpty(t, slot.Result.Error)
	assert.Equal(t, models.ErrorTypeNetwork, slot.Result.Metadata.Type)
	assert.Zero(t, slot.Result.Metadata.StatusCode)
}

func TestDeletedRowDropsLateResult(t *testing.T) {
	gate := make(chan struct{})
	server := newBackend(t, http.StatusOK, `{"data": "Paris"}`, gate)

	e := newEnv(t, testutil.CompletionSpec, testutil.CreateTestRecord(testutil.WithURI(server.URL)))
	rowID := e.firstRow(t)

	require.NoError(t, e.client.RunRow(t.Context(), "variant-1", rowID))

	st, err := e.store.Mutate(t.Context(), func(_ context.Context, st *models.State) (*models.State, error) {
		if !st.DeleteRow(rowID) {
			return nil, pipeline.ErrRowNotFound
		}

		return st, nil
	}, state.MutateOptions{Op: "deleteRow"})
	require.NoError(t, err)
	require.Nil(t, st.FindRow(rowID))

	version := e.store.Version()

	close(gate)
	e.worker.Wait()

	require.Eventually(t, func() bool { return e.store.Version() > version }, waitFor, 10*time.Millisecond)

	after := e.store.Snapshot()
	assert.Nil(t, after.FindRow(rowID))
	assert.NotContains(t, after.GenerationData.Runs, rowID)
}

func TestHandleResultForRemovedVariant(t *testing.T) {
	s, _ := newStore(t, testutil.CompletionSpec, testutil.CreateTestRecord())
	client := pipeline.NewClient(nil, s, pipeline.ClientConfig{}, log.Discard())

	rowID := s.Snapshot().GenerationData.Inputs.Items[0].ID
	event := events.NewRunVariantInputRowResult(rowID, "removed", models.RunResult{Error: "late"})

	require.NoError(t, client.HandleResult(t.Context(), &event))
	assert.Nil(t, s.Snapshot().RunSlot(rowID, "removed"))
}

func TestPublishFailureWritesLocalError(t *testing.T) {
	s, _ := newStore(t, testutil.CompletionSpec, testutil.CreateTestRecord())

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)
	require.NoError(t, pub.Close())

	client := pipeline.NewClient(eventbus.NewWatermillEventBus(pub, sub, log.Discard()), s, pipeline.ClientConfig{}, log.Discard())
	rowID := s.Snapshot().GenerationData.Inputs.Items[0].ID

	require.NoError(t, client.RunRow(t.Context(), "variant-1", rowID))

	slot := s.Snapshot().RunSlot(rowID, "variant-1")
	require.NotNil(t, slot)
	assert.False(t, slot.IsRunning)
	assert.True(t, slot.Result.Failed())
	assert.Equal(t, models.ErrorTypeNetwork, slot.Result.Metadata.Type)
}

func TestRunUnknownTargets(t *testing.T) {
	s, _ := newStore(t, testutil.CompletionSpec, testutil.CreateTestRecord())
	client := pipeline.NewClient(nil, s, pipeline.ClientConfig{}, log.Discard())
	rowID := s.Snapshot().GenerationData.Inputs.Items[0].ID

	require.ErrorIs(t, client.RunRow(t.Context(), "missing", rowID), pipeline.ErrVariantNotFound)
	require.ErrorIs(t, client.RunRow(t.Context(), "variant-1", "missing"), pipeline.ErrRowNotFound)
	require.ErrorIs(t, client.RunChat(t.Context(), "variant-1", "missing"), pipeline.ErrRowNotFound)
	assert.Empty(t, s.Snapshot().GenerationData.Runs)
}

func TestRunAllDispatchesDisplayedVariants(t *testing.T) {
	server := newBackend(t, http.StatusOK, `{"data": "ok"}`, nil)

	e := newEnv(t, testutil.CompletionSpec,
		testutil.CreateTestRecord(testutil.WithURI(server.URL)),
		testutil.CreateTestRecord(testutil.WithID("variant-2"), testutil.WithName("app.second"), testutil.WithURI(server.URL)),
		testutil.CreateTestRecord(testutil.WithID("variant-3"), testutil.WithName("app.hidden"), testutil.WithURI(server.URL)),
	)

	_, err := e.store.Mutate(t.Context(), func(_ context.Context, st *models.State) (*models.State, error) {
		st.Selected = []string{"variant-1", "variant-2"}

		return st, nil
	}, state.MutateOptions{})
	require.NoError(t, err)

	rowID := e.firstRow(t)
	require.NoError(t, e.client.RunAll(t.Context()))

	e.waitResult(t, rowID, "variant-1")
	e.waitResult(t, rowID, "variant-2")

	assert.Len(t, server.Calls(), 2)
	assert.Nil(t, e.store.Snapshot().RunSlot(rowID, "variant-3"))
}

func TestRunChatSendsHistory(t *testing.T) {
	server := newBackend(t, http.StatusOK, `{"data": "Hi there"}`, nil)

	e := newEnv(t, testutil.ChatSpec, testutil.CreateTestRecord(testutil.WithURI(server.URL)))

	st := e.store.Snapshot()
	require.True(t, st.FindVariantByID("variant-1").IsChat)
	require.Len(t, st.GenerationData.Messages.Items, 1)

	chat := st.GenerationData.Messages.Items[0]
	msg := chat.Field(models.RowHistory).Items[0]

	_, err := e.store.Mutate(t.Context(), func(_ context.Context, st *models.State) (*models.State, error) {
		st.FindRow(msg.ID).Field(models.MessageContent).Value = "Hello"

		return st, nil
	}, state.MutateOptions{})
	require.NoError(t, err)

	require.NoError(t, e.client.RunChat(t.Context(), "variant-1", chat.ID))

	slot := e.waitResult(t, chat.ID, "variant-1")
	assert.Equal(t, "Hi there", slot.Result.Response.Data)

	calls := server.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []any{map[string]any{"role": "user", "content": "Hello"}}, calls[0].body["messages"])
}

func TestGenerateURL(t *testing.T) {
	tests := []struct {
		name      string
		uri       string
		appID     string
		projectID string
		want      string
	}{
		{name: "both", uri: "http://svc", appID: "a", projectID: "p", want: "http://svc/generate?application_id=a&project_id=p"},
		{name: "app only", uri: "http://svc/", appID: "a", want: "http://svc/generate?application_id=a"},
		{name: "none", uri: "http://svc/app", want: "http://svc/app/generate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pipeline.GenerateURL(tt.uri, tt.appID, tt.projectID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func runRequest(t *testing.T, uri string, overrides ...func(*models.VariantRecord)) events.RunRequest {
	t.Helper()

	tr := transform.New(content.NewStore(nil))
	record := testutil.CreateTestRecord(append([]func(*models.VariantRecord){testutil.WithURI(uri)}, overrides...)...)

	v, err := tr.TransformVariant(record, testutil.RequestSchema(t, testutil.CompletionSpec))
	require.NoError(t, err)

	return events.RunRequest{Variant: v, RowID: "row-1", URI: uri}
}

func TestBreakerOpensAfterServerErrors(t *testing.T) {
	server := newBackend(t, http.StatusInternalServerError, `{"detail": "boom"}`, nil)

	cfg := pipeline.DefaultWorkerConfig()
	cfg.BreakerFailures = 2

	worker, err := pipeline.NewWorker(nil, cfg, log.Discard())
	require.NoError(t, err)

	req := runRequest(t, server.URL)

	for range 2 {
		result := worker.Execute(t.Context(), req)
		assert.Equal(t, "boom", result.Error)
		assert.Equal(t, http.StatusInternalServerError, result.Metadata.StatusCode)
	}

	result := worker.Execute(t.Context(), req)
	assert.Equal(t, models.ErrorTypeNetwork, result.Metadata.Type)
	assert.Contains(t, result.Error, "circuit breaker is open")
	assert.Len(t, server.Calls(), 2)
}

func TestClientErrorsKeepBreakerClosed(t *testing.T) {
	server := newBackend(t, http.StatusBadRequest, `{"detail": "bad request"}`, nil)

	cfg := pipeline.DefaultWorkerConfig()
	cfg.BreakerFailures = 1

	worker, err := pipeline.NewWorker(nil, cfg, log.Discard())
	require.NoError(t, err)

	req := runRequest(t, server.URL)

	for range 3 {
		assert.Equal(t, "bad request", worker.Execute(t.Context(), req).Error)
	}

	assert.Len(t, server.Calls(), 3)
}

func TestValidateRequestsRejectsBody(t *testing.T) {
	server := newBackend(t, http.StatusOK, `{"data": "never"}`, nil)

	cfg := pipeline.DefaultWorkerConfig()
	cfg.ValidateRequests = true

	loads := 0
	loader := func(context.Context, string) (*openapi.Document, error) {
		loads++

		return testutil.ParseSpec(t, testutil.CompletionSpec), nil
	}

	worker, err := pipeline.NewWorker(nil, cfg, log.Discard(), pipeline.WithSpecLoader(loader))
	require.NoError(t, err)

	invalid := runRequest(t, server.URL, testutil.WithParameters(map[string]any{
		"prompt": map[string]any{
			"messages":   []any{map[string]any{"role": "user", "content": "hi"}},
			"llm_config": map[string]any{"model": "gpt-4o", "temperature": -1.0},
		},
	}))

	result := worker.Execute(t.Context(), invalid)
	assert.Equal(t, models.ErrorTypeValidation, result.Metadata.Type)
	assert.NotEmpty(t, result.Error)
	assert.Empty(t, server.Calls())

	result = worker.Execute(t.Context(), runRequest(t, server.URL))
	assert.False(t, result.Failed())
	assert.Equal(t, 1, loads)
}

func TestInvalidWorkerConfig(t *testing.T) {
	cfg := pipeline.DefaultWorkerConfig()
	cfg.Concurrency = 0

	_, err := pipeline.NewWorker(nil, cfg, log.Discard())
	require.Error(t, err)
}

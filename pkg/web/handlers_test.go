package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/playground/pkg/content"
	"github.com/dukex/playground/pkg/dirty"
	"github.com/dukex/playground/pkg/log"
	"github.com/dukex/playground/pkg/middleware"
	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/notify"
	"github.com/dukex/playground/pkg/openapi"
	"github.com/dukex/playground/pkg/persistence/file"
	"github.com/dukex/playground/pkg/services"
	"github.com/dukex/playground/pkg/state"
	"github.com/dukex/playground/pkg/testutil"
	"github.com/dukex/playground/pkg/transform"
	"github.com/dukex/playground/pkg/web"
)

type runCall struct {
	kind, variantID, rowID string
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []runCall
}

func (r *fakeRunner) record(kind, variantID, rowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, runCall{kind, variantID, rowID})

	return nil
}

func (r *fakeRunner) RunRow(_ context.Context, variantID, rowID string) error {
	return r.record("row", variantID, rowID)
}

func (r *fakeRunner) RunChat(_ context.Context, variantID, rowID string) error {
	return r.record("chat", variantID, rowID)
}

func (r *fakeRunner) RunAll(context.Context) error {
	return r.record("all", "", "")
}

func (r *fakeRunner) Calls() []runCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]runCall(nil), r.calls...)
}

type testApp struct {
	app    *fiber.App
	store  *state.Store
	runner *fakeRunner
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()

	repo := file.NewPersistence(t.TempDir())
	require.NoError(t, repo.SaveVariant(t.Context(), testutil.CreateTestRecord(testutil.WithRevision(0))))

	cs := content.NewStore(nil)
	tr := transform.New(cs)
	doc := testutil.ParseSpec(t, testutil.CompletionSpec)
	loader := state.SpecLoader(func(context.Context, string) (*openapi.Document, error) { return doc, nil })

	tracker := dirty.NewTracker(cs, log.Discard())
	store := state.NewStore(cs, tr, log.Discard(),
		state.WithFetcher(state.NewRemoteFetcher(repo, loader, tr, log.Discard())),
		state.WithCommitHook(tracker),
	)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Load(t.Context()))
	require.NoError(t, store.Flush(t.Context()))

	variants := services.NewVariants(repo, store, notify.Discard{}, log.Discard())
	runner := &fakeRunner{}

	hook := middleware.New(store, middleware.Services{
		Runner:   runner,
		Variants: variants,
		Tracker:  tracker,
		Logger:   log.Discard(),
	})

	handlers := web.NewAPIHandlers(hook, store, variants, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	handlers.Register(app)

	return &testApp{app: app, store: store, runner: runner}
}

func (a *testApp) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, out
}

func problemType(t *testing.T, body []byte) string {
	t.Helper()

	var problem map[string]any
	require.NoError(t, json.Unmarshal(body, &problem))

	kind, _ := problem["type"].(string)

	return kind
}

func temperatureID(t *testing.T, store *state.Store) string {
	t.Helper()

	node := store.Snapshot().FindVariantByID("variant-1").Prompt("prompt").LLMConfig().Field("temperature")
	require.NotNil(t, node)

	return node.ID
}

func TestGetState(t *testing.T) {
	a := setupTestApp(t)

	status, body := a.do(t, http.MethodGet, "/state", nil)
	require.Equal(t, http.StatusOK, status)

	var resp web.StateResponse
	require.NoError(t, json.Unmarshal(body, &resp))

	require.Len(t, resp.Variants, 1)
	assert.Equal(t, "app.default", resp.Variants[0].VariantName)
	assert.True(t, resp.Variants[0].Displayed)
	assert.False(t, resp.Variants[0].Dirty)
	assert.Equal(t, []string{"variant-1"}, resp.Selected)
	assert.Empty(t, resp.Error)
}

func TestGetVariant(t *testing.T) {
	a := setupTestApp(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "existing", path: "/variants/variant-1", wantStatus: http.StatusOK},
		{name: "missing", path: "/variants/missing", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := a.do(t, http.MethodGet, tt.path, nil)
			require.Equal(t, tt.wantStatus, status)

			if status == http.StatusNotFound {
				assert.Equal(t, "variant_not_found", problemType(t, body))
			}
		})
	}

	status, body := a.do(t, http.MethodGet, "/variants", nil)
	require.Equal(t, http.StatusOK, status)

	var list []web.VariantSummary
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 1)
}

func TestEditDirtySaveFlow(t *testing.T) {
	a := setupTestApp(t)
	propertyID := temperatureID(t, a.store)

	status, body := a.do(t, http.MethodPatch, "/variants/variant-1/properties/"+propertyID, web.UpdatePropertyRequest{Value: 0.7})
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = a.do(t, http.MethodGet, "/variants/variant-1/dirty", nil)
	require.Equal(t, http.StatusOK, status)

	var dirtyResp web.DirtyResponse
	require.NoError(t, json.Unmarshal(body, &dirtyResp))
	assert.True(t, dirtyResp.Dirty)
	require.NotNil(t, dirtyResp.Changes)
	assert.False(t, dirtyResp.Changes.Empty())

	status, body = a.do(t, http.MethodPost, "/variants/variant-1/save", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var saved models.Variant
	require.NoError(t, json.Unmarshal(body, &saved))
	assert.Equal(t, 2, saved.Revision)

	status, body = a.do(t, http.MethodGet, "/variants/variant-1/dirty", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &dirtyResp))
	assert.False(t, dirtyResp.Dirty)
}

func TestUpdatePropertyErrors(t *testing.T) {
	a := setupTestApp(t)
	propertyID := temperatureID(t, a.store)

	tests := []struct {
		name       string
		path       string
		value      any
		wantStatus int
		wantType   string
	}{
		{name: "out of range", path: "/variants/variant-1/properties/" + propertyID, value: 5, wantStatus: http.StatusBadRequest, wantType: "validation_error"},
		{name: "unknown property", path: "/variants/variant-1/properties/nope", value: 1, wantStatus: http.StatusNotFound, wantType: "property_not_found"},
		{name: "unknown variant", path: "/variants/missing/properties/" + propertyID, value: 1, wantStatus: http.StatusNotFound, wantType: "variant_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := a.do(t, http.MethodPatch, tt.path, web.UpdatePropertyRequest{Value: tt.value})
			require.Equal(t, tt.wantStatus, status, string(body))
			assert.Equal(t, tt.wantType, problemType(t, body))
		})
	}
}

func TestCreateAndDeleteVariant(t *testing.T) {
	a := setupTestApp(t)

	status, body := a.do(t, http.MethodPost, "/variants", web.CreateVariantRequest{BaseVariantID: "variant-1", Name: "fork"})
	require.Equal(t, http.StatusCreated, status, string(body))

	var created models.Variant
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "app.fork", created.VariantName)

	status, body = a.do(t, http.MethodPost, "/variants", web.CreateVariantRequest{BaseVariantID: "variant-1", Name: "fork"})
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", problemType(t, body))

	status, _ = a.do(t, http.MethodPost, "/variants", map[string]any{"base_variant_id": "variant-1"})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(t, http.MethodDelete, "/variants/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, status)
	assert.Nil(t, a.store.Snapshot().FindVariantByID(created.ID))

	status, _ = a.do(t, http.MethodDelete, "/variants/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestSetSelection(t *testing.T) {
	a := setupTestApp(t)

	status, _ := a.do(t, http.MethodPut, "/selection", web.SelectionRequest{VariantIDs: []string{"missing"}})
	require.Equal(t, http.StatusNotFound, status)

	status, _ = a.do(t, http.MethodPut, "/selection", web.SelectionRequest{})
	require.Equal(t, http.StatusBadRequest, status)

	status, body := a.do(t, http.MethodPut, "/selection", web.SelectionRequest{VariantIDs: []string{"variant-1"}})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"selected":["variant-1"]}`, string(body))
}

func TestRowsAndRuns(t *testing.T) {
	a := setupTestApp(t)

	status, body := a.do(t, http.MethodPost, "/rows", web.AddRowRequest{})
	require.Equal(t, http.StatusCreated, status)

	var added map[string]string
	require.NoError(t, json.Unmarshal(body, &added))

	rowID := added["id"]
	require.NotEmpty(t, rowID)

	status, body = a.do(t, http.MethodPatch, "/rows/"+rowID, web.UpdateRowRequest{Key: "country", Value: "France"})
	require.Equal(t, http.StatusNoContent, status, string(body))
	assert.Equal(t, "France", a.store.Snapshot().FindRow(rowID).Field("country").Value)

	status, _ = a.do(t, http.MethodPost, "/runs", web.RunRequest{RowID: rowID})
	require.Equal(t, http.StatusAccepted, status)

	status, _ = a.do(t, http.MethodPost, "/runs", nil)
	require.Equal(t, http.StatusAccepted, status)

	assert.Equal(t, []runCall{{"row", "variant-1", rowID}, {"all", "", ""}}, a.runner.Calls())

	status, _ = a.do(t, http.MethodDelete, "/rows/"+rowID, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, body = a.do(t, http.MethodDelete, "/rows/"+rowID, nil)
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "row_not_found", problemType(t, body))

	status, _ = a.do(t, http.MethodPost, "/runs", web.RunRequest{RowID: rowID})
	require.Equal(t, http.StatusNotFound, status)
}

func TestHealthAndRevalidate(t *testing.T) {
	a := setupTestApp(t)

	status, body := a.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"healthy"`)

	status, _ = a.do(t, http.MethodPost, "/revalidate", nil)
	require.Equal(t, http.StatusOK, status)
}

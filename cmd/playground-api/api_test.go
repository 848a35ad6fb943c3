package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/playground/pkg/cmd"
	"github.com/dukex/playground/pkg/log"
	"github.com/dukex/playground/pkg/middleware"
	"github.com/dukex/playground/pkg/notify"
	"github.com/dukex/playground/pkg/openapi"
	"github.com/dukex/playground/pkg/persistence/file"
	"github.com/dukex/playground/pkg/services"
	"github.com/dukex/playground/pkg/testutil"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	repo := file.NewPersistence(t.TempDir())
	require.NoError(t, repo.SaveVariant(t.Context(), testutil.CreateTestRecord()))

	doc := testutil.ParseSpec(t, testutil.CompletionSpec)
	session := cmd.NewSession(repo, func(context.Context, string) (*openapi.Document, error) { return doc, nil }, log.Discard())
	t.Cleanup(func() { _ = session.Store.Close() })

	require.NoError(t, session.Store.Load(t.Context()))

	variants := services.NewVariants(repo, session.Store, notify.Discard{}, log.Discard())
	hook := middleware.New(session.Store, middleware.Services{
		Variants: variants,
		Tracker:  session.Tracker,
		Logger:   log.Discard(),
	})

	return NewAPI(log.Discard(), hook, session.Store, variants).App()
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	app := setupTestApp(t)

	status, body := get(t, app, "/")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Playground API", body)
}

func TestAPI_HealthCheck(t *testing.T) {
	app := setupTestApp(t)

	status, body := get(t, app, "/livez")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)
}

func TestAPI_Readiness(t *testing.T) {
	app := setupTestApp(t)

	status, _ := get(t, app, "/readyz")

	assert.Equal(t, http.StatusOK, status)
}

func TestAPI_ShutdownBeforeStart(t *testing.T) {
	api := NewAPI(log.Discard(), nil, nil, nil)

	require.NoError(t, api.Shutdown(t.Context()))
}

func TestSetupTracer_Disabled(t *testing.T) {
	tracer, shutdown, err := setupTracer(t.Context(), false)
	require.NoError(t, err)

	assert.NotNil(t, tracer)
	require.NoError(t, shutdown(t.Context()))
}

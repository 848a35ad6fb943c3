package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/playground/pkg/content"
	"github.com/dukex/playground/pkg/dirty"
	"github.com/dukex/playground/pkg/log"
	"github.com/dukex/playground/pkg/mocks"
	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/notify"
	"github.com/dukex/playground/pkg/openapi"
	"github.com/dukex/playground/pkg/persistence"
	"github.com/dukex/playground/pkg/persistence/file"
	"github.com/dukex/playground/pkg/services"
	"github.com/dukex/playground/pkg/state"
	"github.com/dukex/playground/pkg/testutil"
	"github.com/dukex/playground/pkg/transform"
)

type env struct {
	store    *state.Store
	repo     persistence.Persistence
	svc      *services.Variants
	notifier *notify.Recorder
}

func newEnv(t *testing.T, repo persistence.Persistence) *env {
	t.Helper()

	cs := content.NewStore(nil)
	tr := transform.New(cs)
	doc := testutil.ParseSpec(t, testutil.CompletionSpec)

	loader := state.SpecLoader(func(context.Context, string) (*openapi.Document, error) { return doc, nil })
	fetcher := state.NewRemoteFetcher(repo, loader, tr, log.Discard())

	store := state.NewStore(cs, tr, log.Discard(),
		state.WithFetcher(fetcher),
		state.WithCommitHook(dirty.NewTracker(cs, log.Discard())),
	)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Load(t.Context()))
	require.NoError(t, store.Flush(t.Context()))

	recorder := notify.NewRecorder()

	return &env{
		store:    store,
		repo:     repo,
		svc:      services.NewVariants(repo, store, recorder, log.Discard()),
		notifier: recorder,
	}
}

func fileRepo(t *testing.T, records ...*models.VariantRecord) *file.Persistence {
	t.Helper()

	repo := file.NewPersistence(t.TempDir())
	for _, r := range records {
		require.NoError(t, repo.SaveVariant(t.Context(), r))
	}

	return repo
}

func setTemperature(t *testing.T, store *state.Store, variantID string, value float64) {
	t.Helper()

	_, err := store.Mutate(t.Context(), func(_ context.Context, st *models.State) (*models.State, error) {
		st.FindVariantByID(variantID).Prompt("prompt").LLMConfig().Field("temperature").Value = value

		return st, nil
	}, state.MutateOptions{Op: "edit"})
	require.NoError(t, err)
}

func TestSaveClearsDirtyAndBumpsRevision(t *testing.T) {
	e := newEnv(t, fileRepo(t, testutil.CreateTestRecord(testutil.WithRevision(0))))
	require.Equal(t, 1, e.store.Snapshot().FindVariantByID("variant-1").Revision)

	setTemperature(t, e.store, "variant-1", 0.9)
	require.True(t, e.store.Snapshot().DirtyStates["variant-1"])

	saved, err := e.svc.Save(t.Context(), "variant-1")
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Revision)
	assert.False(t, saved.IsMutating)

	st := e.store.Snapshot()
	assert.False(t, st.DirtyStates["variant-1"])
	assert.Equal(t, e.store.Content().HashVariant(st.FindVariantByID("variant-1")), st.DataRef["variant-1"])

	record, err := e.repo.VariantByID(t.Context(), "variant-1")
	require.NoError(t, err)
	assert.Equal(t, 2, record.Revision)

	prompt, _ := record.Parameters["prompt"].(map[string]any)
	llm, _ := prompt["llm_config"].(map[string]any)
	assert.InDelta(t, 0.9, llm["temperature"], 1e-9)

	msg, ok := e.notifier.Last(notify.LevelSuccess)
	require.True(t, ok)
	assert.Contains(t, msg.Message, "saved")
}

func TestSaveFailureKeepsEditsDirty(t *testing.T) {
	repo := &mocks.MockPersistence{}
	repo.On("Variants", mock.Anything).Return([]*models.VariantRecord{testutil.CreateTestRecord()}, nil)
	repo.On("SaveVariant", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	e := newEnv(t, repo)
	setTemperature(t, e.store, "variant-1", 0.9)

	_, err := e.svc.Save(t.Context(), "variant-1")
	require.ErrorContains(t, err, "disk full")

	st := e.store.Snapshot()
	assert.True(t, st.DirtyStates["variant-1"])
	assert.False(t, st.FindVariantByID("variant-1").IsMutating)
	assert.Equal(t, 1, st.FindVariantByID("variant-1").Revision)

	_, ok := e.notifier.Last(notify.LevelError)
	assert.True(t, ok)
	repo.AssertExpectations(t)
}

func TestSaveUnknownVariant(t *testing.T) {
	e := newEnv(t, fileRepo(t, testutil.CreateTestRecord()))

	_, err := e.svc.Save(t.Context(), "missing")
	require.ErrorIs(t, err, services.ErrVariantNotFound)
}

func TestDeleteRemovesVariantAndFixesSelection(t *testing.T) {
	e := newEnv(t, fileRepo(t,
		testutil.CreateTestRecord(testutil.WithID("variant-1")),
		testutil.CreateTestRecord(testutil.WithID("variant-2"), testutil.WithName("app.second")),
	))
	require.Equal(t, []string{"variant-1"}, e.store.Snapshot().Selected)

	require.NoError(t, e.svc.Delete(t.Context(), "variant-1"))

	st := e.store.Snapshot()
	assert.Nil(t, st.FindVariantByID("variant-1"))
	assert.Equal(t, []string{"variant-2"}, st.Selected)
	assert.NotContains(t, st.DataRef, "variant-1")

	_, err := e.repo.VariantByID(t.Context(), "variant-1")
	assert.True(t, persistence.IsVariantNotFound(err))
}

func TestDeleteMissingFromPersistenceStillRemovesLocally(t *testing.T) {
	repo := &mocks.MockPersistence{}
	repo.On("Variants", mock.Anything).Return([]*models.VariantRecord{testutil.CreateTestRecord()}, nil)
	repo.On("DeleteVariant", mock.Anything, "variant-1").
		Return(persistence.NewVariantError("DeleteVariant", "variant-1", persistence.ErrVariantNotFound))

	e := newEnv(t, repo)

	require.NoError(t, e.svc.Delete(t.Context(), "variant-1"))
	assert.Empty(t, e.store.Snapshot().Variants)
}

func TestCreateFromBase(t *testing.T) {
	e := newEnv(t, fileRepo(t, testutil.CreateTestRecord()))
	setTemperature(t, e.store, "variant-1", 1.5)

	created, err := e.svc.CreateFromBase(t.Context(), "variant-1", "experiment")
	require.NoError(t, err)

	assert.NotEqual(t, "variant-1", created.ID)
	assert.Equal(t, "app.experiment", created.VariantName)
	assert.Equal(t, "app.default", created.TemplateVariantName)
	assert.Equal(t, 1, created.Revision)

	base := e.store.Snapshot().FindVariantByID("variant-1")
	assert.NotEqual(t, base.Prompt("prompt").Node.ID, created.Prompt("prompt").Node.ID)
	assert.Equal(t, transform.AgConfig(base), transform.AgConfig(created))

	st := e.store.Snapshot()
	assert.Contains(t, st.Selected, created.ID)
	assert.False(t, st.DirtyStates[created.ID])
	assert.True(t, st.DirtyStates["variant-1"], "base keeps its unsaved edits")

	record, err := e.repo.VariantByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "app.experiment", record.VariantName)
}

func TestCreateFromBaseRejectsBadNames(t *testing.T) {
	e := newEnv(t, fileRepo(t, testutil.CreateTestRecord()))

	tests := []struct {
		name    string
		baseID  string
		newName string
		check   func(error) bool
	}{
		{name: "empty name", baseID: "variant-1", newName: "  ", check: services.IsValidationError},
		{name: "duplicate name", baseID: "variant-1", newName: "default", check: services.IsConflictError},
		{name: "unknown base", baseID: "missing", newName: "x", check: persistence.IsVariantNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.CreateFromBase(t.Context(), tt.baseID, tt.newName)
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}
}

func TestHealthCheck(t *testing.T) {
	e := newEnv(t, fileRepo(t, testutil.CreateTestRecord()))

	msg, ok := e.svc.HealthCheck(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", msg)
}

type blockingSaves struct {
	persistence.Persistence
	started chan struct{}
	release chan struct{}
}

func (b *blockingSaves) SaveVariant(ctx context.Context, record *models.VariantRecord) error {
	close(b.started)
	<-b.release

	return b.Persistence.SaveVariant(ctx, record)
}

func TestEditDuringSaveStaysDirty(t *testing.T) {
	repo := &blockingSaves{
		Persistence: fileRepo(t, testutil.CreateTestRecord()),
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	e := newEnv(t, repo)

	setTemperature(t, e.store, "variant-1", 0.9)

	errCh := make(chan error, 1)

	go func() {
		_, err := e.svc.Save(t.Context(), "variant-1")
		errCh <- err
	}()

	<-repo.started
	setTemperature(t, e.store, "variant-1", 0.3)
	close(repo.release)
	require.NoError(t, <-errCh)

	record, err := e.repo.VariantByID(t.Context(), "variant-1")
	require.NoError(t, err)

	prompt, _ := record.Parameters["prompt"].(map[string]any)
	llm, _ := prompt["llm_config"].(map[string]any)
	assert.InDelta(t, 0.9, llm["temperature"], 1e-9)

	st := e.store.Snapshot()
	v := st.FindVariantByID("variant-1")
	assert.True(t, st.DirtyStates["variant-1"])
	assert.False(t, v.IsMutating)
	assert.Equal(t, record.Revision, v.Revision)
	assert.InDelta(t, 0.3, v.Prompt("prompt").LLMConfig().Field("temperature").Value, 1e-9)
}

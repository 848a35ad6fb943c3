package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/persistence"
	"github.com/dukex/playground/pkg/persistence/postgresql"
	"github.com/dukex/playground/pkg/testutil"
)

var postgresContainer *postgres.PostgresContainer

var _ persistence.Persistence = (*postgresql.Persistence)(nil)

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"environments", "variants", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("playground_test"),
			postgres.WithUsername("playground"),
			postgres.WithPassword("playground"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"variants", "environments"} {
		var exists bool

		err = db.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	again, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)
	require.NoError(t, again.Close(ctx))
}

func TestVariantLifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	require.NoError(t, p.HealthCheck(ctx))

	record := testutil.CreateTestRecord(testutil.WithRevision(0))
	require.NoError(t, p.SaveVariant(ctx, record))
	assert.Equal(t, 1, record.Revision)

	loaded, err := p.VariantByID(ctx, "variant-1")
	require.NoError(t, err)
	assert.Equal(t, record.Parameters, loaded.Parameters)
	assert.True(t, record.UpdatedAt.Equal(loaded.UpdatedAt))

	stale := testutil.CreateTestRecord(testutil.WithRevision(0))
	require.NoError(t, p.SaveVariant(ctx, stale))
	assert.Equal(t, 2, stale.Revision)

	require.NoError(t, p.SaveVariant(ctx, testutil.CreateTestRecord(testutil.WithID("variant-0"))))

	records, err := p.Variants(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "variant-0", records[0].ID)

	require.NoError(t, p.DeleteVariant(ctx, "variant-1"))
	require.True(t, persistence.IsVariantNotFound(p.DeleteVariant(ctx, "variant-1")))

	_, err = p.VariantByID(ctx, "variant-1")
	require.True(t, persistence.IsVariantNotFound(err))

	err = p.SaveVariant(ctx, &models.VariantRecord{ID: "broken"})
	require.ErrorIs(t, err, persistence.ErrInvalidVariant)
}

func TestEnvironments(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	require.NoError(t, p.SaveEnvironment(ctx, &models.Environment{Name: "staging", AppID: "app-1"}))
	require.NoError(t, p.SaveEnvironment(ctx, &models.Environment{Name: "staging", AppID: "app-1", DeployedVariantID: "variant-1"}))

	envs, err := p.Environments(ctx)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, "variant-1", envs[0].DeployedVariantID)
}

package persistence_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/persistence"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		err := persistence.NewVariantError("GetByID", "variant-123", persistence.ErrVariantNotFound)

		assert.True(t, persistence.IsVariantNotFound(err))
		assert.False(t, persistence.IsEnvironmentNotFound(err))
		assert.True(t, errors.Is(err, persistence.ErrVariantNotFound))
	})

	t.Run("variant error contains context", func(t *testing.T) {
		err := persistence.NewVariantError("SaveVariant", "variant-123", persistence.ErrInvalidVariant, "uri is required")

		assert.Contains(t, err.Error(), "SaveVariant")
		assert.Contains(t, err.Error(), "variant-123")
		assert.Contains(t, err.Error(), "uri is required")
		assert.Contains(t, err.Error(), "invalid variant")
	})
}

func TestValidateRecord(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, persistence.ValidateRecord(nil), persistence.ErrInvalidVariant)
	require.ErrorIs(t, persistence.ValidateRecord(&models.VariantRecord{ID: "v1"}), persistence.ErrInvalidVariant)
	require.NoError(t, persistence.ValidateRecord(&models.VariantRecord{ID: "v1", URI: "http://svc", VariantName: "app.v1"}))
}

func TestStamp(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		record  int
		current *models.VariantRecord
		want    int
	}{
		{name: "new variant", record: 0, want: 1},
		{name: "edited from current", record: 3, current: &models.VariantRecord{Revision: 3}, want: 4},
		{name: "edited from stale copy", record: 2, current: &models.VariantRecord{Revision: 5}, want: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := &models.VariantRecord{Revision: tt.record}
			persistence.Stamp(record, tt.current, now)

			assert.Equal(t, tt.want, record.Revision)
			assert.Equal(t, now, record.UpdatedAt)
		})
	}
}

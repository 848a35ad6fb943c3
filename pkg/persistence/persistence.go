// Package persistence provides the storage abstraction for saved variants and environments.
package persistence

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dukex/playground/pkg/models"
)

type Persistence interface {
	Variants(ctx context.Context) ([]*models.VariantRecord, error)
	VariantByID(ctx context.Context, id string) (*models.VariantRecord, error)
	// SaveVariant creates or replaces a variant. It bumps the revision past the stored one and
	// stamps UpdatedAt on record.
	SaveVariant(ctx context.Context, record *models.VariantRecord) error
	DeleteVariant(ctx context.Context, id string) error

	Environments(ctx context.Context) ([]*models.Environment, error)
	SaveEnvironment(ctx context.Context, env *models.Environment) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateRecord checks the required fields of a record before it is stored.
func ValidateRecord(record *models.VariantRecord) error {
	if record == nil {
		return ErrInvalidVariant
	}

	if err := validate.Struct(record); err != nil {
		return NewVariantError("Validate", record.ID, ErrInvalidVariant, err.Error())
	}

	return nil
}

// Stamp prepares record to replace current, which is nil for a new variant. The new revision is
// one past the higher of the two.
func Stamp(record, current *models.VariantRecord, now time.Time) {
	revision := record.Revision
	if current != nil && current.Revision > revision {
		revision = current.Revision
	}

	record.Revision = revision + 1
	record.UpdatedAt = now.UTC()
}

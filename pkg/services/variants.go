package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"github.com/dukex/playground/pkg/enhanced"
	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/notify"
	"github.com/dukex/playground/pkg/persistence"
	"github.com/dukex/playground/pkg/state"
	"github.com/dukex/playground/pkg/transform"
)

// Variants saves, deletes and forks variants. Every change goes to persistence first and is then
// committed to the store, so the dirty tracker adopts the persisted revision as the new baseline.
type Variants struct {
	persistence persistence.Persistence
	store       *state.Store
	notifier    notify.Notifier
	logger      *slog.Logger
	newID       func() string
}

// NewVariants creates a new variant service.
func NewVariants(p persistence.Persistence, store *state.Store, notifier notify.Notifier, logger *slog.Logger) *Variants {
	if notifier == nil {
		notifier = notify.Discard{}
	}

	return &Variants{
		persistence: p,
		store:       store,
		notifier:    notifier,
		logger:      logger.With("module", "variants_service"),
		newID:       uuid.NewString,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Variants) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Environments lists the deployment targets.
func (s *Variants) Environments(ctx context.Context) ([]*models.Environment, error) {
	return s.persistence.Environments(ctx)
}

// Save persists the current local version of a variant. The saved revision and update time are
// written back and the saved version becomes the dirty baseline.
func (s *Variants) Save(ctx context.Context, variantID string) (*models.Variant, error) {
	variant, err := s.markMutating(ctx, "save-start", variantID)
	if err != nil {
		return nil, err
	}

	record, err := transform.DeflateVariant(variant)
	if err == nil {
		err = s.persistence.SaveVariant(ctx, record)
	}

	if err != nil {
		s.clearMutating(ctx, variantID)
		s.notifier.Error(ctx, "Failed to save changes", err)

		return nil, fmt.Errorf("failed to save variant %s: %w", variantID, err)
	}

	saved := variant.Clone()
	saved.Revision = record.Revision
	saved.UpdatedAt = record.UpdatedAt
	saved.IsMutating = false

	st, err := s.store.Mutate(ctx, func(_ context.Context, st *models.State) (*models.State, error) {
		v := st.FindVariantByID(variantID)
		if v == nil {
			return st, nil
		}

		v.Revision = record.Revision
		v.UpdatedAt = record.UpdatedAt
		v.IsMutating = false

		// The baseline is what was written, not the current version: edits made while the save
		// was in flight stay dirty.
		if st.DataRef == nil {
			st.DataRef = map[string]enhanced.Digest{}
		}

		st.DataRef[variantID] = s.store.Content().HashVariant(saved)

		return st, nil
	}, state.MutateOptions{Op: "save"})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Variant saved", "variant_id", variantID, "revision", record.Revision)
	s.notifier.Success(ctx, "Changes saved successfully!")

	return st.FindVariantByID(variantID), nil
}

// Delete removes a variant from persistence and from the session. A variant already missing from
// persistence is still removed locally.
func (s *Variants) Delete(ctx context.Context, variantID string) error {
	if _, err := s.markMutating(ctx, "delete-start", variantID); err != nil {
		return err
	}

	err := s.persistence.DeleteVariant(ctx, variantID)
	if err != nil && !persistence.IsVariantNotFound(err) {
		s.clearMutating(ctx, variantID)
		s.notifier.Error(ctx, "Failed to remove variant", err)

		return fmt.Errorf("failed to delete variant %s: %w", variantID, err)
	}

	_, err = s.store.Mutate(ctx, func(_ context.Context, st *models.State) (*models.State, error) {
		st.Variants = slices.DeleteFunc(st.Variants, func(v *models.Variant) bool { return v.ID == variantID })
		st.Selected = slices.DeleteFunc(st.Selected, func(id string) bool { return id == variantID })

		if len(st.Selected) == 0 && len(st.Variants) > 0 {
			st.Selected = append(st.Selected, st.Variants[0].ID)
		}

		st.PruneRuns()
		state.EnsureGenerationRows(st, s.store.Transformer())

		return st, nil
	}, state.MutateOptions{Op: "delete"})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Variant deleted", "variant_id", variantID)
	s.notifier.Success(ctx, "Variant removed successfully!")

	return nil
}

// CreateFromBase saves a copy of an existing variant named "<base name>.<name>" and adds it to
// the displayed variants. The copy starts from the base's current local configuration.
func (s *Variants) CreateFromBase(ctx context.Context, baseVariantID, name string) (*models.Variant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewValidationError("CreateFromBase", "name_required", "variant name is required", ErrVariantNameRequired)
	}

	base := s.store.Snapshot().FindVariantByID(baseVariantID)
	if base == nil {
		return nil, persistence.NewVariantError("CreateFromBase", baseVariantID, ErrVariantNotFound)
	}

	fullName := name
	if base.BaseName != "" && !strings.HasPrefix(name, base.BaseName+".") {
		fullName = base.BaseName + "." + name
	}

	for _, v := range s.store.Snapshot().Variants {
		if v.VariantName == fullName {
			return nil, &ServiceError{Op: "CreateFromBase", Code: "variant_exists", Message: fullName + " already exists", Err: ErrVariantExists}
		}
	}

	baseRecord, err := transform.DeflateVariant(base)
	if err != nil {
		return nil, fmt.Errorf("failed to deflate variant %s: %w", baseVariantID, err)
	}

	var record models.VariantRecord
	if err := copier.CopyWithOption(&record, baseRecord, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("failed to copy variant %s: %w", baseVariantID, err)
	}

	record.ID = s.newID()
	record.VariantName = fullName
	record.TemplateVariantName = base.VariantName
	record.Revision = 0

	if err := s.persistence.SaveVariant(ctx, &record); err != nil {
		s.notifier.Error(ctx, "Failed to create variant", err)

		return nil, fmt.Errorf("failed to create variant %s: %w", fullName, err)
	}

	variant := s.fork(base, &record)

	st, err := s.store.Mutate(ctx, func(_ context.Context, st *models.State) (*models.State, error) {
		if st.FindVariantByID(variant.ID) != nil {
			return st, nil
		}

		st.Variants = append(st.Variants, variant)
		st.Selected = append(st.Selected, variant.ID)
		state.EnsureGenerationRows(st, s.store.Transformer())

		return st, nil
	}, state.MutateOptions{Op: "create-variant"})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Variant created", "variant_id", record.ID, "base_variant_id", baseVariantID, "name", fullName)
	s.notifier.Success(ctx, "Variant created successfully!")

	return st.FindVariantByID(variant.ID), nil
}

// fork builds the local copy of base described by record. Every node gets a fresh identity so the
// copy never shares addresses with its base.
func (s *Variants) fork(base *models.Variant, record *models.VariantRecord) *models.Variant {
	variant := base.Clone()
	variant.ID = record.ID
	variant.VariantName = record.VariantName
	variant.TemplateVariantName = record.TemplateVariantName
	variant.Revision = record.Revision
	variant.UpdatedAt = record.UpdatedAt
	variant.IsMutating = false

	tr := s.store.Transformer()

	for _, p := range variant.Prompts {
		p.Node.Walk(func(node, _ *enhanced.Node) bool {
			if node.ID != "" {
				node.ID = tr.NewID()
			}

			return true
		})
	}

	return variant
}

func (s *Variants) markMutating(ctx context.Context, op, variantID string) (*models.Variant, error) {
	st, err := s.store.Mutate(ctx, func(_ context.Context, st *models.State) (*models.State, error) {
		v := st.FindVariantByID(variantID)
		if v == nil {
			return nil, persistence.NewVariantError(op, variantID, ErrVariantNotFound)
		}

		if v.IsMutating {
			return nil, &ServiceError{Op: op, Code: "variant_mutating", Err: ErrVariantMutating}
		}

		v.IsMutating = true

		return st, nil
	}, state.MutateOptions{Op: op})
	if err != nil {
		var updaterErr *state.UpdaterError
		if errors.As(err, &updaterErr) {
			return nil, updaterErr.Unwrap()
		}

		return nil, err
	}

	return st.FindVariantByID(variantID), nil
}

func (s *Variants) clearMutating(ctx context.Context, variantID string) {
	_, err := s.store.Mutate(ctx, func(_ context.Context, st *models.State) (*models.State, error) {
		if v := st.FindVariantByID(variantID); v != nil {
			v.IsMutating = false
		}

		return st, nil
	}, state.MutateOptions{Op: "mutate-failed"})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to clear mutating flag", "variant_id", variantID, "error", err)
	}
}

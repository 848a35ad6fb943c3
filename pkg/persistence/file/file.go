// Package file provides file-based persistence for variants and environments.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/persistence"
)

const (
	variantsDir      = "variants"
	environmentsFile = "environments.json"
)

// Persistence implements the persistence.Persistence interface using the file system: one JSON
// document per variant and a single environments document.
type Persistence struct {
	root string
	mu   sync.Mutex
	now  func() time.Time
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root: cleanRoot,
		now:  time.Now,
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Variants returns every stored variant ordered by id.
func (fp *Persistence) Variants(ctx context.Context) ([]*models.VariantRecord, error) {
	root := os.DirFS(filepath.Join(fp.root, variantsDir))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list variant files: %w", err)
	}

	records := make([]*models.VariantRecord, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		record, err := fp.VariantByID(ctx, strings.TrimSuffix(file, ".json"))
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	return records, nil
}

// VariantByID retrieves a variant by its ID from the file system.
func (fp *Persistence) VariantByID(_ context.Context, id string) (*models.VariantRecord, error) {
	body, err := os.ReadFile(fp.variantPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewVariantError("VariantByID", id, persistence.ErrVariantNotFound)
		}

		return nil, fmt.Errorf("failed to fetch variant %s: %w", id, err)
	}

	var record models.VariantRecord

	err = json.Unmarshal(body, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal variant %s: %w", id, err)
	}

	return &record, nil
}

// SaveVariant saves a variant to the file system.
func (fp *Persistence) SaveVariant(ctx context.Context, record *models.VariantRecord) error {
	if err := persistence.ValidateRecord(record); err != nil {
		return err
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	err := os.MkdirAll(filepath.Join(fp.root, variantsDir), 0750)
	if err != nil {
		return fmt.Errorf("failed to create variants directory: %w", err)
	}

	current, err := fp.VariantByID(ctx, record.ID)
	if err != nil && !persistence.IsVariantNotFound(err) {
		return err
	}

	persistence.Stamp(record, current, fp.now())

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal variant %s: %w", record.ID, err)
	}

	return os.WriteFile(fp.variantPath(record.ID), data, 0600)
}

// DeleteVariant removes a variant by its ID.
func (fp *Persistence) DeleteVariant(_ context.Context, id string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	err := os.Remove(fp.variantPath(id))
	if err != nil && os.IsNotExist(err) {
		return persistence.NewVariantError("DeleteVariant", id, persistence.ErrVariantNotFound)
	}

	if err != nil {
		return fmt.Errorf("failed to delete variant %s: %w", id, err)
	}

	return nil
}

// Environments returns the stored environments ordered by name.
func (fp *Persistence) Environments(_ context.Context) ([]*models.Environment, error) {
	envs, err := fp.readEnvironments()
	if err != nil {
		return nil, err
	}

	out := make([]*models.Environment, 0, len(envs))
	for _, env := range envs {
		out = append(out, env)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

// SaveEnvironment creates or replaces an environment by name.
func (fp *Persistence) SaveEnvironment(_ context.Context, env *models.Environment) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	envs, err := fp.readEnvironments()
	if err != nil {
		return err
	}

	envs[env.Name] = env

	data, err := json.MarshalIndent(envs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal environments: %w", err)
	}

	err = os.MkdirAll(fp.root, 0750)
	if err != nil {
		return fmt.Errorf("failed to create root directory: %w", err)
	}

	return os.WriteFile(filepath.Join(fp.root, environmentsFile), data, 0600)
}

func (fp *Persistence) readEnvironments() (map[string]*models.Environment, error) {
	envs := map[string]*models.Environment{}

	body, err := os.ReadFile(filepath.Join(fp.root, environmentsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return envs, nil
		}

		return nil, fmt.Errorf("failed to read environments: %w", err)
	}

	if err := json.Unmarshal(body, &envs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal environments: %w", err)
	}

	return envs, nil
}

func (fp *Persistence) variantPath(id string) string {
	return filepath.Join(fp.root, variantsDir, filepath.Base(filepath.Clean(id))+".json")
}

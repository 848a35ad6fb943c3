// Package redis provides Redis persistence for variants and environments. Each variant is a hash
// holding its JSON record next to its revision; a set indexes the variant ids.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dukex/playground/pkg/models"
	"github.com/dukex/playground/pkg/persistence"
)

const (
	defaultPrefix = "playground"

	fieldRecord    = "record"
	fieldRevision  = "revision"
	fieldUpdatedAt = "updated_at"

	maxSaveAttempts = 5
)

// Persistence implements persistence.Persistence on Redis.
type Persistence struct {
	client *goredis.Client
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewPersistence connects to the Redis server at databaseURL (redis:// or rediss://).
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	opts, err := goredis.ParseURL(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Persistence{
		client: client,
		prefix: defaultPrefix,
		logger: logger.With("module", "redis_persistence"),
		now:    time.Now,
	}, nil
}

func (p *Persistence) variantKey(id string) string {
	return p.prefix + ":variant:" + id
}

func (p *Persistence) indexKey() string {
	return p.prefix + ":variants"
}

func (p *Persistence) environmentsKey() string {
	return p.prefix + ":environments"
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// Variants returns every indexed variant ordered by id. Index entries whose hash vanished are skipped.
func (p *Persistence) Variants(ctx context.Context) ([]*models.VariantRecord, error) {
	ids, err := p.client.SMembers(ctx, p.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list variants: %w", err)
	}

	sort.Strings(ids)

	pipe := p.client.Pipeline()

	cmds := make([]*goredis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGet(ctx, p.variantKey(id), fieldRecord)
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("failed to load variants: %w", err)
	}

	records := make([]*models.VariantRecord, 0, len(ids))

	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, goredis.Nil) {
			p.logger.WarnContext(ctx, "Indexed variant has no record", "variant_id", ids[i])

			continue
		}

		if err != nil {
			return nil, fmt.Errorf("failed to load variant %s: %w", ids[i], err)
		}

		record, err := decode(ids[i], data)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

func (p *Persistence) VariantByID(ctx context.Context, id string) (*models.VariantRecord, error) {
	data, err := p.client.HGet(ctx, p.variantKey(id), fieldRecord).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, persistence.NewVariantError("VariantByID", id, persistence.ErrVariantNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch variant %s: %w", id, err)
	}

	return decode(id, data)
}

// SaveVariant writes the record inside an optimistic transaction on the variant key so
// concurrent saves never reuse a revision.
func (p *Persistence) SaveVariant(ctx context.Context, record *models.VariantRecord) error {
	if err := persistence.ValidateRecord(record); err != nil {
		return err
	}

	key := p.variantKey(record.ID)
	requested := record.Revision

	txf := func(tx *goredis.Tx) error {
		var current *models.VariantRecord

		stored, err := tx.HGet(ctx, key, fieldRevision).Int()

		switch {
		case errors.Is(err, goredis.Nil):
		case err != nil:
			return err
		default:
			current = &models.VariantRecord{Revision: stored}
		}

		record.Revision = requested
		persistence.Stamp(record, current, p.now())

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal variant %s: %w", record.ID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key,
				fieldRecord, data,
				fieldRevision, strconv.Itoa(record.Revision),
				fieldUpdatedAt, record.UpdatedAt.Format(time.RFC3339Nano),
			)
			pipe.SAdd(ctx, p.indexKey(), record.ID)

			return nil
		})

		return err
	}

	for range maxSaveAttempts {
		err := p.client.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}

		if err != nil {
			return fmt.Errorf("failed to save variant %s: %w", record.ID, err)
		}

		return nil
	}

	return fmt.Errorf("failed to save variant %s: too many concurrent writers", record.ID)
}

func (p *Persistence) DeleteVariant(ctx context.Context, id string) error {
	pipe := p.client.TxPipeline()
	deleted := pipe.Del(ctx, p.variantKey(id))
	pipe.SRem(ctx, p.indexKey(), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete variant %s: %w", id, err)
	}

	if deleted.Val() == 0 {
		return persistence.NewVariantError("DeleteVariant", id, persistence.ErrVariantNotFound)
	}

	return nil
}

// Environments returns the stored environments ordered by name.
func (p *Persistence) Environments(ctx context.Context) ([]*models.Environment, error) {
	values, err := p.client.HGetAll(ctx, p.environmentsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list environments: %w", err)
	}

	envs := make([]*models.Environment, 0, len(values))

	for name, data := range values {
		var env models.Environment
		if err := json.Unmarshal([]byte(data), &env); err != nil {
			return nil, fmt.Errorf("failed to unmarshal environment %s: %w", name, err)
		}

		envs = append(envs, &env)
	}

	sort.Slice(envs, func(i, j int) bool { return envs[i].Name < envs[j].Name })

	return envs, nil
}

func (p *Persistence) SaveEnvironment(ctx context.Context, env *models.Environment) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal environment %s: %w", env.Name, err)
	}

	if err := p.client.HSet(ctx, p.environmentsKey(), env.Name, data).Err(); err != nil {
		return fmt.Errorf("failed to save environment %s: %w", env.Name, err)
	}

	return nil
}

func decode(id string, data []byte) (*models.VariantRecord, error) {
	var record models.VariantRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variant %s: %w", id, err)
	}

	return &record, nil
}

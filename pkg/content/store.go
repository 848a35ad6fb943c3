package content

import (
	"errors"
	"fmt"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dukex/playground/pkg/enhanced"
	"github.com/dukex/playground/pkg/models"
)

var ErrDigestNotFound = errors.New("digest not found")

// Table names used in DigestError.
const (
	TableMetadata  = "metadata"
	TableVariants  = "variants"
	TableResponses = "responses"
)

// DigestError reports a lazy dereference of a digest the table has never stored.
type DigestError struct {
	Table  string
	Digest enhanced.Digest
	Err    error
}

func (e *DigestError) Error() string {
	return fmt.Sprintf("%s table: %s: %v", e.Table, e.Digest, e.Err)
}

func (e *DigestError) Unwrap() error {
	return e.Err
}

func (e *DigestError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsDigestNotFound checks if an error indicates a digest miss.
func IsDigestNotFound(err error) bool {
	return errors.Is(err, ErrDigestNotFound)
}

// Table is a write-once digest -> value map. Entries never expire.
type Table[T any] struct {
	name  string
	items *gocache.Cache
}

func NewTable[T any](name string) *Table[T] {
	return &Table[T]{name: name, items: gocache.New(gocache.NoExpiration, 0)}
}

// Put stores value under d unless the digest is already present.
func (t *Table[T]) Put(d enhanced.Digest, value T) {
	// Add fails when the key exists; the first value for a digest is kept.
	_ = t.items.Add(string(d), value, gocache.NoExpiration)
}

func (t *Table[T]) Get(d enhanced.Digest) (T, error) {
	var zero T

	raw, ok := t.items.Get(string(d))
	if !ok {
		return zero, &DigestError{Table: t.name, Digest: d, Err: ErrDigestNotFound}
	}

	value, ok := raw.(T)
	if !ok {
		return zero, &DigestError{Table: t.name, Digest: d, Err: fmt.Errorf("unexpected %T", raw)}
	}

	return value, nil
}

func (t *Table[T]) Len() int {
	return t.items.ItemCount()
}

// Stats reports table sizes.
type Stats struct {
	Metadata  int `json:"metadata"`
	Variants  int `json:"variants"`
	Responses int `json:"responses"`
}

// Store owns the three content tables of a playground session.
type Store struct {
	hasher    *Hasher
	metadata  *Table[*enhanced.ConfigMetadata]
	variants  *Table[*models.Variant]
	responses *Table[*models.APIResponse]
}

func NewStore(hasher *Hasher) *Store {
	if hasher == nil {
		hasher = NewHasher(DefaultMemoSize)
	}

	return &Store{
		hasher:    hasher,
		metadata:  NewTable[*enhanced.ConfigMetadata](TableMetadata),
		variants:  NewTable[*models.Variant](TableVariants),
		responses: NewTable[*models.APIResponse](TableResponses),
	}
}

func (s *Store) Hasher() *Hasher {
	return s.hasher
}

func (s *Store) Hash(v any) enhanced.Digest {
	return s.hasher.Hash(v)
}

func (s *Store) ValidateHash(v any, d enhanced.Digest) bool {
	return s.hasher.ValidateHash(v, d)
}

// HashMetadata stores md on first sight and returns its digest. Structurally equal descriptions
// share one entry.
func (s *Store) HashMetadata(md *enhanced.ConfigMetadata) enhanced.Digest {
	d := s.hasher.Hash(md)
	s.metadata.Put(d, md)

	return d
}

func (s *Store) MetadataLazy(d enhanced.Digest) (*enhanced.ConfigMetadata, error) {
	return s.metadata.Get(d)
}

// HashVariant snapshots v and returns its digest.
func (s *Store) HashVariant(v *models.Variant) enhanced.Digest {
	d := s.hasher.Hash(v)
	s.variants.Put(d, v)

	return d
}

func (s *Store) VariantLazy(d enhanced.Digest) (*models.Variant, error) {
	return s.variants.Get(d)
}

func (s *Store) HashResponse(r *models.APIResponse) enhanced.Digest {
	d := s.hasher.Hash(r)
	s.responses.Put(d, r)

	return d
}

func (s *Store) ResponseLazy(d enhanced.Digest) (*models.APIResponse, error) {
	return s.responses.Get(d)
}

func (s *Store) Stats() Stats {
	return Stats{
		Metadata:  s.metadata.Len(),
		Variants:  s.variants.Len(),
		Responses: s.responses.Len(),
	}
}

// Package content provides structural hashing and the content-addressable tables that back the
// playground state.
package content

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dukex/playground/pkg/enhanced"
)

const DefaultMemoSize = 4096

// Hasher computes order-independent structural digests.
//
// The pre-hash is the canonical JSON encoding of the value (map keys sorted, struct fields in
// declaration order); the digest is its xxhash64 rendered as 16 hex characters. Pointer inputs are
// memoized by identity, which is only sound because committed values are never mutated in place.
type Hasher struct {
	memo *lru.Cache[any, enhanced.Digest]
}

func NewHasher(memoSize int) *Hasher {
	if memoSize <= 0 {
		memoSize = DefaultMemoSize
	}

	memo, err := lru.New[any, enhanced.Digest](memoSize)
	if err != nil {
		panic(fmt.Sprintf("content: lru: %v", err))
	}

	return &Hasher{memo: memo}
}

// Hash returns the digest of v, reusing a previous result when v is a pointer already seen.
func (h *Hasher) Hash(v any) enhanced.Digest {
	if !isPointer(v) {
		return Sum(v)
	}

	if d, ok := h.memo.Get(v); ok {
		return d
	}

	d := Sum(v)
	h.memo.Add(v, d)

	return d
}

// ValidateHash recomputes the digest of v without the memo and compares it with d.
func (h *Hasher) ValidateHash(v any, d enhanced.Digest) bool {
	return Sum(v) == d
}

// Sum hashes v without memoization. Values JSON cannot encode, such as NaN floats, are hashed
// from their structural encoding instead.
func Sum(v any) enhanced.Digest {
	pre, err := json.Marshal(v)
	if err != nil {
		pre = structural(v)
	}

	return enhanced.Digest(fmt.Sprintf("%016x", xxhash.Sum64(pre)))
}

func isPointer(v any) bool {
	if v == nil {
		return false
	}

	rv := reflect.ValueOf(v)

	return rv.Kind() == reflect.Pointer && !rv.IsNil()
}

// Package enhanced defines the identity-bearing value tree the playground state is built from.
//
// Every value loaded from a variant configuration is wrapped in a Node that carries a unique
// identity and a reference to the ConfigMetadata describing its shape. Nodes come in exactly
// three shapes (leaf, array, object) so tree walks can switch exhaustively on Kind.
package enhanced

import (
	"fmt"
	"sort"
)

// Digest is a content-addressable key produced by the content store.
type Digest string

// Kind is the closed set of node shapes.
type Kind uint8

const (
	KindLeaf Kind = iota
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Reserved keys of the JSON form.
const (
	IDKey       = "__id"
	MetadataKey = "__metadata"
	KindKey     = "__kind"
	KeysKey     = "__keys"
	ValueKey    = "value"
)

// Node is one element of an Enhanced tree.
//
// Leaves hold Value, arrays hold Items and objects hold Fields keyed by camel-cased property
// name. Keys maps a field back to its original property name when snake-casing the field would
// not restore it. The other payload fields of a node are always empty.
type Node struct {
	ID          string
	MetadataRef Digest
	Kind        Kind
	Value       any
	Items       []*Node
	Fields      map[string]*Node
	Keys        map[string]string
}

func NewLeaf(id string, ref Digest, value any) *Node {
	return &Node{ID: id, MetadataRef: ref, Kind: KindLeaf, Value: value}
}

func NewArray(id string, ref Digest, items []*Node) *Node {
	if items == nil {
		items = []*Node{}
	}

	return &Node{ID: id, MetadataRef: ref, Kind: KindArray, Items: items}
}

func NewObject(id string, ref Digest, fields map[string]*Node) *Node {
	if fields == nil {
		fields = map[string]*Node{}
	}

	return &Node{ID: id, MetadataRef: ref, Kind: KindObject, Fields: fields}
}

// Field returns the child stored under key, or nil when n is not an object or has no such key.
func (n *Node) Field(key string) *Node {
	if n == nil || n.Kind != KindObject {
		return nil
	}

	return n.Fields[key]
}

// Keys returns the object field names in sorted order.
func (n *Node) Keys() []string {
	if n == nil || n.Kind != KindObject {
		return nil
	}

	keys := make([]string, 0, len(n.Fields))
	for k := range n.Fields {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// StringValue returns the leaf value when it is a string.
func (n *Node) StringValue() (string, bool) {
	if n == nil || n.Kind != KindLeaf {
		return "", false
	}

	s, ok := n.Value.(string)

	return s, ok
}

// Append adds item to an array node.
func (n *Node) Append(item *Node) {
	if n == nil || n.Kind != KindArray || item == nil {
		return
	}

	n.Items = append(n.Items, item)
}

// Clone deep-copies the subtree. Identities and metadata references are preserved, so a clone is
// structurally equal to its source.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}

	out := &Node{ID: n.ID, MetadataRef: n.MetadataRef, Kind: n.Kind}

	switch n.Kind {
	case KindLeaf:
		out.Value = CloneValue(n.Value)
	case KindArray:
		out.Items = make([]*Node, len(n.Items))
		for i, item := range n.Items {
			out.Items[i] = item.Clone()
		}
	case KindObject:
		out.Fields = make(map[string]*Node, len(n.Fields))
		for k, child := range n.Fields {
			out.Fields[k] = child.Clone()
		}

		if n.Keys != nil {
			out.Keys = make(map[string]string, len(n.Keys))
			for k, v := range n.Keys {
				out.Keys[k] = v
			}
		}
	}

	return out
}

// CloneValue deep-copies a plain JSON-like value (maps, slices, primitives).
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = CloneValue(val)
		}

		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = CloneValue(val)
		}

		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)

		return out
	default:
		return v
	}
}

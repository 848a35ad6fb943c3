package enhanced

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidNode = errors.New("invalid enhanced node")

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "leaf":
		*k = KindLeaf
	case "array":
		*k = KindArray
	case "object":
		*k = KindObject
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidNode, string(text))
	}

	return nil
}

// MarshalJSON writes objects as a flat map of identity keys plus camel-cased fields; leaves and
// arrays nest their payload under "value".
func (n *Node) MarshalJSON() ([]byte, error) {
	if n == nil {
		return []byte("null"), nil
	}

	out := map[string]any{
		IDKey:       n.ID,
		MetadataKey: n.MetadataRef,
		KindKey:     n.Kind,
	}

	switch n.Kind {
	case KindLeaf:
		out[ValueKey] = n.Value
	case KindArray:
		items := n.Items
		if items == nil {
			items = []*Node{}
		}

		out[ValueKey] = items
	case KindObject:
		for k, child := range n.Fields {
			if isReserved(k) {
				return nil, fmt.Errorf("%w: field %q collides with a reserved key", ErrInvalidNode, k)
			}

			out[k] = child
		}

		if len(n.Keys) > 0 {
			out[KeysKey] = n.Keys
		}
	}

	return json.Marshal(out)
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidNode, err)
	}

	*n = Node{}

	if v, ok := raw[IDKey]; ok {
		if err := json.Unmarshal(v, &n.ID); err != nil {
			return fmt.Errorf("%w: id: %w", ErrInvalidNode, err)
		}
	}

	if v, ok := raw[MetadataKey]; ok {
		if err := json.Unmarshal(v, &n.MetadataRef); err != nil {
			return fmt.Errorf("%w: metadata: %w", ErrInvalidNode, err)
		}
	}

	kind, err := detectKind(raw)
	if err != nil {
		return err
	}

	n.Kind = kind

	switch kind {
	case KindLeaf:
		if v, ok := raw[ValueKey]; ok {
			if err := json.Unmarshal(v, &n.Value); err != nil {
				return fmt.Errorf("%w: value: %w", ErrInvalidNode, err)
			}
		}
	case KindArray:
		n.Items = []*Node{}
		if v, ok := raw[ValueKey]; ok {
			if err := json.Unmarshal(v, &n.Items); err != nil {
				return fmt.Errorf("%w: items: %w", ErrInvalidNode, err)
			}
		}
	case KindObject:
		if v, ok := raw[KeysKey]; ok {
			if err := json.Unmarshal(v, &n.Keys); err != nil {
				return fmt.Errorf("%w: keys: %w", ErrInvalidNode, err)
			}
		}

		n.Fields = make(map[string]*Node, len(raw))

		for k, v := range raw {
			if isReserved(k) {
				continue
			}

			child := &Node{}
			if err := json.Unmarshal(v, child); err != nil {
				return fmt.Errorf("%w: field %q: %w", ErrInvalidNode, k, err)
			}

			n.Fields[k] = child
		}
	}

	return nil
}

func detectKind(raw map[string]json.RawMessage) (Kind, error) {
	if v, ok := raw[KindKey]; ok {
		var k Kind
		if err := json.Unmarshal(v, &k); err != nil {
			return 0, err
		}

		return k, nil
	}

	value, ok := raw[ValueKey]
	if !ok {
		return KindObject, nil
	}

	var items []map[string]json.RawMessage
	if err := json.Unmarshal(value, &items); err == nil && len(items) > 0 {
		if _, hasID := items[0][IDKey]; hasID {
			return KindArray, nil
		}
	}

	return KindLeaf, nil
}

func isReserved(key string) bool {
	return key == IDKey || key == MetadataKey || key == KindKey || key == KeysKey
}

package middleware

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/dukex/playground/pkg/enhanced"
)

// checkValue validates a leaf value against its metadata and normalizes numbers to float64.
func checkValue(md *enhanced.ConfigMetadata, value any) (any, error) {
	if md == nil {
		return enhanced.CloneValue(value), nil
	}

	if value == nil {
		if md.Nullable || md.Type == enhanced.TypeCompound {
			return nil, nil
		}

		return nil, fmt.Errorf("%w: null is not allowed", ErrInvalidValue)
	}

	switch md.Type {
	case enhanced.TypeString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected a string", ErrInvalidValue)
		}

		if !md.HasOption(s) {
			return nil, fmt.Errorf("%w: %q is not an option", ErrInvalidValue, s)
		}

		return s, nil
	case enhanced.TypeNumber:
		f, ok := toFloat(value)
		if !ok {
			return nil, fmt.Errorf("%w: expected a number", ErrInvalidValue)
		}

		if md.IsInteger && f != math.Trunc(f) {
			return nil, fmt.Errorf("%w: expected an integer", ErrInvalidValue)
		}

		if md.Min != nil && f < *md.Min {
			return nil, fmt.Errorf("%w: must be greater than equal %v", ErrInvalidValue, *md.Min)
		}

		if md.Max != nil && f > *md.Max {
			return nil, fmt.Errorf("%w: must be less than equal %v", ErrInvalidValue, *md.Max)
		}

		return f, nil
	case enhanced.TypeBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: expected a boolean", ErrInvalidValue)
		}

		return b, nil
	default:
		return enhanced.CloneValue(value), nil
	}
}

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()

		return f, err == nil
	default:
		return 0, false
	}
}

package dirty

import (
	"encoding/json"
	"reflect"
	"sort"
)

// Change is one field that differs between two snapshots.
type Change struct {
	Field  string `json:"field"`
	Before any    `json:"before,omitempty"`
	After  any    `json:"after,omitempty"`
}

// Delta lists the differences between two JSON-compatible values. Arrays compare atomically.
type Delta struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []Change `json:"modified"`
}

func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Diff computes the delta between before and after.
func Diff(before, after any) Delta {
	d := Delta{Added: []string{}, Removed: []string{}, Modified: []Change{}}
	diffAny("", normalizeJSON(before), normalizeJSON(after), &d)

	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Slice(d.Modified, func(i, j int) bool { return d.Modified[i].Field < d.Modified[j].Field })

	return d
}

// Equal reports whether two values have the same JSON form.
func Equal(a, b any) bool {
	return reflect.DeepEqual(normalizeJSON(a), normalizeJSON(b))
}

func diffAny(path string, before, after any, d *Delta) {
	if reflect.DeepEqual(before, after) {
		return
	}

	beforeMap, okBefore := before.(map[string]any)
	afterMap, okAfter := after.(map[string]any)

	if okBefore && okAfter {
		for k, bv := range beforeMap {
			field := joinPath(path, k)

			av, exists := afterMap[k]
			if !exists {
				d.Removed = append(d.Removed, field)
				d.Modified = append(d.Modified, Change{Field: field, Before: bv})

				continue
			}

			diffAny(field, bv, av, d)
		}

		for k, av := range afterMap {
			if _, exists := beforeMap[k]; exists {
				continue
			}

			field := joinPath(path, k)
			d.Added = append(d.Added, field)
			d.Modified = append(d.Modified, Change{Field: field, After: av})
		}

		return
	}

	if path == "" {
		path = "$"
	}

	d.Modified = append(d.Modified, Change{Field: path, Before: before, After: after})
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}

	return base + "." + key
}

func normalizeJSON(v any) any {
	if v == nil {
		return nil
	}

	switch v.(type) {
	case string, float64, bool:
		return v
	}

	b, err := json.Marshal(v)
	if err != nil {
		return v
	}

	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}

	return out
}

// OmitDeep removes the given keys from every object nested in v. v must be normalized JSON.
func OmitDeep(v any, keys map[string]bool) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))

		for k, child := range t {
			if keys[k] {
				continue
			}

			out[k] = OmitDeep(child, keys)
		}

		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = OmitDeep(child, keys)
		}

		return out
	default:
		return v
	}
}

// Package validation turns backend validation failures into readable messages.
package validation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultMessage is used when a failure carries nothing readable.
const DefaultMessage = "An unknown error occurred"

// ValidationError is one constraint violation as reported in a response "detail".
type ValidationError struct {
	Type  string         `json:"type"`
	Loc   []any          `json:"loc"`
	Msg   string         `json:"msg"`
	Ctx   map[string]any `json:"ctx,omitempty"`
	Input any            `json:"input,omitempty"`
}

// Field is the last location segment, the name of the offending field.
func (e ValidationError) Field() string {
	if len(e.Loc) == 0 {
		return ""
	}

	return fmt.Sprint(e.Loc[len(e.Loc)-1])
}

var operators = []struct {
	key, phrase string
}{
	{"ge", "greater than equal"},
	{"le", "less than equal"},
	{"gt", "greater than"},
	{"lt", "less than"},
}

// Format renders one violation, e.g. "Temperature must be greater than equal 0".
func (e ValidationError) Format() string {
	field := humanize(e.Field())

	for _, op := range operators {
		if limit, ok := e.Ctx[op.key]; ok && field != "" {
			return fmt.Sprintf("%s must be %s %s", field, op.phrase, formatValue(limit))
		}
	}

	switch {
	case field == "":
	case e.Type == "missing" || e.Type == "value_error.missing":
		return field + " is required"
	case strings.HasPrefix(e.Type, "type_error."):
		return fmt.Sprintf("%s must be a valid %s", field, strings.TrimPrefix(e.Type, "type_error."))
	case strings.HasSuffix(e.Type, "_type") || strings.HasSuffix(e.Type, "_parsing"):
		kind := strings.TrimSuffix(strings.TrimSuffix(e.Type, "_type"), "_parsing")

		return fmt.Sprintf("%s must be a valid %s", field, kind)
	case strings.HasPrefix(e.Type, "value_error"):
		if e.Msg != "" {
			return fmt.Sprintf("%s: %s", field, e.Msg)
		}

		return field + " has an invalid value"
	}

	if e.Msg != "" {
		return e.Msg
	}

	return DefaultMessage
}

// FormatErrors renders every violation, one per line.
func FormatErrors(errs []ValidationError) string {
	if len(errs) == 0 {
		return DefaultMessage
	}

	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = e.Format()
	}

	return strings.Join(lines, "\n")
}

// ParseDetail reads a {"detail": ...} error body. The detail may be a list of violations, one
// violation, a string or an object with a "message". Anything else yields the raw body.
func ParseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}

	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return raw(body)
	}

	var list []ValidationError
	if err := json.Unmarshal(envelope.Detail, &list); err == nil {
		return FormatErrors(list)
	}

	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil && text != "" {
		return text
	}

	var obj map[string]any
	if err := json.Unmarshal(envelope.Detail, &obj); err == nil {
		if _, ok := obj["loc"]; ok {
			var single ValidationError
			if err := json.Unmarshal(envelope.Detail, &single); err == nil {
				return single.Format()
			}
		}

		for _, key := range []string{"message", "error", "msg"} {
			if s, ok := obj[key].(string); ok && s != "" {
				return s
			}
		}
	}

	return raw(body)
}

func raw(body []byte) string {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return DefaultMessage
	}

	return s
}

func humanize(field string) string {
	field = strings.TrimSpace(strings.ReplaceAll(field, "_", " "))
	if field == "" {
		return ""
	}

	return strings.ToUpper(field[:1]) + field[1:]
}

func formatValue(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case string:
		return n
	default:
		return fmt.Sprint(v)
	}
}

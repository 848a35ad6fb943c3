package content

import (
	"bytes"
	"encoding"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// maxDepth bounds the walk of self-referencing values.
const maxDepth = 64

// structural encodes v by walking it with reflection: pointers are followed, map keys are sorted,
// struct fields are written by name and floats keep non-finite values. The result only has to be
// deterministic; it is never decoded.
func structural(v any) []byte {
	var buf bytes.Buffer

	buf.WriteString("~")
	writeValue(&buf, reflect.ValueOf(v), 0)

	return buf.Bytes()
}

func writeValue(buf *bytes.Buffer, rv reflect.Value, depth int) {
	if depth > maxDepth {
		buf.WriteString("...")

		return
	}

	if !rv.IsValid() {
		buf.WriteString("null")

		return
	}

	if rv.Kind() == reflect.Struct && rv.CanInterface() {
		if m, ok := rv.Interface().(encoding.TextMarshaler); ok {
			if text, err := m.MarshalText(); err == nil {
				buf.WriteString(strconv.Quote(string(text)))

				return
			}
		}
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			buf.WriteString("null")

			return
		}

		writeValue(buf, rv.Elem(), depth+1)
	case reflect.Bool:
		buf.WriteString(strconv.FormatBool(rv.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		buf.WriteString(strconv.FormatFloat(rv.Float(), 'g', -1, 64))
	case reflect.String:
		buf.WriteString(strconv.Quote(rv.String()))
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			buf.WriteString("null")

			return
		}

		buf.WriteByte('[')

		for i := range rv.Len() {
			if i > 0 {
				buf.WriteByte(',')
			}

			writeValue(buf, rv.Index(i), depth+1)
		}

		buf.WriteByte(']')
	case reflect.Map:
		if rv.IsNil() {
			buf.WriteString("null")

			return
		}

		type entry struct {
			key string
			val reflect.Value
		}

		entries := make([]entry, 0, rv.Len())

		iter := rv.MapRange()
		for iter.Next() {
			var kb bytes.Buffer
			writeValue(&kb, iter.Key(), depth+1)
			entries = append(entries, entry{key: kb.String(), val: iter.Value()})
		}

		slices.SortFunc(entries, func(a, b entry) int { return strings.Compare(a.key, b.key) })

		buf.WriteByte('{')

		for i, e := range entries {
			if i > 0 {
				buf.WriteByte(',')
			}

			buf.WriteString(e.key)
			buf.WriteByte(':')
			writeValue(buf, e.val, depth+1)
		}

		buf.WriteByte('}')
	case reflect.Struct:
		t := rv.Type()

		buf.WriteString(t.String())
		buf.WriteByte('{')

		for i := range rv.NumField() {
			if !t.Field(i).IsExported() {
				continue
			}

			buf.WriteString(t.Field(i).Name)
			buf.WriteByte(':')
			writeValue(buf, rv.Field(i), depth+1)
			buf.WriteByte(',')
		}

		buf.WriteByte('}')
	default:
		// Channels and functions carry no structure worth hashing.
		buf.WriteString(rv.Type().String())
	}
}

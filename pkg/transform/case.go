package transform

import (
	"strings"
	"unicode"
)

// CamelCase converts snake_case to camelCase. SnakeCase undoes it only for keys made of lowercase
// words: a segment starting with a digit or an uppercase letter is lost, which is why object nodes
// record such keys in Node.Keys.
func CamelCase(key string) string {
	if !strings.Contains(key, "_") {
		return key
	}

	parts := strings.Split(key, "_")

	var b strings.Builder

	b.Grow(len(key))

	for i, part := range parts {
		if part == "" {
			continue
		}

		if i == 0 || b.Len() == 0 {
			b.WriteString(part)

			continue
		}

		runes := []rune(part)
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}

	return b.String()
}

// SnakeCase converts camelCase to snake_case.
func SnakeCase(key string) string {
	var b strings.Builder

	b.Grow(len(key) + 4)

	for i, r := range key {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}

			b.WriteRune(unicode.ToLower(r))

			continue
		}

		b.WriteRune(r)
	}

	return b.String()
}

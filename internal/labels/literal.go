package labels

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// IsList reports whether raw looks like a list literal.
func IsList(raw string) bool {
	t := strings.TrimSpace(raw)
	return strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]")
}

// ParseList parses a list literal such as ['fire', 'smoke'] or ["a", "b"].
// Quoted items follow YAML flow-sequence rules, which cover the quoting the
// tables are written with.
func ParseList(raw string) ([]string, error) {
	if !IsList(raw) {
		return nil, fmt.Errorf("labels: not a list literal: %q", raw)
	}
	var items []string
	if err := yaml.Unmarshal([]byte(strings.TrimSpace(raw)), &items); err != nil {
		return nil, fmt.Errorf("labels: parse list %q: %w", raw, err)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out, nil
}

// FormatList writes ids as a list literal: ['a', 'b']. Items containing a
// single quote are double-quoted with backslash escapes instead.
func FormatList(ids []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, id := range ids {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quote(id))
	}
	b.WriteByte(']')
	return b.String()
}

func quote(s string) string {
	if !strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '\\') {
		return "'" + s + "'"
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

package labels

import (
	"slices"
	"sort"
	"strings"
)

// UnsetText is the stored form of a row without labels.
const UnsetText = "unset"

// Kind tells which variant a Label holds.
type Kind int

const (
	KindUnset Kind = iota
	KindSingle
	KindMultiple
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindMultiple:
		return "multiple"
	default:
		return "unset"
	}
}

// Label is the stored label of a row: Unset, Single(id) or Multiple(ids).
type Label struct {
	kind Kind
	ids  []string
}

// Unset returns the empty label.
func Unset() Label { return Label{kind: KindUnset} }

// Single returns a one-identifier label.
func Single(id string) Label { return Label{kind: KindSingle, ids: []string{id}} }

// Multiple returns a label for ids, collapsing zero or one identifiers to
// Unset or Single so each label has a single canonical form.
func Multiple(ids ...string) Label {
	switch len(ids) {
	case 0:
		return Unset()
	case 1:
		return Single(ids[0])
	}
	cp := make([]string, len(ids))
	copy(cp, ids)
	return Label{kind: KindMultiple, ids: cp}
}

// Kind returns the variant.
func (l Label) Kind() Kind { return l.kind }

// IsUnset reports whether the label carries no identifiers.
func (l Label) IsUnset() bool { return l.kind == KindUnset }

// IDs returns a copy of the identifiers in order.
func (l Label) IDs() []string {
	out := make([]string, len(l.ids))
	copy(out, l.ids)
	return out
}

// Key returns the identifier the label sorts by: the first list item, the
// single identifier, or UnsetText.
func (l Label) Key() string {
	if len(l.ids) == 0 {
		return UnsetText
	}
	return l.ids[0]
}

// String returns the stored text form.
func (l Label) String() string {
	switch l.kind {
	case KindSingle:
		return l.ids[0]
	case KindMultiple:
		return FormatList(l.ids)
	default:
		return UnsetText
	}
}

// Equal reports whether two labels hold the same identifiers in order.
func (l Label) Equal(o Label) bool {
	if l.kind != o.kind || len(l.ids) != len(o.ids) {
		return false
	}
	for i := range l.ids {
		if l.ids[i] != o.ids[i] {
			return false
		}
	}
	return true
}

// SameIDs reports whether two labels hold the same identifiers in any order.
func (l Label) SameIDs(o Label) bool {
	if l.kind != o.kind || len(l.ids) != len(o.ids) {
		return false
	}
	a, b := l.IDs(), o.IDs()
	sort.Strings(a)
	sort.Strings(b)
	return slices.Equal(a, b)
}

// ParseLabel reads stored text. An empty cell reads as Unset, and a list
// literal that fails to parse is kept as a single raw identifier.
func ParseLabel(raw string) Label {
	t := strings.TrimSpace(raw)
	if t == "" || t == UnsetText {
		return Unset()
	}
	if IsList(t) {
		if ids, err := ParseList(t); err == nil {
			return Multiple(ids...)
		}
	}
	return Single(t)
}

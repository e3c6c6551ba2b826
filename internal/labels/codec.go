package labels

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/starford/laguz/internal/apperr"
)

// Value is one decoded label: a vocabulary index, or the raw identifier when
// the vocabulary does not know it (Index is then -1).
type Value struct {
	Index int    `json:"index"`
	Raw   string `json:"raw,omitempty"`
}

// IndexValue wraps a vocabulary index.
func IndexValue(i int) Value { return Value{Index: i} }

// RawValue wraps an identifier unknown to the vocabulary.
func RawValue(id string) Value { return Value{Index: -1, Raw: id} }

// Known reports whether the value is a vocabulary index.
func (v Value) Known() bool { return v.Index >= 0 }

func (v Value) String() string {
	if v.Known() {
		return strconv.Itoa(v.Index)
	}
	return v.Raw
}

// Codec converts between stored label text and vocabulary indices.
type Codec struct {
	vocab *Vocabulary
}

// NewCodec creates a codec over vocab.
func NewCodec(vocab *Vocabulary) *Codec {
	return &Codec{vocab: vocab}
}

// Vocabulary returns the codec's vocabulary.
func (c *Codec) Vocabulary() *Vocabulary { return c.vocab }

// Decode maps stored text to values. Identifiers missing from the
// vocabulary pass through as raw values instead of failing, so tables
// written with an older or newer vocabulary still load.
func (c *Codec) Decode(raw string) []Value {
	return c.DecodeLabel(ParseLabel(raw))
}

// DecodeLabel maps a Label to values.
func (c *Codec) DecodeLabel(l Label) []Value {
	ids := l.ids
	out := make([]Value, 0, len(ids))
	for _, id := range ids {
		if i, ok := c.vocab.IndexOf(id); ok {
			out = append(out, IndexValue(i))
		} else {
			out = append(out, RawValue(id))
		}
	}
	return out
}

// Label builds the Label for a list of vocabulary indices.
func (c *Codec) Label(indices []int) (Label, error) {
	ids := make([]string, 0, len(indices))
	for _, i := range indices {
		id, ok := c.vocab.ID(i)
		if !ok {
			return Unset(), fmt.Errorf("labels: index %d outside vocabulary of %d: %w", i, c.vocab.Len(), apperr.ErrOutOfRange)
		}
		ids = append(ids, id)
	}
	return Multiple(ids...), nil
}

// Encode returns the stored text for indices: "unset" for none, the bare
// identifier for one, a list literal otherwise.
func (c *Codec) Encode(indices []int) (string, error) {
	l, err := c.Label(indices)
	if err != nil {
		return "", err
	}
	return l.String(), nil
}

// EncodeValues is Encode for decoded values, keeping raw identifiers as-is.
func (c *Codec) EncodeValues(values []Value) (string, error) {
	ids := make([]string, 0, len(values))
	for _, v := range values {
		if !v.Known() {
			ids = append(ids, v.Raw)
			continue
		}
		id, ok := c.vocab.ID(v.Index)
		if !ok {
			return "", fmt.Errorf("labels: index %d outside vocabulary of %d: %w", v.Index, c.vocab.Len(), apperr.ErrOutOfRange)
		}
		ids = append(ids, id)
	}
	return Multiple(ids...).String(), nil
}

// Display maps values to display names. A value that is not an index into
// the vocabulary is shown as "Undefined: <value>".
func (c *Codec) Display(values []Value) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if name, ok := c.vocab.Name(v.Index); ok && v.Known() {
			out = append(out, name)
			continue
		}
		out = append(out, "Undefined: "+v.String())
	}
	return out
}

// DisplayText renders Display as one string: the single name when there is
// exactly one, the names joined with ", " otherwise.
func (c *Codec) DisplayText(values []Value) string {
	names := c.Display(values)
	if len(names) == 1 {
		return names[0]
	}
	return strings.Join(names, ", ")
}

// Indices returns the known vocabulary indices of values, sorted and
// without duplicates.
func Indices(values []Value) []int {
	seen := make(map[int]struct{}, len(values))
	out := make([]int, 0, len(values))
	for _, v := range values {
		if !v.Known() {
			continue
		}
		if _, dup := seen[v.Index]; dup {
			continue
		}
		seen[v.Index] = struct{}{}
		out = append(out, v.Index)
	}
	sort.Ints(out)
	return out
}

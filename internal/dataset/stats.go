package dataset

import (
	"sort"

	"github.com/starford/laguz/internal/labels"
)

// Stat is the number of rows sharing one class value.
type Stat struct {
	Class string   `json:"class"` // canonical stored form
	IDs   []string `json:"ids"`   // parsed identifiers, empty for unset
	Count int      `json:"count"`
}

// Stats groups rows by class, parsing list literals so differently spaced
// spellings of the same list count together. Groups are ordered by their
// first identifier, then by count (descending), then by class text.
func (t *Table) Stats() []Stat {
	groups := make(map[string]*Stat)
	keys := make(map[string]string)
	for _, r := range t.rows {
		l := labels.ParseLabel(r.Class)
		class := l.String()
		st, ok := groups[class]
		if !ok {
			st = &Stat{Class: class, IDs: l.IDs()}
			groups[class] = st
			keys[class] = l.Key()
		}
		st.Count++
	}

	out := make([]Stat, 0, len(groups))
	for _, st := range groups {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := keys[out[i].Class], keys[out[j].Class]
		if ki != kj {
			return ki < kj
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Class < out[j].Class
	})
	return out
}

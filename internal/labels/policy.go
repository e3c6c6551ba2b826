package labels

import (
	"fmt"
	"sort"
)

// SelectionPolicy rewrites a sorted, de-duplicated set of checked indices.
type SelectionPolicy func(checked []int) []int

// EmptyPolicy supplies the indices stored when nothing is checked.
type EmptyPolicy func() []int

// Policy names accepted in configuration.
const (
	SelectionKeep           = "keep"
	SelectionDropBackground = "drop_background"

	EmptyUnset      = "unset"
	EmptyBackground = "background"
)

// KeepAll stores the selection as checked.
func KeepAll(checked []int) []int { return checked }

// DropBackground removes index 0 when it is checked together with other
// labels; the background label is never combined with a real one.
func DropBackground(checked []int) []int {
	if len(checked) < 2 {
		return checked
	}
	out := make([]int, 0, len(checked))
	for _, i := range checked {
		if i != 0 {
			out = append(out, i)
		}
	}
	return out
}

// StoreUnset stores nothing for an empty selection.
func StoreUnset() []int { return nil }

// StoreBackground stores index 0 for an empty selection.
func StoreBackground() []int { return []int{0} }

// ParseSelectionPolicy resolves a configured selection policy name.
func ParseSelectionPolicy(name string) (SelectionPolicy, error) {
	switch name {
	case "", SelectionKeep:
		return KeepAll, nil
	case SelectionDropBackground:
		return DropBackground, nil
	default:
		return nil, fmt.Errorf("labels: unknown selection policy %q", name)
	}
}

// ParseEmptyPolicy resolves a configured empty-selection policy name.
func ParseEmptyPolicy(name string) (EmptyPolicy, error) {
	switch name {
	case "", EmptyUnset:
		return StoreUnset, nil
	case EmptyBackground:
		return StoreBackground, nil
	default:
		return nil, fmt.Errorf("labels: unknown empty policy %q", name)
	}
}

// Normalize sorts and de-duplicates checked, then applies the policies.
// Nil policies behave as KeepAll and StoreUnset.
func Normalize(checked []int, sel SelectionPolicy, empty EmptyPolicy) []int {
	set := make(map[int]struct{}, len(checked))
	norm := make([]int, 0, len(checked))
	for _, i := range checked {
		if _, dup := set[i]; dup {
			continue
		}
		set[i] = struct{}{}
		norm = append(norm, i)
	}
	sort.Ints(norm)

	if sel != nil {
		norm = sel(norm)
	}
	if len(norm) == 0 && empty != nil {
		norm = empty()
	}
	return norm
}

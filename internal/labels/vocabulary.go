// Package labels maps stored label text to vocabulary indices and back.
//
// A stored label is either the "unset" sentinel, a bare identifier, or a list
// literal such as ['fire', 'smoke']. In memory it is a Label variant, and for
// the session it is an ordered slice of Values (vocabulary indices, or raw
// identifiers the vocabulary does not know).
package labels

import (
	"errors"
	"fmt"
)

// Entry is one (identifier, display name) pair of a vocabulary.
type Entry struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Vocabulary is the fixed ordered list of labels for a deployment.
type Vocabulary struct {
	entries []Entry
	byID    map[string]int
}

// DefaultEntries is the vocabulary used when the configuration names none.
func DefaultEntries() []Entry {
	return []Entry{
		{ID: "none", Name: "None"},
		{ID: "fire", Name: "Fire"},
		{ID: "smoke", Name: "Smoke"},
	}
}

// NewVocabulary validates entries and builds a Vocabulary. An empty display
// name falls back to the identifier.
func NewVocabulary(entries []Entry) (*Vocabulary, error) {
	if len(entries) == 0 {
		return nil, errors.New("labels: vocabulary is empty")
	}
	v := &Vocabulary{
		entries: make([]Entry, len(entries)),
		byID:    make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("labels: entry %d has an empty id", i)
		}
		if e.ID == Unset().String() {
			return nil, fmt.Errorf("labels: %q is reserved", e.ID)
		}
		if _, dup := v.byID[e.ID]; dup {
			return nil, fmt.Errorf("labels: duplicate id %q", e.ID)
		}
		if e.Name == "" {
			e.Name = e.ID
		}
		v.entries[i] = e
		v.byID[e.ID] = i
	}
	return v, nil
}

// DefaultVocabulary returns the built-in none/fire/smoke vocabulary.
func DefaultVocabulary() *Vocabulary {
	v, err := NewVocabulary(DefaultEntries())
	if err != nil {
		panic(err)
	}
	return v
}

// Len returns the number of labels.
func (v *Vocabulary) Len() int { return len(v.entries) }

// Contains reports whether i is a valid label index.
func (v *Vocabulary) Contains(i int) bool { return i >= 0 && i < len(v.entries) }

// IndexOf returns the index of identifier id.
func (v *Vocabulary) IndexOf(id string) (int, bool) {
	i, ok := v.byID[id]
	return i, ok
}

// ID returns the identifier at index i.
func (v *Vocabulary) ID(i int) (string, bool) {
	if !v.Contains(i) {
		return "", false
	}
	return v.entries[i].ID, true
}

// Name returns the display name at index i.
func (v *Vocabulary) Name(i int) (string, bool) {
	if !v.Contains(i) {
		return "", false
	}
	return v.entries[i].Name, true
}

// Entries returns a copy of the vocabulary entries.
func (v *Vocabulary) Entries() []Entry {
	out := make([]Entry, len(v.entries))
	copy(out, v.entries)
	return out
}

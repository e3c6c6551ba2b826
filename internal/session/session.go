// Package session holds the labeling state machine: which row is current,
// which labels are checked, and whether the table has unsaved edits.
//
// A Session is single-mutator and takes no locks; its owner serializes
// access.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/labels"
	"github.com/starford/laguz/internal/models"
)

// Status is the lifecycle state of a session.
type Status int

const (
	Idle Status = iota
	Active
)

func (s Status) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Table is the row store a session edits.
type Table interface {
	Len() int
	Row(i int) (models.Row, error)
	SetLabelAt(i int, class string) error
	Save(ctx context.Context) (string, error)
}

// Change is emitted for every commit that rewrites a row's class.
type Change = models.LabelChange

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(title, message string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(title, message string) bool

// Confirm calls f.
func (f ConfirmFunc) Confirm(title, message string) bool { return f(title, message) }

// Always returns a Confirmer that answers v to every question.
func Always(v bool) Confirmer {
	return ConfirmFunc(func(string, string) bool { return v })
}

// Session is one labeling pass over a loaded table.
type Session struct {
	codec     *labels.Codec
	selection labels.SelectionPolicy
	empty     labels.EmptyPolicy
	autosave  bool
	onCommit  func(Change)
	onSave    func(sum string)
	logger    *slog.Logger
	now       func() time.Time

	status  Status
	id      string
	table   Table
	index   int
	checked []int
	extra   []labels.Value // identifiers of the current row unknown to the vocabulary
	saved   bool
}

// Option configures a Session.
type Option func(*Session)

// WithSelectionPolicy sets how a checked set is rewritten before storing.
func WithSelectionPolicy(p labels.SelectionPolicy) Option {
	return func(s *Session) {
		if p != nil {
			s.selection = p
		}
	}
}

// WithEmptyPolicy sets what is stored when nothing is checked.
func WithEmptyPolicy(p labels.EmptyPolicy) Option {
	return func(s *Session) {
		if p != nil {
			s.empty = p
		}
	}
}

// WithAutosave saves the table after every row switch that left unsaved
// edits behind.
func WithAutosave(on bool) Option {
	return func(s *Session) { s.autosave = on }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithOnCommit registers a callback for committed label changes.
func WithOnCommit(fn func(Change)) Option {
	return func(s *Session) { s.onCommit = fn }
}

// WithOnSave registers a callback run after every successful save,
// including autosaves, with the checksum of the written file.
func WithOnSave(fn func(sum string)) Option {
	return func(s *Session) { s.onSave = fn }
}

// New creates an idle session.
func New(codec *labels.Codec, opts ...Option) *Session {
	s := &Session{
		codec:     codec,
		selection: labels.KeepAll,
		empty:     labels.StoreUnset,
		logger:    slog.Default(),
		now:       time.Now,
		index:     -1,
		saved:     true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the lifecycle state.
func (s *Session) Status() Status { return s.status }

// ID returns the session id, empty while idle.
func (s *Session) ID() string { return s.id }

// Index returns the current row, -1 before the first selection.
func (s *Session) Index() int { return s.index }

// ChangesSaved reports whether every committed edit has been persisted.
func (s *Session) ChangesSaved() bool { return s.saved }

// Load starts a session over t. Only an idle session can load.
func (s *Session) Load(t Table) error {
	if s.status != Idle {
		return fmt.Errorf("session: load: already %s: %w", s.status, apperr.ErrInvalidTransition)
	}
	if t == nil {
		return fmt.Errorf("session: load: %w", apperr.ErrNotLoaded)
	}
	s.status = Active
	s.id = uuid.NewString()
	s.table = t
	s.index = -1
	s.checked = nil
	s.extra = nil
	s.saved = true
	s.logger.Info("session: loaded", slog.String("session_id", s.id), slog.Int("rows", t.Len()))
	return nil
}

// SelectRow commits the checked labels of the current row and moves to row i.
func (s *Session) SelectRow(ctx context.Context, i int) error {
	if err := s.requireActive("select"); err != nil {
		return err
	}
	if i < 0 || i >= s.table.Len() {
		return fmt.Errorf("session: select row %d of %d: %w", i, s.table.Len(), apperr.ErrOutOfRange)
	}
	if s.index >= 0 {
		if err := s.commit(); err != nil {
			return err
		}
	}

	row, err := s.table.Row(i)
	if err != nil {
		return fmt.Errorf("session: select: %w", err)
	}
	s.index = i
	s.refresh(row)

	if s.autosave && !s.saved {
		if _, err := s.persist(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Next selects the following row; it is a no-op on the last row.
func (s *Session) Next(ctx context.Context) error {
	if err := s.requireActive("next"); err != nil {
		return err
	}
	if s.index+1 >= s.table.Len() {
		return nil
	}
	return s.SelectRow(ctx, s.index+1)
}

// Prev selects the preceding row; it is a no-op on the first row or before
// any selection.
func (s *Session) Prev(ctx context.Context) error {
	if err := s.requireActive("prev"); err != nil {
		return err
	}
	if s.index < 1 {
		return nil
	}
	return s.SelectRow(ctx, s.index-1)
}

// SetChecked replaces the checked set. Every index must be in the
// vocabulary.
func (s *Session) SetChecked(indices []int) error {
	if err := s.requireActive("set checked"); err != nil {
		return err
	}
	vocab := s.codec.Vocabulary()
	for _, i := range indices {
		if !vocab.Contains(i) {
			return fmt.Errorf("session: label %d outside vocabulary of %d: %w", i, vocab.Len(), apperr.ErrOutOfRange)
		}
	}
	s.checked = labels.Normalize(indices, nil, nil)
	return nil
}

// Toggle flips one label.
func (s *Session) Toggle(i int) error {
	if err := s.requireActive("toggle"); err != nil {
		return err
	}
	if !s.codec.Vocabulary().Contains(i) {
		return fmt.Errorf("session: label %d outside vocabulary: %w", i, apperr.ErrOutOfRange)
	}
	next := make([]int, 0, len(s.checked)+1)
	found := false
	for _, c := range s.checked {
		if c == i {
			found = true
			continue
		}
		next = append(next, c)
	}
	if !found {
		next = append(next, i)
	}
	s.checked = labels.Normalize(next, nil, nil)
	return nil
}

// Checked returns a copy of the checked indices, ascending.
func (s *Session) Checked() []int {
	out := make([]int, len(s.checked))
	copy(out, s.checked)
	return out
}

// Commit stores the checked set into the current row without moving.
func (s *Session) Commit() error {
	if err := s.requireActive("commit"); err != nil {
		return err
	}
	if s.index < 0 {
		return nil
	}
	return s.commit()
}

// Save commits the current row and persists the table. It returns the
// checksum of the written file.
func (s *Session) Save(ctx context.Context) (string, error) {
	if err := s.Commit(); err != nil {
		return "", err
	}
	return s.persist(ctx)
}

// Stop ends the session. With unsaved edits the confirmer decides whether
// they are saved first; declining leaves the file on disk untouched. The
// session is idle afterwards even when saving fails.
func (s *Session) Stop(ctx context.Context, c Confirmer) (saved bool, err error) {
	if s.status != Active {
		return false, fmt.Errorf("session: stop: %w", apperr.ErrInvalidTransition)
	}
	defer s.reset()

	if s.index >= 0 {
		if err := s.commit(); err != nil {
			return false, err
		}
	}
	if s.saved {
		return false, nil
	}
	if c == nil || !c.Confirm("Unsaved changes", "Save changes before exit?") {
		s.logger.Info("session: stopped without saving", slog.String("session_id", s.id))
		return false, nil
	}
	if _, err := s.persist(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// State is a point-in-time view of the session.
type State struct {
	Status       string         `json:"status"`
	SessionID    string         `json:"session_id,omitempty"`
	Index        int            `json:"index"`
	Total        int            `json:"total"`
	ImagePath    string         `json:"image_path,omitempty"`
	Class        string         `json:"class,omitempty"`
	Values       []labels.Value `json:"values,omitempty"`
	Labels       []string       `json:"labels,omitempty"`
	Checked      []int          `json:"checked"`
	ChangesSaved bool           `json:"changes_saved"`
	Info         string         `json:"info"`
}

// Current returns a snapshot of the session.
func (s *Session) Current() State {
	st := State{
		Status:       s.status.String(),
		SessionID:    s.id,
		Index:        s.index,
		Checked:      s.Checked(),
		ChangesSaved: s.saved,
		Info:         "Images",
	}
	if s.table == nil {
		return st
	}
	st.Total = s.table.Len()
	if s.index < 0 {
		return st
	}
	st.Info = fmt.Sprintf("Image Nro. %d of %d", s.index+1, st.Total)
	if row, err := s.table.Row(s.index); err == nil {
		st.ImagePath = row.ImagePath()
		st.Class = row.Class
		st.Values = s.codec.Decode(row.Class)
		st.Labels = s.codec.Display(st.Values)
	}
	return st
}

func (s *Session) requireActive(op string) error {
	if s.status != Active {
		return fmt.Errorf("session: %s: no dataset loaded: %w", op, apperr.ErrInvalidTransition)
	}
	return nil
}

// commit writes the checked set of the current row through the policies.
// Identifiers unknown to the vocabulary are kept after the checked ones.
func (s *Session) commit() error {
	row, err := s.table.Row(s.index)
	if err != nil {
		return fmt.Errorf("session: commit: %w", err)
	}

	empty := s.empty
	if len(s.extra) > 0 {
		empty = nil
	}
	indices := labels.Normalize(s.checked, s.selection, empty)
	values := make([]labels.Value, 0, len(indices)+len(s.extra))
	for _, i := range indices {
		values = append(values, labels.IndexValue(i))
	}
	values = append(values, s.extra...)

	class, err := s.codec.EncodeValues(values)
	if err != nil {
		return fmt.Errorf("session: commit row %d: %w", s.index, err)
	}
	s.checked = labels.Indices(values)

	// A stored list with the same identifiers keeps its order.
	if labels.ParseLabel(row.Class).SameIDs(labels.ParseLabel(class)) {
		return nil
	}
	if err := s.table.SetLabelAt(s.index, class); err != nil {
		return fmt.Errorf("session: commit row %d: %w", s.index, err)
	}
	s.saved = false
	s.logger.Debug("session: label committed",
		slog.Int("row", s.index), slog.String("old", row.Class), slog.String("new", class))

	if s.onCommit != nil {
		s.onCommit(Change{
			SessionID:  s.id,
			RowIndex:   s.index,
			FolderPath: row.FolderPath,
			ImageID:    row.ImageID,
			OldClass:   row.Class,
			NewClass:   class,
			ChangedAt:  s.now().UTC(),
		})
	}
	return nil
}

func (s *Session) refresh(row models.Row) {
	values := s.codec.Decode(row.Class)
	s.checked = labels.Indices(values)
	s.extra = s.extra[:0]
	for _, v := range values {
		if !v.Known() {
			s.extra = append(s.extra, v)
		}
	}
}

func (s *Session) persist(ctx context.Context) (string, error) {
	sum, err := s.table.Save(ctx)
	if err != nil {
		return "", fmt.Errorf("session: save: %w", err)
	}
	s.saved = true
	if s.onSave != nil {
		s.onSave(sum)
	}
	return sum, nil
}

func (s *Session) reset() {
	s.logger.Info("session: stopped", slog.String("session_id", s.id))
	s.status = Idle
	s.id = ""
	s.table = nil
	s.index = -1
	s.checked = nil
	s.extra = nil
	s.saved = true
}

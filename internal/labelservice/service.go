// Package labelservice coordinates the dataset table, the labeling session,
// the preview renderer, the label history and the event broker behind one
// lock, so HTTP and MCP handlers can share a single-mutator session.
package labelservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/dataset"
	"github.com/starford/laguz/internal/index"
	"github.com/starford/laguz/internal/labels"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/session"
	"github.com/starford/laguz/internal/sse"
	"github.com/starford/laguz/internal/storage"
	"github.com/starford/laguz/internal/walker"
)

// Renderer draws an image preview.
type Renderer interface {
	Render(ctx context.Context, absPath string, labels []string) ([]byte, error)
}

// Publisher receives events for connected clients.
type Publisher interface {
	Publish(event sse.Event)
	PublishChange(event sse.Event)
}

// RowItem is a table row with its position and display names.
type RowItem struct {
	Index      int      `json:"index"`
	FolderPath string   `json:"folder_path"`
	ImageID    string   `json:"image_id"`
	Class      string   `json:"class"`
	Labels     []string `json:"labels"`
	Text       string   `json:"text"`
}

// RowsPage is a window over the table.
type RowsPage struct {
	File   string    `json:"file"`
	Total  int       `json:"total"`
	Offset int       `json:"offset"`
	Limit  int       `json:"limit"`
	Items  []RowItem `json:"items"`
}

// CreateResult describes a dataset built from a directory scan.
type CreateResult struct {
	File   string         `json:"file"`
	Images int            `json:"images"`
	Saved  bool           `json:"saved"`
	Stats  []dataset.Stat `json:"stats"`
}

// StopResult describes a stopped session.
type StopResult struct {
	Saved bool          `json:"saved"`
	State session.State `json:"state"`
}

const (
	defaultRowsLimit = 100
	maxRowsLimit     = 1000
)

// Service is the single entry point for labeling operations.
type Service struct {
	mu sync.Mutex

	store     storage.Provider
	codec     *labels.Codec
	fileName  string
	sessOpts  []session.Option
	tableOpts []dataset.Option
	renderer  Renderer
	db        index.Store
	events    Publisher
	logger    *slog.Logger

	sess  *session.Session
	table *dataset.Table
}

// Option configures a Service.
type Option func(*Service)

// WithFileName sets the dataset file name relative to the store root.
func WithFileName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.fileName = name
		}
	}
}

// WithSessionOptions passes options to every session.
func WithSessionOptions(opts ...session.Option) Option {
	return func(s *Service) { s.sessOpts = append(s.sessOpts, opts...) }
}

// WithTableOptions passes options to every table.
func WithTableOptions(opts ...dataset.Option) Option {
	return func(s *Service) { s.tableOpts = append(s.tableOpts, opts...) }
}

// WithRenderer enables previews.
func WithRenderer(r Renderer) Option {
	return func(s *Service) { s.renderer = r }
}

// WithIndex enables the label history.
func WithIndex(db index.Store) Option {
	return func(s *Service) { s.db = db }
}

// WithEvents enables client notifications.
func WithEvents(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a service over the dataset directory held by store.
func New(store storage.Provider, codec *labels.Codec, opts ...Option) *Service {
	s := &Service{
		store:    store,
		codec:    codec,
		fileName: dataset.DefaultFileName,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tableOpts = append([]dataset.Option{dataset.WithLogger(s.logger)}, s.tableOpts...)

	sessOpts := append([]session.Option{session.WithLogger(s.logger)}, s.sessOpts...)
	sessOpts = append(sessOpts, session.WithOnCommit(s.committed), session.WithOnSave(s.saved))
	s.sess = session.New(codec, sessOpts...)
	return s
}

// FileName returns the dataset file the next Open reads.
func (s *Service) FileName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileName
}

// Vocabulary returns the label vocabulary.
func (s *Service) Vocabulary() []labels.Entry {
	return s.codec.Vocabulary().Entries()
}

// Resolve maps label identifiers to vocabulary indices.
func (s *Service) Resolve(ids []string) ([]int, error) {
	vocab := s.codec.Vocabulary()
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || id == labels.UnsetText {
			continue
		}
		i, ok := vocab.IndexOf(id)
		if !ok {
			return nil, fmt.Errorf("labelservice: unknown label %q: %w", id, apperr.ErrOutOfRange)
		}
		out = append(out, i)
	}
	return out, nil
}

// Open reads the dataset file (name, or the configured one when empty),
// starts a session over it and selects the first row.
func (s *Service) Open(ctx context.Context, name string) (session.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sess.Status() != session.Idle {
		return session.State{}, fmt.Errorf("labelservice: open: session already active: %w", apperr.ErrInvalidTransition)
	}
	if name == "" {
		name = s.fileName
	}
	table := dataset.New(s.store, name, s.tableOpts...)
	if _, err := table.Read(ctx); err != nil {
		return session.State{}, err
	}
	if err := s.sess.Load(table); err != nil {
		return session.State{}, err
	}
	s.table = table
	s.fileName = name

	s.mirror(table)
	s.publish(sse.SessionLoaded, map[string]any{
		"session_id": s.sess.ID(),
		"file":       name,
		"rows":       table.Len(),
	})

	if table.Len() > 0 {
		if err := s.sess.SelectRow(ctx, 0); err != nil {
			return s.sess.Current(), err
		}
		s.publishSelected()
	}
	return s.sess.Current(), nil
}

// Create scans the dataset directory and builds a new table named name (the
// configured file when empty). The confirmer decides whether it is written;
// the session is not started.
func (s *Service) Create(ctx context.Context, name string, haveLabels bool, c session.Confirmer) (CreateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sess.Status() != session.Idle {
		return CreateResult{}, fmt.Errorf("labelservice: create: session active: %w", apperr.ErrInvalidTransition)
	}
	if name == "" {
		name = s.fileName
	}
	if !strings.EqualFold(walker.Extension(name), "csv") {
		return CreateResult{}, fmt.Errorf("labelservice: create: %q is not a csv file name: %w", name, apperr.ErrInvalidInput)
	}

	table := dataset.New(s.store, name, s.tableOpts...)
	if err := table.Create(ctx, haveLabels); err != nil {
		return CreateResult{}, err
	}
	res := CreateResult{File: name, Images: table.Len(), Stats: table.Stats()}

	msg := fmt.Sprintf("%d images found, save %s?", table.Len(), name)
	if c == nil || !c.Confirm("Dataset created", msg) {
		s.logger.Info("labelservice: created dataset discarded", slog.String("file", name))
		return res, nil
	}
	sum, err := table.Save(ctx)
	if err != nil {
		return res, err
	}
	res.Saved = true
	s.fileName = name
	s.afterSave(table, sum)
	return res, nil
}

// Rows returns a window of the open table, or of the dataset file when no
// session is active.
func (s *Service) Rows(ctx context.Context, limit, offset int) (RowsPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.view(ctx)
	if err != nil {
		return RowsPage{}, err
	}
	if limit <= 0 {
		limit = defaultRowsLimit
	}
	if limit > maxRowsLimit {
		limit = maxRowsLimit
	}
	if offset < 0 {
		offset = 0
	}

	page := RowsPage{File: table.Name(), Total: table.Len(), Offset: offset, Limit: limit, Items: []RowItem{}}
	for i := offset; i < table.Len() && i < offset+limit; i++ {
		r, err := table.Row(i)
		if err != nil {
			return RowsPage{}, err
		}
		page.Items = append(page.Items, s.item(i, r))
	}
	return page, nil
}

// Row returns one row.
func (s *Service) Row(ctx context.Context, i int) (RowItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.view(ctx)
	if err != nil {
		return RowItem{}, err
	}
	r, err := table.Row(i)
	if err != nil {
		return RowItem{}, err
	}
	return s.item(i, r), nil
}

// Stats returns label counts of the open table, or of the dataset file when
// no session is active.
func (s *Service) Stats(ctx context.Context) ([]dataset.Stat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.view(ctx)
	if err != nil {
		return nil, err
	}
	return table.Stats(), nil
}

// State returns the session snapshot.
func (s *Service) State() session.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess.Current()
}

// Select moves the session to row i.
func (s *Service) Select(ctx context.Context, i int) (session.State, error) {
	return s.move(func() error { return s.sess.SelectRow(ctx, i) })
}

// Next moves to the following row.
func (s *Service) Next(ctx context.Context) (session.State, error) {
	return s.move(func() error { return s.sess.Next(ctx) })
}

// Prev moves to the preceding row.
func (s *Service) Prev(ctx context.Context) (session.State, error) {
	return s.move(func() error { return s.sess.Prev(ctx) })
}

// SetChecked replaces the checked labels of the current row.
func (s *Service) SetChecked(indices []int) (session.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sess.SetChecked(indices); err != nil {
		return s.sess.Current(), err
	}
	return s.sess.Current(), nil
}

// Toggle flips one label of the current row.
func (s *Service) Toggle(i int) (session.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sess.Toggle(i); err != nil {
		return s.sess.Current(), err
	}
	return s.sess.Current(), nil
}

// Label selects row i, checks the given labels and commits them.
func (s *Service) Label(ctx context.Context, i int, indices []int) (session.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 {
		return s.sess.Current(), fmt.Errorf("labelservice: label row %d: %w", i, apperr.ErrOutOfRange)
	}
	if s.sess.Index() != i {
		if err := s.sess.SelectRow(ctx, i); err != nil {
			return s.sess.Current(), err
		}
		s.publishSelected()
	}
	if err := s.sess.SetChecked(indices); err != nil {
		return s.sess.Current(), err
	}
	if err := s.sess.Commit(); err != nil {
		return s.sess.Current(), err
	}
	return s.sess.Current(), nil
}

// Save commits the current row and writes the table.
func (s *Service) Save(ctx context.Context) (session.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.sess.Save(ctx); err != nil {
		return s.sess.Current(), err
	}
	return s.sess.Current(), nil
}

// Stop ends the session, asking c whether unsaved edits are written.
func (s *Service) Stop(ctx context.Context, c session.Confirmer) (StopResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved, err := s.sess.Stop(ctx, c)
	if errors.Is(err, apperr.ErrInvalidTransition) {
		return StopResult{}, err
	}
	s.table = nil
	s.publish(sse.SessionStopped, map[string]any{"saved": saved})
	return StopResult{Saved: saved, State: s.sess.Current()}, err
}

// Shutdown stops an active session, saving unsaved edits when save is true.
// It is a no-op while idle.
func (s *Service) Shutdown(ctx context.Context, save bool) error {
	if s.State().Status != session.Active.String() {
		return nil
	}
	res, err := s.Stop(ctx, session.Always(save))
	if err != nil {
		return err
	}
	s.logger.Info("labelservice: session closed on shutdown", slog.Bool("saved", res.Saved))
	return nil
}

// Preview renders the current row with its label names.
func (s *Service) Preview(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.renderer == nil {
		return nil, fmt.Errorf("labelservice: preview disabled: %w", apperr.ErrNotFound)
	}
	st := s.sess.Current()
	if st.Status != session.Active.String() {
		return nil, fmt.Errorf("labelservice: preview: %w", apperr.ErrInvalidTransition)
	}
	if st.Index < 0 {
		return nil, fmt.Errorf("labelservice: preview: no row selected: %w", apperr.ErrNotFound)
	}
	abs, err := s.store.Abs(st.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("labelservice: preview: %w", err)
	}
	out, err := s.renderer.Render(ctx, abs, st.Labels)
	if err != nil {
		s.logger.Warn("labelservice: preview failed",
			slog.String("path", st.ImagePath),
			slog.String("error", err.Error()))
		return nil, err
	}
	return out, nil
}

// ImageFile resolves an image path relative to the dataset directory.
func (s *Service) ImageFile(rel string) (string, error) {
	if !walker.IsImage(rel) {
		return "", fmt.Errorf("labelservice: %s: %w", rel, apperr.ErrNotFound)
	}
	abs, err := s.store.Abs(rel)
	if err != nil {
		return "", fmt.Errorf("labelservice: %s: %w: %w", rel, apperr.ErrNotFound, err)
	}
	if !storage.Exists(s.store, rel) {
		return "", fmt.Errorf("labelservice: %s: %w", rel, apperr.ErrNotFound)
	}
	return abs, nil
}

// History returns recent label changes, newest first.
func (s *Service) History(limit int) ([]models.LabelChange, error) {
	if s.db == nil {
		return []models.LabelChange{}, nil
	}
	return s.db.History(limit)
}

// FindByLabel returns saved rows carrying the identifier id.
func (s *Service) FindByLabel(id string, limit int) ([]models.Row, error) {
	if s.db == nil {
		return []models.Row{}, nil
	}
	return s.db.FindByLabel(id, limit)
}

// view returns the open table or a freshly read copy of the dataset file.
func (s *Service) view(ctx context.Context) (*dataset.Table, error) {
	if s.table != nil {
		return s.table, nil
	}
	table := dataset.New(s.store, s.fileName, s.tableOpts...)
	if _, err := table.Read(ctx); err != nil {
		return nil, err
	}
	return table, nil
}

func (s *Service) move(fn func() error) (session.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.sess.Index()
	err := fn()
	if s.sess.Index() != before {
		s.publishSelected()
	}
	return s.sess.Current(), err
}

func (s *Service) item(i int, r models.Row) RowItem {
	values := s.codec.Decode(r.Class)
	return RowItem{
		Index:      i,
		FolderPath: r.FolderPath,
		ImageID:    r.ImageID,
		Class:      r.Class,
		Labels:     s.codec.Display(values),
		Text:       s.codec.DisplayText(values),
	}
}

// committed runs under s.mu from inside the session.
func (s *Service) committed(c session.Change) {
	if s.db != nil {
		if err := s.db.RecordChange(c); err != nil {
			s.logger.Warn("labelservice: record change failed", slog.String("error", err.Error()))
		}
	}
	if s.events != nil {
		s.events.PublishChange(sse.Event{Type: sse.LabelCommitted, Data: c})
	}
}

// saved runs under s.mu from inside the session, after manual saves and
// autosaves alike.
func (s *Service) saved(sum string) {
	if s.table != nil {
		s.afterSave(s.table, sum)
	}
}

func (s *Service) afterSave(table *dataset.Table, sum string) {
	if s.db != nil {
		if _, err := index.Sync(s.db, table.Rows(), sum, s.logger); err != nil {
			s.logger.Warn("labelservice: history sync failed", slog.String("error", err.Error()))
		}
	}
	s.publish(sse.DatasetSaved, map[string]any{
		"file":     table.Name(),
		"checksum": sum,
		"rows":     table.Len(),
	})
}

// mirror syncs the history mirror with the file just opened.
func (s *Service) mirror(table *dataset.Table) {
	if s.db == nil {
		return
	}
	data, err := s.store.Read(table.Name())
	if err != nil {
		return
	}
	if _, err := index.Sync(s.db, table.Rows(), dataset.Checksum(data), s.logger); err != nil {
		s.logger.Warn("labelservice: history sync failed", slog.String("error", err.Error()))
	}
}

func (s *Service) publishSelected() {
	st := s.sess.Current()
	s.publish(sse.SessionSelected, map[string]any{
		"index":      st.Index,
		"image_path": st.ImagePath,
		"class":      st.Class,
		"info":       st.Info,
	})
}

func (s *Service) publish(typ string, data any) {
	if s.events != nil {
		s.events.Publish(sse.Event{Type: typ, Data: data})
	}
}

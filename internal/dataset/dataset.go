// Package dataset implements the table of images and their labels, persisted
// as a flat CSV file (folder_path, image_id, class) inside the image root.
package dataset

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/csimplestring/go-csv/detector"
	"github.com/gocarina/gocsv"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/labels"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/storage"
	"github.com/starford/laguz/internal/walker"
)

// DefaultFileName is the table name proposed when creating a dataset.
const DefaultFileName = "dataset.csv"

var utf8BOM = []byte("\xef\xbb\xbf")

// Table is an ordered, position-addressed collection of rows. Row order is
// fixed when the table is created or read; label edits never reorder it.
type Table struct {
	store    storage.Provider
	name     string
	rows     []models.Row
	loaded   bool
	walkOpts []walker.Option
	logger   *slog.Logger
}

// Option configures a Table.
type Option func(*Table)

// WithLogger sets the table logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Table) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithWalkerOptions passes options to the directory scan used by Create.
func WithWalkerOptions(opts ...walker.Option) Option {
	return func(t *Table) { t.walkOpts = append(t.walkOpts, opts...) }
}

// New creates an empty table stored as name under the store root.
func New(store storage.Provider, name string, opts ...Option) *Table {
	if name == "" {
		name = DefaultFileName
	}
	t := &Table{
		store:  store,
		name:   name,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the CSV file name relative to the store root.
func (t *Table) Name() string { return t.name }

// Store returns the provider holding the images and the table.
func (t *Table) Store() storage.Provider { return t.store }

// Loaded reports whether rows were read or created.
func (t *Table) Loaded() bool { return t.loaded }

// Exists reports whether the CSV file is on disk.
func (t *Table) Exists() bool { return storage.Exists(t.store, t.name) }

// Create scans the store root for images and builds one row per image.
// With haveLabels the lower-cased folder becomes the class, otherwise every
// row is "unset". Rows are sorted by (folder_path, class, image_id).
func (t *Table) Create(ctx context.Context, haveLabels bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := append([]walker.Option{walker.WithLogger(t.logger)}, t.walkOpts...)
	found, err := walker.SearchImages(t.store.Root(), opts...)
	if err != nil {
		return fmt.Errorf("dataset: scan: %w", err)
	}

	rows := make([]models.Row, found.Len())
	for i := range found.Names {
		class := labels.UnsetText
		if haveLabels {
			class = strings.ToLower(found.Folders[i])
		}
		rows[i] = models.Row{
			FolderPath: found.Folders[i],
			ImageID:    found.Names[i],
			Class:      class,
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.FolderPath != b.FolderPath {
			return a.FolderPath < b.FolderPath
		}
		if a.Class != b.Class {
			return a.Class < b.Class
		}
		return a.ImageID < b.ImageID
	})

	t.rows = rows
	t.loaded = true
	t.logger.Info("dataset: created from scan",
		slog.String("root", t.store.Root()),
		slog.Int("images", len(rows)),
		slog.Bool("subfolders_are_labels", haveLabels))
	return nil
}

// Read loads the CSV file. It is a no-op returning false when the table is
// already loaded. A missing or malformed file fails the whole load.
func (t *Table) Read(ctx context.Context) (bool, error) {
	if t.loaded {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	t.logger.Info("dataset: reading", slog.String("file", t.name))
	data, err := t.store.Read(t.name)
	if err != nil {
		if storage.IsNotExist(err) {
			return false, fmt.Errorf("dataset: read %s: %w: %w", t.name, apperr.ErrNotFound, err)
		}
		return false, fmt.Errorf("dataset: read %s: %w", t.name, err)
	}

	rows, err := decode(data)
	if err != nil {
		return false, fmt.Errorf("dataset: parse %s: %w: %w", t.name, apperr.ErrInvalidInput, err)
	}

	t.rows = rows
	t.loaded = true
	t.logger.Info("dataset: loaded", slog.String("file", t.name), slog.Int("rows", len(rows)))
	return true, nil
}

// Save writes every row to the CSV file, replacing it atomically, and
// returns the checksum of the written bytes.
func (t *Table) Save(ctx context.Context) (string, error) {
	if !t.loaded {
		return "", fmt.Errorf("dataset: save %s: %w", t.name, apperr.ErrNotLoaded)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := encode(t.rows)
	if err != nil {
		return "", fmt.Errorf("dataset: encode %s: %w", t.name, err)
	}
	if err := t.store.Write(t.name, data); err != nil {
		return "", fmt.Errorf("dataset: save %s: %w", t.name, err)
	}
	t.logger.Info("dataset: saved", slog.String("file", t.name), slog.Int("rows", len(t.rows)))
	return Checksum(data), nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Row returns a copy of row i.
func (t *Table) Row(i int) (models.Row, error) {
	if err := t.check(i); err != nil {
		return models.Row{}, err
	}
	return t.rows[i], nil
}

// RowAt returns the image path (relative to the root) and class of row i.
func (t *Table) RowAt(i int) (imagePath, class string, err error) {
	r, err := t.Row(i)
	if err != nil {
		return "", "", err
	}
	return r.ImagePath(), r.Class, nil
}

// SetLabelAt replaces the class of row i.
func (t *Table) SetLabelAt(i int, class string) error {
	if err := t.check(i); err != nil {
		return err
	}
	t.rows[i].Class = class
	return nil
}

// Rows returns a copy of all rows in table order.
func (t *Table) Rows() []models.Row {
	out := make([]models.Row, len(t.rows))
	copy(out, t.rows)
	return out
}

func (t *Table) check(i int) error {
	if i < 0 || i >= len(t.rows) {
		return fmt.Errorf("dataset: row %d of %d: %w", i, len(t.rows), apperr.ErrOutOfRange)
	}
	return nil
}

// allowedDelimiters are the separators accepted from the sniffer; anything
// else (dots in file names, underscores) falls back to a comma.
var allowedDelimiters = map[string]rune{",": ',', ";": ';', "\t": '\t', "|": '|'}

func sniffDelimiter(data []byte) rune {
	d := detector.New()
	for _, cand := range d.DetectDelimiter(bytes.NewReader(data), '"') {
		if r, ok := allowedDelimiters[cand]; ok {
			return r
		}
	}
	return ','
}

func decode(data []byte) ([]models.Row, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var records []*models.Row
	if err := gocsv.UnmarshalCSV(r, &records); err != nil {
		return nil, err
	}

	rows := make([]models.Row, 0, len(records))
	for i, rec := range records {
		if rec.ImageID == "" {
			return nil, fmt.Errorf("row %d: missing image_id", i+1)
		}
		if rec.FolderPath == "" {
			rec.FolderPath = "."
		}
		if strings.TrimSpace(rec.Class) == "" {
			rec.Class = labels.UnsetText
		}
		rows = append(rows, *rec)
	}
	return rows, nil
}

func encode(rows []models.Row) ([]byte, error) {
	var buf bytes.Buffer
	w := gocsv.NewSafeCSVWriter(csv.NewWriter(&buf))
	if err := gocsv.MarshalCSV(&rows, w); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Checksum identifies the content of a saved dataset file.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

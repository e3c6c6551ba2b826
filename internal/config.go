package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/laguz/internal/dataset"
	"github.com/starford/laguz/internal/labels"
	"github.com/starford/laguz/internal/preview"
	"github.com/starford/laguz/internal/walker"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Dataset DatasetConfig     `yaml:"dataset"`
	Labels  LabelsConfig      `yaml:"labels"`
	Policy  PolicyConfig      `yaml:"policy"`
	Session SessionConfig     `yaml:"session"`
	Preview PreviewConfig     `yaml:"preview"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.Dataset, &c.Labels, &c.Policy, &c.Preview, &c.SQLite, &c.Auth,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// DatasetConfig locates the image root and its CSV file.
type DatasetConfig struct {
	Root                string `yaml:"root"`
	File                string `yaml:"file"`
	SubfoldersAreLabels bool   `yaml:"subfolders_are_labels"`
	MaxDepth            int    `yaml:"max_depth"`
	FollowSymlinks      bool   `yaml:"follow_symlinks"`
}

// Validate validates the dataset configuration.
func (c *DatasetConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.File, validation.Required, validation.By(csvName)),
		validation.Field(&c.MaxDepth, validation.Min(0)),
	)
}

// WalkerOptions returns the scan options for the configured tree.
func (c *DatasetConfig) WalkerOptions() []walker.Option {
	opts := []walker.Option{walker.WithFollowSymlinks(c.FollowSymlinks)}
	if c.MaxDepth > 0 {
		opts = append(opts, walker.WithMaxDepth(c.MaxDepth))
	}
	return opts
}

func csvName(value any) error {
	name, _ := value.(string)
	if !strings.EqualFold(walker.Extension(name), "csv") {
		return errors.New("must end with .csv")
	}
	return nil
}

// LabelsConfig holds the label vocabulary. Index 0 is the background label.
type LabelsConfig struct {
	Vocabulary []labels.Entry `yaml:"vocabulary"`
}

// Validate validates the labels configuration.
func (c *LabelsConfig) Validate() error {
	if len(c.Vocabulary) == 0 {
		return nil
	}
	_, err := labels.NewVocabulary(c.Vocabulary)
	return err
}

// Build returns the configured vocabulary, or the built-in one when none is set.
func (c *LabelsConfig) Build() (*labels.Vocabulary, error) {
	if len(c.Vocabulary) == 0 {
		return labels.DefaultVocabulary(), nil
	}
	return labels.NewVocabulary(c.Vocabulary)
}

// PolicyConfig names how a selection is stored.
type PolicyConfig struct {
	Selection string `yaml:"selection"`
	Empty     string `yaml:"empty"`
}

// Validate validates the policy configuration.
func (c *PolicyConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Selection, validation.In(labels.SelectionKeep, labels.SelectionDropBackground)),
		validation.Field(&c.Empty, validation.In(labels.EmptyUnset, labels.EmptyBackground)),
	)
}

// SessionConfig controls saving behaviour.
type SessionConfig struct {
	Autosave   bool `yaml:"autosave"`
	SaveOnExit bool `yaml:"save_on_exit"`
}

// PreviewConfig controls the preview renderer.
type PreviewConfig struct {
	Width    int           `yaml:"width"`
	Height   int           `yaml:"height"`
	FontPath string        `yaml:"font_path"`
	FontSize float64       `yaml:"font_size"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Validate validates the preview configuration.
func (c *PreviewConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Width, validation.Min(0)),
		validation.Field(&c.Height, validation.Min(0)),
		validation.Field(&c.FontSize, validation.Min(0.0)),
	)
}

// Renderer returns the renderer configuration.
func (c *PreviewConfig) Renderer() preview.Config {
	return preview.Config{
		Width:    c.Width,
		Height:   c.Height,
		FontPath: c.FontPath,
		FontSize: c.FontSize,
		CacheTTL: c.CacheTTL,
	}
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Dataset: DatasetConfig{
			Root:     "./images",
			File:     dataset.DefaultFileName,
			MaxDepth: walker.DefaultMaxDepth,
		},
		Labels: LabelsConfig{
			Vocabulary: labels.DefaultEntries(),
		},
		Policy: PolicyConfig{
			Selection: labels.SelectionKeep,
			Empty:     labels.EmptyUnset,
		},
		Session: SessionConfig{
			SaveOnExit: true,
		},
		Preview: PreviewConfig{
			Width:    preview.DefaultWidth,
			Height:   preview.DefaultHeight,
			FontSize: preview.DefaultFontSize,
			CacheTTL: preview.DefaultCacheTTL,
		},
		SQLite: SQLiteConfig{
			Path: "./laguz.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

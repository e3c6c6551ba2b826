package internal

import (
	"io"
	"os"

	"github.com/starford/laguz/internal/session"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	version   string
	confirmer session.Confirmer
	out       io.Writer
	logOut    io.Writer
}

func newApplication(opts []Option) *application {
	app := &application{
		version: "dev",
		out:     os.Stdout,
		logOut:  os.Stdout,
	}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported to MCP clients.
func WithVersion(v string) Option {
	return func(a *application) {
		if v != "" {
			a.version = v
		}
	}
}

// WithConfirmer sets who answers the save questions of the CLI commands.
func WithConfirmer(c session.Confirmer) Option {
	return func(a *application) {
		a.confirmer = c
	}
}

// WithOutput sets where command results are printed.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}

// WithLogOutput sets where logs are written.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOut = w
	}
}

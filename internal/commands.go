package internal

import (
	"context"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/starford/laguz/internal/index"
	"github.com/starford/laguz/internal/mcpserver"
	"github.com/starford/laguz/internal/session"
)

// Scan builds the dataset file from the image root. The configured
// confirmer decides whether it is written; without one nothing is saved.
func Scan(ctx context.Context, haveLabels bool, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := app.logger()

	db, err := index.Open(app.config.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	svc, err := app.service(logger, db, nil)
	if err != nil {
		return err
	}
	confirmer := app.confirmer
	if confirmer == nil {
		confirmer = session.Always(false)
	}

	res, err := svc.Create(ctx, app.config.Dataset.File, haveLabels, confirmer)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if res.Saved {
		fmt.Fprintf(app.out, "%d images written to %s\n", res.Images, res.File)
	} else {
		fmt.Fprintf(app.out, "%d images found, %s not written\n", res.Images, res.File)
	}
	return nil
}

// Stats prints the label counts of the dataset file.
func Stats(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := app.logger()

	svc, err := app.service(logger, nil, nil)
	if err != nil {
		return err
	}
	stats, err := svc.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	tw := tabwriter.NewWriter(app.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLASS\tCOUNT")
	total := 0
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\n", s.Class, s.Count)
		total += s.Count
	}
	fmt.Fprintf(tw, "total\t%d\n", total)
	return tw.Flush()
}

// ServeMCP serves the labeling tools over stdin/stdout until the client
// disconnects. Logs must not go to stdout here.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := app.logger()

	db, err := index.Open(app.config.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	svc, err := app.service(logger, db, nil)
	if err != nil {
		return err
	}

	logger.Info("Starting MCP server", slog.String("dataset_root", app.config.Dataset.Root))
	serveErr := mcpserver.New(svc, app.version).ServeStdio()

	if err := svc.Shutdown(ctx, app.config.Session.SaveOnExit); err != nil {
		logger.Error("session shutdown error", slog.String("error", err.Error()))
	}
	if serveErr != nil {
		return fmt.Errorf("mcp: %w", serveErr)
	}
	return nil
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/laguz/internal"
	"github.com/starford/laguz/internal/session"
	pkgconfig "github.com/starford/laguz/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		slog.Warn("config file not found, using defaults", slog.String("path", configPath))
	}
	if root := cmd.String("root"); root != "" {
		cfg.Dataset.Root = root
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func scan(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	haveLabels := cfg.Dataset.SubfoldersAreLabels
	if cmd.IsSet("have-labels") {
		haveLabels = cmd.Bool("have-labels")
	}

	var confirmer session.Confirmer = prompt(os.Stdin, os.Stderr)
	if cmd.Bool("yes") {
		confirmer = session.Always(true)
	}
	return internal.Scan(ctx, haveLabels,
		internal.WithConfig(cfg),
		internal.WithConfirmer(confirmer),
		internal.WithLogOutput(os.Stderr),
	)
}

func stats(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Stats(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// stdout carries the protocol.
	return internal.ServeMCP(ctx,
		internal.WithConfig(cfg),
		internal.WithVersion(version),
		internal.WithLogOutput(os.Stderr),
	)
}

// prompt asks yes/no questions on a terminal.
func prompt(in io.Reader, out io.Writer) session.ConfirmFunc {
	r := bufio.NewReader(in)
	return func(title, message string) bool {
		fmt.Fprintf(out, "%s: %s [y/N] ", title, message)
		line, _ := r.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		}
		return false
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "laguz",
		Usage:   "Image labeling tool that keeps multi-label annotations in a CSV file",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Image root directory (overrides dataset.root)",
				Sources: cli.EnvVars("LAGUZ_DATASET_ROOT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and image watcher",
				Action: serve,
			},
			{
				Name:  "scan",
				Usage: "Create the dataset file from the images under the root",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "have-labels",
						Usage: "Use each image's folder name as its label",
					},
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Save without asking",
					},
				},
				Action: scan,
			},
			{
				Name:   "stats",
				Usage:  "Print image counts per label",
				Action: stats,
			},
			{
				Name:   "mcp",
				Usage:  "Serve labeling tools over MCP stdio",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

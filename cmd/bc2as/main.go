package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/bc2as/internal"
	pkgconfig "github.com/starford/bc2as/pkg/config"
)

const defaultConfigFile = "config/config.yaml"

// loadConfig reads the config file and applies flag overrides. The default
// file is optional; a file named on the command line must exist.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cmd.IsSet("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cmd.IsSet("log-level") {
		if err := cfg.App.LogLevel.UnmarshalText([]byte(cmd.String("log-level"))); err != nil {
			return nil, fmt.Errorf("invalid --log-level: %w", err)
		}
	}
	if cmd.IsSet("log-format") {
		cfg.App.LogFormat = cmd.String("log-format")
	}
	if cmd.IsSet("fallback") {
		cfg.Prompt.Fallback = cmd.String("fallback")
	}
	for flag, field := range map[string]*string{
		"url":        &cfg.Backend.URL,
		"username":   &cfg.Backend.Username,
		"password":   &cfg.Backend.Password,
		"created-by": &cfg.Backend.CreatedBy,
	} {
		if cmd.IsSet(flag) {
			*field = cmd.String(flag)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func syncOptions(cmd *cli.Command) ([]internal.Option, error) {
	if cmd.Args().Len() != 1 {
		return nil, fmt.Errorf("expected exactly one directory argument")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithDir(cmd.Args().First()),
		internal.WithRoot(cmd.Bool("root")),
		internal.WithAssumeYes(cmd.Bool("yes")),
	}, nil
}

func runSync(ctx context.Context, cmd *cli.Command) error {
	opts, err := syncOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	opts, err := syncOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Watch(ctx, opts...); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}

func runSandbox(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("port") {
		cfg.Sandbox.HTTP.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("db") {
		cfg.Sandbox.SQLite.Path = cmd.String("db")
	}
	if err := internal.Serve(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("sandbox: %w", err)
	}
	return nil
}

func main() {
	syncFlags := []cli.Flag{
		&cli.BoolFlag{
			Name:  "root",
			Usage: "DIR contains repository directories instead of being one",
		},
		&cli.BoolFlag{
			Name:    "yes",
			Aliases: []string{"y"},
			Usage:   "Accept the directory structure and create missing repositories without asking",
		},
		&cli.StringFlag{
			Name:  "fallback",
			Usage: "Answer to the Siegfried timestamp fallback question: ask, accept or skip",
		},
		&cli.StringFlag{
			Name:    "url",
			Usage:   "ArchivesSpace backend URL",
			Sources: cli.EnvVars("BC2AS_BACKEND_URL"),
		},
		&cli.StringFlag{
			Name:    "username",
			Usage:   "ArchivesSpace username",
			Sources: cli.EnvVars("BC2AS_USERNAME"),
		},
		&cli.StringFlag{
			Name:    "password",
			Usage:   "ArchivesSpace password",
			Sources: cli.EnvVars("BC2AS_PASSWORD"),
		},
		&cli.StringFlag{
			Name:    "created-by",
			Usage:   "Operator name recorded on each dataset record",
			Sources: cli.EnvVars("BC2AS_CREATED_BY"),
		},
	}

	cmd := &cli.Command{
		Name:      "bc2as",
		Usage:     "Create ArchivesSpace records from Brunnhilde triage reports",
		ArgsUsage: "DIR",
		Action:    runSync,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: defaultConfigFile,
				Value:       defaultConfigFile,
				Sources:     cli.EnvVars("BC2AS_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format: text or json",
			},
		}, syncFlags...),
		Commands: []*cli.Command{
			{
				Name:      "sync",
				Usage:     "Create records for every dataset below DIR",
				ArgsUsage: "DIR",
				Action:    runSync,
			},
			{
				Name:      "watch",
				Usage:     "Sync DIR, then keep syncing new dataset directories as they appear",
				ArgsUsage: "DIR",
				Action:    runWatch,
			},
			{
				Name:   "sandbox",
				Usage:  "Serve a local stand-in backend for trial runs",
				Action: runSandbox,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "port",
						Usage: "HTTP port",
					},
					&cli.StringFlag{
						Name:  "db",
						Usage: "SQLite database path",
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

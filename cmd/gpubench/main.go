package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxnlabs/gpubench/internal/config"
	"github.com/fxnlabs/gpubench/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "gpubench",
		Usage: "Benchmark compute kernels and model runtimes on the local GPU",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "home",
				Value:   config.GetDefaultConfigHome(),
				Usage:   "Path to the gpubench home directory",
				EnvVars: []string{"GPUBENCH_HOME"},
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to the config file, defaults to config.yaml in the home directory",
			},
			&cli.StringFlag{
				Name:  "verbosity",
				Usage: "Override the configured log level",
			},
		},
		Before: setup,
		After: func(c *cli.Context) error {
			if log, ok := c.App.Metadata["logger"].(*zap.Logger); ok {
				_ = log.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			initCommand(),
			deviceCommand(),
			benchCommand(),
			autotuneCommand(),
			e2eCommand(),
			serveCommand(),
			remoteCommand(),
		},
	}
}

// setup loads the configuration and logger into the app metadata. Without a
// config file in the home directory every setting takes its default.
func setup(c *cli.Context) error {
	home := c.String("home")
	path := c.String("config")
	explicit := path != ""
	if !explicit {
		path = config.ConfigPath(home)
	}

	cfg, err := config.LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		cfg = &config.Config{}
		cfg.ApplyDefaults()
		cfg.Bench.SpotCheck = true
		err = nil
	}
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if v := c.String("verbosity"); v != "" {
		cfg.Logger.Verbosity = v
	}

	log, err := logger.NewConsole(cfg.Logger.Verbosity)
	if err != nil {
		return err
	}
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata["homeDir"] = home
	c.App.Metadata["config"] = cfg
	c.App.Metadata["logger"] = log
	return nil
}

func homeDir(c *cli.Context) string {
	return c.App.Metadata["homeDir"].(string)
}

func appConfig(c *cli.Context) *config.Config {
	return c.App.Metadata["config"].(*config.Config)
}

func appLogger(c *cli.Context) *zap.Logger {
	return c.App.Metadata["logger"].(*zap.Logger)
}

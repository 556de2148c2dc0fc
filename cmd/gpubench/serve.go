package main

import (
	"context"

	"github.com/fxnlabs/gpubench/internal/app"
	"github.com/fxnlabs/gpubench/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the benchmark API and Prometheus metrics over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen-address", Usage: "Override server.listenAddress"},
			&cli.IntFlag{Name: "port", Usage: "Override server.listenPort"},
		},
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			if c.IsSet("listen-address") {
				cfg.Server.ListenAddress = c.String("listen-address")
			}
			if c.IsSet("port") {
				cfg.Server.ListenPort = c.Int("port")
			}

			log, err := logger.New(cfg.Logger.Verbosity)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			fxApp := fx.New(app.Module(cfg, homeDir(c), log))
			startCtx, cancel := context.WithTimeout(c.Context, fxApp.StartTimeout())
			defer cancel()
			if err := fxApp.Start(startCtx); err != nil {
				return err
			}

			sig := <-fxApp.Done()
			log.Info("Shutting down", zap.Stringer("signal", sig))
			stopCtx, cancelStop := context.WithTimeout(context.Background(), fxApp.StopTimeout())
			defer cancelStop()
			return fxApp.Stop(stopCtx)
		},
	}
}

package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/common-nighthawk/go-figure"
	"github.com/fxnlabs/gpubench/fixtures"
	"github.com/fxnlabs/gpubench/internal/app"
	"github.com/fxnlabs/gpubench/internal/bench"
	"github.com/fxnlabs/gpubench/internal/config"
	"github.com/fxnlabs/gpubench/internal/export"
	"github.com/fxnlabs/gpubench/internal/kernels"
	"github.com/fxnlabs/gpubench/internal/runtimes"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const opAll = "all"

func trialsFlag() cli.Flag {
	return &cli.IntFlag{Name: "trials", Aliases: []string{"n"}, Usage: "Measured trials, defaults to bench.trials from the config"}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "export", Usage: "Also write the results to an Arrow IPC file at this path"},
		&cli.BoolFlag{Name: "json", Usage: "Print results as JSON instead of a table"},
	}
}

func timingFlag() cli.Flag {
	return &cli.StringFlag{Name: "timing", Usage: "Timing source: auto or host, defaults to device.timing from the config"}
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write default config files to the home directory",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "Overwrite existing files"},
		},
		Action: func(c *cli.Context) error {
			return writeTemplates(homeDir(c), c.Bool("force"), appLogger(c))
		},
	}
}

func writeTemplates(home string, force bool, log *zap.Logger) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return err
	}
	files := []struct {
		name string
		data []byte
	}{
		{config.ConfigFileName, fixtures.ConfigTemplate},
		{config.ModelBackendFileName, fixtures.ModelBackendTemplate},
	}
	for _, f := range files {
		path := filepath.Join(home, f.name)
		if _, err := os.Stat(path); err == nil && !force {
			log.Info("Keeping existing file", zap.String("path", path))
			continue
		}
		if err := os.WriteFile(path, f.data, 0o644); err != nil {
			return err
		}
		log.Info("Wrote file", zap.String("path", path))
	}
	return nil
}

func deviceCommand() *cli.Command {
	return &cli.Command{
		Name:  "device",
		Usage: "Negotiate a device and print its capabilities",
		Action: func(c *cli.Context) error {
			cfg, log := appConfig(c), appLogger(c)
			h, err := app.OpenDevice(c.Context, cfg, log)
			if err != nil {
				return err
			}
			defer release(h.Release, log)

			w := c.App.Writer
			fmt.Fprintln(w, figure.NewFigure("gpubench", "", true).String())
			return writeCapabilities(w, h.Capabilities())
		},
	}
}

func benchCommand() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "Benchmark one kernel, or every kernel with --op all",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "op", Required: true, Usage: "Kernel to run: matmul, gemv, layernorm, softmax, gelu, qk_score or all"},
			&cli.StringFlag{Name: "precision", Value: string(kernels.F32), Usage: "f32 or f16"},
			&cli.StringFlag{Name: "shape", Usage: "Problem size as name=value pairs, e.g. M=512,N=512,K=512"},
			&cli.StringFlag{Name: "tiles", Usage: "Matmul tile configuration TM/TN/TK, e.g. 32/8/16"},
			&cli.Float64Flag{Name: "epsilon", Usage: "LayerNorm epsilon"},
			&cli.BoolFlag{Name: "affine", Usage: "Apply LayerNorm gamma and beta"},
			trialsFlag(),
			timingFlag(),
		}, outputFlags()...),
		Action: func(c *cli.Context) error {
			descriptors, err := benchDescriptors(c)
			if err != nil {
				return err
			}
			if err := applyTiming(c); err != nil {
				return err
			}
			runner, done, err := openRunner(c)
			if err != nil {
				return err
			}
			defer done()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
			defer stop()

			results := make([]bench.BenchResult, 0, len(descriptors))
			for _, d := range descriptors {
				res, err := runner.Run(ctx, d, trials(c))
				if err != nil {
					return fmt.Errorf("%s: %w", d.Op, err)
				}
				results = append(results, res)
			}
			return report(c, results, results)
		},
	}
}

// benchDescriptors turns the bench flags into the descriptors to run. With --op
// all every kernel runs at its default shape.
func benchDescriptors(c *cli.Context) ([]bench.KernelDescriptor, error) {
	precision, err := kernels.ParsePrecision(c.String("precision"))
	if err != nil {
		return nil, err
	}
	shape, err := parseShape(c.String("shape"))
	if err != nil {
		return nil, err
	}
	tiles, err := parseTiles(c.String("tiles"))
	if err != nil {
		return nil, err
	}
	base := bench.KernelDescriptor{
		Precision: precision,
		Tiles:     tiles,
		Epsilon:   float32(c.Float64("epsilon")),
		Affine:    c.Bool("affine"),
	}

	var ops []kernels.Op
	if c.String("op") == opAll {
		if shape != nil || tiles != nil {
			return nil, fmt.Errorf("--shape and --tiles cannot be combined with --op %s", opAll)
		}
		for _, op := range kernels.Ops() {
			if op.IsKernel() {
				ops = append(ops, op)
			}
		}
	} else {
		op, err := kernels.ParseOp(c.String("op"))
		if err != nil {
			return nil, err
		}
		ops = []kernels.Op{op}
	}

	out := make([]bench.KernelDescriptor, len(ops))
	for i, op := range ops {
		d := base
		d.Op = op
		d.Shape = shape
		if d.Shape == nil {
			d.Shape = bench.DefaultShape(op)
		}
		out[i] = d
	}
	return out, nil
}

func autotuneCommand() *cli.Command {
	return &cli.Command{
		Name:  "autotune",
		Usage: "Benchmark every matmul tile configuration and report the fastest",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "precision", Value: string(kernels.F32), Usage: "f32 or f16"},
			&cli.StringFlag{Name: "shape", Usage: "Matmul size, e.g. M=1024,N=1024,K=1024"},
			trialsFlag(),
			timingFlag(),
		}, outputFlags()...),
		Action: func(c *cli.Context) error {
			precision, err := kernels.ParsePrecision(c.String("precision"))
			if err != nil {
				return err
			}
			shape, err := parseShape(c.String("shape"))
			if err != nil {
				return err
			}
			if shape == nil {
				shape = bench.DefaultShape(kernels.OpMatmul)
			}
			if err := applyTiming(c); err != nil {
				return err
			}
			runner, done, err := openRunner(c)
			if err != nil {
				return err
			}
			defer done()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
			defer stop()

			tuned, err := runner.Autotune(ctx, shape, precision, trials(c))
			if err != nil {
				return err
			}
			if err := report(c, tuned.All, tuned); err != nil {
				return err
			}
			if c.Bool("json") {
				return nil
			}
			fmt.Fprintf(c.App.Writer, "\nBest tiles: %s (p50 %.3f ms, %s)\n",
				tuned.Best.Tiles, tuned.Best.Stats.P50, tuned.Best.Throughput)
			return nil
		},
	}
}

func e2eCommand() *cli.Command {
	return &cli.Command{
		Name:  "e2e",
		Usage: "Benchmark a model served by an external runtime from model_backend.yaml",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "model", Required: true, Usage: "Model reference from model_backend.yaml"},
			&cli.StringSliceFlag{Name: "text", Usage: "Input text for embedding models, repeatable"},
			&cli.StringFlag{Name: "input-shape", Usage: "Input tensor shape for ONNX models, e.g. 1,3,224,224"},
			trialsFlag(),
		}, outputFlags()...),
		Action: func(c *cli.Context) error {
			cfg, log := appConfig(c), appLogger(c)
			dims, err := parseDims(c.String("input-shape"))
			if err != nil {
				return err
			}
			backends, err := app.LoadModelBackends(cfg, app.Home(homeDir(c)), log)
			if err != nil {
				return err
			}
			rt, err := runtimes.ForModel(backends, c.String("model"), runtimes.Options{Logger: log})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
			defer stop()

			runner := app.NewRunner(cfg, nil, log)
			in := runtimes.Input{Texts: c.StringSlice("text"), Shape: dims}
			res, err := runner.RunRuntime(ctx, rt, c.String("model"), in, trials(c))
			if err != nil {
				return err
			}
			return report(c, []bench.BenchResult{res}, res)
		},
	}
}

func applyTiming(c *cli.Context) error {
	if !c.IsSet("timing") {
		return nil
	}
	switch mode := c.String("timing"); mode {
	case config.TimingAuto, config.TimingHost:
		appConfig(c).Device.Timing = mode
		return nil
	default:
		return fmt.Errorf("invalid --timing %q: must be %s or %s", mode, config.TimingAuto, config.TimingHost)
	}
}

func trials(c *cli.Context) int {
	if c.IsSet("trials") {
		return c.Int("trials")
	}
	return appConfig(c).Bench.Trials
}

func openRunner(c *cli.Context) (*bench.Runner, func(), error) {
	cfg, log := appConfig(c), appLogger(c)
	h, err := app.OpenDevice(c.Context, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return app.NewRunner(cfg, h, log), func() { release(h.Release, log) }, nil
}

func release(fn func() error, log *zap.Logger) {
	if err := fn(); err != nil {
		log.Warn("Failed to release device", zap.Error(err))
	}
}

// report prints results as a table, or doc as JSON with --json, and writes the
// Arrow export when --export is set.
func report(c *cli.Context, results []bench.BenchResult, doc any) error {
	if path := c.String("export"); path != "" {
		if err := export.WriteFile(path, results); err != nil {
			return fmt.Errorf("failed to export results: %w", err)
		}
		appLogger(c).Info("Exported results", zap.String("path", path), zap.Int("rows", len(results)))
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, doc)
	}
	return writeResults(c.App.Writer, results)
}

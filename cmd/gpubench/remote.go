package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/fxnlabs/gpubench/pkg/api"
	"github.com/fxnlabs/gpubench/pkg/benchclient"
	"github.com/urfave/cli/v2"
)

func remoteCommand() *cli.Command {
	return &cli.Command{
		Name:  "remote",
		Usage: "Run benchmarks on a gpubench server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Value:   "http://127.0.0.1:8090",
				Usage:   "Base URL of the gpubench server",
				EnvVars: []string{"GPUBENCH_SERVER"},
			},
			&cli.DurationFlag{Name: "timeout", Value: 5 * time.Minute, Usage: "Request timeout"},
		},
		Subcommands: []*cli.Command{
			{
				Name:  "device",
				Usage: "Print the server's device",
				Action: func(c *cli.Context) error {
					d, err := remoteClient(c).Device(c.Context)
					if err != nil {
						return err
					}
					return writeDevice(c.App.Writer, d)
				},
			},
			{
				Name:  "bench",
				Usage: "Benchmark one kernel on the server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "op", Required: true, Usage: "Kernel to run"},
					&cli.StringFlag{Name: "precision", Usage: "f32 or f16"},
					&cli.StringFlag{Name: "shape", Usage: "Problem size as name=value pairs"},
					&cli.StringFlag{Name: "tiles", Usage: "Matmul tile configuration TM/TN/TK"},
					&cli.IntFlag{Name: "trials", Aliases: []string{"n"}, Usage: "Measured trials, defaults to the server's setting"},
				},
				Action: func(c *cli.Context) error {
					req, err := remoteBenchRequest(c)
					if err != nil {
						return err
					}
					res, err := remoteClient(c).Bench(c.Context, req)
					if err != nil {
						return err
					}
					return writeTable(c.App.Writer, []row{rowFromAPI(res)})
				},
			},
			{
				Name:  "autotune",
				Usage: "Autotune matmul tiles on the server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "precision", Usage: "f32 or f16"},
					&cli.StringFlag{Name: "shape", Usage: "Matmul size as name=value pairs"},
					&cli.IntFlag{Name: "trials", Aliases: []string{"n"}, Usage: "Measured trials, defaults to the server's setting"},
				},
				Action: func(c *cli.Context) error {
					shape, err := parseShape(c.String("shape"))
					if err != nil {
						return err
					}
					res, err := remoteClient(c).Autotune(c.Context, api.AutotuneRequest{
						Precision: c.String("precision"),
						Shape:     shape,
						Trials:    c.Int("trials"),
					})
					if err != nil {
						return err
					}
					rows := make([]row, len(res.All))
					for i, r := range res.All {
						rows[i] = rowFromAPI(r)
					}
					if err := writeTable(c.App.Writer, rows); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "\nBest tiles: %s\n", rowFromAPI(res.Best).tiles)
					return nil
				},
			},
			{
				Name:  "e2e",
				Usage: "Benchmark a model runtime configured on the server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "model", Required: true, Usage: "Model reference"},
					&cli.StringSliceFlag{Name: "text", Usage: "Input text for embedding models, repeatable"},
					&cli.StringFlag{Name: "input-shape", Usage: "Input tensor shape for ONNX models"},
					&cli.IntFlag{Name: "trials", Aliases: []string{"n"}, Usage: "Measured trials, defaults to the server's setting"},
				},
				Action: func(c *cli.Context) error {
					dims, err := parseDims(c.String("input-shape"))
					if err != nil {
						return err
					}
					res, err := remoteClient(c).E2E(c.Context, api.E2ERequest{
						Model:  c.String("model"),
						Texts:  c.StringSlice("text"),
						Shape:  dims,
						Trials: c.Int("trials"),
					})
					if err != nil {
						return err
					}
					return writeTable(c.App.Writer, []row{rowFromAPI(res)})
				},
			},
		},
	}
}

func remoteClient(c *cli.Context) *benchclient.Client {
	return benchclient.NewClient(c.String("server"), &http.Client{Timeout: c.Duration("timeout")})
}

func remoteBenchRequest(c *cli.Context) (api.BenchRequest, error) {
	shape, err := parseShape(c.String("shape"))
	if err != nil {
		return api.BenchRequest{}, err
	}
	tiles, err := parseTiles(c.String("tiles"))
	if err != nil {
		return api.BenchRequest{}, err
	}
	req := api.BenchRequest{
		Op:        c.String("op"),
		Precision: c.String("precision"),
		Shape:     shape,
		Trials:    c.Int("trials"),
	}
	if tiles != nil {
		req.Tiles = &api.Tiles{TM: tiles.TM, TN: tiles.TN, TK: tiles.TK}
	}
	return req, nil
}

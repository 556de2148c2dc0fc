package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fxnlabs/gpubench/fixtures"
	"github.com/fxnlabs/gpubench/internal/bench"
	"github.com/fxnlabs/gpubench/internal/config"
	"github.com/fxnlabs/gpubench/internal/gpu"
	"github.com/fxnlabs/gpubench/internal/gpu/software"
	"github.com/fxnlabs/gpubench/internal/kernels"
	"github.com/fxnlabs/gpubench/internal/server"
	"github.com/fxnlabs/gpubench/pkg/api"
	"github.com/fxnlabs/gpubench/pkg/benchclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := newApp()
	a.Writer = &out
	a.ErrWriter = io.Discard
	err := a.Run(append([]string{"gpubench", "--verbosity", "error"}, args...))
	return out.String(), err
}

func TestParseShape(t *testing.T) {
	testCases := []struct {
		name    string
		in      string
		want    bench.Shape
		wantErr string
	}{
		{name: "empty", in: ""},
		{name: "matmul", in: "M=4,N=8,K=2", want: bench.Shape{"M": 4, "N": 8, "K": 2}},
		{name: "spaces", in: " rows=2 , cols=3 ", want: bench.Shape{"rows": 2, "cols": 3}},
		{name: "missing value", in: "M", wantErr: "expected name=value pairs"},
		{name: "missing name", in: "=4", wantErr: "expected name=value pairs"},
		{name: "not a number", in: "M=x", wantErr: "dimension M"},
		{name: "duplicate", in: "M=4,M=5", wantErr: "given twice"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseShape(tc.in)
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseTiles(t *testing.T) {
	got, err := parseTiles("32/8/16")
	require.NoError(t, err)
	assert.Equal(t, &bench.TileConfig{TM: 32, TN: 8, TK: 16}, got)

	got, err = parseTiles("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseTiles("32/8")
	assert.ErrorContains(t, err, "expected TM/TN/TK")
	_, err = parseTiles("a/b/c")
	assert.Error(t, err)
	_, err = parseTiles("32/8/-1")
	assert.Error(t, err)
}

func TestParseDims(t *testing.T) {
	got, err := parseDims("1,3,224,224")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 224, 224}, got)

	got, err = parseDims("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseDims("1,0")
	assert.ErrorContains(t, err, "must be positive")
	_, err = parseDims("1,x")
	assert.Error(t, err)
}

func TestWriteTable(t *testing.T) {
	results := []bench.BenchResult{
		{
			Op:         kernels.OpMatmul,
			Vendor:     "software",
			Precision:  kernels.F32,
			Shape:      bench.Shape{"M": 64, "N": 32, "K": 16},
			Tiles:      &bench.TileConfig{TM: 32, TN: 8, TK: 16},
			Timing:     bench.DeviceTimestamp,
			Stats:      bench.Stats{P50: 1.5, P95: 2},
			Throughput: bench.Throughput{Value: 0.04, Unit: bench.UnitGFLOPS},
			Check:      &bench.SpotCheck{Value: 16, Expected: 16, OK: true},
		},
		{
			Op:         kernels.OpGELU,
			Precision:  kernels.F16,
			Shape:      bench.Shape{"elements": 1024},
			Timing:     bench.HostClock,
			Stats:      bench.Stats{P50: 0.25, P95: 0.5},
			Throughput: bench.Throughput{Value: 0.02, Unit: bench.UnitGBPerSecond},
			Check:      &bench.SpotCheck{Value: 3, Expected: 4},
		},
		{
			Op:         kernels.OpEmbeddingPipeline,
			Backend:    config.RuntimeEmbeddings,
			Precision:  kernels.F32,
			Shape:      bench.Shape{"batch": 4},
			Timing:     bench.HostClock,
			Throughput: bench.Throughput{Value: 80, Unit: bench.UnitItemsPerSec},
			Model:      "minilm",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeResults(&buf, results))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)

	assert.Equal(t, strings.Fields(strings.Join(tableHeader, " ")), strings.Fields(lines[0]))
	assert.Equal(t, []string{"matmul", "64×32×16", "32/8/16", "f32", "software", "device-timestamp", "1.500", "2.000", "0.04", "GFLOPS", "ok"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"gelu", "1024", "-", "f16", "-", "host-clock", "0.250", "0.500", "0.02", "GB/s", "FAIL", "3", "!=", "4"}, strings.Fields(lines[2]))
	assert.Contains(t, lines[3], "embedding_pipeline (minilm)")
	assert.Contains(t, lines[3], "80.00 items/s")

	// Columns line up under the header.
	col := strings.Index(lines[0], "TIMING")
	assert.Equal(t, "device-timestamp", strings.Fields(string([]rune(lines[1])[col:]))[0])
	assert.Equal(t, "host-clock", strings.Fields(string([]rune(lines[2])[col:]))[0])
}

func TestRowFromAPI(t *testing.T) {
	r := rowFromAPI(api.Result{
		Op:         "matmul",
		Vendor:     "acme",
		Precision:  "f16",
		Shape:      map[string]int{"M": 2, "N": 3, "K": 4},
		Tiles:      &api.Tiles{TM: 8, TN: 32, TK: 16},
		Timing:     "host-clock",
		Stats:      api.Stats{N: 3, P50: 1, P95: 2},
		Throughput: api.Throughput{Value: 1.25, Unit: "GFLOPS"},
		Check:      &api.Check{Value: 4, Expected: 4, OK: true},
	})
	assert.Equal(t, row{
		op:         "matmul",
		shape:      "2×3×4",
		tiles:      "8/32/16",
		dtype:      "f16",
		vendor:     "acme",
		timing:     "host-clock",
		p50:        1,
		p95:        2,
		throughput: "1.25 GFLOPS",
		check:      "ok",
	}, r)
}

func TestCLI_Bench(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(t.TempDir(), "softmax.arrow")

	out, err := runCLI(t, "--home", home, "bench",
		"--op", "softmax", "--shape", "rows=8,cols=16", "--trials", "2", "--export", path)
	require.NoError(t, err)
	assert.Contains(t, out, "softmax")
	assert.Contains(t, out, "8×16")
	assert.Contains(t, out, " ok")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("ARROW1")))
}

func TestCLI_BenchJSON(t *testing.T) {
	out, err := runCLI(t, "--home", t.TempDir(), "bench",
		"--op", "matmul", "--shape", "M=16,N=16,K=8", "--tiles", "8/32/16", "-n", "2", "--timing", "host", "--json")
	require.NoError(t, err)

	var results []bench.BenchResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	res := results[0]
	assert.Equal(t, kernels.OpMatmul, res.Op)
	assert.Equal(t, &bench.TileConfig{TM: 8, TN: 32, TK: 16}, res.Tiles)
	assert.Equal(t, bench.HostClock, res.Timing)
	assert.Len(t, res.Trials, 2)
	require.NotNil(t, res.Check)
	assert.True(t, res.Check.OK)
	assert.Equal(t, 8.0, res.Check.Expected)
}

func TestCLI_BenchErrors(t *testing.T) {
	testCases := []struct {
		name    string
		args    []string
		wantErr string
		wantIs  error
	}{
		{name: "missing op", args: []string{"bench"}, wantErr: "op"},
		{name: "unknown op", args: []string{"bench", "--op", "conv2d"}, wantErr: "conv2d"},
		{name: "bad precision", args: []string{"bench", "--op", "gelu", "--precision", "f64"}, wantErr: "f64"},
		{name: "bad shape", args: []string{"bench", "--op", "gelu", "--shape", "elements"}, wantErr: "invalid shape"},
		{name: "shape with all", args: []string{"bench", "--op", "all", "--shape", "M=1"}, wantErr: "cannot be combined"},
		{name: "bad timing", args: []string{"bench", "--op", "gelu", "--timing", "gpu"}, wantErr: "invalid --timing"},
		{
			name:   "zero trials",
			args:   []string{"bench", "--op", "gelu", "--shape", "elements=64", "--trials", "0"},
			wantIs: bench.ErrInvalidTrialCount,
		},
		{
			name:   "wrong dimensions",
			args:   []string{"bench", "--op", "gelu", "--shape", "rows=4"},
			wantIs: bench.ErrInvalidDescriptor,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := runCLI(t, append([]string{"--home", t.TempDir()}, tc.args...)...)
			require.Error(t, err)
			if tc.wantIs != nil {
				assert.ErrorIs(t, err, tc.wantIs)
			}
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
			}
		})
	}
}

func TestCLI_MissingExplicitConfig(t *testing.T) {
	_, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "device")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCLI_Autotune(t *testing.T) {
	out, err := runCLI(t, "--home", t.TempDir(), "autotune", "--shape", "M=32,N=32,K=32", "-n", "1")
	require.NoError(t, err)
	for _, tiles := range []string{"16/16/16", "32/8/16", "8/32/16"} {
		assert.Contains(t, out, tiles)
	}
	assert.Contains(t, out, "Best tiles:")
}

func TestCLI_InitThenDevice(t *testing.T) {
	home := filepath.Join(t.TempDir(), "gpubench")

	_, err := runCLI(t, "--home", home, "init")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(home, config.ConfigFileName))
	require.NoError(t, err)
	assert.Equal(t, fixtures.ConfigTemplate, data)
	data, err = os.ReadFile(filepath.Join(home, config.ModelBackendFileName))
	require.NoError(t, err)
	assert.Equal(t, fixtures.ModelBackendTemplate, data)

	// Existing files survive a second init unless forced.
	edited := append(bytes.Clone(fixtures.ConfigTemplate), []byte("\n# edited\n")...)
	require.NoError(t, os.WriteFile(filepath.Join(home, config.ConfigFileName), edited, 0o644))
	_, err = runCLI(t, "--home", home, "init")
	require.NoError(t, err)
	data, err = os.ReadFile(filepath.Join(home, config.ConfigFileName))
	require.NoError(t, err)
	assert.Equal(t, edited, data)

	_, err = runCLI(t, "--home", home, "init", "--force")
	require.NoError(t, err)
	data, err = os.ReadFile(filepath.Join(home, config.ConfigFileName))
	require.NoError(t, err)
	assert.Equal(t, fixtures.ConfigTemplate, data)

	out, err := runCLI(t, "--home", home, "device")
	require.NoError(t, err)
	assert.Contains(t, out, "Backend:")
	assert.Contains(t, out, software.Name)
	assert.Contains(t, out, "Max workgroup size:")
}

func TestCLI_Remote(t *testing.T) {
	backend := software.New(software.Options{
		Workers:  2,
		Features: []gpu.Feature{gpu.FeatureTimestampQuery, gpu.FeatureShaderF16},
	}, zap.NewNop())
	h, err := gpu.Negotiate(context.Background(), backend, gpu.NegotiateOptions{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Release() })
	runner := bench.NewRunner(h, bench.RunnerOptions{SpotCheck: true}, zap.NewNop())
	srv := httptest.NewServer(server.New(runner, server.Options{Trials: 2}, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)

	home := t.TempDir()

	out, err := runCLI(t, "--home", home, "remote", "--server", srv.URL, "device")
	require.NoError(t, err)
	assert.Contains(t, out, software.Name)

	out, err = runCLI(t, "--home", home, "remote", "--server", srv.URL, "bench",
		"--op", "gelu", "--shape", "elements=128", "--precision", "f16")
	require.NoError(t, err)
	assert.Contains(t, out, "gelu")
	assert.Contains(t, out, "128")
	assert.Contains(t, out, "f16")

	out, err = runCLI(t, "--home", home, "remote", "--server", srv.URL, "autotune", "--shape", "M=16,N=16,K=16", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Best tiles:")

	_, err = runCLI(t, "--home", home, "remote", "--server", srv.URL, "bench", "--op", "conv2d")
	var apiErr *benchclient.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.StatusCode)
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fxnlabs/gpubench/internal/bench"
	"github.com/fxnlabs/gpubench/internal/config"
	"github.com/fxnlabs/gpubench/internal/gpu"
	"github.com/fxnlabs/gpubench/internal/gpu/software"
	"github.com/fxnlabs/gpubench/internal/runtimes"
	"github.com/fxnlabs/gpubench/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, features []gpu.Feature, backends *config.ModelBackendConfig) *httptest.Server {
	t.Helper()
	backend := software.New(software.Options{Features: features, Workers: 2}, zap.NewNop())
	h, err := gpu.Negotiate(context.Background(), backend, gpu.NegotiateOptions{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Release() })

	runner := bench.NewRunner(h, bench.RunnerOptions{SpotCheck: true}, zap.NewNop())
	srv := httptest.NewServer(New(runner, Options{Trials: 3, Backends: backends}, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHandleBench(t *testing.T) {
	srv := newTestServer(t, []gpu.Feature{gpu.FeatureShaderF16}, nil)

	resp := post(t, srv.URL+api.PathBench, api.BenchRequest{
		Op:     "matmul",
		Shape:  map[string]int{"M": 16, "N": 8, "K": 12},
		Tiles:  &api.Tiles{TM: 8, TN: 32, TK: 16},
		Trials: 4,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	res := decodeBody[api.Result](t, resp)
	assert.Equal(t, "matmul", res.Op)
	assert.Equal(t, "software", res.Backend)
	assert.Equal(t, "f32", res.Precision)
	assert.Equal(t, map[string]int{"M": 16, "N": 8, "K": 12}, res.Shape)
	assert.Equal(t, &api.Tiles{TM: 8, TN: 32, TK: 16}, res.Tiles)
	assert.Equal(t, "host-clock", res.Timing)
	assert.Len(t, res.Trials, 4)
	assert.Equal(t, 4, res.Stats.N)
	assert.Equal(t, "GFLOPS", res.Throughput.Unit)
	require.NotNil(t, res.Check)
	assert.True(t, res.Check.OK)
}

func TestHandleBench_DefaultTrials(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	resp := post(t, srv.URL+api.PathBench, api.BenchRequest{Op: "gelu", Shape: map[string]int{"elements": 64}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[api.Result](t, resp).Trials, 3)
}

func TestHandleBench_Errors(t *testing.T) {
	srv := newTestServer(t, []gpu.Feature{gpu.FeatureTimestampQuery}, nil)

	testCases := []struct {
		name       string
		body       any
		wantStatus int
		wantError  string
	}{
		{name: "malformed body", body: "{", wantStatus: http.StatusBadRequest, wantError: "invalid request body"},
		{name: "unknown field", body: `{"op":"gelu","bogus":1}`, wantStatus: http.StatusBadRequest, wantError: "invalid request body"},
		{name: "unknown op", body: api.BenchRequest{Op: "conv2d"}, wantStatus: http.StatusBadRequest, wantError: "unknown operation"},
		{name: "unknown precision", body: api.BenchRequest{Op: "gelu", Precision: "bf16"}, wantStatus: http.StatusBadRequest, wantError: "unknown precision"},
		{name: "runtime op", body: api.BenchRequest{Op: "whole_model"}, wantStatus: http.StatusBadRequest, wantError: "not a kernel operation"},
		{name: "zero dimension", body: api.BenchRequest{Op: "softmax", Shape: map[string]int{"rows": 0, "cols": 2}}, wantStatus: http.StatusBadRequest, wantError: "positive rows"},
		{name: "negative trials", body: api.BenchRequest{Op: "gelu", Shape: map[string]int{"elements": 8}, Trials: -1}, wantStatus: http.StatusBadRequest, wantError: "trial count"},
		{name: "f16 without shader-f16", body: api.BenchRequest{Op: "gemv", Precision: "f16", Shape: map[string]int{"M": 4, "K": 4}}, wantStatus: http.StatusBadRequest, wantError: "shader-f16"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := post(t, srv.URL+api.PathBench, tc.body)
			assert.Equal(t, tc.wantStatus, resp.StatusCode)
			assert.Contains(t, decodeBody[api.ErrorResponse](t, resp).Error, tc.wantError)
		})
	}
}

func TestHandleBench_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	resp, err := http.Get(srv.URL + api.PathBench)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"))
}

func TestHandleAutotune(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	resp := post(t, srv.URL+api.PathAutotune, api.AutotuneRequest{Shape: map[string]int{"M": 32, "N": 32, "K": 8}, Trials: 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	res := decodeBody[api.AutotuneResponse](t, resp)
	require.Len(t, res.All, 3)
	assert.Equal(t, api.Tiles{TM: 16, TN: 16, TK: 16}, *res.All[0].Tiles)
	assert.Equal(t, api.Tiles{TM: 32, TN: 8, TK: 16}, *res.All[1].Tiles)
	assert.Equal(t, api.Tiles{TM: 8, TN: 32, TK: 16}, *res.All[2].Tiles)
	require.NotNil(t, res.Best.Tiles)
	for _, r := range res.All {
		assert.LessOrEqual(t, res.Best.Stats.P50, r.Stats.P50)
	}
}

func TestHandleAutotune_BadPrecision(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	resp := post(t, srv.URL+api.PathAutotune, api.AutotuneRequest{Precision: "int8"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleDevice(t *testing.T) {
	srv := newTestServer(t, []gpu.Feature{gpu.FeatureShaderF16, gpu.FeatureTimestampQuery}, nil)

	resp, err := http.Get(srv.URL + api.PathDevice)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dev := decodeBody[api.Device](t, resp)
	assert.Equal(t, "software", dev.Backend)
	assert.Equal(t, "software", dev.Vendor)
	assert.ElementsMatch(t, []string{"shader-f16", "timestamp-query"}, dev.Features)
	assert.Equal(t, software.DefaultLimits.MaxBufferSize, dev.Limits.MaxBufferSize)
}

func TestHandleDevice_NoDevice(t *testing.T) {
	runner := bench.NewRunner(nil, bench.RunnerOptions{}, nil)
	srv := httptest.NewServer(New(runner, Options{}, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + api.PathDevice)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, bench.ErrNoDevice.Error(), decodeBody[api.ErrorResponse](t, resp).Error)
}

func embeddingsBackend(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			http.Error(w, "backend down", status)
			return
		}
		switch r.URL.Path {
		case "/v1/models":
			fmt.Fprint(w, `{"data":[{"id":"minilm"}]}`)
		case "/v1/embeddings":
			var req struct {
				Input []string `json:"input"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			var out bytes.Buffer
			out.WriteString(`{"data":[`)
			for i := range req.Input {
				if i > 0 {
					out.WriteString(",")
				}
				fmt.Fprintf(&out, `{"index":%d,"embedding":[0.1,0.2,0.3]}`, i)
			}
			out.WriteString(`]}`)
			_, _ = io.Copy(w, &out)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleE2E(t *testing.T) {
	backend := embeddingsBackend(t, http.StatusOK)
	backends := &config.ModelBackendConfig{Models: map[string]config.ModelBackend{
		"minilm": {Runtime: config.RuntimeEmbeddings, URL: backend.URL},
	}}
	srv := newTestServer(t, nil, backends)

	resp := post(t, srv.URL+api.PathE2E, api.E2ERequest{Model: "minilm", Texts: []string{"a", "b", "c", "d"}, Trials: 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	res := decodeBody[api.Result](t, resp)
	assert.Equal(t, "embedding_pipeline", res.Op)
	assert.Equal(t, "embeddings", res.Backend)
	assert.Equal(t, "minilm", res.Model)
	assert.Equal(t, map[string]int{"batch": 4}, res.Shape)
	assert.Equal(t, "host-clock", res.Timing)
	assert.Len(t, res.Trials, 2)
	assert.Equal(t, "items/s", res.Throughput.Unit)
}

func TestHandleE2E_Errors(t *testing.T) {
	up := embeddingsBackend(t, http.StatusOK)
	down := embeddingsBackend(t, http.StatusServiceUnavailable)
	backends := &config.ModelBackendConfig{Models: map[string]config.ModelBackend{
		"minilm": {Runtime: config.RuntimeEmbeddings, URL: up.URL},
		"broken": {Runtime: config.RuntimeEmbeddings, URL: down.URL},
	}}
	srv := newTestServer(t, nil, backends)

	testCases := []struct {
		name       string
		req        api.E2ERequest
		wantStatus int
	}{
		{name: "missing model", req: api.E2ERequest{}, wantStatus: http.StatusBadRequest},
		{name: "unknown model", req: api.E2ERequest{Model: "resnet50"}, wantStatus: http.StatusBadRequest},
		{name: "no texts", req: api.E2ERequest{Model: "minilm"}, wantStatus: http.StatusBadRequest},
		{name: "backend down", req: api.E2ERequest{Model: "broken", Texts: []string{"a"}}, wantStatus: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := post(t, srv.URL+api.PathE2E, tc.req)
			assert.Equal(t, tc.wantStatus, resp.StatusCode)
			assert.NotEmpty(t, decodeBody[api.ErrorResponse](t, resp).Error)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	resp := post(t, srv.URL+api.PathBench, api.BenchRequest{Op: "gelu", Shape: map[string]int{"elements": 16}, Trials: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	metricsResp, err := http.Get(srv.URL + api.PathMetrics)
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	body, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `bench_runs_total{op="gelu",status="ok"}`)
	assert.Contains(t, string(body), `endpoint_responses_total{endpoint="/v1/bench",status_code="200"}`)
}

func TestStatusFor(t *testing.T) {
	testCases := []struct {
		err  error
		want int
	}{
		{err: fmt.Errorf("wrapped: %w", bench.ErrInvalidDescriptor), want: http.StatusBadRequest},
		{err: bench.ErrInvalidTrialCount, want: http.StatusBadRequest},
		{err: fmt.Errorf("%w: f16", gpu.ErrUnsupportedPrecision), want: http.StatusBadRequest},
		{err: config.ErrModelNotFound, want: http.StatusBadRequest},
		{err: runtimes.ErrRuntimeMismatch, want: http.StatusBadRequest},
		{err: runtimes.ErrInvalidInput, want: http.StatusBadRequest},
		{err: runtimes.ErrBadResponse, want: http.StatusInternalServerError},
		{err: gpu.ErrDeviceLost, want: http.StatusInternalServerError},
		{err: context.Canceled, want: http.StatusInternalServerError},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, StatusFor(tc.err), "%v", tc.err)
	}
}

// Package server exposes the benchmark runner over HTTP for dashboards and remote
// CLIs.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fxnlabs/gpubench/internal/bench"
	"github.com/fxnlabs/gpubench/internal/config"
	"github.com/fxnlabs/gpubench/internal/gpu"
	"github.com/fxnlabs/gpubench/internal/kernels"
	"github.com/fxnlabs/gpubench/internal/metrics"
	"github.com/fxnlabs/gpubench/internal/runtimes"
	"github.com/fxnlabs/gpubench/pkg/api"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// errBadRequest marks request bodies that cannot be decoded or parsed.
var errBadRequest = errors.New("bad request")

// maxBodyBytes bounds request bodies; e2e requests carry texts.
const maxBodyBytes = 1 << 20

type Options struct {
	// Trials is used when a request leaves trials unset.
	Trials   int
	Backends *config.ModelBackendConfig
	Runtimes runtimes.Options
}

type Server struct {
	runner *bench.Runner
	opts   Options
	logger *zap.Logger
}

func New(runner *bench.Runner, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Trials < 1 {
		opts.Trials = 10
	}
	if opts.Backends == nil {
		opts.Backends = &config.ModelBackendConfig{}
	}
	if opts.Runtimes.Logger == nil {
		opts.Runtimes.Logger = logger
	}
	return &Server{runner: runner, opts: opts, logger: logger.Named("server")}
}

// Handler routes every endpoint through the metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(api.PathBench, metrics.Instrument(api.PathBench, http.HandlerFunc(s.handleBench)))
	mux.Handle(api.PathAutotune, metrics.Instrument(api.PathAutotune, http.HandlerFunc(s.handleAutotune)))
	mux.Handle(api.PathE2E, metrics.Instrument(api.PathE2E, http.HandlerFunc(s.handleE2E)))
	mux.Handle(api.PathDevice, metrics.Instrument(api.PathDevice, http.HandlerFunc(s.handleDevice)))
	mux.Handle(api.PathMetrics, promhttp.Handler())
	return mux
}

func (s *Server) handleBench(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req api.BenchRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, api.PathBench, err)
		return
	}
	d, err := descriptorFrom(req)
	if err != nil {
		s.fail(w, api.PathBench, err)
		return
	}

	res, err := s.runner.Run(r.Context(), d, s.trials(req.Trials))
	if err != nil {
		s.fail(w, api.PathBench, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAutotune(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req api.AutotuneRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, api.PathAutotune, err)
		return
	}
	precision, err := kernels.ParsePrecision(req.Precision)
	if err != nil {
		s.fail(w, api.PathAutotune, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	shape := bench.Shape(req.Shape)
	if len(shape) == 0 {
		shape = bench.DefaultShape(kernels.OpMatmul)
	}

	res, err := s.runner.Autotune(r.Context(), shape, precision, s.trials(req.Trials))
	if err != nil {
		s.fail(w, api.PathAutotune, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleE2E(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req api.E2ERequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, api.PathE2E, err)
		return
	}
	if req.Model == "" {
		s.fail(w, api.PathE2E, fmt.Errorf("%w: model is required", errBadRequest))
		return
	}
	rt, err := runtimes.ForModel(s.opts.Backends, req.Model, s.opts.Runtimes)
	if err != nil {
		s.fail(w, api.PathE2E, err)
		return
	}

	in := runtimes.Input{Texts: req.Texts, Shape: req.Shape}
	res, err := s.runner.RunRuntime(r.Context(), rt, req.Model, in, s.trials(req.Trials))
	if err != nil {
		s.fail(w, api.PathE2E, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	caps, ok := s.runner.Capabilities()
	if !ok {
		s.fail(w, api.PathDevice, bench.ErrNoDevice)
		return
	}
	writeJSON(w, http.StatusOK, caps)
}

func (s *Server) trials(requested int) int {
	if requested == 0 {
		return s.opts.Trials
	}
	return requested
}

func (s *Server) fail(w http.ResponseWriter, endpoint string, err error) {
	status := StatusFor(err)
	s.logger.Warn("Request failed",
		zap.String("endpoint", endpoint),
		zap.Int("status", status),
		zap.Error(err))
	writeJSON(w, status, api.ErrorResponse{Error: err.Error()})
}

// StatusFor maps configuration mistakes by the caller to 400 and every other
// failure to 500.
func StatusFor(err error) int {
	for _, target := range []error{
		errBadRequest,
		bench.ErrInvalidDescriptor,
		bench.ErrInvalidTrialCount,
		gpu.ErrUnsupportedPrecision,
		gpu.ErrUnsupportedFeature,
		config.ErrModelNotFound,
		runtimes.ErrUnknownRuntime,
		runtimes.ErrRuntimeMismatch,
		runtimes.ErrInvalidInput,
	} {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func descriptorFrom(req api.BenchRequest) (bench.KernelDescriptor, error) {
	op, err := kernels.ParseOp(req.Op)
	if err != nil {
		return bench.KernelDescriptor{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	precision, err := kernels.ParsePrecision(req.Precision)
	if err != nil {
		return bench.KernelDescriptor{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	d := bench.KernelDescriptor{
		Op:        op,
		Precision: precision,
		Shape:     bench.Shape(req.Shape),
		Epsilon:   req.Epsilon,
		Affine:    req.Affine,
	}
	if len(d.Shape) == 0 {
		d.Shape = bench.DefaultShape(op)
	}
	if req.Tiles != nil {
		d.Tiles = &bench.TileConfig{TM: req.Tiles.TM, TN: req.Tiles.TN, TK: req.Tiles.TK}
	}
	return d, nil
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeJSON(w, http.StatusMethodNotAllowed, api.ErrorResponse{Error: fmt.Sprintf("method %s not allowed", r.Method)})
	return false
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

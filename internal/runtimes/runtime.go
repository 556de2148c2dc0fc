// Package runtimes runs whole models on external inference servers so their
// end-to-end latency can be benchmarked next to the kernel programs.
package runtimes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fxnlabs/gpubench/internal/config"
	"go.uber.org/zap"
)

var (
	ErrUnknownRuntime = errors.New("unknown runtime")
	// ErrRuntimeMismatch means a model reference is configured for another runtime.
	ErrRuntimeMismatch = errors.New("model is served by a different runtime")
	// ErrBadResponse covers non-2xx statuses and bodies that do not match the protocol.
	ErrBadResponse = errors.New("unexpected response from model server")
	// ErrInvalidInput means the input cannot be sent to the loaded model.
	ErrInvalidInput = errors.New("invalid model input")
)

// Session is a loaded model, ready for repeated Run calls.
type Session struct {
	Runtime string
	Ref     string

	// Model is the name the server knows the model by.
	Model string

	// InputName, InputShape and Datatype describe the first model input when the
	// server reports them. Dynamic dimensions are negative.
	InputName  string
	InputShape []int64
	Datatype   string

	backend config.ModelBackend
}

// Input is one inference request. Texts feed feature-extraction pipelines; Shape
// sizes the all-ones tensor fed to tensor models and overrides the model's own
// input shape.
type Input struct {
	Texts []string
	Shape []int64
}

// Output summarizes one inference.
type Output struct {
	// Items is how many independent results one call produced.
	Items int
	Shape []int64
}

// Runtime loads models and runs inferences against them.
type Runtime interface {
	Name() string
	Load(ctx context.Context, modelRef string) (*Session, error)
	Run(ctx context.Context, s *Session, in Input) (Output, error)
}

// Options configures the HTTP runtimes
type Options struct {
	Client *http.Client
	Logger *zap.Logger
}

// New creates the runtime registered under name.
func New(name string, backends *config.ModelBackendConfig, opts Options) (Runtime, error) {
	c := newClient(name, backends, opts)
	switch name {
	case config.RuntimeEmbeddings:
		return &Embeddings{client: c}, nil
	case config.RuntimeONNX:
		return &ONNX{client: c}, nil
	case config.RuntimeTFGraph:
		return &TFGraph{client: c}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownRuntime, name)
	}
}

// ForModel creates the runtime a model reference is configured for.
func ForModel(backends *config.ModelBackendConfig, modelRef string, opts Options) (Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	backend, err := backends.GetModelBackend(modelRef, logger)
	if err != nil {
		return nil, err
	}
	return New(backend.Runtime, backends, opts)
}

// client is the HTTP plumbing shared by every runtime.
type client struct {
	runtime  string
	http     *http.Client
	backends *config.ModelBackendConfig
	logger   *zap.Logger
}

func newClient(runtime string, backends *config.ModelBackendConfig, opts Options) *client {
	httpClient := opts.Client
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if backends == nil {
		backends = &config.ModelBackendConfig{}
	}
	return &client{
		runtime:  runtime,
		http:     httpClient,
		backends: backends,
		logger:   logger.Named(runtime),
	}
}

func (c *client) resolve(ref string) (config.ModelBackend, error) {
	backend, err := c.backends.GetModelBackend(ref, c.logger)
	if err != nil {
		return config.ModelBackend{}, err
	}
	if backend.Runtime != c.runtime {
		return config.ModelBackend{}, fmt.Errorf("%w: %s is configured for %s, not %s", ErrRuntimeMismatch, ref, backend.Runtime, c.runtime)
	}
	return backend, nil
}

// do sends a JSON request and decodes a JSON response into out. A nil body sends
// no payload; a nil out discards the response.
func (c *client) do(ctx context.Context, backend config.ModelBackend, method, path string, body, out any) error {
	if backend.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, backend.Timeout)
		defer cancel()
	}

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}
	url := strings.TrimRight(backend.URL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if backend.Auth != nil {
		if backend.Auth.BearerToken != "" {
			req.Header.Set("Authorization", "Bearer "+backend.Auth.BearerToken)
		}
		if backend.Auth.APIKey != "" {
			req.Header.Set("X-API-Key", backend.Auth.APIKey)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("model server returned an error",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrBadResponse, method, url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		_, err := io.Copy(io.Discard, resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode %s: %v", ErrBadResponse, url, err)
	}
	return nil
}

// resolveShape picks the caller's shape over the model's and rejects dynamic or
// empty dimensions.
func resolveShape(in Input, s *Session) ([]int64, error) {
	shape := in.Shape
	if len(shape) == 0 {
		shape = s.InputShape
	}
	if len(shape) == 0 {
		return nil, fmt.Errorf("%w: %s reports no input shape, pass one explicitly", ErrInvalidInput, s.Ref)
	}
	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("%w: shape %v has a dynamic or empty dimension, pass a concrete shape", ErrInvalidInput, shape)
		}
	}
	out := make([]int64, len(shape))
	copy(out, shape)
	return out, nil
}

func elements(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

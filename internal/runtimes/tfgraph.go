package runtimes

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/fxnlabs/gpubench/internal/config"
	"go.uber.org/zap"
)

// TFGraph runs a tensor-graph model behind the TensorFlow Serving REST API. The
// model reports no input shape, so every Run needs one.
type TFGraph struct {
	client *client
}

type modelStatus struct {
	ModelVersionStatus []struct {
		Version string `json:"version"`
		State   string `json:"state"`
		Status  struct {
			ErrorCode    string `json:"error_code"`
			ErrorMessage string `json:"error_message"`
		} `json:"status"`
	} `json:"model_version_status"`
}

type predictRequest struct {
	Instances []any `json:"instances"`
}

type predictResponse struct {
	Predictions []any `json:"predictions"`
}

func (t *TFGraph) Name() string { return config.RuntimeTFGraph }

// Load fails unless some version of the model is AVAILABLE.
func (t *TFGraph) Load(ctx context.Context, modelRef string) (*Session, error) {
	backend, err := t.client.resolve(modelRef)
	if err != nil {
		return nil, err
	}
	var status modelStatus
	if err := t.client.do(ctx, backend, http.MethodGet, "/v1/models/"+url.PathEscape(backend.Model), nil, &status); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", modelRef, err)
	}
	version := ""
	for _, v := range status.ModelVersionStatus {
		if v.State == "AVAILABLE" {
			version = v.Version
			break
		}
	}
	if version == "" {
		return nil, fmt.Errorf("%w: %s has no available version", ErrBadResponse, backend.Model)
	}
	t.client.logger.Debug("model loaded", zap.String("model", backend.Model), zap.String("version", version))
	return &Session{
		Runtime:   t.Name(),
		Ref:       modelRef,
		Model:     backend.Model,
		InputName: "instances",
		Datatype:  "DT_FLOAT",
		backend:   backend,
	}, nil
}

// Run predicts on an all-ones tensor in row format: the first dimension of the
// shape is the number of instances. Items is always one.
func (t *TFGraph) Run(ctx context.Context, s *Session, in Input) (Output, error) {
	shape, err := resolveShape(in, s)
	if err != nil {
		return Output{}, err
	}
	instances := make([]any, shape[0])
	for i := range instances {
		instances[i] = ones(shape[1:])
	}

	var resp predictResponse
	path := "/v1/models/" + url.PathEscape(s.Model) + ":predict"
	if err := t.client.do(ctx, s.backend, http.MethodPost, path, predictRequest{Instances: instances}, &resp); err != nil {
		return Output{}, err
	}
	if len(resp.Predictions) == 0 {
		return Output{}, fmt.Errorf("%w: prediction returned nothing", ErrBadResponse)
	}
	return Output{Items: 1, Shape: nestedShape(resp.Predictions)}, nil
}

// ones builds a nested list of ones with the given shape. An empty shape is a scalar.
func ones(shape []int64) any {
	if len(shape) == 0 {
		return float32(1)
	}
	if len(shape) == 1 {
		row := make([]float32, shape[0])
		for i := range row {
			row[i] = 1
		}
		return row
	}
	out := make([]any, shape[0])
	for i := range out {
		out[i] = ones(shape[1:])
	}
	return out
}

// nestedShape measures a decoded JSON tensor along its first elements.
func nestedShape(v any) []int64 {
	var shape []int64
	for {
		list, ok := v.([]any)
		if !ok {
			return shape
		}
		shape = append(shape, int64(len(list)))
		if len(list) == 0 {
			return shape
		}
		v = list[0]
	}
}

package runtimes

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/fxnlabs/gpubench/internal/config"
	"go.uber.org/zap"
)

// ONNX runs an ONNX model session on a server speaking the KServe v2 inference
// protocol. Inputs are tensors of ones shaped like the model's first input.
type ONNX struct {
	client *client
}

type tensorMetadata struct {
	Name     string  `json:"name"`
	Datatype string  `json:"datatype"`
	Shape    []int64 `json:"shape"`
}

type modelMetadata struct {
	Name     string           `json:"name"`
	Platform string           `json:"platform"`
	Inputs   []tensorMetadata `json:"inputs"`
	Outputs  []tensorMetadata `json:"outputs"`
}

type inferTensor struct {
	Name     string    `json:"name"`
	Shape    []int64   `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float32 `json:"data,omitempty"`
}

type inferRequest struct {
	Inputs []inferTensor `json:"inputs"`
}

type inferResponse struct {
	ModelName string        `json:"model_name"`
	Outputs   []inferTensor `json:"outputs"`
}

func (o *ONNX) Name() string { return config.RuntimeONNX }

// Load reads the model metadata and remembers the first input. Servers that
// report no inputs get the conventional "input" name and FP32.
func (o *ONNX) Load(ctx context.Context, modelRef string) (*Session, error) {
	backend, err := o.client.resolve(modelRef)
	if err != nil {
		return nil, err
	}
	var meta modelMetadata
	if err := o.client.do(ctx, backend, http.MethodGet, "/v2/models/"+url.PathEscape(backend.Model), nil, &meta); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", modelRef, err)
	}

	s := &Session{
		Runtime:   o.Name(),
		Ref:       modelRef,
		Model:     backend.Model,
		InputName: "input",
		Datatype:  "FP32",
		backend:   backend,
	}
	if len(meta.Inputs) > 0 {
		first := meta.Inputs[0]
		if first.Name != "" {
			s.InputName = first.Name
		}
		if first.Datatype != "" {
			s.Datatype = first.Datatype
		}
		s.InputShape = first.Shape
	}
	o.client.logger.Debug("model loaded",
		zap.String("model", s.Model),
		zap.String("platform", meta.Platform),
		zap.String("input", s.InputName),
		zap.Int64s("shape", s.InputShape))
	return s, nil
}

// Run performs one inference on an all-ones input. Items is always one.
func (o *ONNX) Run(ctx context.Context, s *Session, in Input) (Output, error) {
	shape, err := resolveShape(in, s)
	if err != nil {
		return Output{}, err
	}
	data := make([]float32, elements(shape))
	for i := range data {
		data[i] = 1
	}
	req := inferRequest{Inputs: []inferTensor{{Name: s.InputName, Shape: shape, Datatype: s.Datatype, Data: data}}}

	var resp inferResponse
	path := "/v2/models/" + url.PathEscape(s.Model) + "/infer"
	if err := o.client.do(ctx, s.backend, http.MethodPost, path, req, &resp); err != nil {
		return Output{}, err
	}
	if len(resp.Outputs) == 0 {
		return Output{}, fmt.Errorf("%w: inference returned no outputs", ErrBadResponse)
	}
	return Output{Items: 1, Shape: resp.Outputs[0].Shape}, nil
}

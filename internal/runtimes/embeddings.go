package runtimes

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fxnlabs/gpubench/internal/config"
	"go.uber.org/zap"
)

// Embeddings is a feature-extraction pipeline behind an OpenAI compatible
// /v1/embeddings endpoint. One call embeds every text of the input.
type Embeddings struct {
	client *client
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *Embeddings) Name() string { return config.RuntimeEmbeddings }

// Load checks the server is reachable and, when it lists models, that it serves
// this one.
func (e *Embeddings) Load(ctx context.Context, modelRef string) (*Session, error) {
	backend, err := e.client.resolve(modelRef)
	if err != nil {
		return nil, err
	}
	var models modelList
	if err := e.client.do(ctx, backend, http.MethodGet, "/v1/models", nil, &models); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", modelRef, err)
	}
	if len(models.Data) > 0 {
		served := false
		for _, m := range models.Data {
			if m.ID == backend.Model {
				served = true
				break
			}
		}
		if !served {
			return nil, fmt.Errorf("%w: %s does not serve %s", ErrBadResponse, backend.URL, backend.Model)
		}
	}
	e.client.logger.Debug("model loaded", zap.String("model", backend.Model))
	return &Session{
		Runtime:   e.Name(),
		Ref:       modelRef,
		Model:     backend.Model,
		InputName: "input",
		Datatype:  "string",
		backend:   backend,
	}, nil
}

// Run embeds in.Texts as one batch. Items is the number of texts.
func (e *Embeddings) Run(ctx context.Context, s *Session, in Input) (Output, error) {
	if len(in.Texts) == 0 {
		return Output{}, fmt.Errorf("%w: no texts to embed", ErrInvalidInput)
	}
	var resp embeddingResponse
	req := embeddingRequest{Model: s.Model, Input: in.Texts, EncodingFormat: "float"}
	if err := e.client.do(ctx, s.backend, http.MethodPost, "/v1/embeddings", req, &resp); err != nil {
		return Output{}, err
	}
	if len(resp.Data) != len(in.Texts) {
		return Output{}, fmt.Errorf("%w: %d embeddings for %d texts", ErrBadResponse, len(resp.Data), len(in.Texts))
	}
	dim := len(resp.Data[0].Embedding)
	for _, d := range resp.Data {
		if len(d.Embedding) != dim {
			return Output{}, fmt.Errorf("%w: embedding %d has %d dimensions, expected %d", ErrBadResponse, d.Index, len(d.Embedding), dim)
		}
	}
	return Output{Items: len(in.Texts), Shape: []int64{int64(len(in.Texts)), int64(dim)}}, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Runtime names a model backend may declare.
const (
	RuntimeEmbeddings = "embeddings"
	RuntimeONNX       = "onnx"
	RuntimeTFGraph    = "tfgraph"
)

// DefaultModelRef is the entry used when a model reference has no entry of its own.
const DefaultModelRef = "default"

var ErrModelNotFound = errors.New("model not found in model_backend config")

type AuthConfig struct {
	APIKey      string `yaml:"apiKey"`
	BearerToken string `yaml:"bearerToken"`
}

// ModelBackend is where and how a model reference is served.
type ModelBackend struct {
	Runtime string `yaml:"runtime"`
	URL     string `yaml:"url"`

	// Model is the name the serving endpoint knows the model by; empty means the reference itself.
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
	Auth    *AuthConfig   `yaml:"auth"`
}

type ModelBackendConfig struct {
	Models map[string]ModelBackend `yaml:"models"`
}

func LoadModelBackendConfig(path string) (*ModelBackendConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config ModelBackendConfig
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, err
	}
	for ref, backend := range config.Models {
		switch backend.Runtime {
		case RuntimeEmbeddings, RuntimeONNX, RuntimeTFGraph:
		default:
			return nil, fmt.Errorf("model %q: unknown runtime %q", ref, backend.Runtime)
		}
		if backend.URL == "" {
			return nil, fmt.Errorf("model %q: url is required", ref)
		}
	}

	return &config, nil
}

// GetModelBackend resolves a model reference. References without an entry fall
// back to the default entry when there is one. The returned backend always has
// Model set.
func (c *ModelBackendConfig) GetModelBackend(ref string, log *zap.Logger) (ModelBackend, error) {
	backend, ok := c.Models[ref]
	if !ok {
		backend, ok = c.Models[DefaultModelRef]
		if !ok {
			log.Warn("model not found in model_backend config", zap.String("model", ref))
			return ModelBackend{}, fmt.Errorf("%w: %s", ErrModelNotFound, ref)
		}
		log.Debug("model not found, using default backend", zap.String("model", ref))
	}
	if backend.Model == "" {
		backend.Model = ref
	}
	return backend, nil
}

// Refs lists the configured model references, sorted.
func (c *ModelBackendConfig) Refs() []string {
	out := make([]string, 0, len(c.Models))
	for ref := range c.Models {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

package gpu

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// BackendFactory builds a Backend. Backends register one from an init function.
type BackendFactory func(logger *zap.Logger) Backend

var (
	factoriesMu sync.RWMutex
	factories   = map[string]BackendFactory{}
)

// Register makes a backend available by name. Registering a name twice panics.
func Register(name string, factory BackendFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, dup := factories[name]; dup {
		panic("gpu: backend registered twice: " + name)
	}
	factories[name] = factory
}

// Backends lists registered backend names.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewBackend creates a registered backend. A name that was not compiled in means the
// host has no way to reach GPU compute through it.
func NewBackend(name string, logger *zap.Logger) (Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: backend %q is not compiled in (have %v)", ErrBackendUnavailable, name, Backends())
	}
	logger.Info("Using GPU backend", zap.String("backend", name))
	return factory(logger), nil
}

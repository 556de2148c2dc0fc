package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fxnlabs/gpubench/internal/bench"
)

// parseShape reads "M=512,N=256,K=128". Dimension names are case sensitive.
func parseShape(s string) (bench.Shape, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	shape := bench.Shape{}
	for _, part := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid shape %q: expected name=value pairs", s)
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid shape %q: dimension %s: %w", s, name, err)
		}
		if _, dup := shape[name]; dup {
			return nil, fmt.Errorf("invalid shape %q: dimension %s given twice", s, name)
		}
		shape[name] = n
	}
	return shape, nil
}

// parseTiles reads "32/8/16" as TM/TN/TK.
func parseTiles(s string) (*bench.TileConfig, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid tiles %q: expected TM/TN/TK", s)
	}
	var v [3]uint32
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid tiles %q: %w", s, err)
		}
		v[i] = uint32(n)
	}
	return &bench.TileConfig{TM: v[0], TN: v[1], TK: v[2]}, nil
}

// parseDims reads a tensor shape such as "1,3,224,224".
func parseDims(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	dims := make([]int64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid input shape %q: %w", s, err)
		}
		if n < 1 {
			return nil, fmt.Errorf("invalid input shape %q: dimensions must be positive", s)
		}
		dims[i] = n
	}
	return dims, nil
}

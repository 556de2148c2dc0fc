package gpu

import (
	"encoding/json"
	"sort"
)

// Feature is an optional device capability.
type Feature string

const (
	FeatureShaderF16      Feature = "shader-f16"
	FeatureTimestampQuery Feature = "timestamp-query"
	FeatureSubgroups      Feature = "subgroups"
)

// OptionalFeatures is every feature the negotiator asks adapters about, in request order.
var OptionalFeatures = []Feature{FeatureShaderF16, FeatureTimestampQuery, FeatureSubgroups}

// FeatureSet is an immutable set of features.
type FeatureSet struct {
	m map[Feature]struct{}
}

// NewFeatureSet builds a set from a list; duplicates are ignored.
func NewFeatureSet(features ...Feature) FeatureSet {
	m := make(map[Feature]struct{}, len(features))
	for _, f := range features {
		m[f] = struct{}{}
	}
	return FeatureSet{m: m}
}

// Has reports membership.
func (s FeatureSet) Has(f Feature) bool {
	_, ok := s.m[f]
	return ok
}

// Len is the number of features in the set.
func (s FeatureSet) Len() int {
	return len(s.m)
}

// List returns the features sorted by name.
func (s FeatureSet) List() []Feature {
	out := make([]Feature, 0, len(s.m))
	for f := range s.m {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the feature names sorted.
func (s FeatureSet) Strings() []string {
	list := s.List()
	out := make([]string, len(list))
	for i, f := range list {
		out[i] = string(f)
	}
	return out
}

func (s FeatureSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

func (s *FeatureSet) UnmarshalJSON(data []byte) error {
	var names []Feature
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = NewFeatureSet(names...)
	return nil
}

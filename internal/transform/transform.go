// Copyright 2025 James Ross

// Package transform is the Schema Transformer from spec §4.3: a
// registry of named pure value functions plus a mapping engine that
// projects one field dictionary onto another, grounded line-for-line
// on the Python original's SchemaTransformer for algorithm and
// built-in semantics.
package transform

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Direction selects which side of a Mapping is the source field.
type Direction int

const (
	InternalToExternal Direction = iota
	ExternalToInternal
)

// Func is a named pure value transformation.
type Func func(v any) (any, error)

// Mapping is a single (internal_field, external_field, transformer?,
// required) rule.
type Mapping struct {
	Internal    string
	External    string
	Transformer string // empty means no transformation
	Required    bool
}

// Registry holds the closed built-in set plus any caller-registered
// functions, so an unknown-name lookup is a single error path per
// § DESIGN NOTES.
type Registry struct {
	mu  sync.RWMutex
	fns map[string]Func
}

// NewRegistry builds a Registry seeded with the built-in set required
// by spec §4.3.
func NewRegistry() *Registry {
	r := &Registry{fns: make(map[string]Func)}
	registerBuiltins(r)
	return r
}

// Register adds or replaces a named transformer. Built-ins may be
// overridden; this is an open extension surface by design.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fns[name] = fn
}

func (r *Registry) lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[name]
	return fn, ok
}

// Transform projects record onto a new field dictionary per mappings,
// following the five-step algorithm in spec §4.3 exactly. log may be
// nil; when non-nil it receives a Warn on a non-required transformer
// failure (the "record a warning" step).
func (r *Registry) Transform(log *zap.Logger, record map[string]any, mappings []Mapping, dir Direction) (map[string]any, error) {
	out := make(map[string]any)
	for _, m := range mappings {
		source, target := m.Internal, m.External
		if dir == ExternalToInternal {
			source, target = m.External, m.Internal
		}

		value, present := record[source]
		if !present {
			value = nil
		}

		if isNullish(value) {
			if m.Required {
				return nil, &MissingFieldError{Field: source}
			}
			continue
		}

		if m.Transformer != "" {
			fn, ok := r.lookup(m.Transformer)
			if !ok {
				return nil, &TransformationError{Field: source, Transformer: m.Transformer, Err: fmt.Errorf("unknown transformer")}
			}
			transformed, err := fn(value)
			if err != nil {
				if m.Required {
					return nil, &TransformationError{Field: source, Transformer: m.Transformer, Err: err}
				}
				if log != nil {
					log.Warn("transform: skipping optional field after transformer failure",
						zap.String("field", source), zap.String("transformer", m.Transformer), zap.Error(err))
				}
				continue
			}
			value = transformed
		}

		if !isNullish(value) {
			out[target] = value
		}
	}
	return out, nil
}

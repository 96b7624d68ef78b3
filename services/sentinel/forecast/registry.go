// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package forecast

import (
	"fmt"
	"sync"
)

// ============================================================================
// Sequence Model Registry
// ============================================================================

// SequenceModel forecasts horizon future values from a normalized history
// window. Implementations must be deterministic: repeated calls with the
// same sequence produce the same output.
type SequenceModel interface {
	// Name identifies the model in the registry and in logs.
	Name() string

	// Predict returns horizon forecast values continuing the sequence.
	// The sequence is normalized by the caller; predictions are returned
	// in the same normalized space.
	Predict(sequence []float64, horizon int) ([]float64, error)
}

// Registry holds the available sequence models by name. The forecasting
// engine resolves its model once at construction; nothing is instantiated
// lazily, so a misconfigured model name fails at startup rather than on
// the first forecast.
type Registry struct {
	mu     sync.RWMutex
	models map[string]SequenceModel
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]SequenceModel)}
}

// DefaultRegistry returns a Registry with the built-in models registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	// Registration of built-ins cannot collide.
	_ = r.Register(DampedHolt{})
	return r
}

// Register adds a model. Registering a name twice is an error; replacing
// a model under a live engine is never intended.
func (r *Registry) Register(m SequenceModel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.models[m.Name()]; exists {
		return fmt.Errorf("sequence model %q already registered", m.Name())
	}
	r.models[m.Name()] = m
	return nil
}

// Resolve returns the model registered under name.
func (r *Registry) Resolve(name string) (SequenceModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("unknown sequence model %q", name)
	}
	return m, nil
}

// Names lists the registered model names; useful for startup logging.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.models))
	for name := range r.models {
		out = append(out, name)
	}
	return out
}

package adapter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/newsfang/internal/fault"
)

// Registry holds the live adapters keyed by source type. Registering a
// second adapter for the same key overwrites the first, which lets tests
// and embedders swap implementations without a teardown protocol.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register binds an adapter to a source type, overwriting any previous
// binding for the same key.
func (r *Registry) Register(sourceType string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.adapters[sourceType] = a
}

// Get returns the adapter for a source type.
func (r *Registry) Get(sourceType string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[sourceType]
	if !ok {
		return nil, fault.NotFound("adapter for source type", sourceType)
	}

	return a, nil
}

// Types returns the registered source types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.adapters))
	for sourceType := range r.adapters {
		types = append(types, sourceType)
	}

	sort.Strings(types)

	return types
}

// ValidateConfig checks a source configuration against the registered
// adapter's JSON Schema.
func (r *Registry) ValidateConfig(sourceType string, config map[string]any) (Validation, error) {
	a, getErr := r.Get(sourceType)
	if getErr != nil {
		return Validation{}, getErr
	}

	schemaLoader := gojsonschema.NewStringLoader(a.ConfigSchema())
	docLoader := gojsonschema.NewGoLoader(config)

	result, validateErr := gojsonschema.Validate(schemaLoader, docLoader)
	if validateErr != nil {
		return Validation{}, fmt.Errorf("validate %s config: %w", sourceType, validateErr)
	}

	if result.Valid() {
		return Validation{IsValid: true}, nil
	}

	v := Validation{Errors: make([]string, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		v.Errors = append(v.Errors, desc.String())
	}

	return v, nil
}

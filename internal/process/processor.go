package process

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"alarming/internal/domain"
)

// Processor mutates one alarm as a step of a tenant chain.
// Params: context and alarm under processing.
// Returns: error when the step fails; the chain isolates it.
type Processor interface {
	Name() string
	Process(ctx context.Context, alarm *domain.Alarm) error
}

// Registry holds the process-wide set of named processors.
// Params: name-keyed processor map behind a mutex.
// Returns: lookup surface used when building tenant chains.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Processor
}

// NewRegistry creates a registry preloaded with the given processors.
// Params: processors to register.
// Returns: initialized registry or duplicate-name error.
func NewRegistry(processors ...Processor) (*Registry, error) {
	registry := &Registry{processors: make(map[string]Processor, len(processors))}
	for _, processor := range processors {
		if err := registry.Register(processor); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Register adds one processor under its name.
// Params: processor with a non-empty unique name.
// Returns: error on empty or duplicate name.
func (r *Registry) Register(processor Processor) error {
	name := processor.Name()
	if name == "" {
		return fmt.Errorf("processor has empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.processors[name]; exists {
		return fmt.Errorf("processor %q already registered", name)
	}
	r.processors[name] = processor
	return nil
}

// Lookup finds one processor by name.
// Params: processor name.
// Returns: processor and presence flag.
func (r *Registry) Lookup(name string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	processor, ok := r.processors[name]
	return processor, ok
}

// Names lists registered processor names in sorted order.
// Params: none.
// Returns: sorted names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package mapper

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"alarming/internal/domain"
)

// ErrMapperNotFound indicates no parsing strategy is registered for a source.
var ErrMapperNotFound = errors.New("mapper not found")

// RawEvent is one parsed-but-unnormalized occurrence extracted from a payload.
// Params: parsed payload document and pre-extracted descriptive fields.
// Returns: mapper output consumed by the ingestion pipeline for
// normalization and fingerprinting.
type RawEvent struct {
	Payload  map[string]any
	Summary  string
	Severity domain.Severity
	Status   domain.EventStatus
}

// Mapper parses one source payload format into raw events.
// Params: source id capability and raw payload bytes.
// Returns: pluggable per-source parsing strategy.
type Mapper interface {
	Source() string
	Map(raw []byte) ([]RawEvent, error)
}

// Registry routes a source id to its registered mapper.
// Params: mappers keyed by source id, built once at startup.
// Returns: lookup table for the ingestion pipeline.
type Registry struct {
	mappers map[string]Mapper
}

// NewRegistry builds the registry from an enumerated mapper list.
// Params: all registered mapper implementations.
// Returns: registry or error on duplicate source ids.
func NewRegistry(mappers ...Mapper) (*Registry, error) {
	index := make(map[string]Mapper, len(mappers))
	for _, m := range mappers {
		id := strings.TrimSpace(m.Source())
		if id == "" {
			return nil, errors.New("mapper with empty source id")
		}
		if _, exists := index[id]; exists {
			return nil, fmt.Errorf("duplicate mapper for source %q", id)
		}
		index[id] = m
	}
	return &Registry{mappers: index}, nil
}

// Lookup resolves the mapper for a source id.
// Params: source id.
// Returns: mapper or ErrMapperNotFound.
func (r *Registry) Lookup(sourceID string) (Mapper, error) {
	m, ok := r.mappers[strings.TrimSpace(sourceID)]
	if !ok {
		return nil, fmt.Errorf("%w: source %q", ErrMapperNotFound, sourceID)
	}
	return m, nil
}

// Sources lists registered source ids in stable order.
// Params: none.
// Returns: sorted source id slice.
func (r *Registry) Sources() []string {
	ids := make([]string, 0, len(r.mappers))
	for id := range r.mappers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

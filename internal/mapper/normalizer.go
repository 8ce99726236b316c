package mapper

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LabelMapping binds one normalized label to a dotted payload path.
// Params: target label and source path.
// Returns: one ordered normalization row.
type LabelMapping struct {
	Label string
	Path  string
}

// MappingProvider supplies the ordered label mapping for a source.
// Params: context and source id.
// Returns: ordered mapping rows (externally configured collaborator).
type MappingProvider interface {
	Mappings(ctx context.Context, sourceID string) ([]LabelMapping, error)
}

// StaticMappingProvider serves mappings from an in-process table.
// Params: mapping rows keyed by source id.
// Returns: provider for config-seeded mappings.
type StaticMappingProvider struct {
	table map[string][]LabelMapping
}

// NewStaticMappingProvider builds a provider from a config table.
// Params: per-source ordered mapping rows.
// Returns: initialized provider.
func NewStaticMappingProvider(table map[string][]LabelMapping) *StaticMappingProvider {
	if table == nil {
		table = make(map[string][]LabelMapping)
	}
	return &StaticMappingProvider{table: table}
}

// Mappings returns the ordered mapping for one source.
// Params: context and source id.
// Returns: configured rows (nil when the source has none).
func (p *StaticMappingProvider) Mappings(_ context.Context, sourceID string) ([]LabelMapping, error) {
	return p.table[sourceID], nil
}

// CachedMappingProvider adds a TTL read-through cache over a provider.
// Params: wrapped provider, TTL, and injected now function.
// Returns: provider suitable for DB-backed mapping sources.
type CachedMappingProvider struct {
	next MappingProvider
	ttl  time.Duration
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]mappingCacheEntry
}

type mappingCacheEntry struct {
	rows      []LabelMapping
	expiresAt time.Time
}

// NewCachedMappingProvider wraps a provider with a per-source TTL cache.
// Params: wrapped provider, cache TTL, and now function (time.Now when nil).
// Returns: initialized caching provider.
func NewCachedMappingProvider(next MappingProvider, ttl time.Duration, now func() time.Time) *CachedMappingProvider {
	if now == nil {
		now = time.Now
	}
	return &CachedMappingProvider{
		next:    next,
		ttl:     ttl,
		now:     now,
		entries: make(map[string]mappingCacheEntry),
	}
}

// Mappings returns cached rows or refreshes them from the wrapped provider.
// Params: context and source id.
// Returns: mapping rows or provider error.
func (p *CachedMappingProvider) Mappings(ctx context.Context, sourceID string) ([]LabelMapping, error) {
	p.mu.RLock()
	entry, ok := p.entries[sourceID]
	p.mu.RUnlock()
	if ok && p.now().Before(entry.expiresAt) {
		return entry.rows, nil
	}

	rows, err := p.next.Mappings(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.entries[sourceID] = mappingCacheEntry{rows: rows, expiresAt: p.now().Add(p.ttl)}
	p.mu.Unlock()
	return rows, nil
}

// Normalizer canonicalizes raw payload fields into a normalized label map.
// Params: mapping provider collaborator.
// Returns: label normalizer used per event by the pipeline.
type Normalizer struct {
	provider MappingProvider
}

// NewNormalizer builds a normalizer over a mapping provider.
// Params: provider collaborator.
// Returns: initialized normalizer.
func NewNormalizer(provider MappingProvider) *Normalizer {
	return &Normalizer{provider: provider}
}

// Normalize applies the source mapping to one parsed payload.
// Params: context, source id, and parsed payload document.
// Returns: normalized labels; missing paths are skipped silently. When a
// source has no mapping rows, string values of the payload "labels"
// object are lifted as-is.
func (n *Normalizer) Normalize(ctx context.Context, sourceID string, payload map[string]any) (map[string]string, error) {
	rows, err := n.provider.Mappings(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("load label mapping for %q: %w", sourceID, err)
	}

	if len(rows) == 0 {
		return liftLabelsObject(payload), nil
	}

	labels := make(map[string]string, len(rows))
	for _, row := range rows {
		value, ok := lookupPath(payload, row.Path)
		if !ok {
			continue
		}
		labels[row.Label] = value
	}
	return labels, nil
}

// liftLabelsObject extracts string pairs from a payload "labels" object.
// Params: parsed payload document.
// Returns: string labels (empty map when absent).
func liftLabelsObject(payload map[string]any) map[string]string {
	labels := make(map[string]string)
	raw, ok := payload["labels"].(map[string]any)
	if !ok {
		return labels
	}
	for key, value := range raw {
		if text, ok := stringify(value); ok {
			labels[key] = text
		}
	}
	return labels
}

// lookupPath resolves one dotted path against a parsed JSON document.
// Params: document and dotted path (numeric segments index arrays).
// Returns: scalar value as string and presence flag.
func lookupPath(payload map[string]any, path string) (string, bool) {
	var current any = payload
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return "", false
			}
			current = next
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return "", false
			}
			current = node[index]
		default:
			return "", false
		}
	}
	return stringify(current)
}

// stringify renders one scalar JSON value as a label string.
// Params: decoded JSON value.
// Returns: string form and true for scalars, false for composites.
func stringify(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case nil:
		return "", false
	default:
		return "", false
	}
}

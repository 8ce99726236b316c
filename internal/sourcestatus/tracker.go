package sourcestatus

import (
	"context"
	"sync"
)

// Tracker answers whether a source may ingest and records status flips.
// Params: per-source boolean flags shared cluster-wide.
// Returns: low-latency online checks for the ingestion pipeline. Unknown
// sources are offline (fail closed).
type Tracker interface {
	IsOnline(ctx context.Context, sourceID string) (bool, error)
	UpdateStatus(ctx context.Context, sourceID string, online bool) error
	Close() error
}

// MemoryTracker keeps source flags in process memory for single-instance mode.
// Params: in-memory flag map.
// Returns: tracker implementation without external dependencies.
type MemoryTracker struct {
	mu     sync.RWMutex
	online map[string]bool
}

// NewMemoryTracker creates an in-memory tracker seeded with initial flags.
// Params: initial per-source online flags (may be nil).
// Returns: initialized tracker.
func NewMemoryTracker(seed map[string]bool) *MemoryTracker {
	online := make(map[string]bool, len(seed))
	for id, flag := range seed {
		online[id] = flag
	}
	return &MemoryTracker{online: online}
}

// IsOnline reports the stored flag for a source.
// Params: context and source id.
// Returns: false for unknown sources.
func (t *MemoryTracker) IsOnline(_ context.Context, sourceID string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.online[sourceID], nil
}

// UpdateStatus stores one source flag.
// Params: context, source id, and new flag.
// Returns: nil (in-memory update).
func (t *MemoryTracker) UpdateStatus(_ context.Context, sourceID string, online bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.online[sourceID] = online
	return nil
}

// Close releases tracker resources.
// Params: none.
// Returns: nil.
func (t *MemoryTracker) Close() error {
	return nil
}

package sourcestatus

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"alarming/internal/config"

	"github.com/nats-io/nats.go"
)

// NATSTracker replicates source flags through a JetStream KV bucket.
// Params: KV bucket handle, watch subscription, and per-node local cache.
// Returns: cluster tracker with change-notification fed local reads.
type NATSTracker struct {
	nc      *nats.Conn
	kv      nats.KeyValue
	watcher nats.KeyWatcher

	mu    sync.RWMutex
	local map[string]bool
}

// NewNATSTracker opens the source-status bucket and starts the change watcher.
// Params: NATS settings from config.
// Returns: initialized tracker or setup error.
func NewNATSTracker(settings config.NATSConfig) (*NATSTracker, error) {
	nc, err := nats.Connect(strings.Join(settings.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.KeyValue(settings.SourceBucket)
	if err != nil {
		if !settings.AllowCreateBuckets {
			nc.Close()
			return nil, fmt.Errorf("open source bucket %q: %w", settings.SourceBucket, err)
		}
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: settings.SourceBucket})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create source bucket %q: %w", settings.SourceBucket, err)
		}
	}

	tracker := &NATSTracker{
		nc:    nc,
		kv:    kv,
		local: make(map[string]bool),
	}

	watcher, err := kv.WatchAll()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("watch source bucket: %w", err)
	}
	tracker.watcher = watcher
	go tracker.consumeUpdates()

	return tracker, nil
}

// consumeUpdates applies bucket change notifications to the local cache.
// Params: none (runs until the watcher channel closes).
// Returns: none.
func (t *NATSTracker) consumeUpdates() {
	for entry := range t.watcher.Updates() {
		if entry == nil {
			continue
		}
		t.mu.Lock()
		switch entry.Operation() {
		case nats.KeyValueDelete, nats.KeyValuePurge:
			delete(t.local, entry.Key())
		default:
			t.local[entry.Key()] = string(entry.Value()) == "true"
		}
		t.mu.Unlock()
	}
}

// IsOnline reads the local cache, falling back to the bucket on a miss.
// Params: context and source id.
// Returns: false for unknown sources (fail closed).
func (t *NATSTracker) IsOnline(_ context.Context, sourceID string) (bool, error) {
	t.mu.RLock()
	flag, ok := t.local[sourceID]
	t.mu.RUnlock()
	if ok {
		return flag, nil
	}

	entry, err := t.kv.Get(sourceID)
	if err != nil {
		if err == nats.ErrKeyNotFound {
			return false, nil
		}
		return false, fmt.Errorf("get source status: %w", err)
	}
	flag = string(entry.Value()) == "true"
	t.mu.Lock()
	t.local[sourceID] = flag
	t.mu.Unlock()
	return flag, nil
}

// UpdateStatus writes one flag; the watch fan-out refreshes every node.
// Params: context, source id, and new flag.
// Returns: KV put error.
func (t *NATSTracker) UpdateStatus(_ context.Context, sourceID string, online bool) error {
	value := "false"
	if online {
		value = "true"
	}
	if _, err := t.kv.PutString(sourceID, value); err != nil {
		return fmt.Errorf("put source status: %w", err)
	}
	return nil
}

// Close stops the watcher and closes the NATS connection.
// Params: none.
// Returns: nil after shutdown.
func (t *NATSTracker) Close() error {
	if t.watcher != nil {
		_ = t.watcher.Stop()
	}
	t.nc.Close()
	return nil
}

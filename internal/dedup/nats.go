package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"alarming/internal/config"
	"alarming/internal/domain"

	"github.com/nats-io/nats.go"
)

const casAttempts = 8

// errConflict indicates a lost CAS race on one fingerprint key.
var errConflict = errors.New("revision conflict")

// NATSStore persists dedup state in a JetStream KV bucket with revision CAS.
// Params: NATS connection, KV bucket handle, and injected clock.
// Returns: cluster-wide dedup store; Create/Update revisions make the
// per-key read-modify-write linearizable.
type NATSStore struct {
	nc  *nats.Conn
	kv  nats.KeyValue
	now func() time.Time
}

// NewNATSStore opens the dedup bucket and returns the KV-backed store.
// Params: NATS settings from config and now function (time.Now when nil).
// Returns: initialized store or setup error.
func NewNATSStore(settings config.NATSConfig, now func() time.Time) (*NATSStore, error) {
	if now == nil {
		now = time.Now
	}
	nc, err := nats.Connect(strings.Join(settings.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.KeyValue(settings.DedupBucket)
	if err != nil {
		if !settings.AllowCreateBuckets {
			nc.Close()
			return nil, fmt.Errorf("open dedup bucket %q: %w", settings.DedupBucket, err)
		}
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: settings.DedupBucket})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create dedup bucket %q: %w", settings.DedupBucket, err)
		}
	}

	return &NATSStore{nc: nc, kv: kv, now: now}, nil
}

// CheckAndRecord applies one occurrence with a bounded CAS retry loop.
// Params: event, window length, and occurrence cap.
// Returns: dedup result; conflicting writers re-read and retry so exactly
// one of N concurrent first occurrences wins the create.
func (s *NATSStore) CheckAndRecord(ctx context.Context, event domain.AlertEvent, window time.Duration, maxCount int64) (Result, error) {
	var lastErr error
	for attempt := 0; attempt < casAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		result, err := s.tryOnce(event, window, maxCount)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, errConflict) {
			return Result{}, err
		}
		lastErr = err
	}
	return Result{}, fmt.Errorf("dedup cas exhausted for %q: %w", event.Fingerprint, lastErr)
}

// tryOnce performs one read-modify-write round for a fingerprint key.
// Params: event, window, and cap.
// Returns: result, errConflict on a lost race, or a hard store error.
func (s *NATSStore) tryOnce(event domain.AlertEvent, window time.Duration, maxCount int64) (Result, error) {
	now := s.now()
	entry, err := s.kv.Get(event.Fingerprint)
	if err != nil {
		if err != nats.ErrKeyNotFound {
			return Result{}, fmt.Errorf("get dedup state: %w", err)
		}
		state := fresh(event, now, maxCount)
		if err := s.create(event.Fingerprint, state); err != nil {
			return Result{}, err
		}
		return Result{
			IsNewAlert:    true,
			OriginalEvent: state.OriginalEvent,
			CurrentCount:  1,
			FirstSeenAt:   state.FirstSeenAt,
		}, nil
	}

	var state State
	if err := json.Unmarshal(entry.Value(), &state); err != nil {
		return Result{}, fmt.Errorf("decode dedup state: %w", err)
	}

	isNew := expired(state, now, window)
	if isNew {
		state = fresh(event, now, maxCount)
	} else {
		state = advance(state, now)
	}
	if err := s.update(event.Fingerprint, entry.Revision(), state); err != nil {
		return Result{}, err
	}
	return Result{
		IsNewAlert:    isNew,
		OriginalEvent: state.OriginalEvent,
		CurrentCount:  state.Count,
		FirstSeenAt:   state.FirstSeenAt,
	}, nil
}

// create writes first-occurrence state, losing to concurrent creators.
// Params: fingerprint key and fresh state.
// Returns: errConflict when another node created the key first.
func (s *NATSStore) create(key string, state State) error {
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode dedup state: %w", err)
	}
	if _, err := s.kv.Create(key, body); err != nil {
		if errors.Is(err, nats.ErrKeyExists) {
			return errConflict
		}
		return fmt.Errorf("create dedup state: %w", err)
	}
	return nil
}

// update replaces state using expected revision CAS.
// Params: fingerprint key, expected revision, and replacement state.
// Returns: errConflict when the revision moved under us.
func (s *NATSStore) update(key string, expectedRevision uint64, state State) error {
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode dedup state: %w", err)
	}
	if _, err := s.kv.Update(key, body, expectedRevision); err != nil {
		if errors.Is(err, nats.ErrKeyExists) || strings.Contains(strings.ToLower(err.Error()), "wrong last sequence") {
			return errConflict
		}
		return fmt.Errorf("update dedup state: %w", err)
	}
	return nil
}

// Close closes the underlying NATS connection.
// Params: none.
// Returns: nil after connection close.
func (s *NATSStore) Close() error {
	s.nc.Close()
	return nil
}

package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"alarming/internal/config"

	"github.com/nats-io/nats.go"
)

// NATSLocker implements cluster locks over a TTL-expiring KV bucket.
// Params: NATS connection and lock bucket handle.
// Returns: locker where Create wins the lock and bucket TTL reclaims
// locks abandoned by crashed holders.
type NATSLocker struct {
	nc *nats.Conn
	kv nats.KeyValue
}

// NewNATSLocker opens or creates the lock bucket with the configured TTL.
// Params: NATS settings and bucket-wide lock TTL.
// Returns: initialized locker or setup error.
func NewNATSLocker(settings config.NATSConfig, ttl time.Duration) (*NATSLocker, error) {
	nc, err := nats.Connect(strings.Join(settings.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect nats locker: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.KeyValue(settings.LockBucket)
	if err != nil {
		if !settings.AllowCreateBuckets {
			nc.Close()
			return nil, fmt.Errorf("open lock bucket %q: %w", settings.LockBucket, err)
		}
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket: settings.LockBucket,
			TTL:    ttl,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create lock bucket %q: %w", settings.LockBucket, err)
		}
	}

	return &NATSLocker{nc: nc, kv: kv}, nil
}

// TryAcquire attempts to create the lock key; the bucket TTL bounds holds.
// Params: context, lock name, and advisory TTL (bucket TTL governs expiry).
// Returns: true when this node created the key.
func (l *NATSLocker) TryAcquire(_ context.Context, name string, _ time.Duration) (bool, error) {
	if _, err := l.kv.Create(name, []byte("held")); err != nil {
		if errors.Is(err, nats.ErrKeyExists) {
			return false, nil
		}
		return false, fmt.Errorf("acquire lock %q: %w", name, err)
	}
	return true, nil
}

// Release deletes the lock key so the next tick can acquire immediately.
// Params: context and lock name.
// Returns: delete error, ignoring already-expired keys.
func (l *NATSLocker) Release(_ context.Context, name string) error {
	if err := l.kv.Delete(name); err != nil && err != nats.ErrKeyNotFound {
		return fmt.Errorf("release lock %q: %w", name, err)
	}
	return nil
}

// Close closes the underlying NATS connection.
// Params: none.
// Returns: nil after connection close.
func (l *NATSLocker) Close() error {
	l.nc.Close()
	return nil
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/servicedesk/go/internal/models"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBucket = "timer_snapshots"
	DefaultTTL    = 5 * time.Minute
)

// KVConfig holds the JetStream KV bucket settings.
type KVConfig struct {
	Bucket   string        `yaml:"bucket"`
	TTL      time.Duration `yaml:"ttl"`
	Replicas int           `yaml:"replicas"`
}

// DefaultKVConfig returns sensible defaults
func DefaultKVConfig() KVConfig {
	return KVConfig{Bucket: DefaultBucket, TTL: DefaultTTL, Replicas: 1}
}

type bucket interface {
	get(ctx context.Context, key string) ([]byte, error)
	put(ctx context.Context, key string, value []byte) error
}

var errNoKey = errors.New("key not found")

// KVCache keeps per-user snapshots in a JetStream key-value bucket. Entries
// expire after the bucket TTL, so a cache nobody repairs goes empty rather
// than stale.
type KVCache struct {
	bucket bucket
}

// NewKVCache creates or updates the bucket and returns a cache on top of it.
func NewKVCache(ctx context.Context, js jetstream.JetStream, cfg KVConfig) (*KVCache, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Replicas <= 0 {
		cfg.Replicas = 1
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "Active timer snapshots per user",
		TTL:         cfg.TTL,
		History:     1,
		Storage:     jetstream.MemoryStorage,
		Replicas:    cfg.Replicas,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kv bucket %s: %w", cfg.Bucket, err)
	}

	log.Info().
		Str("bucket", cfg.Bucket).
		Dur("ttl", cfg.TTL).
		Msg("timer snapshot bucket ready")

	return &KVCache{bucket: jsBucket{kv: kv}}, nil
}

// KVKey is the bucket key for an owner. KV keys may not contain ':'.
func KVKey(ownerID uuid.UUID) string {
	return "user." + ownerID.String() + ".active_timers"
}

// Get returns the owner's snapshot, or false when none is stored.
func (c *KVCache) Get(ctx context.Context, ownerID uuid.UUID) (*models.TimerSnapshot, bool, error) {
	data, err := c.bucket.get(ctx, KVKey(ownerID))
	if err != nil {
		if errors.Is(err, errNoKey) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read snapshot: %w", err)
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, true, nil
}

// Put stores the owner's snapshot.
func (c *KVCache) Put(ctx context.Context, snap models.TimerSnapshot) error {
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := c.bucket.put(ctx, KVKey(snap.OwnerID), data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

type jsBucket struct {
	kv jetstream.KeyValue
}

func (b jsBucket) get(ctx context.Context, key string) ([]byte, error) {
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
			return nil, errNoKey
		}
		return nil, err
	}
	return entry.Value(), nil
}

func (b jsBucket) put(ctx context.Context, key string, value []byte) error {
	_, err := b.kv.Put(ctx, key, value)
	return err
}

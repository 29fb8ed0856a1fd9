package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/servicedesk/go/internal/models"
)

// Memory is an in-process snapshot cache with the same TTL behavior as the
// KV bucket. Used when NATS is not configured.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	clock   clockwork.Clock
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemory creates an in-memory cache
func NewMemory(ttl time.Duration, clock clockwork.Clock) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{entries: make(map[string]memoryEntry), ttl: ttl, clock: clock}
}

// MemoryKey is the map key for an owner.
func MemoryKey(ownerID uuid.UUID) string {
	return fmt.Sprintf("user:%s:active_timers", ownerID)
}

func (m *Memory) Get(_ context.Context, ownerID uuid.UUID) (*models.TimerSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := MemoryKey(ownerID)
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.clock.Now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	snap, err := DecodeSnapshot(e.data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, true, nil
}

func (m *Memory) Put(_ context.Context, snap models.TimerSnapshot) error {
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	m.sweep(now)
	m.entries[MemoryKey(snap.OwnerID)] = memoryEntry{data: data, expiresAt: now.Add(m.ttl)}
	return nil
}

// sweep drops every expired entry. Callers hold mu.
func (m *Memory) sweep(now time.Time) {
	for key, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, key)
		}
	}
}

// Noop never stores anything. Every sync reads straight from the store.
type Noop struct{}

func (Noop) Get(context.Context, uuid.UUID) (*models.TimerSnapshot, bool, error) {
	return nil, false, nil
}

func (Noop) Put(context.Context, models.TimerSnapshot) error { return nil }

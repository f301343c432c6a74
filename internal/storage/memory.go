package storage

import (
	"context"
	"sync"
	"time"
)

const defaultSweepInterval = time.Minute

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

// MemoryCounters is the in-process fallback for [Counters]. Under a backend
// outage it degrades rate-limit accuracy to per-process but keeps limits
// enforced. Expired entries are dropped lazily on access and swept
// periodically by a janitor goroutine.
type MemoryCounters struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewMemoryCounters creates a memory-backed counter store and starts its
// sweep goroutine. Call Close to stop the janitor.
func NewMemoryCounters() *MemoryCounters {
	m := &MemoryCounters{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go m.sweepLoop(defaultSweepInterval)
	return m
}

func (m *MemoryCounters) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.done:
			return
		}
	}
}

func (m *MemoryCounters) sweep() {
	now := m.now()
	m.mu.Lock()
	for key, entry := range m.entries {
		if !entry.expiresAt.After(now) {
			delete(m.entries, key)
		}
	}
	m.mu.Unlock()
}

// Close stops the sweep goroutine. Idempotent.
func (m *MemoryCounters) Close() {
	m.once.Do(func() { close(m.done) })
}

func (m *MemoryCounters) IncrementWithTTL(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || !entry.expiresAt.After(now) {
		m.entries[key] = memoryEntry{count: 1, expiresAt: now.Add(ttl)}
		return 1, nil
	}

	entry.count++
	m.entries[key] = entry
	return entry.count, nil
}

func (m *MemoryCounters) Get(_ context.Context, key string) (int64, bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return 0, false, nil
	}
	if !entry.expiresAt.After(now) {
		delete(m.entries, key)
		return 0, false, nil
	}
	return entry.count, true, nil
}

func (m *MemoryCounters) TTL(_ context.Context, key string) (time.Duration, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || !entry.expiresAt.After(now) {
		return 0, nil
	}
	return entry.expiresAt.Sub(now), nil
}

func (m *MemoryCounters) Clear(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.entries[key]
	delete(m.entries, key)
	return ok, nil
}

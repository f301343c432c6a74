package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

const defaultReprobeInterval = 30 * time.Second

// FallbackCounters serves from a shared primary backend and fails over to an
// in-process [MemoryCounters] when the primary is unreachable. Rate limiting
// fails open to single-instance accuracy rather than rejecting all traffic.
//
// After a failure the primary is left alone for a re-probe interval, then
// tried again on the next call.
type FallbackCounters struct {
	primary  Counters
	memory   *MemoryCounters
	reprobe  time.Duration
	now      func() time.Time
	degraded atomic.Int64 // unix nano until which the primary is skipped
	onSwitch func()       // observability hook, may be nil
}

// NewFallbackCounters builds the failover pair. onSwitch, when non-nil, fires
// once per primary→memory transition.
func NewFallbackCounters(primary Counters, memory *MemoryCounters, onSwitch func()) *FallbackCounters {
	return &FallbackCounters{
		primary:  primary,
		memory:   memory,
		reprobe:  defaultReprobeInterval,
		now:      time.Now,
		onSwitch: onSwitch,
	}
}

// SetReprobe overrides the primary re-probe interval. Call before first use.
func (f *FallbackCounters) SetReprobe(d time.Duration) {
	if d > 0 {
		f.reprobe = d
	}
}

// Close stops the memory janitor.
func (f *FallbackCounters) Close() {
	f.memory.Close()
}

func (f *FallbackCounters) usingMemory() bool {
	return f.now().UnixNano() < f.degraded.Load()
}

func (f *FallbackCounters) markDegraded() {
	until := f.now().Add(f.reprobe).UnixNano()
	prev := f.degraded.Swap(until)
	if prev < f.now().UnixNano() && f.onSwitch != nil {
		f.onSwitch()
	}
}

func (f *FallbackCounters) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if !f.usingMemory() {
		count, err := f.primary.IncrementWithTTL(ctx, key, ttl)
		if err == nil {
			return count, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return 0, err
		}
		f.markDegraded()
	}
	return f.memory.IncrementWithTTL(ctx, key, ttl)
}

func (f *FallbackCounters) Get(ctx context.Context, key string) (int64, bool, error) {
	if !f.usingMemory() {
		count, ok, err := f.primary.Get(ctx, key)
		if err == nil {
			return count, ok, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return 0, false, err
		}
		f.markDegraded()
	}
	return f.memory.Get(ctx, key)
}

func (f *FallbackCounters) TTL(ctx context.Context, key string) (time.Duration, error) {
	if !f.usingMemory() {
		ttl, err := f.primary.TTL(ctx, key)
		if err == nil {
			return ttl, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return 0, err
		}
		f.markDegraded()
	}
	return f.memory.TTL(ctx, key)
}

func (f *FallbackCounters) Clear(ctx context.Context, key string) (bool, error) {
	if !f.usingMemory() {
		ok, err := f.primary.Clear(ctx, key)
		if err == nil {
			return ok, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return false, err
		}
		f.markDegraded()
	}
	return f.memory.Clear(ctx, key)
}

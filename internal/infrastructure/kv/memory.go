package kv

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value    string
	expireAt time.Time // zero means no expiry
	hash     map[string]string
}

func (e *memEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// MemoryIndex is an in-memory Index, selected when cache.url is empty.
// It implements the same expiry and glob semantics as RedisIndex so tests
// exercising the engine logic do not need a real Redis instance — the
// fake-dependency pattern the teacher uses in
// internal/application/forward/testutil.
type MemoryIndex struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	now     func() time.Time
}

// NewMemoryIndex creates an empty in-memory Index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		entries: make(map[string]*memEntry),
		now:     time.Now,
	}
}

func (m *MemoryIndex) getLocked(key string) (*memEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		return nil, false
	}
	return e, true
}

func (m *MemoryIndex) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.getLocked(key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryIndex) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &memEntry{value: value}
	if ttl > 0 {
		e.expireAt = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *MemoryIndex) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryIndex) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.getLocked(key)
	return ok, nil
}

func (m *MemoryIndex) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.getLocked(key)
	if !ok {
		return nil
	}
	if ttl <= 0 {
		delete(m.entries, key)
		return nil
	}
	e.expireAt = m.now().Add(ttl)
	return nil
}

func (m *MemoryIndex) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var matched []string
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			continue
		}
		if segmentGlobMatch(pattern, k) {
			matched = append(matched, k)
		}
	}
	return matched, nil
}

func (m *MemoryIndex) HGet(_ context.Context, key, field string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.getLocked(key)
	if !ok || e.hash == nil {
		return "", false, nil
	}
	v, ok := e.hash[field]
	return v, ok, nil
}

func (m *MemoryIndex) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.getLocked(key)
	if !ok {
		e = &memEntry{}
		m.entries[key] = e
	}
	if e.hash == nil {
		e.hash = make(map[string]string)
	}
	e.hash[field] = value
	return nil
}

func (m *MemoryIndex) HDel(_ context.Context, key, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.getLocked(key)
	if !ok || e.hash == nil {
		return nil
	}
	delete(e.hash, field)
	return nil
}

var _ Index = (*MemoryIndex)(nil)

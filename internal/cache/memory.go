package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultSize caps the number of entries held by a Memory cache.
const DefaultSize = 10000

type memoryItem struct {
	entry    Entry
	deadline time.Time
}

// Memory is a process-local cache backed by an expiring LRU. Entries carry
// their own deadline, so per-entry TTLs shorter than the LRU's are honoured.
type Memory struct {
	lru *expirable.LRU[string, memoryItem]
	now func() time.Time
}

// NewMemory returns a cache holding at most size entries, none of them
// longer than maxTTL. A nil now uses time.Now.
func NewMemory(size int, maxTTL time.Duration, now func() time.Time) *Memory {
	if size <= 0 {
		size = DefaultSize
	}
	if maxTTL <= 0 {
		maxTTL = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Memory{
		lru: expirable.NewLRU[string, memoryItem](size, nil, maxTTL),
		now: now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	item, ok := m.lru.Get(key)
	if !ok {
		return Entry{}, false, nil
	}
	if !m.now().Before(item.deadline) {
		m.lru.Remove(key)
		return Entry{}, false, nil
	}
	return item.entry, true, nil
}

func (m *Memory) Set(_ context.Context, key string, e Entry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.lru.Add(key, memoryItem{entry: e, deadline: m.now().Add(ttl)})
	return nil
}

// Len reports the number of entries currently held.
func (m *Memory) Len() int {
	return m.lru.Len()
}

// Purge drops every entry.
func (m *Memory) Purge() {
	m.lru.Purge()
}

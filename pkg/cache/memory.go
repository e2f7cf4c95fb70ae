// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"owmgraph/pkg/model"
)

// DefaultMemorySize bounds the in-memory cache
const DefaultMemorySize = 4096

// Memory is a process-local RecordCache backed by an expiring LRU.
// The LRU evicts after maxTTL; shorter per-entry TTLs are checked on Get.
type Memory struct {
	lru    *expirable.LRU[string, entry]
	closed atomic.Bool
	now    func() time.Time
}

// NewMemory creates an in-memory cache holding up to size entries
func NewMemory(size int, maxTTL time.Duration) *Memory {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &Memory{
		lru: expirable.NewLRU[string, entry](size, nil, maxTTL),
		now: time.Now,
	}
}

// Get returns an unexpired entry
func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if m.closed.Load() {
		return nil, false, model.ErrCacheClosed
	}
	e, ok := m.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if e.expired(m.now()) {
		m.lru.Remove(key)
		return nil, false, nil
	}
	return e.Value, true, nil
}

// Set stores a copy of value
func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.closed.Load() {
		return model.ErrCacheClosed
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.lru.Add(key, entry{Value: v, ExpiresAt: m.now().Add(ttl).UnixNano()})
	return nil
}

// Len returns the number of stored entries, expired or not
func (m *Memory) Len() int {
	return m.lru.Len()
}

// Close drops all entries
func (m *Memory) Close() error {
	if m.closed.Swap(true) {
		return model.ErrCacheClosed
	}
	m.lru.Purge()
	return nil
}

// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package cache provides expiring byte caches for upstream records.
//
// Every backend is best-effort: callers treat any error as a cache miss.
package cache

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// RecordCache maps a fetch key to raw bytes with an expiry
type RecordCache interface {
	// Get returns the cached bytes and true if an unexpired entry exists
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores bytes under key for ttl
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// entry is the stored envelope for backends without native TTL support
type entry struct {
	Value     []byte `msgpack:"v"`
	ExpiresAt int64  `msgpack:"e"` // Unix nanoseconds
}

func encodeEntry(value []byte, expiresAt time.Time) ([]byte, error) {
	return msgpack.Marshal(entry{Value: value, ExpiresAt: expiresAt.UnixNano()})
}

func decodeEntry(data []byte) (entry, error) {
	var e entry
	err := msgpack.Unmarshal(data, &e)
	return e, err
}

func (e entry) expired(now time.Time) bool {
	return now.UnixNano() >= e.ExpiresAt
}

// Nop never stores anything
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (Nop) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (Nop) Close() error {
	return nil
}

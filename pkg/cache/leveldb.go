// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"owmgraph/pkg/model"
)

// keyPrefix namespaces record entries inside the LevelDB keyspace
const keyPrefix = "rec:"

// LevelDB is a persistent RecordCache surviving across runs
type LevelDB struct {
	db     *leveldb.DB
	mu     sync.RWMutex
	path   string
	closed bool
	now    func() time.Time
}

// OpenLevelDB opens or creates a LevelDB cache at path
func OpenLevelDB(path string) (*LevelDB, error) {
	opts := &opt.Options{
		Compression: opt.SnappyCompression,
	}

	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	return &LevelDB{
		db:   db,
		path: path,
		now:  time.Now,
	}, nil
}

// Path returns the database path
func (c *LevelDB) Path() string {
	return c.path
}

// Close closes the database
func (c *LevelDB) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return model.ErrCacheClosed
	}

	c.closed = true
	return c.db.Close()
}

func recordKey(key string) []byte {
	return []byte(keyPrefix + key)
}

// Get retrieves an unexpired entry
func (c *LevelDB) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, false, model.ErrCacheClosed
	}

	data, err := c.db.Get(recordKey(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get failed: %w", err)
	}

	e, err := decodeEntry(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	if e.expired(c.now()) {
		return nil, false, nil
	}
	return e.Value, true, nil
}

// Set stores value under key until ttl elapses
func (c *LevelDB) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	data, err := encodeEntry(value, c.now().Add(ttl))
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return model.ErrCacheClosed
	}

	return c.db.Put(recordKey(key), data, nil)
}

// Prune deletes expired and undecodable entries and returns how many were removed
func (c *LevelDB) Prune(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0, model.ErrCacheClosed
	}

	now := c.now()
	batch := new(leveldb.Batch)

	iter := c.db.NewIterator(util.BytesPrefix([]byte(keyPrefix)), nil)
	for iter.Next() {
		if ctx.Err() != nil {
			iter.Release()
			return 0, ctx.Err()
		}
		e, err := decodeEntry(iter.Value())
		if err != nil || e.expired(now) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			batch.Delete(key)
		}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("iteration failed: %w", err)
	}

	if batch.Len() == 0 {
		return 0, nil
	}
	if err := c.db.Write(batch, nil); err != nil {
		return 0, fmt.Errorf("failed to delete expired entries: %w", err)
	}

	// Compact the pruned range
	if err := c.db.CompactRange(*util.BytesPrefix([]byte(keyPrefix))); err != nil {
		return batch.Len(), fmt.Errorf("compaction failed: %w", err)
	}
	return batch.Len(), nil
}

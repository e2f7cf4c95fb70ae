// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package cache

import (
	"fmt"
	"time"
)

// Backend names accepted by Open
const (
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
	BackendRedis   = "redis"
	BackendNone    = "none"
)

// Options selects and configures a backend
type Options struct {
	Backend    string
	Path       string        // leveldb
	MemorySize int           // memory
	MaxTTL     time.Duration // memory
	Redis      RedisOptions  // redis
}

// Open builds the configured backend
func Open(opts Options) (RecordCache, error) {
	switch opts.Backend {
	case BackendLevelDB, "":
		return OpenLevelDB(opts.Path)
	case BackendMemory:
		return NewMemory(opts.MemorySize, opts.MaxTTL), nil
	case BackendRedis:
		return NewRedis(opts.Redis), nil
	case BackendNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}

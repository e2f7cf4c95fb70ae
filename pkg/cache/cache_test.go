// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"owmgraph/pkg/model"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func openTestLevelDB(t *testing.T) (*LevelDB, *fakeClock) {
	t.Helper()
	db, err := OpenLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open cache: %v", err)
	}
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	db.now = clock.now
	return db, clock
}

func TestLevelDBGetSet(t *testing.T) {
	db, clock := openTestLevelDB(t)
	defer db.Close()
	ctx := context.Background()

	if _, ok, err := db.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("got ok=%v err=%v for missing key", ok, err)
	}

	if err := db.Set(ctx, "https://example/db/a", []byte(`{"_id":"a"}`), 30*time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok, err := db.Get(ctx, "https://example/db/a")
	if err != nil || !ok {
		t.Fatalf("got ok=%v err=%v, want hit", ok, err)
	}
	if string(got) != `{"_id":"a"}` {
		t.Errorf("got %s", got)
	}

	clock.t = clock.t.Add(31 * time.Minute)
	if _, ok, _ := db.Get(ctx, "https://example/db/a"); ok {
		t.Error("expired entry should be a miss")
	}
}

func TestLevelDBPrune(t *testing.T) {
	db, clock := openTestLevelDB(t)
	defer db.Close()
	ctx := context.Background()

	_ = db.Set(ctx, "short", []byte("1"), 10*time.Minute)
	_ = db.Set(ctx, "long", []byte("2"), 30*time.Minute)

	clock.t = clock.t.Add(15 * time.Minute)
	removed, err := db.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("got %d removed, want 1", removed)
	}
	if _, ok, _ := db.Get(ctx, "long"); !ok {
		t.Error("unexpired entry should survive prune")
	}
}

func TestLevelDBPersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := OpenLevelDB(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = db.Set(ctx, "k", []byte("v"), time.Hour)
	db.Close()

	db, err = OpenLevelDB(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	if v, ok, _ := db.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Errorf("got %q ok=%v after reopen", v, ok)
	}
}

func TestLevelDBClosed(t *testing.T) {
	db, _ := openTestLevelDB(t)
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ctx := context.Background()
	if _, ok, err := db.Get(ctx, "k"); ok || !errors.Is(err, model.ErrCacheClosed) {
		t.Errorf("got ok=%v err=%v, want ErrCacheClosed", ok, err)
	}
	if err := db.Set(ctx, "k", []byte("v"), time.Minute); !errors.Is(err, model.ErrCacheClosed) {
		t.Errorf("got %v, want ErrCacheClosed", err)
	}
	if err := db.Close(); !errors.Is(err, model.ErrCacheClosed) {
		t.Errorf("double close: got %v", err)
	}
}

func TestMemoryPerEntryTTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := NewMemory(16, time.Hour)
	m.now = clock.now
	ctx := context.Background()

	_ = m.Set(ctx, "index", []byte("i"), 10*time.Minute)
	_ = m.Set(ctx, "record", []byte("r"), 30*time.Minute)

	clock.t = clock.t.Add(20 * time.Minute)
	if _, ok, _ := m.Get(ctx, "index"); ok {
		t.Error("index entry should have expired")
	}
	if v, ok, _ := m.Get(ctx, "record"); !ok || string(v) != "r" {
		t.Errorf("got %q ok=%v, want record hit", v, ok)
	}

	m.Close()
	if _, _, err := m.Get(ctx, "record"); !errors.Is(err, model.ErrCacheClosed) {
		t.Errorf("got %v, want ErrCacheClosed", err)
	}
}

func TestMemoryCopiesValue(t *testing.T) {
	m := NewMemory(4, time.Hour)
	ctx := context.Background()

	buf := []byte("abc")
	_ = m.Set(ctx, "k", buf, time.Minute)
	buf[0] = 'x'

	if v, _, _ := m.Get(ctx, "k"); string(v) != "abc" {
		t.Errorf("got %q, want abc", v)
	}
}

func TestRedisUnreachableIsError(t *testing.T) {
	r := NewRedis(RedisOptions{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer r.Close()

	if _, ok, err := r.Get(context.Background(), "k"); ok || err == nil {
		t.Errorf("got ok=%v err=%v, want error without hit", ok, err)
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		backend string
		wantErr bool
	}{
		{BackendMemory, false},
		{BackendNone, false},
		{BackendLevelDB, false},
		{"memcached", true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			c, err := Open(Options{Backend: tt.backend, Path: t.TempDir(), MaxTTL: time.Hour})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			c.Close()
		})
	}
}

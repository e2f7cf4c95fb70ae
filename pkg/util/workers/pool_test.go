// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRespectsConcurrencyCap(t *testing.T) {
	const workers = 4
	pool := NewPool(context.Background(), Config{Workers: workers})

	var inFlight, peak atomic.Int32
	for i := 0; i < 40; i++ {
		pool.Submit(i, func(ctx context.Context) error {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		})
	}

	results := pool.Wait()
	if len(results) != 40 {
		t.Fatalf("got %d results, want 40", len(results))
	}
	if peak.Load() > workers {
		t.Errorf("peak concurrency %d exceeds cap %d", peak.Load(), workers)
	}
}

func TestPoolReportsTaskErrors(t *testing.T) {
	pool := NewPool(context.Background(), Config{Workers: 2})
	boom := errors.New("boom")

	pool.Submit(0, func(ctx context.Context) error { return nil })
	pool.Submit(1, func(ctx context.Context) error { return boom })

	var failed int
	for _, r := range pool.Wait() {
		if r.Error != nil {
			failed++
			if r.Index != 1 || !errors.Is(r.Error, boom) {
				t.Errorf("unexpected failure %+v", r)
			}
		}
	}
	if failed != 1 {
		t.Errorf("got %d failures, want 1", failed)
	}
}

func TestPoolDefaultWorkers(t *testing.T) {
	pool := NewPool(context.Background(), Config{})
	if cap(pool.semaphore) != DefaultWorkers {
		t.Errorf("got cap %d, want %d", cap(pool.semaphore), DefaultWorkers)
	}
	pool.Wait()
}

func TestRetryCount(t *testing.T) {
	errTransient := errors.New("timeout")
	errFatal := errors.New("404")
	noDelay := RetryConfig{
		MaxAttempts: 3,
		Retryable:   func(err error) bool { return errors.Is(err, errTransient) },
	}

	tests := []struct {
		name         string
		errs         []error // error returned per attempt; nil = success
		wantAttempts int
		wantErr      error
	}{
		{
			name:         "first attempt succeeds",
			errs:         []error{nil},
			wantAttempts: 1,
		},
		{
			name:         "two timeouts then success",
			errs:         []error{errTransient, errTransient, nil},
			wantAttempts: 3,
		},
		{
			name:         "non retryable stops immediately",
			errs:         []error{errFatal, nil},
			wantAttempts: 1,
			wantErr:      errFatal,
		},
		{
			name:         "exhausted",
			errs:         []error{errTransient, errTransient, errTransient, nil},
			wantAttempts: 3,
			wantErr:      errTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			attempts, err := RetryCount(context.Background(), noDelay, func() error {
				e := tt.errs[calls]
				calls++
				return e
			})

			if attempts != tt.wantAttempts || calls != tt.wantAttempts {
				t.Errorf("got attempts=%d calls=%d, want %d", attempts, calls, tt.wantAttempts)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("got error %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Hour}
	err := Retry(ctx, cfg, func() error { return errors.New("fail") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

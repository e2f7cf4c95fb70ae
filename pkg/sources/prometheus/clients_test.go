// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleResponse = `{
  "status": "success",
  "data": {
    "resultType": "vector",
    "result": [
      {"metric": {"__name__": "weimarnetz_dhcp_clients", "hostname": "node-a"}, "value": [1709294645.123, "5"]},
      {"metric": {"hostname": "node-b"}, "value": [1709294645.123, "0"]},
      {"metric": {"hostname": "node-c"}, "value": [1709294645.123, "lots"]},
      {"metric": {"instance": "nohost"}, "value": [1709294645.123, "3"]},
      {"metric": {"hostname": "node-d"}, "value": [1709294645.123]}
    ]
  }
}`

func TestClientCounts(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := New(Options{URL: srv.URL, BearerToken: "s3cret"})
	got := c.ClientCounts(context.Background())

	assert.Equal(t, map[string]int{"node-a": 5, "node-b": 0}, got)
	assert.Equal(t, "Bearer s3cret", auth.Load())
}

func TestClientCountsWithoutToken(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	got := New(Options{URL: srv.URL}).ClientCounts(context.Background())
	assert.Len(t, got, 2)
	assert.Equal(t, "", auth.Load())
}

func TestClientCountsFailuresYieldEmptyMap(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }},
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) }},
		{"bad json", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"data":`)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			got := New(Options{URL: srv.URL}).ClientCounts(context.Background())
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestClientCountsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	got := New(Options{URL: url}).ClientCounts(context.Background())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

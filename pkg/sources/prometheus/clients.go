// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package prometheus looks up DHCP client counts per hostname from a
// Prometheus-compatible instant query endpoint.
package prometheus

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultURL     = "https://victoria-metrics/api/v1/query?query=weimarnetz_dhcp_clients"
	DefaultTimeout = 5 * time.Second
)

// Options configures a ClientCounter
type Options struct {
	URL         string
	BearerToken string // Optional
	Timeout     time.Duration
	Logger      *zap.Logger
}

// ClientCounter queries client counts
type ClientCounter struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

type queryResponse struct {
	Status string `json:"status"`
	Data   struct {
		Result []struct {
			Metric map[string]string `json:"metric"`
			Value  []interface{}     `json:"value"`
		} `json:"result"`
	} `json:"data"`
}

// New creates a ClientCounter. When a bearer token is set every request carries it.
func New(opts Options) *ClientCounter {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	httpClient := &http.Client{Timeout: opts.Timeout}
	if opts.BearerToken != "" {
		httpClient.Transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: opts.BearerToken,
				TokenType:   "Bearer",
			}),
		}
	}

	return &ClientCounter{
		url:        opts.URL,
		httpClient: httpClient,
		logger:     opts.Logger.Named("clients"),
	}
}

// ClientCounts returns DHCP clients by hostname.
// Failures are logged and yield an empty map; a missing count means zero clients.
func (c *ClientCounter) ClientCounts(ctx context.Context) map[string]int {
	counts, err := c.query(ctx)
	if err != nil {
		c.logger.Warn("Client counts unavailable, assuming zero", zap.String("url", c.url), zap.Error(err))
		return map[string]int{}
	}
	c.logger.Info("Fetched client counts", zap.Int("hosts", len(counts)))
	return counts
}

func (c *ClientCounter) query(ctx context.Context) (map[string]int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	counts := make(map[string]int, len(qr.Data.Result))
	for _, r := range qr.Data.Result {
		host := r.Metric["hostname"]
		if host == "" || len(r.Value) < 2 {
			continue
		}
		n, err := cast.ToIntE(r.Value[1])
		if err != nil {
			c.logger.Debug("Skipping unparseable sample", zap.String("hostname", host), zap.Any("value", r.Value[1]))
			continue
		}
		counts[host] = n
	}
	return counts, nil
}

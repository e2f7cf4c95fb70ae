// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package owm fetches the node index and node documents from an OpenWiFiMap API.
package owm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"owmgraph/pkg/cache"
	"owmgraph/pkg/model"
	"owmgraph/pkg/util/workers"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultBaseURL   = "https://mapapi.weimarnetz.de"
	DefaultTimeout   = 20 * time.Second
	DefaultIndexTTL  = 10 * time.Minute
	DefaultRecordTTL = 30 * time.Minute
	defaultUserAgent = "owmgraph"
)

// Options configures a Client
type Options struct {
	BaseURL        string
	BBox           model.BBox
	UserAgent      string
	RequestTimeout time.Duration       // Per attempt
	Retry          workers.RetryConfig // Zero value = workers.DefaultRetryConfig()
	RateLimit      float64             // Requests per second (0 = no limit)
	IndexTTL       time.Duration
	RecordTTL      time.Duration
	Cache          cache.RecordCache // nil = no caching
	Logger         *zap.Logger
}

// FetchInfo describes how a record was obtained
type FetchInfo struct {
	CacheHit bool
	Attempts int // HTTP attempts made (0 on cache hit)
}

// Client is a cache-first OpenWiFiMap API client
type Client struct {
	baseURL    string
	bbox       model.BBox
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      workers.RetryConfig
	indexTTL   time.Duration
	recordTTL  time.Duration
	cache      cache.RecordCache
	logger     *zap.Logger
}

// NewClient creates a new OpenWiFiMap client
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.BBox == (model.BBox{}) {
		opts.BBox = model.WorldBBox
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultTimeout
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = workers.DefaultRetryConfig()
	}
	opts.Retry.Retryable = IsTransient
	if opts.IndexTTL <= 0 {
		opts.IndexTTL = DefaultIndexTTL
	}
	if opts.RecordTTL <= 0 {
		opts.RecordTTL = DefaultRecordTTL
	}
	if opts.Cache == nil {
		opts.Cache = cache.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), int(opts.RateLimit)+1)
	}

	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		bbox:      opts.BBox,
		userAgent: opts.UserAgent,
		httpClient: &http.Client{
			Timeout: opts.RequestTimeout,
		},
		limiter:   limiter,
		retry:     opts.Retry,
		indexTTL:  opts.IndexTTL,
		recordTTL: opts.RecordTTL,
		cache:     opts.Cache,
		logger:    opts.Logger.Named("fetcher"),
	}
}

// IsTransient reports whether err came from a request that got no HTTP response
func IsTransient(err error) bool {
	return errors.Is(err, model.ErrTransient)
}

// IndexURL returns the spatial index query for the configured bounding box
func (c *Client) IndexURL() string {
	return c.baseURL + "/view_nodes_spatial?bbox=" + c.bbox.String()
}

// RecordURL returns the document URL for a host id
func (c *Client) RecordURL(id string) string {
	return c.baseURL + "/db/" + url.PathEscape(id)
}

type indexResponse struct {
	Rows []struct {
		ID string `json:"id"`
	} `json:"rows"`
}

// FetchIndex returns the host ids inside the bounding box.
// Ids are trimmed; empty and repeated ids are dropped, order is preserved.
func (c *Client) FetchIndex(ctx context.Context) ([]string, error) {
	key := c.IndexURL()

	body, hit := c.cacheGet(ctx, key)
	if !hit {
		var err error
		body, _, err = c.get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrIndexUnavailable, err)
		}
	}

	var resp indexResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse index: %v", model.ErrIndexUnavailable, err)
	}

	seen := make(map[string]bool, len(resp.Rows))
	ids := make([]string, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		id := strings.TrimSpace(row.ID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	if !hit {
		c.cacheSet(ctx, key, body, c.indexTTL)
	}
	c.logger.Info("Fetched node index",
		zap.Int("ids", len(ids)),
		zap.Bool("cache_hit", hit),
		zap.String("bbox", c.bbox.String()))
	return ids, nil
}

// FetchRecord returns the raw document for one host id
func (c *Client) FetchRecord(ctx context.Context, id string) (model.RawRecord, FetchInfo, error) {
	key := c.RecordURL(id)

	if body, ok := c.cacheGet(ctx, key); ok {
		return model.RawRecord{ID: id, Body: body}, FetchInfo{CacheHit: true}, nil
	}

	body, attempts, err := c.get(ctx, key)
	info := FetchInfo{Attempts: attempts}
	if err != nil {
		return model.RawRecord{}, info, fmt.Errorf("fetch %s: %w", key, err)
	}
	if attempts > 1 {
		c.logger.Debug("Fetched after retry", zap.String("url", key), zap.Int("attempts", attempts))
	}

	c.cacheSet(ctx, key, body, c.recordTTL)
	return model.RawRecord{ID: id, Body: body}, info, nil
}

// get performs a GET with retries on transport failures only
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, fmt.Errorf("rate limit: %w", err)
		}
	}

	var body []byte
	attempts, err := workers.RetryCount(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Debug("Request failed", zap.String("url", rawURL), zap.Error(err))
			return fmt.Errorf("%w: %v", model.ErrTransient, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("%w: %d", model.ErrUnexpectedStatus, resp.StatusCode)
		}

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: failed to read response: %v", model.ErrTransient, err)
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, attempts, err
	}
	return body, attempts, nil
}

func (c *Client) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	body, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Debug("Cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return body, ok
}

func (c *Client) cacheSet(ctx context.Context, key string, body []byte, ttl time.Duration) {
	if err := c.cache.Set(ctx, key, body, ttl); err != nil {
		c.logger.Warn("Failed to cache response", zap.String("key", key), zap.Error(err))
	}
}

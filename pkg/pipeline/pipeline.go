// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package pipeline runs one ingestion: index, concurrent fetch and transform,
// link resolution and snapshot assembly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"owmgraph/pkg/graph"
	"owmgraph/pkg/model"
	"owmgraph/pkg/snapshot"
	"owmgraph/pkg/sources/owm"
	"owmgraph/pkg/transform"
	"owmgraph/pkg/util/workers"
)

// RecordFetcher lists and fetches upstream node documents
type RecordFetcher interface {
	FetchIndex(ctx context.Context) ([]string, error)
	FetchRecord(ctx context.Context, id string) (model.RawRecord, owm.FetchInfo, error)
}

// BulkSource yields every raw record it has in one call
type BulkSource interface {
	Records(ctx context.Context) ([]model.RawRecord, error)
}

// ClientCounter maps hostnames to client counts. It never fails; an empty map is valid.
type ClientCounter interface {
	ClientCounts(ctx context.Context) map[string]int
}

// Where the records of a run came from
const (
	SourceAPI      = "api"
	SourceLocalDir = "localdir"
	SourceNone     = "none"
)

// Options wires the collaborators and filter settings for a run
type Options struct {
	Fetcher  RecordFetcher
	Fallback BulkSource    // Used when the index cannot be fetched; optional
	Clients  ClientCounter // Optional

	Concurrency int     // In-flight records (default 50)
	RateLimit   float64 // Record starts per second (0 = no limit)

	BBox          model.BBox
	IgnoreOffline bool
	OnlineWindow  time.Duration
	StaleAfter    time.Duration
	DefaultDomain string

	Now    func() time.Time
	Logger *zap.Logger
}

// Stats summarizes a run
type Stats struct {
	Source      string
	Indexed     int // Ids in the index, or records in the fallback source
	Fetched     int // Records obtained over HTTP
	CacheHits   int
	Retried     int // Records that needed more than one attempt
	FetchFailed int
	Malformed   int
	Stale       int
	OutOfBounds int
	Invalid     int // Missing fields or bad timestamps
	Nodes       int
	Links       int
	Pruned      int
	Duration    time.Duration
}

// Skipped returns the number of records that produced no node after being obtained
func (s Stats) Skipped() int {
	return s.Malformed + s.Stale + s.OutOfBounds + s.Invalid
}

type emptyCounter struct{}

func (emptyCounter) ClientCounts(context.Context) map[string]int {
	return map[string]int{}
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = workers.DefaultWorkers
	}
	if o.BBox == (model.BBox{}) {
		o.BBox = model.WorldBBox
	}
	if o.OnlineWindow <= 0 {
		o.OnlineWindow = transform.DefaultOnlineWindow
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = transform.DefaultStaleAfter
	}
	if o.DefaultDomain == "" {
		o.DefaultDomain = transform.DefaultDomain
	}
	if o.Clients == nil {
		o.Clients = emptyCounter{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

type indexedNode struct {
	index int
	node  model.Node
}

// collector is the per-run shared state written by worker tasks
type collector struct {
	mu    sync.Mutex
	nodes []indexedNode
	stats Stats
}

func (c *collector) fetched(info owm.FetchInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case info.CacheHit:
		c.stats.CacheHits++
	default:
		c.stats.Fetched++
		if info.Attempts > 1 {
			c.stats.Retried++
		}
	}
}

func (c *collector) reject(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case errors.Is(err, model.ErrStale):
		c.stats.Stale++
	case errors.Is(err, model.ErrOutOfBounds):
		c.stats.OutOfBounds++
	case errors.Is(err, model.ErrMalformedRecord):
		c.stats.Malformed++
	default:
		c.stats.Invalid++
	}
}

func (c *collector) add(index int, node model.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = append(c.nodes, indexedNode{index: index, node: node})
}

// sorted returns the nodes in index order
func (c *collector) sorted() []model.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	sort.Slice(c.nodes, func(i, j int) bool { return c.nodes[i].index < c.nodes[j].index })
	out := make([]model.Node, len(c.nodes))
	for i, n := range c.nodes {
		out[i] = n.node
	}
	return out
}

type run struct {
	opts    Options
	tr      *transform.Transformer
	builder *graph.Builder
	col     *collector
	logger  *zap.Logger
}

// Run performs one ingestion and returns the snapshot.
// Per-record failures are counted, never fatal. An unreachable index with no
// usable fallback yields an empty snapshot. Only cancellation returns an error.
func Run(ctx context.Context, opts Options) (model.Snapshot, Stats, error) {
	if opts.Fetcher == nil {
		return model.Snapshot{}, Stats{}, fmt.Errorf("pipeline: no record fetcher configured")
	}
	opts = opts.withDefaults()
	start := time.Now()

	r := &run{
		opts:    opts,
		builder: graph.New(opts.Logger),
		col:     &collector{},
		logger:  opts.Logger.Named("pipeline"),
	}

	var (
		g        errgroup.Group
		ids      []string
		indexErr error
		clients  map[string]int
	)
	g.Go(func() error {
		clients = opts.Clients.ClientCounts(ctx)
		return nil
	})
	g.Go(func() error {
		ids, indexErr = opts.Fetcher.FetchIndex(ctx)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, r.col.stats, err
	}

	r.tr = &transform.Transformer{
		Now:           opts.Now,
		BBox:          opts.BBox,
		IgnoreOffline: opts.IgnoreOffline,
		OnlineWindow:  opts.OnlineWindow,
		StaleAfter:    opts.StaleAfter,
		DefaultDomain: opts.DefaultDomain,
		Clients:       clients,
	}

	pool := workers.NewPool(ctx, workers.Config{Workers: opts.Concurrency, RateLimit: opts.RateLimit})
	source := SourceAPI
	indexed := len(ids)

	if indexErr == nil {
		for i, id := range ids {
			i, id := i, id
			pool.Submit(i, func(ctx context.Context) error {
				raw, info, err := opts.Fetcher.FetchRecord(ctx, id)
				if err != nil {
					return err
				}
				r.col.fetched(info)
				r.process(i, raw)
				return nil
			})
		}
	} else {
		r.logger.Warn("Node index unavailable, trying local files", zap.Error(indexErr))
		records, ok := r.fallbackRecords(ctx)
		source = SourceLocalDir
		if !ok {
			source = SourceNone
		}
		indexed = len(records)
		for i, raw := range records {
			i, raw := i, raw
			pool.Submit(i, func(ctx context.Context) error {
				r.process(i, raw)
				return nil
			})
		}
	}

	for _, res := range pool.Wait() {
		if res.Error == nil {
			continue
		}
		r.col.stats.FetchFailed++
		if source == SourceAPI && !errors.Is(res.Error, context.Canceled) {
			r.logger.Warn("Skipping node", zap.String("id", ids[res.Index]), zap.Error(res.Error))
		}
	}
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, r.col.stats, err
	}

	nodes := r.col.sorted()
	resolved := r.builder.Resolve(nodes)
	snap := snapshot.Aggregate(opts.Now(), nodes, resolved.Links)

	stats := r.col.stats
	stats.Source = source
	stats.Indexed = indexed
	stats.Nodes = snap.NodeCount()
	stats.Links = snap.LinkCount()
	stats.Pruned = len(resolved.Broken)
	stats.Duration = time.Since(start)

	r.logger.Info("Run complete",
		zap.String("source", stats.Source),
		zap.Int("indexed", stats.Indexed),
		zap.Int("fetched", stats.Fetched),
		zap.Int("cache_hits", stats.CacheHits),
		zap.Int("retried", stats.Retried),
		zap.Int("fetch_failed", stats.FetchFailed),
		zap.Int("skipped", stats.Skipped()),
		zap.Int("nodes", stats.Nodes),
		zap.Int("links", stats.Links),
		zap.Int("pruned", stats.Pruned),
		zap.Duration("duration", stats.Duration))
	return snap, stats, nil
}

// fallbackRecords reports false when there is no readable fallback source.
// A readable source with no files is not a failure.
func (r *run) fallbackRecords(ctx context.Context) ([]model.RawRecord, bool) {
	if r.opts.Fallback == nil {
		r.logger.Warn("No fallback source configured")
		return nil, false
	}
	records, err := r.opts.Fallback.Records(ctx)
	if err != nil {
		r.logger.Warn("Fallback source unavailable", zap.Error(err))
		return nil, false
	}
	return records, true
}

// process decodes one record, ingests its links and keeps its node if it passes the filters.
// Links are ingested even when the node itself is dropped; resolution prunes them later.
func (r *run) process(index int, raw model.RawRecord) {
	rec, err := transform.Decode(raw.Body)
	if err != nil {
		r.col.reject(err)
		r.logger.Warn("Skipping undecodable record", zap.String("id", raw.ID), zap.Error(err))
		return
	}

	r.builder.Ingest(rec.ID, transform.LinkMentions(rec))

	node, err := r.tr.Transform(rec)
	if err != nil {
		r.col.reject(err)
		if errors.Is(err, model.ErrStale) || errors.Is(err, model.ErrOutOfBounds) {
			r.logger.Debug("Skipping node", zap.String("id", rec.ID), zap.Error(err))
		} else {
			r.logger.Warn("Skipping node", zap.String("id", rec.ID), zap.Error(err))
		}
		return
	}
	r.col.add(index, node)
}

// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package graph deduplicates one-directional link reports into undirected edges.
package graph

import (
	"sync"

	"go.uber.org/zap"

	"owmgraph/pkg/model"
	"owmgraph/pkg/transform"
)

// pairKey identifies an unordered pair of host ids
type pairKey struct {
	lo, hi string
}

func keyFor(a, b string) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}

// Builder accumulates link mentions from concurrently processed records.
// At most one edge exists per unordered pair of host ids.
type Builder struct {
	mu     sync.Mutex
	edges  []*model.Link
	index  map[pairKey]int
	logger *zap.Logger
}

// ResolveResult splits the working set into usable and broken edges
type ResolveResult struct {
	Links  []model.Link // Both ends known, Source/Target set
	Broken []model.Link // At least one end missing from the node set
}

// New creates an empty builder
func New(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		index:  make(map[pairKey]int),
		logger: logger.Named("graph"),
	}
}

// Ingest records the links reported by hostID.
// The first report for a pair creates the edge with both qualities set to the
// reported value. A later report from the other end sets TargetQuality.
// A node reporting itself gets a loop edge like any other pair.
func (b *Builder) Ingest(hostID string, mentions []transform.Mention) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, m := range mentions {
		key := keyFor(hostID, m.TargetHostID)
		if i, ok := b.index[key]; ok {
			edge := b.edges[i]
			if edge.TargetHostID == hostID {
				edge.TargetQuality = m.Quality
			}
			continue
		}

		b.index[key] = len(b.edges)
		b.edges = append(b.edges, &model.Link{
			SourceHostID:  hostID,
			TargetHostID:  m.TargetHostID,
			SourceQuality: m.Quality,
			TargetQuality: m.Quality,
		})
	}
}

// Len returns the number of edges in the working set
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.edges)
}

// Edges returns a copy of the working set in first-sighting order
func (b *Builder) Edges() []model.Link {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.Link, len(b.edges))
	for i, e := range b.edges {
		out[i] = *e
	}
	return out
}

// Resolve maps both ends of every edge onto the given nodes.
// Edges with an end that is not in nodes are dropped and returned as Broken.
func (b *Builder) Resolve(nodes []model.Node) ResolveResult {
	byHost := make(map[string]*model.Node, len(nodes))
	for i := range nodes {
		if _, dup := byHost[nodes[i].HostID]; !dup {
			byHost[nodes[i].HostID] = &nodes[i]
		}
	}

	var res ResolveResult
	for _, edge := range b.Edges() {
		src, srcOK := byHost[edge.SourceHostID]
		dst, dstOK := byHost[edge.TargetHostID]
		if !srcOK || !dstOK {
			b.logger.Debug("Dropping broken link",
				zap.String("source", edge.SourceHostID),
				zap.String("target", edge.TargetHostID),
				zap.Bool("source_known", srcOK),
				zap.Bool("target_known", dstOK))
			res.Broken = append(res.Broken, edge)
			continue
		}

		edge.Source = src.NodeID
		edge.Target = dst.NodeID
		edge.Type = model.LinkTypeUnknown
		res.Links = append(res.Links, edge)
	}

	if len(res.Broken) > 0 {
		b.logger.Info("Pruned broken links",
			zap.Int("pruned", len(res.Broken)),
			zap.Int("kept", len(res.Links)))
	}
	return res
}

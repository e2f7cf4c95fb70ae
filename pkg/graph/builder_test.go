// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package graph

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"owmgraph/pkg/model"
	"owmgraph/pkg/transform"
)

func mention(target string, q float64) transform.Mention {
	return transform.Mention{TargetHostID: target, Quality: q}
}

func node(hostID string) model.Node {
	return model.Node{HostID: hostID, NodeID: transform.NodeID(hostID), Hostname: hostID}
}

func TestIngestBothDirections(t *testing.T) {
	b := New(nil)
	b.Ingest("a", []transform.Mention{mention("b", 1.0)})
	b.Ingest("b", []transform.Mention{mention("a", 0.8)})

	edges := b.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, model.Link{
		SourceHostID:  "a",
		TargetHostID:  "b",
		SourceQuality: 1.0,
		TargetQuality: 0.8,
	}, edges[0])
}

func TestIngestRepeatFromSourceIsNoop(t *testing.T) {
	b := New(nil)
	b.Ingest("a", []transform.Mention{mention("b", 1.0)})
	b.Ingest("a", []transform.Mention{mention("b", 0.2)})

	edges := b.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, 1.0, edges[0].SourceQuality)
	assert.Equal(t, 1.0, edges[0].TargetQuality)
}

func TestIngestOneSided(t *testing.T) {
	b := New(nil)
	b.Ingest("a", []transform.Mention{mention("b", 0.5)})

	edges := b.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, 0.5, edges[0].SourceQuality)
	assert.Equal(t, 0.5, edges[0].TargetQuality, "one-sided edge carries the reported quality on both ends")
}

func TestIngestSelfMentionMakesLoopEdge(t *testing.T) {
	b := New(nil)
	b.Ingest("a", []transform.Mention{mention("a", 0.4), mention("b", 1.0)})
	b.Ingest("a", []transform.Mention{mention("a", 0.9)})
	assert.Equal(t, 2, b.Len())

	res := b.Resolve([]model.Node{node("a"), node("b")})
	require.Len(t, res.Links, 2)
	loop := res.Links[0]
	assert.Equal(t, "a", loop.SourceHostID)
	assert.Equal(t, "a", loop.TargetHostID)
	assert.Equal(t, loop.Source, loop.Target)
	assert.Equal(t, 0.4, loop.SourceQuality)
	assert.Equal(t, 0.9, loop.TargetQuality)
	assert.Empty(t, res.Broken)
}

func TestIngestUniquePairsConcurrent(t *testing.T) {
	hosts := []string{"a", "b", "c", "d", "e", "f"}
	var reports [][2]string
	for _, h := range hosts {
		for _, o := range hosts {
			if h != o {
				reports = append(reports, [2]string{h, o}, [2]string{h, o})
			}
		}
	}
	rng := rand.New(rand.NewSource(7))
	rng.Shuffle(len(reports), func(i, j int) { reports[i], reports[j] = reports[j], reports[i] })

	b := New(nil)
	var wg sync.WaitGroup
	for _, r := range reports {
		wg.Add(1)
		go func(host, target string) {
			defer wg.Done()
			b.Ingest(host, []transform.Mention{mention(target, 1.0)})
		}(r[0], r[1])
	}
	wg.Wait()

	n := len(hosts)
	require.Equal(t, n*(n-1)/2, b.Len())

	seen := make(map[string]bool)
	for _, e := range b.Edges() {
		key := keyFor(e.SourceHostID, e.TargetHostID)
		id := fmt.Sprintf("%s|%s", key.lo, key.hi)
		assert.False(t, seen[id], "duplicate edge %s", id)
		seen[id] = true
	}
}

func TestResolvePrunesBroken(t *testing.T) {
	b := New(nil)
	b.Ingest("a", []transform.Mention{mention("b", 1.0), mention("c", 0.4)})
	b.Ingest("b", []transform.Mention{mention("a", 0.9)})
	b.Ingest("d", []transform.Mention{mention("b", 0.7)})

	res := b.Resolve([]model.Node{node("a"), node("b"), node("d")})

	require.Len(t, res.Links, 2)
	assert.Equal(t, "a", res.Links[0].SourceHostID)
	assert.Equal(t, "b", res.Links[0].TargetHostID)
	assert.Equal(t, transform.NodeID("a"), res.Links[0].Source)
	assert.Equal(t, transform.NodeID("b"), res.Links[0].Target)
	assert.Equal(t, model.LinkTypeUnknown, res.Links[0].Type)
	assert.Equal(t, 0.9, res.Links[0].TargetQuality)
	assert.Equal(t, "d", res.Links[1].SourceHostID)

	require.Len(t, res.Broken, 1)
	assert.Equal(t, "c", res.Broken[0].TargetHostID)
	assert.Empty(t, res.Broken[0].Source)
}

func TestResolveFirstNodeWins(t *testing.T) {
	b := New(nil)
	b.Ingest("a", []transform.Mention{mention("b", 1.0)})

	first := node("a")
	dup := node("a")
	dup.NodeID = "ffffffffffff"

	res := b.Resolve([]model.Node{first, node("b"), dup})
	require.Len(t, res.Links, 1)
	assert.Equal(t, first.NodeID, res.Links[0].Source)
}

func TestResolveEmpty(t *testing.T) {
	res := New(nil).Resolve([]model.Node{node("a")})
	assert.Empty(t, res.Links)
	assert.Empty(t, res.Broken)
}

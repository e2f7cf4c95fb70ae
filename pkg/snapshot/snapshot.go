// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package snapshot assembles and exports the result of one ingestion run.
package snapshot

import (
	"time"

	"owmgraph/pkg/model"
)

// Aggregate assembles a snapshot from the surviving nodes and resolved links.
// The slices are copied; the snapshot never aliases caller state.
func Aggregate(now time.Time, nodes []model.Node, links []model.Link) model.Snapshot {
	snap := model.Snapshot{
		Timestamp: now.UTC(),
		Nodes:     make([]model.Node, len(nodes)),
		Links:     make([]model.Link, len(links)),
	}
	copy(snap.Nodes, nodes)
	copy(snap.Links, links)
	return snap
}

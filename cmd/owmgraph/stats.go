// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"owmgraph/pkg/model"
	"owmgraph/pkg/pipeline"
)

// printSummary writes run statistics and node breakdowns
func printSummary(w io.Writer, stats pipeline.Stats, snap model.Snapshot) {
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "RUN SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 60))

	fmt.Fprintf(w, "Snapshot:               %s\n", snap.TimestampString())
	fmt.Fprintf(w, "Source:                 %s\n", stats.Source)
	fmt.Fprintf(w, "Duration:               %s\n", stats.Duration.Round(time.Millisecond))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Indexed:                %d\n", stats.Indexed)
	fmt.Fprintf(w, "  Fetched:              %d\n", stats.Fetched)
	fmt.Fprintf(w, "  Cache hits:           %d\n", stats.CacheHits)
	fmt.Fprintf(w, "  Retried:              %d\n", stats.Retried)
	fmt.Fprintf(w, "  Failed:               %d\n", stats.FetchFailed)
	fmt.Fprintf(w, "Skipped:                %d\n", stats.Skipped())
	fmt.Fprintf(w, "  Malformed:            %d\n", stats.Malformed)
	fmt.Fprintf(w, "  Stale:                %d\n", stats.Stale)
	fmt.Fprintf(w, "  Outside bbox:         %d\n", stats.OutOfBounds)
	fmt.Fprintf(w, "  Invalid:              %d\n", stats.Invalid)
	fmt.Fprintf(w, "Nodes:                  %d\n", stats.Nodes)
	fmt.Fprintf(w, "Links:                  %d (pruned %d)\n", stats.Links, stats.Pruned)

	byRole := make(map[string]int)
	byDomain := make(map[string]int)
	byFirmware := make(map[string]int)
	online := 0
	for _, n := range snap.Nodes {
		byRole[string(n.Role)]++
		byDomain[n.Domain]++
		byFirmware[n.Firmware.Base]++
		if n.IsOnline {
			online++
		}
	}
	if len(snap.Nodes) > 0 {
		fmt.Fprintf(w, "  Online:               %d\n", online)
	}

	if len(byRole) > 0 {
		fmt.Fprintln(w, "\nNodes by role:")
		printBreakdown(w, byRole, 0)
	}
	if len(byDomain) > 0 {
		fmt.Fprintln(w, "\nNodes by domain:")
		printBreakdown(w, byDomain, 0)
	}
	if len(byFirmware) > 0 {
		fmt.Fprintln(w, "\nNodes by firmware (top 10):")
		printBreakdown(w, byFirmware, 10)
	}

	fmt.Fprintln(w, strings.Repeat("=", 60))
}

// printBreakdown prints counts by category, largest first. topN 0 prints all.
func printBreakdown(w io.Writer, breakdown map[string]int, topN int) {
	type kv struct {
		key   string
		value int
	}

	var sorted []kv
	for k, v := range breakdown {
		sorted = append(sorted, kv{k, v})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].value != sorted[j].value {
			return sorted[i].value > sorted[j].value
		}
		return sorted[i].key < sorted[j].key
	})

	for i, item := range sorted {
		if topN > 0 && i >= topN {
			fmt.Fprintf(w, "  ... and %d more\n", len(sorted)-topN)
			break
		}
		fmt.Fprintf(w, "  %-20s %d\n", item.key, item.value)
	}
}

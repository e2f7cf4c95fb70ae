// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package model

import (
	"fmt"
	"strconv"
	"strings"
)

// BBox is a longitude/latitude bounding box. Bounds are exclusive.
type BBox struct {
	LonMin float64
	LatMin float64
	LonMax float64
	LatMax float64
}

// WorldBBox covers the whole planet
var WorldBBox = BBox{LonMin: -180, LatMin: -90, LonMax: 180, LatMax: 90}

// ParseBBox parses "lonMin,latMin,lonMax,latMax"
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("%w: want 4 comma separated values, got %d", ErrInvalidBBox, len(parts))
	}

	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("%w: %q: %v", ErrInvalidBBox, p, err)
		}
		vals[i] = v
	}

	b := BBox{LonMin: vals[0], LatMin: vals[1], LonMax: vals[2], LatMax: vals[3]}
	if b.LonMin >= b.LonMax || b.LatMin >= b.LatMax {
		return BBox{}, fmt.Errorf("%w: min must be below max in %q", ErrInvalidBBox, s)
	}
	return b, nil
}

// Contains reports whether the position lies strictly inside the box
func (b BBox) Contains(lon, lat float64) bool {
	return b.LonMin < lon && lon < b.LonMax && b.LatMin < lat && lat < b.LatMax
}

// String returns the box in the form accepted by ParseBBox and the upstream index query
func (b BBox) String() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return f(b.LonMin) + "," + f(b.LatMin) + "," + f(b.LonMax) + "," + f(b.LatMax)
}

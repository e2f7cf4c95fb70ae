// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package model

import (
	"time"
)

// Role classifies what a node offers to end users
type Role string

const (
	RoleHotspot    Role = "hotspot"    // Serves clients (open AP or client DHCP bridge)
	RoleRouterOnly Role = "routeronly" // Mesh routing only
)

// LinkTypeUnknown is the only link type assigned today
const LinkTypeUnknown = "unknown"

// TimestampLayout is the date format used throughout the meshviewer output
const TimestampLayout = "2006-01-02T15:04:05+0000"

// RawRecord is one node document as received from upstream or the local fallback
type RawRecord struct {
	ID   string // Locator or file-derived identifier
	Body []byte // Undecoded JSON
}

// Location is a WGS84 position
type Location struct {
	Longitude float64
	Latitude  float64
}

// Firmware describes the firmware a node reports
type Firmware struct {
	Base    string
	Release string
}

// Node is the normalized representation of one upstream node record.
// Nodes are built once by the transformer and never modified afterwards.
type Node struct {
	NodeID      string    // Stable 12 hex char digest of HostID
	HostID      string    // Upstream identifier (e.g. "frei-funk.olsr")
	Hostname    string    // Upstream hostname without mesh suffix
	Domain      string    // Community name
	Owner       string    // Contact mail (optional)
	Model       string    // Hardware model, band-qualified for some vendors
	Chipset     string    // Raw hardware/chipset string
	Location    Location  // Node position
	Firmware    Firmware  // Parsed firmware
	IsOnline    bool      // Seen within the online window
	IsGateway   bool      // Announces an IPv4 or IPv6 gateway
	Role        Role      // hotspot or routeronly
	Clients     int       // DHCP clients from the client count provider
	Addresses   []string  // Sorted, deduplicated IPv4 addresses
	FirstSeen   time.Time // ctime
	LastSeen    time.Time // mtime
	UptimeSince time.Time // Boot time derived from reported uptime
	LoadAvg     string    // 1-minute load average as decimal string
}

// Link is an undirected edge between two nodes.
// Source/Target are only populated once the edge is resolved against the node set.
type Link struct {
	SourceHostID  string
	TargetHostID  string
	SourceQuality float64 // Quality as reported by the source
	TargetQuality float64 // Quality as reported by the target
	Source        string  // NodeID of the source (resolved)
	Target        string  // NodeID of the target (resolved)
	Type          string
}

// Snapshot is the single output of a run
type Snapshot struct {
	Timestamp time.Time
	Nodes     []Node
	Links     []Link
}

// NodeCount returns the number of nodes in the snapshot
func (s Snapshot) NodeCount() int {
	return len(s.Nodes)
}

// LinkCount returns the number of resolved links in the snapshot
func (s Snapshot) LinkCount() int {
	return len(s.Links)
}

// TimestampString formats the snapshot timestamp in the output layout
func (s Snapshot) TimestampString() string {
	return s.Timestamp.UTC().Format(TimestampLayout)
}

// Error types
type Error string

const (
	ErrMissingField      Error = "required field missing"
	ErrInvalidTimestamp  Error = "invalid timestamp"
	ErrOutOfBounds       Error = "location outside bounding box"
	ErrStale             Error = "node offline for too long"
	ErrMalformedRecord   Error = "malformed node record"
	ErrTransient         Error = "transient fetch failure"
	ErrUnexpectedStatus  Error = "unexpected HTTP status"
	ErrIndexUnavailable  Error = "node index unavailable"
	ErrCacheClosed       Error = "cache is closed"
	ErrInvalidBBox       Error = "invalid bounding box"
	ErrSourceUnavailable Error = "bulk source unavailable"
)

func (e Error) Error() string {
	return string(e)
}

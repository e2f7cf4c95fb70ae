// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package transform turns upstream node documents into normalized nodes.
package transform

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"owmgraph/pkg/model"
)

const (
	DefaultOnlineWindow = 4 * time.Hour
	DefaultStaleAfter   = 7 * 24 * time.Hour
	DefaultDomain       = "Weimar"
	clientDHCPBridge    = "br-dhcp"
	maxChannel24GHz     = 15
	nodeIDLength        = 12
)

// bandQualifiedModels need " M2"/" M5" to tell 2.4GHz and 5GHz hardware apart
var bandQualifiedModels = []string{
	"Ubiquiti Nanostation M",
	"Ubiquiti Bullet M",
	"Ubiquiti Rocket M",
}

// Transformer builds nodes from decoded records
type Transformer struct {
	Now           func() time.Time
	BBox          model.BBox
	IgnoreOffline bool           // Drop nodes that are offline and stale
	OnlineWindow  time.Duration  // Seen within this window = online
	StaleAfter    time.Duration  // Offline nodes older than this are dropped
	DefaultDomain string         // Used when the record names no community
	Clients       map[string]int // DHCP clients by hostname
}

// New returns a Transformer with default windows and a world bounding box
func New(clients map[string]int) *Transformer {
	return &Transformer{
		Now:           time.Now,
		BBox:          model.WorldBBox,
		IgnoreOffline: true,
		OnlineWindow:  DefaultOnlineWindow,
		StaleAfter:    DefaultStaleAfter,
		DefaultDomain: DefaultDomain,
		Clients:       clients,
	}
}

// NodeID derives the downstream node identifier from an upstream host id
func NodeID(hostID string) string {
	sum := sha1.Sum([]byte(hostID))
	return hex.EncodeToString(sum[:])[:nodeIDLength]
}

// ParseTimestamp parses an upstream ctime/mtime. The trailing offset marker
// is stripped and the remainder is read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("%w: %q", model.ErrInvalidTimestamp, s)
	}
	t, err := cast.ToTimeInDefaultLocationE(s[:len(s)-1], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", model.ErrInvalidTimestamp, s, err)
	}
	return t.UTC(), nil
}

// Transform converts one record into a Node.
// Any returned error means the record yields no node.
func (t *Transformer) Transform(rec *Record) (model.Node, error) {
	now := t.Now().UTC()

	firstSeen, err := ParseTimestamp(rec.CTime)
	if err != nil {
		return model.Node{}, fmt.Errorf("ctime: %w", err)
	}
	lastSeen, err := ParseTimestamp(rec.MTime)
	if err != nil {
		return model.Node{}, fmt.Errorf("mtime: %w", err)
	}

	online := !lastSeen.Before(now.Add(-t.OnlineWindow))
	if t.IgnoreOffline && !online && lastSeen.Before(now.Add(-t.StaleAfter)) {
		return model.Node{}, fmt.Errorf("%w: last seen %s", model.ErrStale, lastSeen.Format(time.RFC3339))
	}

	loc, err := location(rec)
	if err != nil {
		return model.Node{}, err
	}
	if !t.BBox.Contains(loc.Longitude, loc.Latitude) {
		return model.Node{}, fmt.Errorf("%w: %v,%v", model.ErrOutOfBounds, loc.Longitude, loc.Latitude)
	}

	if !rec.hasHostname {
		return model.Node{}, fmt.Errorf("%w: hostname", model.ErrMissingField)
	}

	isGateway, probed := gateway(rec)
	role := classifyRole(rec)
	if probed {
		// Legacy rule: any node with a readable routing section counts as hotspot
		role = model.RoleHotspot
	}

	chip := chipset(rec)
	firmware, _ := ParseFirmware(rec)

	domain := t.DefaultDomain
	owner := ""
	if ff := rec.Freifunk; ff != nil {
		if ff.CommunityName != "" {
			domain = ff.CommunityName
		}
		owner = ff.ContactMail
	}

	return model.Node{
		NodeID:      NodeID(rec.ID),
		HostID:      rec.ID,
		Hostname:    rec.Hostname,
		Domain:      domain,
		Owner:       owner,
		Model:       hardwareModel(rec, chip, is24GHz(rec)),
		Chipset:     chip,
		Location:    loc,
		Firmware:    firmware,
		IsOnline:    online,
		IsGateway:   isGateway,
		Role:        role,
		Clients:     t.Clients[rec.Hostname],
		Addresses:   addresses(rec),
		FirstSeen:   firstSeen,
		LastSeen:    lastSeen,
		UptimeSince: uptimeSince(rec, now),
		LoadAvg:     loadAvg(rec),
	}, nil
}

func location(rec *Record) (model.Location, error) {
	if rec.Longitude == nil {
		return model.Location{}, fmt.Errorf("%w: longitude", model.ErrMissingField)
	}
	if rec.Latitude == nil {
		return model.Location{}, fmt.Errorf("%w: latitude", model.ErrMissingField)
	}
	lon, err := cast.ToFloat64E(rec.Longitude)
	if err != nil {
		return model.Location{}, fmt.Errorf("%w: longitude: %v", model.ErrMalformedRecord, err)
	}
	lat, err := cast.ToFloat64E(rec.Latitude)
	if err != nil {
		return model.Location{}, fmt.Errorf("%w: latitude: %v", model.ErrMalformedRecord, err)
	}
	return model.Location{Longitude: lon, Latitude: lat}, nil
}

// gateway reports the gateway flag and whether the routing section could be read at all
func gateway(rec *Record) (isGateway bool, probed bool) {
	if rec.OLSR == nil || rec.OLSR.IPv4Config == nil {
		return false, false
	}
	cfg := rec.OLSR.IPv4Config
	return isTrue(cfg.HasIPv4Gateway) || isTrue(cfg.HasIPv6Gateway), true
}

func isTrue(v interface{}) bool {
	b, ok := v.(bool)
	return ok && b
}

func classifyRole(rec *Record) model.Role {
	for _, iface := range rec.Interfaces {
		if iface.Encryption == "none" && iface.Mode == "ap" {
			return model.RoleHotspot
		}
		if iface.IfName == clientDHCPBridge {
			return model.RoleHotspot
		}
	}
	return model.RoleRouterOnly
}

func is24GHz(rec *Record) bool {
	for _, iface := range rec.Interfaces {
		if iface.Channel == nil {
			continue
		}
		ch, err := cast.ToIntE(iface.Channel)
		if err != nil {
			continue
		}
		if ch > maxChannel24GHz {
			return false
		}
	}
	return true
}

func chipset(rec *Record) string {
	s, ok := rec.Hardware.(string)
	if !ok {
		return unknown
	}
	return strings.TrimSpace(s)
}

func hardwareModel(rec *Record, chipset string, is24 bool) string {
	if rec.System != nil && len(rec.System.Sysinfo) > 1 {
		if m, ok := rec.System.Sysinfo[1].(string); ok {
			m = strings.TrimSpace(m)
			for _, prefix := range bandQualifiedModels {
				if strings.HasPrefix(m, prefix) {
					suffix := " M5"
					if is24 {
						suffix = " M2"
					}
					return strings.ReplaceAll(m, " M", suffix)
				}
			}
			return m
		}
	}
	if chipset == unknown {
		return unknown
	}
	return "unknown (" + chipset + ")"
}

func addresses(rec *Record) []string {
	seen := make(map[string]bool)
	for _, l := range rec.Links {
		if l.SourceAddr4 != "" {
			seen[l.SourceAddr4] = true
		}
	}
	if rec.OLSR != nil && rec.OLSR.IPv4Config != nil && rec.OLSR.IPv4Config.MainIP != "" {
		seen[rec.OLSR.IPv4Config.MainIP] = true
	}

	addrs := make([]string, 0, len(seen))
	for a := range seen {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	return addrs
}

func uptimeSince(rec *Record, now time.Time) time.Time {
	if rec.System == nil || len(rec.System.Uptime) == 0 {
		return now
	}
	secs, err := cast.ToFloat64E(rec.System.Uptime[0])
	if err != nil {
		return now
	}
	return now.Add(-time.Duration(secs * float64(time.Second)))
}

func loadAvg(rec *Record) string {
	if rec.System == nil || len(rec.System.Loadavg) == 0 {
		return "0.0"
	}
	s, err := cast.ToStringE(rec.System.Loadavg[0])
	if err != nil || s == "" {
		return "0.0"
	}
	return s
}

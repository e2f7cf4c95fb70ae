// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package snapshot

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"

	"owmgraph/pkg/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const notAvailable = "N/A"

type meshviewerFile struct {
	Timestamp string           `json:"timestamp"`
	Nodes     []meshviewerNode `json:"nodes"`
	Links     []meshviewerLink `json:"links"`
}

type meshviewerNode struct {
	FirstSeen      string             `json:"firstseen"`
	LastSeen       string             `json:"lastseen"`
	IsOnline       bool               `json:"is_online"`
	IsGateway      bool               `json:"is_gateway"`
	Clients        int                `json:"clients"`
	LoadAvg        float64            `json:"loadavg"`
	Uptime         string             `json:"uptime"`
	GatewayNexthop string             `json:"gateway_nexthop"`
	Gateway        string             `json:"gateway"`
	NodeID         string             `json:"node_id"`
	HostID         string             `json:"host_id"`
	Addresses      []string           `json:"addresses"`
	Domain         string             `json:"domain"`
	Hostname       string             `json:"hostname"`
	Owner          string             `json:"owner"`
	Location       meshviewerLocation `json:"location"`
	Firmware       meshviewerFirmware `json:"firmware"`
	Autoupdater    meshviewerUpdater  `json:"autoupdater"`
	Model          string             `json:"model"`
	SiteCode       string             `json:"site_code"`
}

type meshviewerLocation struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

type meshviewerFirmware struct {
	Base    string `json:"base"`
	Release string `json:"release"`
}

type meshviewerUpdater struct {
	Enabled bool   `json:"enabled"`
	Branch  string `json:"branch"`
}

type meshviewerLink struct {
	Source         string  `json:"source"`
	Target         string  `json:"target"`
	SourceTQ       float64 `json:"source_tq"`
	TargetTQ       float64 `json:"target_tq"`
	Type           string  `json:"type"`
	SourceHostname string  `json:"source_hostname"`
	TargetHostname string  `json:"target_hostname"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(model.TimestampLayout)
}

func toMeshviewer(snap model.Snapshot) meshviewerFile {
	out := meshviewerFile{
		Timestamp: snap.TimestampString(),
		Nodes:     make([]meshviewerNode, 0, len(snap.Nodes)),
		Links:     make([]meshviewerLink, 0, len(snap.Links)),
	}

	for _, n := range snap.Nodes {
		addrs := n.Addresses
		if addrs == nil {
			addrs = []string{}
		}
		out.Nodes = append(out.Nodes, meshviewerNode{
			FirstSeen:      formatTime(n.FirstSeen),
			LastSeen:       formatTime(n.LastSeen),
			IsOnline:       n.IsOnline,
			IsGateway:      n.IsGateway,
			Clients:        n.Clients,
			LoadAvg:        cast.ToFloat64(n.LoadAvg),
			Uptime:         formatTime(n.UptimeSince),
			GatewayNexthop: notAvailable,
			Gateway:        notAvailable,
			NodeID:         n.NodeID,
			HostID:         n.HostID,
			Addresses:      addrs,
			Domain:         n.Domain,
			Hostname:       n.Hostname,
			Owner:          n.Owner,
			Location:       meshviewerLocation{Longitude: n.Location.Longitude, Latitude: n.Location.Latitude},
			Firmware:       meshviewerFirmware{Base: n.Firmware.Base, Release: n.Firmware.Release},
			Autoupdater:    meshviewerUpdater{Enabled: false, Branch: notAvailable},
			Model:          n.Model,
			SiteCode:       string(n.Role),
		})
	}

	for _, l := range snap.Links {
		out.Links = append(out.Links, meshviewerLink{
			Source:         l.Source,
			Target:         l.Target,
			SourceTQ:       l.SourceQuality,
			TargetTQ:       l.TargetQuality,
			Type:           l.Type,
			SourceHostname: l.SourceHostID,
			TargetHostname: l.TargetHostID,
		})
	}
	return out
}

// Export writes the snapshot as meshviewer JSON
func Export(snap model.Snapshot, w io.Writer) error {
	if err := json.NewEncoder(w).Encode(toMeshviewer(snap)); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// WriteFile exports the snapshot to path, replacing any previous file atomically
func WriteFile(snap model.Snapshot, path string) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	defer func() {
		tempFile.Close()
		os.Remove(tempPath)
	}()

	// served by a web server
	if err := tempFile.Chmod(0o644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := Export(snap, tempFile); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

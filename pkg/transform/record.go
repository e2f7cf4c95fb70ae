// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package transform

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"

	"owmgraph/pkg/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is a decoded upstream node document.
// Only the identity and timestamp fields are typed strictly. Optional sections
// are read from generic JSON values, so a section of an unexpected shape
// reads as absent instead of failing the record.
type Record struct {
	ID         string
	Hostname   string
	CTime      string
	MTime      string
	Longitude  interface{}
	Latitude   interface{}
	Hardware   interface{}
	Script     interface{}
	OLSR       *OLSR
	Interfaces []Interface
	Links      []LinkReport
	System     *System
	Freifunk   *Freifunk
	Firmware   jsoniter.RawMessage

	hasHostname bool // hostname key present and not null
	hasFirmware bool // firmware key present, even if null
}

// document is the wire form of a Record
type document struct {
	ID         string              `json:"_id"`
	Hostname   string              `json:"hostname"`
	CTime      string              `json:"ctime"`
	MTime      string              `json:"mtime"`
	Longitude  interface{}         `json:"longitude"`
	Latitude   interface{}         `json:"latitude"`
	Hardware   interface{}         `json:"hardware"`
	Script     interface{}         `json:"script"`
	OLSR       interface{}         `json:"olsr"`
	Interfaces interface{}         `json:"interfaces"`
	Links      interface{}         `json:"links"`
	System     interface{}         `json:"system"`
	Freifunk   interface{}         `json:"freifunk"`
	Firmware   jsoniter.RawMessage `json:"firmware"`
}

// OLSR is the routing daemon section; absent on older firmware
type OLSR struct {
	IPv4Config *IPv4Config
}

// IPv4Config carries gateway flags and the main address
type IPv4Config struct {
	HasIPv4Gateway interface{}
	HasIPv6Gateway interface{}
	MainIP         string
}

// Interface is one reported network interface
type Interface struct {
	IfName     string
	Mode       string
	Encryption string
	Channel    interface{}
}

// LinkReport is one neighbour as seen from the reporting node
type LinkReport struct {
	ID          string
	Quality     interface{}
	SourceAddr4 string
}

// System holds load, uptime and the sysinfo tuple
type System struct {
	Uptime  []interface{}
	Sysinfo []interface{}
	Loadavg []interface{}
}

// Freifunk holds community and contact metadata
type Freifunk struct {
	ContactMail   string
	CommunityName string
}

// Decode parses a raw node document. A record without an _id is rejected
// because neither a node nor its links can be attributed.
func Decode(body []byte) (*Record, error) {
	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedRecord, err)
	}
	if strings.TrimSpace(doc.ID) == "" {
		return nil, fmt.Errorf("%w: _id", model.ErrMissingField)
	}

	hostname := json.Get(body, "hostname").ValueType()
	return &Record{
		ID:          doc.ID,
		Hostname:    doc.Hostname,
		CTime:       doc.CTime,
		MTime:       doc.MTime,
		Longitude:   doc.Longitude,
		Latitude:    doc.Latitude,
		Hardware:    doc.Hardware,
		Script:      doc.Script,
		OLSR:        olsrSection(doc.OLSR),
		Interfaces:  interfaceSection(doc.Interfaces),
		Links:       linkSection(doc.Links),
		System:      systemSection(doc.System),
		Freifunk:    freifunkSection(doc.Freifunk),
		Firmware:    doc.Firmware,
		hasHostname: hostname != jsoniter.InvalidValue && hostname != jsoniter.NilValue,
		hasFirmware: json.Get(body, "firmware").ValueType() != jsoniter.InvalidValue,
	}, nil
}

// object returns v as a JSON object, or nil
func object(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

// str returns v when it is a JSON string. Other types read as empty.
func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func list(v interface{}) []interface{} {
	l, _ := v.([]interface{})
	return l
}

func olsrSection(v interface{}) *OLSR {
	m := object(v)
	if m == nil {
		return nil
	}
	olsr := &OLSR{}
	if cfg := object(m["ipv4Config"]); cfg != nil {
		olsr.IPv4Config = &IPv4Config{
			HasIPv4Gateway: cfg["hasIpv4Gateway"],
			HasIPv6Gateway: cfg["hasIpv6Gateway"],
			MainIP:         str(object(cfg["config"])["mainIp"]),
		}
	}
	return olsr
}

func interfaceSection(v interface{}) []Interface {
	var ifaces []Interface
	for _, item := range list(v) {
		m := object(item)
		if m == nil {
			continue
		}
		ifaces = append(ifaces, Interface{
			IfName:     str(m["ifname"]),
			Mode:       str(m["mode"]),
			Encryption: str(m["encryption"]),
			Channel:    m["channel"],
		})
	}
	return ifaces
}

func linkSection(v interface{}) []LinkReport {
	var links []LinkReport
	for _, item := range list(v) {
		m := object(item)
		if m == nil {
			continue
		}
		links = append(links, LinkReport{
			ID:          str(m["id"]),
			Quality:     m["quality"],
			SourceAddr4: str(m["sourceAddr4"]),
		})
	}
	return links
}

func systemSection(v interface{}) *System {
	m := object(v)
	if m == nil {
		return nil
	}
	return &System{
		Uptime:  list(m["uptime"]),
		Sysinfo: list(m["sysinfo"]),
		Loadavg: list(m["loadavg"]),
	}
}

func freifunkSection(v interface{}) *Freifunk {
	m := object(v)
	if m == nil {
		return nil
	}
	return &Freifunk{
		ContactMail:   str(object(m["contact"])["mail"]),
		CommunityName: str(object(m["community"])["name"]),
	}
}

// Mention is a one-directional link report
type Mention struct {
	TargetHostID string
	Quality      float64
}

// LinkMentions returns the links the record reports, skipping entries without a target
func LinkMentions(rec *Record) []Mention {
	mentions := make([]Mention, 0, len(rec.Links))
	for _, l := range rec.Links {
		if l.ID == "" {
			continue
		}
		mentions = append(mentions, Mention{
			TargetHostID: l.ID,
			Quality:      cast.ToFloat64(l.Quality),
		})
	}
	return mentions
}

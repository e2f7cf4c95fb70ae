// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package transform

import (
	"strings"

	"github.com/spf13/cast"

	"owmgraph/pkg/model"
)

const unknown = "unknown"

// Firmware layouts seen upstream
const (
	layoutNew      = "new"      // name + packageDescription
	layoutOld      = "old"      // distversion + fffversion
	layoutFallback = "fallback" // name + revision
	layoutMissing  = "missing"  // no firmware section at all
)

// ParseFirmware extracts (base, release) from a record's firmware section.
// It also returns which layout was recognized.
func ParseFirmware(rec *Record) (model.Firmware, string) {
	if !rec.hasFirmware && len(rec.Firmware) == 0 {
		release := unknown
		if script, err := cast.ToStringE(rec.Script); rec.Script != nil && err == nil {
			release = "unknown (" + script + ")"
		}
		return model.Firmware{Base: "outdated", Release: release}, layoutMissing
	}

	var fw map[string]interface{}
	if err := json.Unmarshal(rec.Firmware, &fw); err != nil || fw == nil {
		return model.Firmware{Base: unknown, Release: unknown}, layoutFallback
	}
	return parseFirmwareFields(fw)
}

func parseFirmwareFields(fw map[string]interface{}) (model.Firmware, string) {
	name, present := fw["name"]
	nameStr, isString := name.(string)

	switch {
	case isString && strings.TrimSpace(nameStr) != "":
		return model.Firmware{
			Base:    nameStr,
			Release: stringField(fw, "packageDescription"),
		}, layoutNew
	case !present || name == nil || isString:
		return model.Firmware{
			Base:    stringField(fw, "distversion"),
			Release: stringField(fw, "fffversion"),
		}, layoutOld
	default:
		return model.Firmware{
			Base:    stringField(fw, "name"),
			Release: stringField(fw, "revision"),
		}, layoutFallback
	}
}

func stringField(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return unknown
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return unknown
	}
	return s
}

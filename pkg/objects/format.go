// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package objects

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/verter/pkg/mode"
)

// ParseGroup accepts a group name (case-insensitive, e.g. "live") or a
// numeric group id ("0x40", "64").
func ParseGroup(s string) (int, bool) {
	for _, g := range []int{GroupMeasurements, GroupMeasValues, GroupDebug, GroupInverter, GroupBoost, GroupCommand, GroupLive} {
		if name, _ := GroupName(g); strings.EqualFold(name, s) {
			return g, true
		}
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, false
	}
	if _, ok := GroupName(int(n)); !ok {
		return 0, false
	}
	return int(n), true
}

// Parse converts command-line text into a value of the item's kind. The
// mode item also takes mode names.
func (it Item) Parse(s string) (interface{}, error) {
	switch it.Kind {
	case Float:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", it.Name, err)
		}
		return v, nil
	case Bool:
		switch strings.ToLower(s) {
		case "on":
			return true, nil
		case "off":
			return false, nil
		}
		v, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", it.Name, err)
		}
		return v, nil
	case Uint:
		if it.ID == ItemMode {
			if m, err := mode.Parse(s); err == nil {
				return uint64(m), nil
			}
		}
		v, err := strconv.ParseUint(s, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", it.Name, err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("%s: %w", it.Name, ErrBadType)
}

// Format renders a decoded value with the item's precision. Modes are shown
// by name.
func (it Item) Format(v interface{}) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', it.Decimals, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', it.Decimals, 32)
	case uint64:
		if it.ID == ItemMode || it.ID == ItemLiveMode {
			return mode.Mode(x).String()
		}
		return strconv.FormatUint(x, 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprintf("%v", v)
}

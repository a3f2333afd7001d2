// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package objects is the data-object dictionary exposed over the link:
// measurement, debug, command and live groups addressed by 16-bit item ids.
package objects

import (
	"sort"

	"github.com/Thermoquad/verter/pkg/gateway"
	"github.com/Thermoquad/verter/pkg/telemetry"
)

// Group ids
const (
	GroupMeasurements = 0x10
	GroupMeasValues   = 0x11
	GroupDebug        = 0x20
	GroupInverter     = 0x21
	GroupBoost        = 0x22
	GroupCommand      = 0x30
	GroupLive         = 0x40
)

// Item ids referenced by code
const (
	ItemMode         = 0x3001
	ItemInverterOn   = 0x3002
	ItemVdRef        = 0x3003
	ItemIdRef        = 0x3004
	ItemScopeDump    = 0x3005
	ItemScopeTrigger = 0x3006

	ItemLiveMode = 0x4001
)

// Kind is the wire type of an item
type Kind uint8

const (
	Float Kind = iota
	Bool
	Uint
)

func (k Kind) String() string {
	switch k {
	case Float:
		return "float"
	case Bool:
		return "bool"
	case Uint:
		return "uint"
	default:
		return "unknown"
	}
}

// view is everything an item can be read from
type view struct {
	meas  telemetry.Measurements
	inv   telemetry.InverterDebug
	boost telemetry.BoostDebug
	live  telemetry.LiveStatus
	cmd   *gateway.Command
}

// Item describes one data object
type Item struct {
	ID       int
	Name     string
	Kind     Kind
	Decimals int
	Writable bool
	Live     bool // member of the periodically published subset

	get func(*view) interface{}
	set func(*gateway.Command, interface{})
}

// Group returns the id of the group holding the item
func (it Item) Group() int {
	return it.ID >> 8
}

func meas(id int, name string, live bool, f func(*telemetry.Measurements) float64) Item {
	return Item{ID: id, Name: name, Kind: Float, Decimals: 3, Live: live,
		get: func(v *view) interface{} { return f(&v.meas) }}
}

func inv(id int, name string, live bool, f func(*telemetry.InverterDebug) float64) Item {
	return Item{ID: id, Name: name, Kind: Float, Decimals: 5, Live: live,
		get: func(v *view) interface{} { return f(&v.inv) }}
}

func liveItem(id int, name string, f func(*telemetry.LiveStatus) float64) Item {
	return Item{ID: id, Name: name, Kind: Float, Decimals: 3, Live: true,
		get: func(v *view) interface{} { return f(&v.live) }}
}

var dictionary = []Item{
	meas(0x1101, "rVLow_V", true, func(m *telemetry.Measurements) float64 { return m.VLow }),
	meas(0x1102, "rVac_V", false, func(m *telemetry.Measurements) float64 { return m.VAC }),
	meas(0x1103, "rVdc_V", false, func(m *telemetry.Measurements) float64 { return m.VDCBus }),
	meas(0x1104, "rILow1_A", true, func(m *telemetry.Measurements) float64 { return m.ILow1 }),
	meas(0x1105, "rILow2_A", true, func(m *telemetry.Measurements) float64 { return m.ILow2 }),
	meas(0x1106, "rIac_A", false, func(m *telemetry.Measurements) float64 { return m.IAC }),
	meas(0x1107, "rVdcFilt_V", true, func(m *telemetry.Measurements) float64 { return m.VDCBusFilt }),
	meas(0x1108, "rVgrid_V", false, func(m *telemetry.Measurements) float64 { return m.VGrid }),
	meas(0x1109, "rVn_V", true, func(m *telemetry.Measurements) float64 { return m.VN }),
	meas(0x110A, "rIgrid_A", false, func(m *telemetry.Measurements) float64 { return m.IGrid }),

	inv(0x2101, "rTheta_rad", false, func(d *telemetry.InverterDebug) float64 { return d.Theta }),
	inv(0x2102, "rVab_alpha", false, func(d *telemetry.InverterDebug) float64 { return d.Frames.Vab.Alpha }),
	inv(0x2103, "rVab_beta", false, func(d *telemetry.InverterDebug) float64 { return d.Frames.Vab.Beta }),
	inv(0x2104, "rVabOut_alpha", false, func(d *telemetry.InverterDebug) float64 { return d.Frames.VabOutput.Alpha }),
	inv(0x2105, "rVabOut_beta", false, func(d *telemetry.InverterDebug) float64 { return d.Frames.VabOutput.Beta }),
	inv(0x2106, "rIab_alpha", false, func(d *telemetry.InverterDebug) float64 { return d.Frames.Iab.Alpha }),
	inv(0x2107, "rIab_beta", false, func(d *telemetry.InverterDebug) float64 { return d.Frames.Iab.Beta }),
	inv(0x2108, "rVdq_d", true, func(d *telemetry.InverterDebug) float64 { return d.Frames.Vdq.D }),
	inv(0x2109, "rVdq_q", true, func(d *telemetry.InverterDebug) float64 { return d.Frames.Vdq.Q }),
	inv(0x210A, "rVdqOut_d", true, func(d *telemetry.InverterDebug) float64 { return d.Frames.VdqOutput.D }),
	inv(0x210B, "rVdqOut_q", true, func(d *telemetry.InverterDebug) float64 { return d.Frames.VdqOutput.Q }),
	inv(0x210C, "rIdq_d", true, func(d *telemetry.InverterDebug) float64 { return d.Frames.Idq.D }),
	inv(0x210D, "rIdq_q", false, func(d *telemetry.InverterDebug) float64 { return d.Frames.Idq.Q }),

	{ID: 0x2201, Name: "rDutyLeg1", Kind: Float, Decimals: 5,
		get: func(v *view) interface{} { return v.boost.DutyLeg1 }},
	{ID: 0x2202, Name: "rDutyLeg2", Kind: Float, Decimals: 5,
		get: func(v *view) interface{} { return v.boost.DutyLeg2 }},
	{ID: 0x2203, Name: "rDTRise_ns", Kind: Uint,
		get: func(v *view) interface{} { return uint64(v.boost.DeadTimeRiseNs) }},
	{ID: 0x2204, Name: "rDTFall_ns", Kind: Uint,
		get: func(v *view) interface{} { return uint64(v.boost.DeadTimeFallNs) }},

	{ID: ItemMode, Name: "wMode", Kind: Uint, Writable: true,
		get: func(v *view) interface{} { return uint64(v.cmd.ModeRequest) },
		set: func(c *gateway.Command, x interface{}) { c.ModeRequest = uint8(x.(uint64)) }},
	{ID: ItemInverterOn, Name: "wInverterOn", Kind: Bool, Writable: true,
		get: func(v *view) interface{} { return v.cmd.InverterOn },
		set: func(c *gateway.Command, x interface{}) { c.InverterOn = x.(bool) }},
	{ID: ItemVdRef, Name: "wVdRef", Kind: Float, Decimals: 3, Writable: true,
		get: func(v *view) interface{} { return v.cmd.VdRef },
		set: func(c *gateway.Command, x interface{}) { c.VdRef = x.(float64) }},
	{ID: ItemIdRef, Name: "wIdRef", Kind: Float, Decimals: 3, Writable: true,
		get: func(v *view) interface{} { return v.cmd.IdRef },
		set: func(c *gateway.Command, x interface{}) { c.IdRef = x.(float64) }},
	{ID: ItemScopeDump, Name: "wDump", Kind: Bool, Writable: true,
		get: func(v *view) interface{} { return v.cmd.ScopeDump },
		set: func(c *gateway.Command, x interface{}) { c.ScopeDump = x.(bool) }},
	{ID: ItemScopeTrigger, Name: "wTrig", Kind: Bool, Writable: true,
		get: func(v *view) interface{} { return v.cmd.ScopeTrigger },
		set: func(c *gateway.Command, x interface{}) { c.ScopeTrigger = x.(bool) }},

	{ID: ItemLiveMode, Name: "rMode", Kind: Uint, Live: true,
		get: func(v *view) interface{} { return uint64(v.live.Mode) }},
	liveItem(0x4002, "rOmega_rps", func(l *telemetry.LiveStatus) float64 { return l.Omega }),
	liveItem(0x4003, "rVgridRef_V", func(l *telemetry.LiveStatus) float64 { return l.VgridAmplitudeRef }),
	liveItem(0x4004, "rP_d", func(l *telemetry.LiveStatus) float64 { return l.PowerD }),
	liveItem(0x4005, "rP_q", func(l *telemetry.LiveStatus) float64 { return l.PowerQ }),
	liveItem(0x4006, "rIdRef", func(l *telemetry.LiveStatus) float64 { return l.IdRef }),
	liveItem(0x4007, "rIdDelta", func(l *telemetry.LiveStatus) float64 { return l.IdRefDelta }),
	liveItem(0x4008, "rVdRef", func(l *telemetry.LiveStatus) float64 { return l.VdRef }),
	liveItem(0x4009, "rVqRef", func(l *telemetry.LiveStatus) float64 { return l.VqRef }),
}

var (
	byID   = make(map[int]*Item, len(dictionary))
	byName = make(map[string]*Item, len(dictionary))
)

func init() {
	sort.Slice(dictionary, func(i, j int) bool { return dictionary[i].ID < dictionary[j].ID })
	for i := range dictionary {
		byID[dictionary[i].ID] = &dictionary[i]
		byName[dictionary[i].Name] = &dictionary[i]
	}
}

// Items returns every item ordered by id
func Items() []Item {
	out := make([]Item, len(dictionary))
	copy(out, dictionary)
	return out
}

// Lookup finds an item by name
func Lookup(name string) (Item, bool) {
	if it, ok := byName[name]; ok {
		return *it, true
	}
	return Item{}, false
}

// ByID finds an item by id
func ByID(id int) (Item, bool) {
	if it, ok := byID[id]; ok {
		return *it, true
	}
	return Item{}, false
}

// GroupName returns the display name of a group id
func GroupName(group int) (string, bool) {
	switch group {
	case GroupMeasurements:
		return "Measurements", true
	case GroupMeasValues:
		return "rValues", true
	case GroupDebug:
		return "Debug", true
	case GroupInverter:
		return "Inverter", true
	case GroupBoost:
		return "Boost", true
	case GroupCommand:
		return "Command", true
	case GroupLive:
		return "Live", true
	}
	return "", false
}

// Names resolves item and group ids for packet formatting
type Names struct{}

// ItemName returns the name of an item or group id
func (Names) ItemName(id int) (string, bool) {
	if it, ok := byID[id]; ok {
		return it.Name, true
	}
	return GroupName(id)
}

// groupMembers reports which item groups a requested group covers
func groupMembers(group int) []int {
	switch group {
	case GroupMeasurements, GroupMeasValues:
		return []int{GroupMeasValues}
	case GroupDebug:
		return []int{GroupInverter, GroupBoost}
	case GroupInverter, GroupBoost, GroupCommand, GroupLive:
		return []int{group}
	}
	return nil
}

package models

import (
	"fmt"
	"strings"
)

// Mode is the load function reported by the device.
type Mode string

const (
	ModeConstantCurrent    Mode = "CC"
	ModeConstantVoltage    Mode = "CV"
	ModeConstantResistance Mode = "CR"
	ModeConstantPower      Mode = "CW"
	ModeShort              Mode = "SHORT"
	ModeBattery            Mode = "BATTERY"
	ModeDynamic            Mode = "DYNAMIC"
	ModeList               Mode = "LIST"
	ModeOCP                Mode = "OCP"
	ModeOPP                Mode = "OPP"
)

// Accumulation selects how a sample contributes to the running totals.
type Accumulation int

const (
	// AccumulateLocal integrates charge from current readings.
	AccumulateLocal Accumulation = iota
	// PassThroughBattery surfaces the device-reported battery capacity.
	PassThroughBattery
)

// Accumulation picks the integration rule for m. It panics for a mode
// without a rule.
func (m Mode) Accumulation() Accumulation {
	switch m {
	case ModeBattery:
		return PassThroughBattery
	case ModeConstantCurrent, ModeConstantVoltage, ModeConstantResistance,
		ModeConstantPower, ModeShort, ModeDynamic, ModeList, ModeOCP, ModeOPP:
		return AccumulateLocal
	}
	panic(fmt.Sprintf("models: no accumulation rule for mode %q", string(m)))
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	_, ok := modeAliases[strings.ToUpper(string(m))]
	return ok
}

// modeAliases maps wire spellings (case-insensitive) to modes.
var modeAliases = map[string]Mode{
	"CC":      ModeConstantCurrent,
	"CV":      ModeConstantVoltage,
	"CR":      ModeConstantResistance,
	"CW":      ModeConstantPower,
	"SHORT":   ModeShort,
	"BATTERY": ModeBattery,
	"BATT":    ModeBattery,
	"DYNAMIC": ModeDynamic,
	"LIST":    ModeList,
	"OCP":     ModeOCP,
	"OPP":     ModeOPP,
}

// ParseMode converts a device response such as "CC" or "SHORt" into a Mode.
func ParseMode(s string) (Mode, error) {
	m, ok := modeAliases[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown mode %q", s)
	}
	return m, nil
}

// RunState is the accumulator's run flag.
type RunState string

const (
	Stopped RunState = "STOPPED"
	Running RunState = "RUNNING"
)

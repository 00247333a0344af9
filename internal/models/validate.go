package models

import (
	"fmt"
	"math/bits"
	"net"
	"net/netip"
	"slices"

	"electronic_load/internal/errs"
)

// Validation in this file is pure: it never touches the device. Each
// function returns the first violated bound as *errs.ValidationError.

func atMost(field string, v, bound float64) error {
	if v > bound {
		return &errs.ValidationError{Field: field, Value: v, Bound: bound, Rule: "max"}
	}
	return nil
}

func atLeast(field string, v, bound float64) error {
	if v < bound {
		return &errs.ValidationError{Field: field, Value: v, Bound: bound, Rule: "min"}
	}
	return nil
}

func positive(field string, v float64) error {
	if v <= 0 {
		return &errs.ValidationError{Field: field, Value: v, Bound: 0, Rule: "positive"}
	}
	return nil
}

func within(field string, v, lo, hi float64) error {
	if err := atLeast(field, v, lo); err != nil {
		return err
	}
	return atMost(field, v, hi)
}

func positiveAtMost(field string, v, hi float64) error {
	if err := positive(field, v); err != nil {
		return err
	}
	return atMost(field, v, hi)
}

// ValidateSlot checks a 1-based save slot against the slot count.
func ValidateSlot(slot, slots int) error {
	return within("slot", float64(slot), 1, float64(slots))
}

func first(checks ...error) error {
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}

// ValidateLimit checks a new device limit value.
func ValidateLimit(kind LimitKind, v float64) error {
	field := string(kind) + "_limit"
	switch kind {
	case LimitVoltage:
		return positiveAtMost(field, v, MaxVoltage)
	case LimitCurrent:
		return positiveAtMost(field, v, MaxCurrent)
	case LimitPower:
		return positiveAtMost(field, v, MaxPower)
	case LimitResistance:
		return positiveAtMost(field, v, MaxResistance)
	}
	return &errs.ValidationError{Field: "kind", Rule: "unknown"}
}

// Validate checks the setpoint against the device's current limits.
func (s Setpoint) Validate(l Limits) error {
	switch s.Mode {
	case ModeConstantCurrent:
		return within("current", s.Value, 0, l.Current)
	case ModeConstantVoltage:
		return within("voltage", s.Value, 0, l.Voltage)
	case ModeConstantResistance:
		return positiveAtMost("resistance", s.Value, l.Resistance)
	case ModeConstantPower:
		return within("power", s.Value, 0, l.Power)
	case ModeShort:
		return nil
	}
	return &errs.ValidationError{Field: "mode", Rule: "unknown"}
}

// Validate checks a battery discharge profile.
func (p BatteryProfile) Validate() error {
	return first(
		ValidateSlot(p.Slot, BatterySlots),
		positiveAtMost("current_range", p.CurrentRange, MaxCurrent),
		positiveAtMost("discharge_current", p.DischargeCurrent, p.CurrentRange),
		within("cutoff_voltage", p.CutoffVoltage, 0, MaxVoltage),
		within("cutoff_capacity_ah", p.CutoffCapacityAh, 0, MaxCapacityAh),
		within("cutoff_minutes", p.CutoffMinutes, 0, MaxCutoffMinute),
	)
}

// Validate checks an over-current protection profile.
func (p OCPProfile) Validate() error {
	if err := first(
		ValidateSlot(p.Slot, OCPSlots),
		within("on_voltage", p.OnVoltage, 0, MaxVoltage),
		within("on_delay", p.OnDelay, 0, MaxStepDelay),
		positiveAtMost("current_range", p.CurrentRange, MaxCurrent),
	); err != nil {
		return err
	}
	if err := first(
		within("initial_current", p.InitialCurrent, 0, p.CurrentRange),
		positiveAtMost("step_current", p.StepCurrent, p.CurrentRange),
		positiveAtMost("step_delay", p.StepDelay, MaxStepDelay),
		within("off_current", p.OffCurrent, 0, p.CurrentRange),
		within("ocp_voltage", p.OCPVoltage, 0, MaxVoltage),
		within("max_over_current", p.MaxOverCurrent, 0, p.CurrentRange),
		within("min_over_current", p.MinOverCurrent, 0, MaxCurrent),
	); err != nil {
		return err
	}
	if p.MinOverCurrent > p.MaxOverCurrent {
		return &errs.ValidationError{Field: "min_over_current", Value: p.MinOverCurrent, Bound: p.MaxOverCurrent, Rule: "order"}
	}
	return nil
}

// Validate checks an over-power protection profile.
func (p OPPProfile) Validate() error {
	if err := first(
		ValidateSlot(p.Slot, OPPSlots),
		within("on_voltage", p.OnVoltage, 0, MaxVoltage),
		within("on_delay", p.OnDelay, 0, MaxStepDelay),
		positiveAtMost("current_range", p.CurrentRange, MaxCurrent),
		within("initial_power", p.InitialPower, 0, MaxPower),
		positiveAtMost("step_power", p.StepPower, MaxPower),
		positiveAtMost("step_delay", p.StepDelay, MaxStepDelay),
		within("off_power", p.OffPower, 0, MaxPower),
		within("opp_voltage", p.OPPVoltage, 0, MaxVoltage),
		within("max_over_power", p.MaxOverPower, 0, MaxPower),
		within("min_over_power", p.MinOverPower, 0, MaxPower),
	); err != nil {
		return err
	}
	if p.MinOverPower > p.MaxOverPower {
		return &errs.ValidationError{Field: "min_over_power", Value: p.MinOverPower, Bound: p.MaxOverPower, Rule: "order"}
	}
	return nil
}

// Validate checks a list-mode sequence.
func (p ListProfile) Validate() error {
	if err := first(
		ValidateSlot(p.Slot, ListSlots),
		positiveAtMost("current_range", p.CurrentRange, MaxCurrent),
		within("loops", float64(p.Loops), 1, MaxListLoops),
	); err != nil {
		return err
	}
	if len(p.Steps) == 0 {
		return &errs.ValidationError{Field: "steps", Value: 0, Bound: 1, Rule: "min"}
	}
	if len(p.Steps) > MaxListSteps {
		return &errs.ValidationError{Field: "steps", Value: float64(len(p.Steps)), Bound: MaxListSteps, Rule: "count"}
	}
	for i, s := range p.Steps {
		prefix := fmt.Sprintf("steps[%d].", i)
		if err := first(
			within(prefix+"current", s.Current, 0, p.CurrentRange),
			positiveAtMost(prefix+"slope", s.Slope, MaxSlopeAPerUs),
			positiveAtMost(prefix+"duration", s.Duration, MaxListDuration),
		); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a dynamic profile against the previously fetched device
// limit for its kind (see LimitKind).
func (p DynamicProfile) Validate(limit float64) error {
	levels := first(
		within("level1", p.Level1, 0, limit),
		within("level2", p.Level2, 0, limit),
	)
	slopes := func() error {
		return first(
			positiveAtMost("slope1", p.Slope1, MaxSlopeAPerUs),
			positiveAtMost("slope2", p.Slope2, MaxSlopeAPerUs),
		)
	}
	wave := func() error {
		return first(
			positiveAtMost("frequency", p.Frequency, MaxFrequencyHz),
			positive("duty", p.Duty),
			atMost("duty", p.Duty, 100),
		)
	}

	switch p.Kind {
	case DynamicCV, DynamicCR, DynamicCW:
		return first(levels, wave())
	case DynamicCC:
		return first(slopes(), levels, wave())
	case DynamicPulse:
		return first(slopes(), levels, positive("duration", p.Duration))
	case DynamicToggle:
		return first(slopes(), levels)
	}
	return &errs.ValidationError{Field: "kind", Rule: "unknown"}
}

func malformed(field string) error {
	return &errs.ValidationError{Field: field, Rule: "format"}
}

func ipv4(field, s string) (netip.Addr, error) {
	a, err := netip.ParseAddr(s)
	if err != nil || !a.Is4() {
		return netip.Addr{}, malformed(field)
	}
	return a, nil
}

// Validate checks the system settings before they are sent. baudRates are
// the rates the serial line supports. With DHCP on, the address fields may
// be left empty.
func (s DeviceSettings) Validate(baudRates []int) error {
	if !slices.Contains(baudRates, s.BaudRate) {
		return &errs.ValidationError{Field: "baud_rate", Value: float64(s.BaudRate), Rule: "unknown"}
	}
	if err := within("network_port", float64(s.NetworkPort), 1, 65535); err != nil {
		return err
	}
	if s.MACAddress != "" {
		if _, err := net.ParseMAC(s.MACAddress); err != nil {
			return malformed("mac_address")
		}
	}
	if s.DHCP && s.IPAddress == "" && s.SubnetMask == "" && s.Gateway == "" {
		return nil
	}

	if _, err := ipv4("ip_address", s.IPAddress); err != nil {
		return err
	}
	mask, err := ipv4("subnet_mask", s.SubnetMask)
	if err != nil {
		return err
	}
	m := mask.As4()
	v := uint32(m[0])<<24 | uint32(m[1])<<16 | uint32(m[2])<<8 | uint32(m[3])
	if v == 0 || bits.OnesCount32(v) != bits.LeadingZeros32(^v) {
		return malformed("subnet_mask")
	}
	if _, err := ipv4("gateway", s.Gateway); err != nil {
		return err
	}
	return nil
}

package models

// Device-imposed bounds (KEL103 class load).
const (
	MaxVoltage    = 120.0  // V
	MaxCurrent    = 30.0   // A
	MaxPower      = 300.0  // W
	MaxResistance = 7500.0 // Ω

	MaxCapacityAh   = 999.999
	MaxCutoffMinute = 5999.0 // 99h59m
	MaxStepDelay    = 10.0   // s, OCP/OPP step and on-delay
	MaxSlopeAPerUs  = 2.5    // A/µs, dynamic CC / pulse / toggle / list slopes
	MaxFrequencyHz  = 20000.0
	MaxListSteps    = 84
	MaxListLoops    = 9999
	MaxListDuration = 3600.0 // s per step

	BatterySlots = 10
	OCPSlots     = 10
	OPPSlots     = 10
	ListSlots    = 7
	MemorySlots  = 4
)

// LimitKind names one of the device's maximum-value limits.
type LimitKind string

const (
	LimitVoltage    LimitKind = "voltage"
	LimitCurrent    LimitKind = "current"
	LimitPower      LimitKind = "power"
	LimitResistance LimitKind = "resistance"
)

// Limits are the device's configured upper limits.
type Limits struct {
	Voltage    float64 `json:"voltage"`
	Current    float64 `json:"current"`
	Power      float64 `json:"power"`
	Resistance float64 `json:"resistance"`
}

// DefaultLimits are the factory limits restored by a limit reset.
var DefaultLimits = Limits{
	Voltage:    MaxVoltage,
	Current:    MaxCurrent,
	Power:      MaxPower,
	Resistance: MaxResistance,
}

// Of returns the limit named by kind.
func (l Limits) Of(kind LimitKind) float64 {
	switch kind {
	case LimitCurrent:
		return l.Current
	case LimitPower:
		return l.Power
	case LimitResistance:
		return l.Resistance
	default:
		return l.Voltage
	}
}

// Setpoint selects a static load mode and its value. Value is ignored for
// ModeShort.
type Setpoint struct {
	Mode  Mode    `json:"mode"`
	Value float64 `json:"value"`
}

// BatteryProfile configures a battery discharge test.
type BatteryProfile struct {
	Slot             int     `json:"slot"`
	CurrentRange     float64 `json:"current_range"`
	DischargeCurrent float64 `json:"discharge_current"`
	CutoffVoltage    float64 `json:"cutoff_voltage"`
	CutoffCapacityAh float64 `json:"cutoff_capacity_ah"`
	CutoffMinutes    float64 `json:"cutoff_minutes"`
}

// OCPProfile configures an over-current protection test.
type OCPProfile struct {
	Slot           int     `json:"slot"`
	OnVoltage      float64 `json:"on_voltage"`
	OnDelay        float64 `json:"on_delay"`
	CurrentRange   float64 `json:"current_range"`
	InitialCurrent float64 `json:"initial_current"`
	StepCurrent    float64 `json:"step_current"`
	StepDelay      float64 `json:"step_delay"`
	OffCurrent     float64 `json:"off_current"`
	OCPVoltage     float64 `json:"ocp_voltage"`
	MaxOverCurrent float64 `json:"max_over_current"`
	MinOverCurrent float64 `json:"min_over_current"`
}

// OPPProfile configures an over-power protection test.
type OPPProfile struct {
	Slot         int     `json:"slot"`
	OnVoltage    float64 `json:"on_voltage"`
	OnDelay      float64 `json:"on_delay"`
	CurrentRange float64 `json:"current_range"`
	InitialPower float64 `json:"initial_power"`
	StepPower    float64 `json:"step_power"`
	StepDelay    float64 `json:"step_delay"`
	OffPower     float64 `json:"off_power"`
	OPPVoltage   float64 `json:"opp_voltage"`
	MaxOverPower float64 `json:"max_over_power"`
	MinOverPower float64 `json:"min_over_power"`
}

// ListStep is one row of a list-mode sequence.
type ListStep struct {
	Current  float64 `json:"current"`
	Slope    float64 `json:"slope"`
	Duration float64 `json:"duration"`
}

// ListProfile is a list-mode step sequence.
type ListProfile struct {
	Slot         int        `json:"slot"`
	CurrentRange float64    `json:"current_range"`
	Steps        []ListStep `json:"steps"`
	Loops        int        `json:"loops"`
}

// HighestCurrent returns the largest step current.
func (p ListProfile) HighestCurrent() float64 {
	var hi float64
	for _, s := range p.Steps {
		if s.Current > hi {
			hi = s.Current
		}
	}
	return hi
}

// DynamicKind selects the dynamic test variant.
type DynamicKind string

const (
	DynamicCV     DynamicKind = "cv"
	DynamicCC     DynamicKind = "cc"
	DynamicCR     DynamicKind = "cr"
	DynamicCW     DynamicKind = "cw"
	DynamicPulse  DynamicKind = "pulse"
	DynamicToggle DynamicKind = "toggle"
)

// DynamicProfile carries the union of all dynamic test parameters; Kind
// decides which fields are used.
//
//	cv, cr, cw: Level1, Level2, Frequency, Duty
//	cc:         Slope1, Slope2, Level1, Level2, Frequency, Duty
//	pulse:      Slope1, Slope2, Level1, Level2, Duration
//	toggle:     Slope1, Slope2, Level1, Level2
type DynamicProfile struct {
	Kind      DynamicKind `json:"kind"`
	Slope1    float64     `json:"slope1,omitempty"`
	Slope2    float64     `json:"slope2,omitempty"`
	Level1    float64     `json:"level1"`
	Level2    float64     `json:"level2"`
	Frequency float64     `json:"frequency,omitempty"`
	Duty      float64     `json:"duty,omitempty"`
	Duration  float64     `json:"duration,omitempty"`
}

// LimitKind returns the device limit the profile's levels are checked
// against.
func (p DynamicProfile) LimitKind() LimitKind {
	switch p.Kind {
	case DynamicCV:
		return LimitVoltage
	case DynamicCR:
		return LimitResistance
	case DynamicCW:
		return LimitPower
	default:
		return LimitCurrent
	}
}

package models

import "time"

// BatteryReading is the device-side battery test progress.
type BatteryReading struct {
	CapacityAh       float64 `json:"capacity_ah"`
	DischargeMinutes float64 `json:"discharge_minutes"`
}

// Snapshot is one polled reading of the device. Current is only meaningful
// when OutputEnabled is set; Battery only in battery mode with output on.
type Snapshot struct {
	Mode          Mode
	Voltage       float64
	Current       float64
	Power         float64
	OutputEnabled bool
	Battery       *BatteryReading
	Timestamp     time.Time
}

// Sample is one point of a time series.
type Sample struct {
	Elapsed float64 `json:"t"`
	Value   float64 `json:"v"`
}

// SeriesKind names one of the three recorded series.
type SeriesKind string

const (
	SeriesVoltage SeriesKind = "voltage"
	SeriesCurrent SeriesKind = "current"
	SeriesPower   SeriesKind = "power"
)

// ParseSeriesKind accepts the lower-case series names.
func ParseSeriesKind(s string) (SeriesKind, bool) {
	switch SeriesKind(s) {
	case SeriesVoltage, SeriesCurrent, SeriesPower:
		return SeriesKind(s), true
	}
	return "", false
}

// SeriesSet holds the voltage, current and power series of a run.
type SeriesSet struct {
	Voltage []Sample `json:"voltage"`
	Current []Sample `json:"current"`
	Power   []Sample `json:"power"`
}

// Get returns the series named by kind.
func (s SeriesSet) Get(kind SeriesKind) []Sample {
	switch kind {
	case SeriesCurrent:
		return s.Current
	case SeriesPower:
		return s.Power
	default:
		return s.Voltage
	}
}

// Clone returns a deep copy.
func (s SeriesSet) Clone() SeriesSet {
	return SeriesSet{
		Voltage: append([]Sample(nil), s.Voltage...),
		Current: append([]Sample(nil), s.Current...),
		Power:   append([]Sample(nil), s.Power...),
	}
}

// Window returns a copy holding only samples within the last seconds of
// each series. A non-positive window returns everything.
func (s SeriesSet) Window(seconds float64) SeriesSet {
	if seconds <= 0 {
		return s.Clone()
	}
	return SeriesSet{
		Voltage: tail(s.Voltage, seconds),
		Current: tail(s.Current, seconds),
		Power:   tail(s.Power, seconds),
	}
}

func tail(samples []Sample, seconds float64) []Sample {
	if len(samples) == 0 {
		return []Sample{}
	}
	cutoff := samples[len(samples)-1].Elapsed - seconds
	i := len(samples)
	for i > 0 && samples[i-1].Elapsed >= cutoff {
		i--
	}
	return append([]Sample(nil), samples[i:]...)
}

// Totals are the accumulated charge and energy of a run.
type Totals struct {
	ChargeAh float64 `json:"charge_ah"`
	EnergyWh float64 `json:"energy_wh"`
}

// ChargeSource tells the presentation layer where the displayed charge
// came from.
type ChargeSource string

const (
	ChargeEstimated ChargeSource = "estimated"
	ChargeMeasured  ChargeSource = "measured"
)

// Telemetry is the record handed to the presentation layer after each
// completed poll cycle.
type Telemetry struct {
	Cycle          uint64          `json:"cycle"`
	Mode           Mode            `json:"mode"`
	Voltage        float64         `json:"voltage"`
	Current        float64         `json:"current"`
	Power          float64         `json:"power"`
	RunState       RunState        `json:"run_state"`
	Totals         Totals          `json:"totals"`
	ChargeAh       float64         `json:"charge_ah"` // displayed value
	ChargeSource   ChargeSource    `json:"charge_source"`
	RuntimeSeconds float64         `json:"runtime_seconds"`
	Battery        *BatteryReading `json:"battery,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// PollError is the distinct event emitted when a poll cycle fails.
type PollError struct {
	Op      string    `json:"op"`
	Kind    string    `json:"kind,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Copy returns t with its battery reading detached.
func (t Telemetry) Copy() Telemetry {
	if t.Battery != nil {
		b := *t.Battery
		t.Battery = &b
	}
	return t
}

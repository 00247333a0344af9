package models

import "time"

// LoadState is the last-known telemetry persisted between restarts.
type LoadState struct {
	ID             int       `json:"id"`
	RunState       RunState  `json:"run_state"`
	Mode           Mode      `json:"mode"`
	Voltage        float64   `json:"voltage"`
	Current        float64   `json:"current"`
	Power          float64   `json:"power"`
	ChargeAh       float64   `json:"charge_ah"`
	EnergyWh       float64   `json:"energy_wh"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Faults         []string  `json:"faults,omitempty"` // device error kinds since the last good poll
	UpdatedAt      time.Time `json:"updated_at"`
}

// StateFromTelemetry converts a telemetry record into its persisted form.
func StateFromTelemetry(t Telemetry) LoadState {
	return LoadState{
		ID:             1,
		RunState:       t.RunState,
		Mode:           t.Mode,
		Voltage:        t.Voltage,
		Current:        t.Current,
		Power:          t.Power,
		ChargeAh:       t.Totals.ChargeAh,
		EnergyWh:       t.Totals.EnergyWh,
		ElapsedSeconds: t.RuntimeSeconds,
		UpdatedAt:      t.UpdatedAt,
	}
}

// Telemetry rebuilds a telemetry record from the persisted row.
func (s LoadState) Telemetry() Telemetry {
	return Telemetry{
		Mode:           s.Mode,
		Voltage:        s.Voltage,
		Current:        s.Current,
		Power:          s.Power,
		RunState:       s.RunState,
		Totals:         Totals{ChargeAh: s.ChargeAh, EnergyWh: s.EnergyWh},
		ChargeAh:       s.ChargeAh,
		ChargeSource:   ChargeEstimated,
		RuntimeSeconds: s.ElapsedSeconds,
		UpdatedAt:      s.UpdatedAt,
	}
}

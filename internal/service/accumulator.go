package service

import (
	"sync"
	"time"

	"electronic_load/internal/models"
)

// Accumulator owns the run state, the V/I/P series and the charge/energy
// totals. Apply is called from the polling context only; every reader gets
// a copy.
type Accumulator struct {
	mu sync.RWMutex

	state  models.RunState
	series models.SeriesSet
	totals models.Totals

	// run clock: elapsed = offset + ts - segmentStart
	offset       float64
	baseline     float64
	elapsed      float64
	segmentStart time.Time
	resetAt      time.Time

	cycle uint64
	last  models.Telemetry
}

func NewAccumulator() *Accumulator {
	a := &Accumulator{state: models.Stopped}
	a.clear()
	a.last = models.Telemetry{RunState: models.Stopped, ChargeSource: models.ChargeEstimated}
	return a
}

func origin() []models.Sample { return []models.Sample{{Elapsed: 0, Value: 0}} }

// appendSample adds smp to a series. The origin sample stands for the first
// sample of a run, so a second point at t=0 is not recorded.
func appendSample(series []models.Sample, smp models.Sample) []models.Sample {
	if smp.Elapsed == 0 && len(series) == 1 {
		return series
	}
	return append(series, smp)
}

func (a *Accumulator) clear() {
	a.series = models.SeriesSet{Voltage: origin(), Current: origin(), Power: origin()}
	a.totals = models.Totals{}
	a.offset, a.baseline, a.elapsed = 0, 0, 0
	a.segmentStart = time.Time{}
}

// Reset zeroes totals, empties the series back to the origin sample and
// restarts the run clock. Snapshots stamped before at are ignored.
func (a *Accumulator) Reset(at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clear()
	a.resetAt = at
	a.last.Totals = models.Totals{}
	a.last.RuntimeSeconds = 0
	if a.last.ChargeSource == models.ChargeEstimated {
		a.last.ChargeAh = 0
	}
}

// Restore seeds totals and the run clock from a persisted record so a
// restarted process resumes where it left off.
func (a *Accumulator) Restore(t models.Totals, elapsed float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totals = t
	a.elapsed, a.baseline, a.offset = elapsed, elapsed, elapsed
	a.last.Totals = t
	a.last.ChargeAh = t.ChargeAh
	a.last.RuntimeSeconds = elapsed
}

// Apply folds one snapshot into the run and returns the resulting
// telemetry record.
func (a *Accumulator) Apply(s models.Snapshot) models.Telemetry {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.resetAt.IsZero() && s.Timestamp.Before(a.resetAt) {
		return a.last.Copy()
	}
	a.cycle++

	switch {
	case s.OutputEnabled && a.state == models.Stopped:
		a.state = models.Running
		// resume: series time continues, the first sample adds nothing
		a.offset = a.elapsed
		a.baseline = a.elapsed
		a.segmentStart = s.Timestamp
	case !s.OutputEnabled && a.state == models.Running:
		a.state = models.Stopped
	}

	if a.state == models.Running {
		a.integrate(s)
	}

	a.last = a.telemetry(s)
	return a.last.Copy()
}

func (a *Accumulator) integrate(s models.Snapshot) {
	if a.segmentStart.IsZero() {
		a.segmentStart = s.Timestamp
	}
	elapsed := a.offset + s.Timestamp.Sub(a.segmentStart).Seconds()
	if elapsed < a.elapsed {
		elapsed = a.elapsed
	}
	dt := elapsed - a.baseline

	a.series.Voltage = appendSample(a.series.Voltage, models.Sample{Elapsed: elapsed, Value: s.Voltage})
	a.series.Power = appendSample(a.series.Power, models.Sample{Elapsed: elapsed, Value: s.Power})

	switch s.Mode.Accumulation() {
	case models.PassThroughBattery:
		// capacity and time come from the device, see telemetry
	case models.AccumulateLocal:
		a.series.Current = appendSample(a.series.Current, models.Sample{Elapsed: elapsed, Value: s.Current})
		a.totals.ChargeAh += s.Current * dt / 3600
		a.totals.EnergyWh += s.Power * dt / 3600
	}

	a.baseline = elapsed
	a.elapsed = elapsed
}

func (a *Accumulator) telemetry(s models.Snapshot) models.Telemetry {
	t := models.Telemetry{
		Cycle:          a.cycle,
		Mode:           s.Mode,
		Voltage:        s.Voltage,
		RunState:       a.state,
		Totals:         a.totals,
		ChargeAh:       a.totals.ChargeAh,
		ChargeSource:   models.ChargeEstimated,
		RuntimeSeconds: a.elapsed,
		UpdatedAt:      s.Timestamp,
	}
	if a.state == models.Running {
		t.Current = s.Current
		t.Power = s.Power
	}
	if s.Mode == models.ModeBattery && s.Battery != nil {
		b := *s.Battery
		t.Battery = &b
		t.ChargeAh = b.CapacityAh
		t.ChargeSource = models.ChargeMeasured
	}
	return t
}

// Telemetry returns the latest record.
func (a *Accumulator) Telemetry() models.Telemetry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last.Copy()
}

// Series returns a copy of the series, trimmed to the last window seconds
// when window is positive.
func (a *Accumulator) Series(window float64) models.SeriesSet {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.series.Window(window)
}

func (a *Accumulator) Totals() models.Totals {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.totals
}

func (a *Accumulator) RunState() models.RunState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Cycles is the number of snapshots applied since construction.
func (a *Accumulator) Cycles() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cycle
}

package device

import (
	"fmt"
	"math"
	"sync"
	"time"

	"electronic_load/internal/errs"
	"electronic_load/internal/models"
)

// ----------- Simulation constants -----------
const (
	SourceVoltage     = 12.6 // open-circuit voltage of the simulated source, V
	SourceResistance  = 0.05 // internal resistance, Ω
	RampAPerSec       = 5.0  // A/s current slew when the load changes
	BatterySagVPerAh  = 0.8  // battery voltage drop per Ah drawn
	SimulatorModel    = "KORAD KEL103 SIMULATOR V1.0"
	defaultSimCurrent = 1.0
)

// Simulator is an in-process electronic load attached to an ideal source
// with internal resistance. Readings advance with wall-clock time between
// calls, the same way a real load keeps drawing between polls.
type Simulator struct {
	mu  sync.Mutex
	now func() time.Time

	mode      models.Mode
	setpoints map[models.Mode]float64
	output    bool
	current   float64 // actual (ramped) current, A
	updatedAt time.Time

	limits    models.Limits
	battery   map[int]models.BatteryProfile
	ocp       map[int]models.OCPProfile
	opp       map[int]models.OPPProfile
	lists     map[int]models.ListProfile
	dynamic   *models.DynamicProfile
	memories  map[int]models.Setpoint
	triggered int
	system    models.DeviceSettings

	activeBattery int
	batteryAh     float64
	batteryMin    float64

	fault  error
	closed bool
}

var _ Device = (*Simulator)(nil)

// NewSimulator returns a simulator in CC mode with output off.
func NewSimulator(now func() time.Time) *Simulator {
	if now == nil {
		now = time.Now
	}
	return &Simulator{
		now:       now,
		mode:      models.ModeConstantCurrent,
		setpoints: map[models.Mode]float64{models.ModeConstantCurrent: defaultSimCurrent},
		updatedAt: now(),
		limits:    models.DefaultLimits,
		battery:   map[int]models.BatteryProfile{},
		ocp:       map[int]models.OCPProfile{},
		opp:       map[int]models.OPPProfile{},
		lists:     map[int]models.ListProfile{},
		memories:  map[int]models.Setpoint{},
		system:    models.DefaultDeviceSettings,
	}
}

// InjectFault makes the next device call fail with err.
func (s *Simulator) InjectFault(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = err
}

// ActivateBattery switches to battery mode using the profile in slot.
func (s *Simulator) ActivateBattery(slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.battery[slot]; !ok {
		return &errs.StateError{Op: "activate battery test", Reason: fmt.Sprintf("slot %d is empty", slot)}
	}
	s.mode = models.ModeBattery
	s.activeBattery = slot
	s.batteryAh, s.batteryMin = 0, 0
	return nil
}

// begin advances the model and consumes an injected fault.
func (s *Simulator) begin(op string) error {
	if s.closed {
		return errs.NewDeviceError(op, errs.KindPortClosed, errs.ErrNotConnected)
	}
	if s.fault != nil {
		err := s.fault
		s.fault = nil
		if _, ok := errs.AsDevice(err); ok {
			return err
		}
		return errs.NewDeviceError(op, errs.KindTimeout, err)
	}
	s.advance(s.now())
	return nil
}

// targetCurrent is the steady-state current for the active mode.
func (s *Simulator) targetCurrent() float64 {
	if !s.output {
		return 0
	}
	var i float64
	switch s.mode {
	case models.ModeConstantCurrent:
		i = s.setpoints[models.ModeConstantCurrent]
	case models.ModeConstantVoltage:
		i = (SourceVoltage - s.setpoints[models.ModeConstantVoltage]) / SourceResistance
	case models.ModeConstantResistance:
		if r := s.setpoints[models.ModeConstantResistance]; r > 0 {
			i = SourceVoltage / (r + SourceResistance)
		}
	case models.ModeConstantPower:
		p := s.setpoints[models.ModeConstantPower]
		disc := SourceVoltage*SourceVoltage - 4*SourceResistance*p
		if disc < 0 {
			disc = 0
		}
		i = (SourceVoltage - math.Sqrt(disc)) / (2 * SourceResistance)
	case models.ModeShort:
		i = s.limits.Current
	case models.ModeBattery:
		i = s.battery[s.activeBattery].DischargeCurrent
	case models.ModeDynamic, models.ModeList, models.ModeOCP, models.ModeOPP:
		i = s.setpoints[models.ModeConstantCurrent]
	}
	return clamp(i, 0, s.limits.Current)
}

// advance moves the model forward to now: ramps the current toward the
// target and progresses a battery test.
func (s *Simulator) advance(now time.Time) {
	elapsed := now.Sub(s.updatedAt).Seconds()
	s.updatedAt = now
	if elapsed <= 0 {
		return
	}

	target := s.targetCurrent()
	step := RampAPerSec * elapsed
	switch {
	case s.current < target:
		s.current = math.Min(s.current+step, target)
	case s.current > target:
		s.current = math.Max(s.current-step, target)
	}

	if s.mode == models.ModeBattery && s.output {
		s.batteryAh += s.current * elapsed / 3600
		s.batteryMin += elapsed / 60
		s.checkBatteryCutoff()
	}
}

// checkBatteryCutoff ends the discharge once any cutoff is reached.
func (s *Simulator) checkBatteryCutoff() {
	p := s.battery[s.activeBattery]
	switch {
	case p.CutoffVoltage > 0 && s.terminalVoltage() <= p.CutoffVoltage,
		p.CutoffCapacityAh > 0 && s.batteryAh >= p.CutoffCapacityAh,
		p.CutoffMinutes > 0 && s.batteryMin >= p.CutoffMinutes:
		s.output = false
		s.current = 0
	}
}

func (s *Simulator) terminalVoltage() float64 {
	v := SourceVoltage - s.current*SourceResistance
	if s.mode == models.ModeBattery {
		v -= BatterySagVPerAh * s.batteryAh
	}
	return math.Max(v, 0)
}

func (s *Simulator) Model() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("read model"); err != nil {
		return "", err
	}
	return SimulatorModel, nil
}

func (s *Simulator) Mode() (models.Mode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("read mode"); err != nil {
		return "", err
	}
	return s.mode, nil
}

func (s *Simulator) Voltage() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("read voltage"); err != nil {
		return 0, err
	}
	return s.terminalVoltage(), nil
}

func (s *Simulator) Current() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("read current"); err != nil {
		return 0, err
	}
	return s.current, nil
}

func (s *Simulator) Power() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("read power"); err != nil {
		return 0, err
	}
	return s.terminalVoltage() * s.current, nil
}

func (s *Simulator) OutputEnabled() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("read output state"); err != nil {
		return false, err
	}
	return s.output, nil
}

func (s *Simulator) SetOutput(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("set output"); err != nil {
		return err
	}
	s.output = on
	if !on {
		s.current = 0
	}
	return nil
}

func (s *Simulator) ApplySetpoint(sp models.Setpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("apply setpoint"); err != nil {
		return err
	}
	s.mode = sp.Mode
	if sp.Mode != models.ModeShort {
		s.setpoints[sp.Mode] = sp.Value
	}
	return nil
}

func (s *Simulator) Limits() (models.Limits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("read limits"); err != nil {
		return models.Limits{}, err
	}
	return s.limits, nil
}

func (s *Simulator) SetLimit(kind models.LimitKind, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := "set " + string(kind) + " limit"
	if err := s.begin(op); err != nil {
		return err
	}
	switch kind {
	case models.LimitVoltage:
		s.limits.Voltage = v
	case models.LimitCurrent:
		s.limits.Current = v
	case models.LimitPower:
		s.limits.Power = v
	case models.LimitResistance:
		s.limits.Resistance = v
	default:
		return errs.NewDeviceError(op, errs.KindOutOfLimit, fmt.Errorf("unknown limit %q", kind))
	}
	return nil
}

func (s *Simulator) BatteryCapacity() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("read battery capacity"); err != nil {
		return 0, err
	}
	return s.batteryAh, nil
}

func (s *Simulator) BatteryMinutes() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("read battery time"); err != nil {
		return 0, err
	}
	return s.batteryMin, nil
}

func (s *Simulator) BatteryProfile(slot int) (models.BatteryProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("read battery profile"); err != nil {
		return models.BatteryProfile{}, err
	}
	p, ok := s.battery[slot]
	if !ok {
		return models.BatteryProfile{Slot: slot}, nil
	}
	return p, nil
}

func (s *Simulator) SetBatteryProfile(p models.BatteryProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("set battery profile"); err != nil {
		return err
	}
	s.battery[p.Slot] = p
	return nil
}

func (s *Simulator) OCPProfile(slot int) (models.OCPProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("read ocp profile"); err != nil {
		return models.OCPProfile{}, err
	}
	p, ok := s.ocp[slot]
	if !ok {
		return models.OCPProfile{Slot: slot}, nil
	}
	return p, nil
}

func (s *Simulator) SetOCPProfile(p models.OCPProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("set ocp profile"); err != nil {
		return err
	}
	s.ocp[p.Slot] = p
	return nil
}

func (s *Simulator) OPPProfile(slot int) (models.OPPProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("read opp profile"); err != nil {
		return models.OPPProfile{}, err
	}
	p, ok := s.opp[slot]
	if !ok {
		return models.OPPProfile{Slot: slot}, nil
	}
	return p, nil
}

func (s *Simulator) SetOPPProfile(p models.OPPProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("set opp profile"); err != nil {
		return err
	}
	s.opp[p.Slot] = p
	return nil
}

func (s *Simulator) ListProfile(slot int) (models.ListProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("read list profile"); err != nil {
		return models.ListProfile{}, err
	}
	p, ok := s.lists[slot]
	if !ok {
		return models.ListProfile{Slot: slot}, nil
	}
	p.Steps = append([]models.ListStep(nil), p.Steps...)
	return p, nil
}

func (s *Simulator) SetListProfile(p models.ListProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("set list profile"); err != nil {
		return err
	}
	p.Steps = append([]models.ListStep(nil), p.Steps...)
	s.lists[p.Slot] = p
	return nil
}

func (s *Simulator) SetDynamic(p models.DynamicProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("set dynamic profile"); err != nil {
		return err
	}
	s.dynamic = &p
	s.mode = models.ModeDynamic
	return nil
}

func (s *Simulator) Trigger() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("trigger"); err != nil {
		return err
	}
	s.triggered++
	return nil
}

func (s *Simulator) SaveMemory(slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("save memory"); err != nil {
		return err
	}
	s.memories[slot] = models.Setpoint{Mode: s.mode, Value: s.setpoints[s.mode]}
	return nil
}

func (s *Simulator) RecallMemory(slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("recall memory"); err != nil {
		return err
	}
	sp, ok := s.memories[slot]
	if !ok {
		return errs.NewDeviceError("recall memory", errs.KindOutOfLimit, fmt.Errorf("memory %d is empty", slot))
	}
	s.mode = sp.Mode
	s.setpoints[sp.Mode] = sp.Value
	return nil
}

func (s *Simulator) FactoryReset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("factory reset"); err != nil {
		return err
	}
	s.limits = models.DefaultLimits
	s.mode = models.ModeConstantCurrent
	s.setpoints = map[models.Mode]float64{models.ModeConstantCurrent: defaultSimCurrent}
	s.output = false
	s.current = 0
	s.system = models.DefaultDeviceSettings
	return nil
}

func (s *Simulator) Settings() (models.DeviceSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("read device settings"); err != nil {
		return models.DeviceSettings{}, err
	}
	return s.system, nil
}

// SetSettings stores st. Empty address fields keep the current values, as
// the serial driver skips them.
func (s *Simulator) SetSettings(st models.DeviceSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("write device settings"); err != nil {
		return err
	}
	if st.IPAddress == "" {
		st.IPAddress, st.SubnetMask, st.Gateway = s.system.IPAddress, s.system.SubnetMask, s.system.Gateway
	}
	if st.MACAddress == "" {
		st.MACAddress = s.system.MACAddress
	}
	s.system = st
	return nil
}

// Output reports the output switch without advancing the model. It keeps
// working after Close.
func (s *Simulator) Output() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// helpers
func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"electronic_load/internal/arbiter"
	"electronic_load/internal/device"
	"electronic_load/internal/errs"
	"electronic_load/internal/logger"
	"electronic_load/internal/models"
	"electronic_load/internal/repository"

	"github.com/google/uuid"
)

// ControlService issues operator commands to the device. Validation runs
// before the arbiter is acquired, so an invalid request never reaches the
// wire.
type ControlService struct {
	arb       *arbiter.Arbiter
	acc       *Accumulator
	eventRepo repository.EventRepo
	log       *logger.Logger
	now       func() time.Time

	mu     sync.RWMutex
	limits *models.Limits
}

func NewControlService(arb *arbiter.Arbiter, acc *Accumulator, eventRepo repository.EventRepo, log *logger.Logger, now func() time.Time) *ControlService {
	if now == nil {
		now = time.Now
	}
	return &ControlService{arb: arb, acc: acc, eventRepo: eventRepo, log: log, now: now}
}

// do runs fn under the arbiter, failing fast when nothing is connected.
func (c *ControlService) do(ctx context.Context, op string, fn func(device.Device) error) error {
	if !c.arb.Connected() {
		return &errs.StateError{Op: op, Reason: "no device connected"}
	}
	return c.arb.Do(ctx, fn)
}

func (c *ControlService) record(ctx context.Context, desc string, meta map[string]any) {
	err := c.eventRepo.Append(ctx, models.LoadEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  c.now().UTC(),
		Type:        models.EventCommand,
		Description: desc,
		Metadata:    meta,
	})
	if err != nil {
		c.log.Errorw("append_event_failed", "description", desc, "error", err)
	}
}

func slotState(op string, slot, slots int) error {
	if slot < 1 || slot > slots {
		return &errs.StateError{Op: op, Reason: fmt.Sprintf("slot %d does not exist (1..%d)", slot, slots)}
	}
	return nil
}

// Start switches the output on. With fresh set the accumulator is reset
// inside the same hold, so no sample can land between the two.
func (c *ControlService) Start(ctx context.Context, fresh bool) error {
	err := c.do(ctx, "start", func(d device.Device) error {
		if err := d.SetOutput(true); err != nil {
			return err
		}
		if fresh {
			c.acc.Reset(c.now())
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.record(ctx, "Output switched on", map[string]any{"fresh": fresh})
	return nil
}

// Stop switches the output off. The run state follows on the next poll.
func (c *ControlService) Stop(ctx context.Context) error {
	if err := c.do(ctx, "stop", func(d device.Device) error { return d.SetOutput(false) }); err != nil {
		return err
	}
	c.record(ctx, "Output switched off", nil)
	return nil
}

// ClearSeries empties the series and zeroes the totals without touching
// the device. It runs on the caller's goroutine: the reset takes the
// accumulator lock, and a poll stamped before it is discarded.
func (c *ControlService) ClearSeries(ctx context.Context) {
	c.acc.Reset(c.now())
	c.record(ctx, "Series cleared", nil)
}

func (c *ControlService) ApplySetpoint(ctx context.Context, sp models.Setpoint) error {
	if !sp.Mode.Valid() {
		return &errs.ValidationError{Field: "mode", Rule: "unknown"}
	}
	limits, err := c.cachedLimits(ctx)
	if err != nil {
		return err
	}
	if err := sp.Validate(limits); err != nil {
		return err
	}
	if err := c.do(ctx, "apply setpoint", func(d device.Device) error { return d.ApplySetpoint(sp) }); err != nil {
		return err
	}
	c.record(ctx, "Setpoint applied", map[string]any{"mode": sp.Mode, "value": sp.Value})
	return nil
}

func (c *ControlService) Trigger(ctx context.Context) error {
	return c.do(ctx, "trigger", func(d device.Device) error { return d.Trigger() })
}

// ----------- Limits -----------

// Limits reads the device limits and refreshes the cache.
func (c *ControlService) Limits(ctx context.Context) (models.Limits, error) {
	var l models.Limits
	err := c.do(ctx, "read limits", func(d device.Device) error {
		var err error
		l, err = d.Limits()
		return err
	})
	if err != nil {
		return models.Limits{}, err
	}
	c.storeLimits(&l)
	return l, nil
}

func (c *ControlService) cachedLimits(ctx context.Context) (models.Limits, error) {
	c.mu.RLock()
	cached := c.limits
	c.mu.RUnlock()
	if cached != nil {
		return *cached, nil
	}
	return c.Limits(ctx)
}

func (c *ControlService) storeLimits(l *models.Limits) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l == nil {
		c.limits = nil
		return
	}
	cp := *l
	c.limits = &cp
}

// InvalidateLimits drops the cached limits, e.g. after reconnecting.
func (c *ControlService) InvalidateLimits() { c.storeLimits(nil) }

// SetLimits writes every non-zero field of l. All values are validated
// before the first write.
func (c *ControlService) SetLimits(ctx context.Context, l models.Limits) (models.Limits, error) {
	type change struct {
		kind  models.LimitKind
		value float64
	}
	var changes []change
	for _, kind := range []models.LimitKind{models.LimitVoltage, models.LimitCurrent, models.LimitPower, models.LimitResistance} {
		v := l.Of(kind)
		if v == 0 {
			continue
		}
		if err := models.ValidateLimit(kind, v); err != nil {
			return models.Limits{}, err
		}
		changes = append(changes, change{kind, v})
	}
	if len(changes) == 0 {
		return models.Limits{}, &errs.ValidationError{Field: "limits", Value: 0, Bound: 1, Rule: "count"}
	}

	var got models.Limits
	err := c.do(ctx, "set limits", func(d device.Device) error {
		for _, ch := range changes {
			if err := d.SetLimit(ch.kind, ch.value); err != nil {
				return err
			}
		}
		var err error
		got, err = d.Limits()
		return err
	})
	if err != nil {
		c.InvalidateLimits()
		return models.Limits{}, err
	}
	c.storeLimits(&got)
	c.record(ctx, "Limits changed", map[string]any{"limits": got})
	return got, nil
}

// ResetLimits restores the factory limits.
func (c *ControlService) ResetLimits(ctx context.Context) (models.Limits, error) {
	return c.SetLimits(ctx, models.DefaultLimits)
}

// ----------- Profiles -----------

func (c *ControlService) BatteryProfile(ctx context.Context, slot int) (models.BatteryProfile, error) {
	const op = "read battery profile"
	if err := slotState(op, slot, models.BatterySlots); err != nil {
		return models.BatteryProfile{}, err
	}
	var p models.BatteryProfile
	err := c.do(ctx, op, func(d device.Device) error {
		var err error
		p, err = d.BatteryProfile(slot)
		return err
	})
	return p, err
}

func (c *ControlService) SetBatteryProfile(ctx context.Context, p models.BatteryProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := c.do(ctx, "set battery profile", func(d device.Device) error { return d.SetBatteryProfile(p) }); err != nil {
		return err
	}
	c.record(ctx, fmt.Sprintf("Battery profile %d saved", p.Slot), map[string]any{"profile": p})
	return nil
}

func (c *ControlService) OCPProfile(ctx context.Context, slot int) (models.OCPProfile, error) {
	const op = "read ocp profile"
	if err := slotState(op, slot, models.OCPSlots); err != nil {
		return models.OCPProfile{}, err
	}
	var p models.OCPProfile
	err := c.do(ctx, op, func(d device.Device) error {
		var err error
		p, err = d.OCPProfile(slot)
		return err
	})
	return p, err
}

func (c *ControlService) SetOCPProfile(ctx context.Context, p models.OCPProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := c.do(ctx, "set ocp profile", func(d device.Device) error { return d.SetOCPProfile(p) }); err != nil {
		return err
	}
	c.record(ctx, fmt.Sprintf("OCP profile %d saved", p.Slot), map[string]any{"profile": p})
	return nil
}

func (c *ControlService) OPPProfile(ctx context.Context, slot int) (models.OPPProfile, error) {
	const op = "read opp profile"
	if err := slotState(op, slot, models.OPPSlots); err != nil {
		return models.OPPProfile{}, err
	}
	var p models.OPPProfile
	err := c.do(ctx, op, func(d device.Device) error {
		var err error
		p, err = d.OPPProfile(slot)
		return err
	})
	return p, err
}

func (c *ControlService) SetOPPProfile(ctx context.Context, p models.OPPProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := c.do(ctx, "set opp profile", func(d device.Device) error { return d.SetOPPProfile(p) }); err != nil {
		return err
	}
	c.record(ctx, fmt.Sprintf("OPP profile %d saved", p.Slot), map[string]any{"profile": p})
	return nil
}

func (c *ControlService) ListProfile(ctx context.Context, slot int) (models.ListProfile, error) {
	const op = "read list profile"
	if err := slotState(op, slot, models.ListSlots); err != nil {
		return models.ListProfile{}, err
	}
	var p models.ListProfile
	err := c.do(ctx, op, func(d device.Device) error {
		var err error
		p, err = d.ListProfile(slot)
		return err
	})
	return p, err
}

func (c *ControlService) SetListProfile(ctx context.Context, p models.ListProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := c.do(ctx, "set list profile", func(d device.Device) error { return d.SetListProfile(p) }); err != nil {
		return err
	}
	c.record(ctx, fmt.Sprintf("List profile %d saved", p.Slot), map[string]any{"steps": len(p.Steps), "loops": p.Loops})
	return nil
}

// ValidateDynamic checks p against the device limit for its kind. The
// limit is fetched in its own hold when nothing is cached yet.
func (c *ControlService) ValidateDynamic(ctx context.Context, p models.DynamicProfile) error {
	limits, err := c.cachedLimits(ctx)
	if err != nil {
		return err
	}
	return p.Validate(limits.Of(p.LimitKind()))
}

func (c *ControlService) SetDynamic(ctx context.Context, p models.DynamicProfile) error {
	if err := c.ValidateDynamic(ctx, p); err != nil {
		return err
	}
	if err := c.do(ctx, "set dynamic profile", func(d device.Device) error { return d.SetDynamic(p) }); err != nil {
		return err
	}
	c.record(ctx, "Dynamic profile applied", map[string]any{"kind": p.Kind})
	return nil
}

// DefaultSlots returns the profiles written by InitSlots.
func DefaultSlots() ([]models.BatteryProfile, []models.OCPProfile, []models.OPPProfile, []models.ListProfile) {
	var (
		batt []models.BatteryProfile
		ocp  []models.OCPProfile
		opp  []models.OPPProfile
		list []models.ListProfile
	)
	for i := 1; i <= models.BatterySlots; i++ {
		batt = append(batt, models.BatteryProfile{Slot: i, CurrentRange: 1, DischargeCurrent: 1, CutoffVoltage: 1, CutoffCapacityAh: 1, CutoffMinutes: 1})
	}
	for i := 1; i <= models.OCPSlots; i++ {
		ocp = append(ocp, models.OCPProfile{
			Slot: i, OnVoltage: 5, OnDelay: 1, CurrentRange: 1, InitialCurrent: 1, StepCurrent: 0.1,
			StepDelay: 0.1, OffCurrent: 0.1, OCPVoltage: 1, MaxOverCurrent: 0.3, MinOverCurrent: 0.2,
		})
	}
	for i := 1; i <= models.OPPSlots; i++ {
		opp = append(opp, models.OPPProfile{
			Slot: i, OnVoltage: 5, OnDelay: 1, CurrentRange: 1, InitialPower: 1, StepPower: 0.1,
			StepDelay: 0.1, OffPower: 0.1, OPPVoltage: 2, MaxOverPower: 0.3, MinOverPower: 0.2,
		})
	}
	for i := 1; i <= models.ListSlots; i++ {
		list = append(list, models.ListProfile{
			Slot: i, CurrentRange: 2, Loops: 3,
			Steps: []models.ListStep{{Current: 1, Slope: 0.1, Duration: 1}, {Current: 2, Slope: 0.2, Duration: 2}},
		})
	}
	return batt, ocp, opp, list
}

// InitSlots writes the default profile into every save slot.
func (c *ControlService) InitSlots(ctx context.Context) error {
	batt, ocp, opp, list := DefaultSlots()
	err := c.do(ctx, "initialise slots", func(d device.Device) error {
		for _, p := range batt {
			if err := d.SetBatteryProfile(p); err != nil {
				return err
			}
		}
		for _, p := range ocp {
			if err := d.SetOCPProfile(p); err != nil {
				return err
			}
		}
		for _, p := range opp {
			if err := d.SetOPPProfile(p); err != nil {
				return err
			}
		}
		for _, p := range list {
			if err := d.SetListProfile(p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.record(ctx, "Save slots initialised", nil)
	return nil
}

// ----------- Memory -----------

func (c *ControlService) SaveMemory(ctx context.Context, slot int) error {
	const op = "save memory"
	if err := slotState(op, slot, models.MemorySlots); err != nil {
		return err
	}
	if err := c.do(ctx, op, func(d device.Device) error { return d.SaveMemory(slot) }); err != nil {
		return err
	}
	c.record(ctx, fmt.Sprintf("Memory %d saved", slot), nil)
	return nil
}

func (c *ControlService) RecallMemory(ctx context.Context, slot int) error {
	const op = "recall memory"
	if err := slotState(op, slot, models.MemorySlots); err != nil {
		return err
	}
	if err := c.do(ctx, op, func(d device.Device) error { return d.RecallMemory(slot) }); err != nil {
		return err
	}
	c.record(ctx, fmt.Sprintf("Memory %d recalled", slot), nil)
	return nil
}

// FactoryReset restores the device defaults and forgets cached limits.
func (c *ControlService) FactoryReset(ctx context.Context) error {
	if err := c.do(ctx, "factory reset", func(d device.Device) error { return d.FactoryReset() }); err != nil {
		return err
	}
	c.InvalidateLimits()
	c.record(ctx, "Factory reset", nil)
	return nil
}

// ----------- Device settings -----------

func (c *ControlService) DeviceSettings(ctx context.Context) (models.DeviceSettings, error) {
	var st models.DeviceSettings
	err := c.do(ctx, "read device settings", func(d device.Device) error {
		var err error
		st, err = d.Settings()
		return err
	})
	if err != nil {
		return models.DeviceSettings{}, err
	}
	return st, nil
}

// SetDeviceSettings writes the system settings. A new baud rate only takes
// effect on the device side, so the link has to be reopened at that rate.
func (c *ControlService) SetDeviceSettings(ctx context.Context, st models.DeviceSettings) error {
	if err := st.Validate(device.BaudRates); err != nil {
		return err
	}
	var prevBaud int
	err := c.do(ctx, "write device settings", func(d device.Device) error {
		prev, err := d.Settings()
		if err != nil {
			return err
		}
		prevBaud = prev.BaudRate
		return d.SetSettings(st)
	})
	if err != nil {
		return err
	}
	if prevBaud != st.BaudRate {
		c.log.Warnw("device_baud_changed", "from", prevBaud, "to", st.BaudRate)
	}
	c.record(ctx, "Device settings written", map[string]any{
		"baud_rate": st.BaudRate,
		"dhcp":      st.DHCP,
		"ip":        st.IPAddress,
	})
	return nil
}

// Validator is implemented by every slot profile.
type Validator interface {
	Validate() error
}

// Validate is the dry-run form of the profile setters.
func (c *ControlService) Validate(p Validator) error { return p.Validate() }

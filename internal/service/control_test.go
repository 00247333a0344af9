package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"electronic_load/internal/arbiter"
	"electronic_load/internal/device"
	"electronic_load/internal/errs"
	"electronic_load/internal/logger"
	"electronic_load/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type controlFixture struct {
	clock   *manualClock
	sim     *device.Simulator
	acc     *Accumulator
	events  *fakeEventRepo
	control *ControlService
}

func newControlFixture(t *testing.T) *controlFixture {
	t.Helper()
	f := &controlFixture{clock: newManualClock(), acc: NewAccumulator(), events: &fakeEventRepo{}}
	f.sim = device.NewSimulator(f.clock.Now)
	f.control = NewControlService(arbiter.New(f.sim), f.acc, f.events, logger.Nop(), f.clock.Now)
	return f
}

func requireValidation(t *testing.T, err error, field string) {
	t.Helper()
	ve, ok := errs.AsValidation(err)
	require.True(t, ok, "want ValidationError, got %T: %v", err, err)
	if field != "" {
		assert.Equal(t, field, ve.Field)
	}
}

func requireState(t *testing.T, err error) {
	t.Helper()
	_, ok := errs.AsState(err)
	require.True(t, ok, "want StateError, got %T: %v", err, err)
}

func TestControl_StartFreshResetsInsideHold(t *testing.T) {
	f := newControlFixture(t)
	ctx := context.Background()

	f.acc.Apply(ccSnap(0, 5, 2, 10, true))
	f.acc.Apply(ccSnap(10, 5, 2, 10, true))
	require.NotZero(t, f.acc.Totals().ChargeAh)

	f.clock.Advance(20 * time.Second)
	require.NoError(t, f.control.Start(ctx, true))

	on, err := f.sim.OutputEnabled()
	require.NoError(t, err)
	assert.True(t, on)
	assert.Zero(t, f.acc.Totals())
	assert.Len(t, f.acc.Series(0).Voltage, 1, "only the origin sample is left")

	// a snapshot taken before the reset is stale
	f.acc.Apply(ccSnap(15, 5, 2, 10, true))
	assert.Zero(t, f.acc.Totals())

	cmds := f.events.ofType(models.EventCommand)
	require.Len(t, cmds, 1)
	assert.Equal(t, "Output switched on", cmds[0].Description)
}

func TestControl_StartResumeKeepsTotals(t *testing.T) {
	f := newControlFixture(t)
	f.acc.Apply(ccSnap(0, 5, 2, 10, true))
	f.acc.Apply(ccSnap(10, 5, 2, 10, true))
	before := f.acc.Totals()

	require.NoError(t, f.control.Start(context.Background(), false))
	assert.Equal(t, before, f.acc.Totals())
}

func TestControl_FailedStartResetsNothing(t *testing.T) {
	f := newControlFixture(t)
	f.acc.Apply(ccSnap(0, 5, 2, 10, true))
	f.acc.Apply(ccSnap(10, 5, 2, 10, true))
	before := f.acc.Totals()

	f.sim.InjectFault(errors.New("no reply"))
	err := f.control.Start(context.Background(), true)
	de, ok := errs.AsDevice(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindTimeout, de.Kind)
	assert.Equal(t, before, f.acc.Totals())
	assert.Empty(t, f.events.Appended())
}

func TestControl_NotConnected(t *testing.T) {
	control := NewControlService(arbiter.New(nil), NewAccumulator(), &fakeEventRepo{}, logger.Nop(), nil)
	ctx := context.Background()

	requireState(t, control.Start(ctx, true))
	requireState(t, control.Stop(ctx))
	requireState(t, control.Trigger(ctx))
	_, err := control.Limits(ctx)
	requireState(t, err)
}

func TestControl_StopAndClear(t *testing.T) {
	f := newControlFixture(t)
	ctx := context.Background()
	require.NoError(t, f.control.Start(ctx, false))
	require.NoError(t, f.control.Stop(ctx))

	on, err := f.sim.OutputEnabled()
	require.NoError(t, err)
	assert.False(t, on)

	f.acc.Apply(ccSnap(0, 5, 2, 10, true))
	f.acc.Apply(ccSnap(5, 5, 2, 10, true))
	f.control.ClearSeries(ctx)
	assert.Zero(t, f.acc.Totals())
	assert.Len(t, f.events.ofType(models.EventCommand), 3)
}

func TestControl_ApplySetpoint(t *testing.T) {
	f := newControlFixture(t)
	ctx := context.Background()

	require.NoError(t, f.control.ApplySetpoint(ctx, models.Setpoint{Mode: models.ModeConstantVoltage, Value: 12}))
	mode, err := f.sim.Mode()
	require.NoError(t, err)
	assert.Equal(t, models.ModeConstantVoltage, mode)

	// cached limit is now known; an out-of-range value never reaches the device
	f.sim.InjectFault(errors.New("must not be consumed"))
	err = f.control.ApplySetpoint(ctx, models.Setpoint{Mode: models.ModeConstantCurrent, Value: 31})
	requireValidation(t, err, "current")

	err = f.control.ApplySetpoint(ctx, models.Setpoint{Mode: "SAWTOOTH", Value: 1})
	requireValidation(t, err, "mode")

	_, err = f.sim.Mode()
	require.Error(t, err, "injected fault still pending")
}

func TestControl_SetLimits(t *testing.T) {
	f := newControlFixture(t)
	ctx := context.Background()

	got, err := f.control.SetLimits(ctx, models.Limits{Current: 10, Power: 150})
	require.NoError(t, err)
	assert.Equal(t, models.Limits{Voltage: models.MaxVoltage, Current: 10, Power: 150, Resistance: models.MaxResistance}, got)

	// the new cached limit bounds setpoints
	err = f.control.ApplySetpoint(ctx, models.Setpoint{Mode: models.ModeConstantCurrent, Value: 12})
	requireValidation(t, err, "current")

	_, err = f.control.SetLimits(ctx, models.Limits{Voltage: 150})
	requireValidation(t, err, "voltage_limit")

	_, err = f.control.SetLimits(ctx, models.Limits{})
	requireValidation(t, err, "limits")

	got, err = f.control.ResetLimits(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultLimits, got)
}

func TestControl_Profiles(t *testing.T) {
	f := newControlFixture(t)
	ctx := context.Background()

	batt := models.BatteryProfile{Slot: 3, CurrentRange: 5, DischargeCurrent: 2, CutoffVoltage: 10.5, CutoffCapacityAh: 1.5, CutoffMinutes: 90}
	require.NoError(t, f.control.SetBatteryProfile(ctx, batt))
	gotBatt, err := f.control.BatteryProfile(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, batt, gotBatt)

	bad := batt
	bad.DischargeCurrent = 6
	requireValidation(t, f.control.SetBatteryProfile(ctx, bad), "discharge_current")
	requireValidation(t, f.control.Validate(bad), "discharge_current")
	require.NoError(t, f.control.Validate(batt))

	list := models.ListProfile{Slot: 1, CurrentRange: 3, Loops: 2, Steps: []models.ListStep{{Current: 1, Slope: 0.1, Duration: 1}}}
	require.NoError(t, f.control.SetListProfile(ctx, list))
	gotList, err := f.control.ListProfile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, list, gotList)

	_, err = f.control.OCPProfile(ctx, models.OCPSlots+1)
	requireState(t, err)
	_, err = f.control.OPPProfile(ctx, 0)
	requireState(t, err)
}

func TestControl_Dynamic(t *testing.T) {
	f := newControlFixture(t)
	ctx := context.Background()
	_, err := f.control.SetLimits(ctx, models.Limits{Voltage: 20})
	require.NoError(t, err)

	cv := models.DynamicProfile{Kind: models.DynamicCV, Level1: 5, Level2: 25, Frequency: 10, Duty: 50}
	requireValidation(t, f.control.ValidateDynamic(ctx, cv), "level2")

	cv.Level2 = 15
	require.NoError(t, f.control.SetDynamic(ctx, cv))
}

func TestControl_InitSlotsWritesDefaults(t *testing.T) {
	f := newControlFixture(t)
	ctx := context.Background()

	batt, ocp, opp, list := DefaultSlots()
	for _, p := range batt {
		require.NoError(t, p.Validate())
	}
	for _, p := range ocp {
		require.NoError(t, p.Validate())
	}
	for _, p := range opp {
		require.NoError(t, p.Validate())
	}
	for _, p := range list {
		require.NoError(t, p.Validate())
	}

	require.NoError(t, f.control.InitSlots(ctx))
	got, err := f.control.OPPProfile(ctx, models.OPPSlots)
	require.NoError(t, err)
	assert.Equal(t, opp[len(opp)-1], got)
	gotList, err := f.control.ListProfile(ctx, models.ListSlots)
	require.NoError(t, err)
	assert.Equal(t, list[len(list)-1], gotList)
}

func TestControl_Memory(t *testing.T) {
	f := newControlFixture(t)
	ctx := context.Background()

	require.NoError(t, f.control.ApplySetpoint(ctx, models.Setpoint{Mode: models.ModeConstantPower, Value: 40}))
	require.NoError(t, f.control.SaveMemory(ctx, 2))
	require.NoError(t, f.control.ApplySetpoint(ctx, models.Setpoint{Mode: models.ModeConstantCurrent, Value: 1}))
	require.NoError(t, f.control.RecallMemory(ctx, 2))

	mode, err := f.sim.Mode()
	require.NoError(t, err)
	assert.Equal(t, models.ModeConstantPower, mode)

	requireState(t, f.control.RecallMemory(ctx, models.MemorySlots+1))
	requireState(t, f.control.SaveMemory(ctx, 0))

	err = f.control.RecallMemory(ctx, 3)
	de, ok := errs.AsDevice(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindOutOfLimit, de.Kind)
}

func TestControl_FactoryResetDropsCachedLimits(t *testing.T) {
	f := newControlFixture(t)
	ctx := context.Background()

	_, err := f.control.SetLimits(ctx, models.Limits{Current: 5})
	require.NoError(t, err)
	require.NoError(t, f.control.FactoryReset(ctx))

	// after the reset the device allows 30 A again
	require.NoError(t, f.control.ApplySetpoint(ctx, models.Setpoint{Mode: models.ModeConstantCurrent, Value: 20}))
}

func TestControl_DeviceSettings(t *testing.T) {
	f := newControlFixture(t)
	ctx := context.Background()

	st, err := f.control.DeviceSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultDeviceSettings, st)

	st.BaudRate = 9600
	st.IPAddress = "10.0.0.20"
	st.Gateway = "10.0.0.1"
	require.NoError(t, f.control.SetDeviceSettings(ctx, st))

	got, err := f.sim.Settings()
	require.NoError(t, err)
	assert.Equal(t, st, got)

	cmds := f.events.ofType(models.EventCommand)
	require.Len(t, cmds, 1)
	assert.Equal(t, "Device settings written", cmds[0].Description)
}

func TestControl_DeviceSettingsValidatedBeforeIO(t *testing.T) {
	valid := models.DefaultDeviceSettings
	cases := []struct {
		name  string
		edit  func(*models.DeviceSettings)
		field string
	}{
		{"baud", func(s *models.DeviceSettings) { s.BaudRate = 4800 }, "baud_rate"},
		{"ip", func(s *models.DeviceSettings) { s.IPAddress = "192.168.1" }, "ip_address"},
		{"ipv6", func(s *models.DeviceSettings) { s.IPAddress = "fe80::1" }, "ip_address"},
		{"mask gap", func(s *models.DeviceSettings) { s.SubnetMask = "255.0.255.0" }, "subnet_mask"},
		{"gateway", func(s *models.DeviceSettings) { s.Gateway = "" }, "gateway"},
		{"mac", func(s *models.DeviceSettings) { s.MACAddress = "00-2A-C0" }, "mac_address"},
		{"port", func(s *models.DeviceSettings) { s.NetworkPort = 70000 }, "network_port"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newControlFixture(t)
			st := valid
			tc.edit(&st)

			// a fault armed on the device would surface if the request got there
			f.sim.InjectFault(errors.New("should not be reached"))
			requireValidation(t, f.control.SetDeviceSettings(context.Background(), st), tc.field)

			_, err := f.sim.Mode()
			assert.Error(t, err, "the armed fault is still pending")
		})
	}

	// DHCP without static addresses is accepted
	f := newControlFixture(t)
	require.NoError(t, f.control.SetDeviceSettings(context.Background(), models.DeviceSettings{
		BaudRate: 115200, DHCP: true, NetworkPort: 18190,
	}))
}

func TestControl_DeviceSettingsNotConnected(t *testing.T) {
	control := NewControlService(arbiter.New(nil), NewAccumulator(), &fakeEventRepo{}, logger.Nop(), nil)
	_, err := control.DeviceSettings(context.Background())
	requireState(t, err)
	requireState(t, control.SetDeviceSettings(context.Background(), models.DefaultDeviceSettings))
}

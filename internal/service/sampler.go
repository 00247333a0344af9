package service

import (
	"context"
	"time"

	"electronic_load/internal/arbiter"
	"electronic_load/internal/device"
	"electronic_load/internal/errs"
	"electronic_load/internal/models"
)

// Sampler reads one snapshot from the device per call.
type Sampler struct {
	arb *arbiter.Arbiter
	now func() time.Time
}

func NewSampler(arb *arbiter.Arbiter, now func() time.Time) *Sampler {
	if now == nil {
		now = time.Now
	}
	return &Sampler{arb: arb, now: now}
}

// PollOnce holds the arbiter for the whole read sequence. It never retries;
// the first failing read ends the cycle.
func (s *Sampler) PollOnce(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot
	err := s.arb.Do(ctx, func(d device.Device) error {
		var err error
		if snap.Mode, err = d.Mode(); err != nil {
			return err
		}
		// the accumulator needs a canonical mode
		if snap.Mode, err = models.ParseMode(string(snap.Mode)); err != nil {
			return errs.NewDeviceError("read mode", errs.KindMalformed, err)
		}
		if snap.Voltage, err = d.Voltage(); err != nil {
			return err
		}
		if snap.Power, err = d.Power(); err != nil {
			return err
		}
		if snap.OutputEnabled, err = d.OutputEnabled(); err != nil {
			return err
		}
		if snap.OutputEnabled {
			if snap.Current, err = d.Current(); err != nil {
				return err
			}
			if snap.Mode == models.ModeBattery {
				var b models.BatteryReading
				if b.CapacityAh, err = d.BatteryCapacity(); err != nil {
					return err
				}
				if b.DischargeMinutes, err = d.BatteryMinutes(); err != nil {
					return err
				}
				snap.Battery = &b
			}
		}
		snap.Timestamp = s.now()
		return nil
	})
	if err != nil {
		return models.Snapshot{}, err
	}
	return snap, nil
}

// Package arbiter serialises access to the single device connection shared
// by the acquisition loop and operator commands.
package arbiter

import (
	"context"
	"sync/atomic"

	"electronic_load/internal/device"
	"electronic_load/internal/errs"
)

// Arbiter grants exclusive use of the device to one caller at a time.
// Waiters are served in arrival order and can give up through their
// context. A hold covers the whole exchange passed to Do, so a multi-step
// conversation is never interleaved with another caller's.
type Arbiter struct {
	token     chan struct{}
	dev       device.Device // guarded by token
	connected atomic.Bool
	holds     atomic.Uint64
}

// New returns an arbiter guarding dev. dev may be nil.
func New(dev device.Device) *Arbiter {
	a := &Arbiter{token: make(chan struct{}, 1)}
	a.token <- struct{}{}
	a.dev = dev
	a.connected.Store(dev != nil)
	return a
}

func (a *Arbiter) acquire(ctx context.Context) error {
	select {
	case <-a.token:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Arbiter) release() { a.token <- struct{}{} }

// Do runs fn with exclusive access to the device. It fails with a
// PortClosed DeviceError when no device is attached.
func (a *Arbiter) Do(ctx context.Context, fn func(device.Device) error) error {
	if err := a.acquire(ctx); err != nil {
		return err
	}
	defer a.release()
	a.holds.Add(1)

	if a.dev == nil {
		return errs.NewDeviceError("acquire device", errs.KindPortClosed, errs.ErrNotConnected)
	}
	return fn(a.dev)
}

// Swap replaces the guarded device once in-flight exchanges finish and
// returns the previous one. Passing nil detaches the device.
func (a *Arbiter) Swap(ctx context.Context, dev device.Device) (device.Device, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	defer a.release()

	old := a.dev
	a.dev = dev
	a.connected.Store(dev != nil)
	return old, nil
}

// Connected reports whether a device is attached.
func (a *Arbiter) Connected() bool { return a.connected.Load() }

// Holds returns how many exclusive holds have been granted.
func (a *Arbiter) Holds() uint64 { return a.holds.Load() }

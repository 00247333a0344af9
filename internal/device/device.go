// Package device talks to the electronic load. Every method is synchronous,
// may block on I/O and fails with *errs.DeviceError.
package device

import "electronic_load/internal/models"

// Device is one connection to an electronic load. Implementations are not
// safe for concurrent use; callers reach them through the arbiter.
type Device interface {
	Model() (string, error)

	Mode() (models.Mode, error)
	Voltage() (float64, error)
	Current() (float64, error)
	Power() (float64, error)
	OutputEnabled() (bool, error)
	SetOutput(on bool) error
	ApplySetpoint(sp models.Setpoint) error

	Limits() (models.Limits, error)
	SetLimit(kind models.LimitKind, v float64) error

	BatteryCapacity() (float64, error)
	BatteryMinutes() (float64, error)
	BatteryProfile(slot int) (models.BatteryProfile, error)
	SetBatteryProfile(p models.BatteryProfile) error

	OCPProfile(slot int) (models.OCPProfile, error)
	SetOCPProfile(p models.OCPProfile) error
	OPPProfile(slot int) (models.OPPProfile, error)
	SetOPPProfile(p models.OPPProfile) error
	ListProfile(slot int) (models.ListProfile, error)
	SetListProfile(p models.ListProfile) error
	SetDynamic(p models.DynamicProfile) error

	Trigger() error
	SaveMemory(slot int) error
	RecallMemory(slot int) error
	FactoryReset() error

	Settings() (models.DeviceSettings, error)
	SetSettings(s models.DeviceSettings) error

	Close() error
}

// Opener opens a device on the named port.
type Opener interface {
	Open(port string) (Device, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(port string) (Device, error)

// Open calls f(port).
func (f OpenerFunc) Open(port string) (Device, error) { return f(port) }

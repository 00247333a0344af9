// Package errs defines the error taxonomy shared by the device, control and
// presentation layers.
package errs

import (
	"errors"
	"fmt"
)

// DeviceErrorKind classifies transport and protocol failures.
type DeviceErrorKind string

const (
	KindTimeout    DeviceErrorKind = "TIMEOUT"
	KindPortClosed DeviceErrorKind = "PORT_CLOSED"
	KindMalformed  DeviceErrorKind = "MALFORMED"
	KindOutOfLimit DeviceErrorKind = "OUT_OF_LIMIT"
)

// DeviceError is returned by every Device operation that fails.
type DeviceError struct {
	Op   string // e.g. "read voltage", "set battery profile"
	Kind DeviceErrorKind
	Err  error
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("device %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("device %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// NewDeviceError builds a DeviceError for op.
func NewDeviceError(op string, kind DeviceErrorKind, err error) *DeviceError {
	return &DeviceError{Op: op, Kind: kind, Err: err}
}

// ErrNotConnected is the cause attached to PortClosed errors raised when no
// device is attached at all.
var ErrNotConnected = errors.New("no device connected")

// ValidationError reports a profile or limit parameter outside the bound the
// device accepts. It is always raised before any I/O.
type ValidationError struct {
	Field string
	Value float64
	Bound float64
	Rule  string // max | min | positive | order | count | unknown | format
}

func (e *ValidationError) Error() string {
	switch e.Rule {
	case "min":
		return fmt.Sprintf("invalid %s: %g is below minimum %g", e.Field, e.Value, e.Bound)
	case "positive":
		return fmt.Sprintf("invalid %s: %g must be greater than %g", e.Field, e.Value, e.Bound)
	case "order":
		return fmt.Sprintf("invalid %s: %g must not exceed %g", e.Field, e.Value, e.Bound)
	case "count":
		return fmt.Sprintf("invalid %s: %g entries, limit %g", e.Field, e.Value, e.Bound)
	case "unknown":
		return fmt.Sprintf("invalid %s: unsupported value", e.Field)
	case "format":
		return fmt.Sprintf("invalid %s: malformed value", e.Field)
	default:
		return fmt.Sprintf("invalid %s: %g exceeds limit %g", e.Field, e.Value, e.Bound)
	}
}

// StateError reports an operation that is incompatible with the current
// state, e.g. recalling a slot the device does not have.
type StateError struct {
	Op     string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s: %s", e.Op, e.Reason)
}

// AsDevice reports whether err wraps a *DeviceError.
func AsDevice(err error) (*DeviceError, bool) {
	var de *DeviceError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// AsValidation reports whether err wraps a *ValidationError.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// AsState reports whether err wraps a *StateError.
func AsState(err error) (*StateError, bool) {
	var se *StateError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

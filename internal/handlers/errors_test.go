package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"electronic_load/internal/errs"
	"electronic_load/internal/service"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"validation", &errs.ValidationError{Field: "power", Value: 400, Bound: 300}, http.StatusBadRequest, kindValidation},
		{"wrapped validation", fmt.Errorf("set limits: %w", &errs.ValidationError{Field: "power"}), http.StatusBadRequest, kindValidation},
		{"state", &errs.StateError{Op: "recall", Reason: "slot 9 does not exist"}, http.StatusConflict, kindState},
		{"timeout", errs.NewDeviceError("read voltage", errs.KindTimeout, nil), http.StatusGatewayTimeout, "TIMEOUT"},
		{"port closed", errs.NewDeviceError("read voltage", errs.KindPortClosed, errs.ErrNotConnected), http.StatusServiceUnavailable, "PORT_CLOSED"},
		{"malformed", errs.NewDeviceError("read mode", errs.KindMalformed, nil), http.StatusBadGateway, "MALFORMED"},
		{"out of limit", errs.NewDeviceError("set current", errs.KindOutOfLimit, nil), http.StatusUnprocessableEntity, "OUT_OF_LIMIT"},
		{"time range", service.ErrInvalidTimeRange, http.StatusBadRequest, kindValidation},
		{"event type", service.ErrUnknownEventType, http.StatusBadRequest, kindValidation},
		{"unknown", errors.New("sqlite: disk full"), http.StatusInternalServerError, kindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, resp := statusFor(tc.err)
			if code != tc.code || resp.Kind != tc.kind {
				t.Fatalf("got (%d, %q), want (%d, %q)", code, resp.Kind, tc.code, tc.kind)
			}
			if code == http.StatusInternalServerError && resp.Error != "internal error" {
				t.Fatalf("internal error text leaked: %q", resp.Error)
			}
		})
	}
}

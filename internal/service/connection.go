package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"electronic_load/internal/arbiter"
	"electronic_load/internal/config"
	"electronic_load/internal/device"
	"electronic_load/internal/errs"
	"electronic_load/internal/logger"
	"electronic_load/internal/models"
	"electronic_load/internal/repository"

	"github.com/google/uuid"
)

// ConnectionStatus describes the attached device.
type ConnectionStatus struct {
	Connected   bool           `json:"connected"`
	Port        string         `json:"port,omitempty"`
	Model       string         `json:"model,omitempty"`
	ConnectedAt time.Time      `json:"connected_at,omitempty"`
	Limits      *models.Limits `json:"limits,omitempty"`
}

// SettingsSource supplies the safety policy at the time it is needed.
type SettingsSource interface {
	Settings() config.Settings
}

// ConnectionService owns the connect/disconnect lifecycle of the single
// device connection.
type ConnectionService struct {
	arb       *arbiter.Arbiter
	opener    device.Opener
	control   *ControlService
	settings  SettingsSource
	eventRepo repository.EventRepo
	log       *logger.Logger

	mu     sync.Mutex
	status ConnectionStatus
}

func NewConnectionService(arb *arbiter.Arbiter, opener device.Opener, control *ControlService, settings SettingsSource, eventRepo repository.EventRepo, log *logger.Logger) *ConnectionService {
	return &ConnectionService{
		arb:       arb,
		opener:    opener,
		control:   control,
		settings:  settings,
		eventRepo: eventRepo,
		log:       log,
	}
}

// Connect opens port, identifies the device and primes the limit cache.
// An existing connection is closed first.
func (s *ConnectionService) Connect(ctx context.Context, port string) (ConnectionStatus, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = s.settings.Settings().Device.Port
	}
	if port == "" && !s.settings.Settings().Device.Simulate {
		return ConnectionStatus{}, &errs.ValidationError{Field: "port", Rule: "unknown"}
	}

	if s.arb.Connected() {
		if err := s.Disconnect(ctx); err != nil {
			return ConnectionStatus{}, err
		}
	}

	dev, err := s.opener.Open(port)
	if err != nil {
		return ConnectionStatus{}, err
	}
	model, err := dev.Model()
	if err != nil {
		_ = dev.Close()
		return ConnectionStatus{}, err
	}
	limits, err := dev.Limits()
	if err != nil {
		_ = dev.Close()
		return ConnectionStatus{}, err
	}

	old, err := s.arb.Swap(ctx, dev)
	if err != nil {
		_ = dev.Close()
		return ConnectionStatus{}, err
	}
	if old != nil {
		_ = old.Close()
	}
	s.control.storeLimits(&limits)

	st := ConnectionStatus{Connected: true, Port: port, Model: model, ConnectedAt: time.Now().UTC(), Limits: &limits}
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()

	s.log.Infow("device_connected", "port", port, "model", model)
	s.appendEvent(ctx, "Connected to "+model, map[string]any{"port": port})
	return st, nil
}

// Disconnect detaches and closes the device, switching the output off
// first when safety.off_on_disconnect is set.
func (s *ConnectionService) Disconnect(ctx context.Context) error {
	if !s.arb.Connected() {
		return &errs.StateError{Op: "disconnect", Reason: "no device connected"}
	}
	if s.settings.Settings().Safety.OffOnDisconnect {
		if err := s.forceOff(ctx); err != nil {
			s.log.Warnw("output_off_failed", "reason", "disconnect", "error", err)
		}
	}
	return s.detach(ctx, "Disconnected")
}

// Shutdown runs on process exit: it switches the output off while a run is
// active and safety.off_on_exit is set, then closes the connection.
func (s *ConnectionService) Shutdown(ctx context.Context, running bool) error {
	if !s.arb.Connected() {
		return nil
	}
	var offErr error
	if running && s.settings.Settings().Safety.OffOnExit {
		offErr = s.forceOff(ctx)
	}
	return errors.Join(offErr, s.detach(ctx, "Disconnected on shutdown"))
}

func (s *ConnectionService) forceOff(ctx context.Context) error {
	return s.arb.Do(ctx, func(d device.Device) error { return d.SetOutput(false) })
}

func (s *ConnectionService) detach(ctx context.Context, desc string) error {
	old, err := s.arb.Swap(ctx, nil)
	if err != nil {
		return err
	}
	s.control.InvalidateLimits()

	s.mu.Lock()
	port := s.status.Port
	s.status = ConnectionStatus{}
	s.mu.Unlock()

	s.log.Infow("device_disconnected", "port", port)
	s.appendEvent(ctx, desc, map[string]any{"port": port})
	if old == nil {
		return nil
	}
	return old.Close()
}

func (s *ConnectionService) Status() ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	if st.Limits != nil {
		l := *st.Limits
		st.Limits = &l
	}
	st.Connected = s.arb.Connected()
	return st
}

func (s *ConnectionService) appendEvent(ctx context.Context, desc string, meta map[string]any) {
	err := s.eventRepo.Append(ctx, models.LoadEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  time.Now().UTC(),
		Type:        models.EventConnect,
		Description: desc,
		Metadata:    meta,
	})
	if err != nil {
		s.log.Errorw("append_event_failed", "description", desc, "error", err)
	}
}

package service

import (
	"time"

	"electronic_load/internal/config"
	"electronic_load/internal/logger"
)

// settingsStore is the persisted settings file.
type settingsStore interface {
	Settings() config.Settings
	Update(fn func(*config.Settings)) (config.Settings, error)
}

// intervalSetter is the part of the acquisition loop that follows
// polling.interval.
type intervalSetter interface {
	SetInterval(d time.Duration) error
}

// SettingsService reads and edits the settings file and applies changes to
// the running process. Serial parameters take effect on the next connect.
type SettingsService struct {
	store settingsStore
	acq   intervalSetter
	log   *logger.Logger
}

func NewSettingsService(store settingsStore, acq intervalSetter, log *logger.Logger) *SettingsService {
	return &SettingsService{store: store, acq: acq, log: log}
}

func (s *SettingsService) Settings() config.Settings {
	return s.store.Settings()
}

// Update validates and persists p, then applies the polling interval and
// log level.
func (s *SettingsService) Update(p SettingsPatch) (config.Settings, error) {
	next, err := s.store.Update(func(st *config.Settings) {
		if p.PollingInterval != nil {
			st.Polling.Interval = *p.PollingInterval
		}
		if p.OffOnDisconnect != nil {
			st.Safety.OffOnDisconnect = *p.OffOnDisconnect
		}
		if p.OffOnExit != nil {
			st.Safety.OffOnExit = *p.OffOnExit
		}
		if p.DevicePort != nil {
			st.Device.Port = *p.DevicePort
		}
		if p.BaudRate != nil {
			st.Device.BaudRate = *p.BaudRate
		}
		if p.RetentionSeconds != nil {
			st.Graph.RetentionSeconds = *p.RetentionSeconds
		}
		if p.Debug != nil {
			st.Log.Debug = *p.Debug
		}
	})
	if err != nil {
		return next, err
	}
	if err := s.acq.SetInterval(next.PollInterval()); err != nil {
		return next, err
	}
	s.log.SetDebug(next.Log.Debug)
	s.log.Infow("settings_updated",
		"polling_interval", next.Polling.Interval,
		"baud_rate", next.Device.BaudRate,
		"debug", next.Log.Debug,
	)
	return next, nil
}

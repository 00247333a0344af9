// Package config loads and persists the application settings file.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"electronic_load/internal/device"
	"electronic_load/internal/errs"

	"github.com/spf13/viper"
)

const DefaultPath = "configs/config.yml"

// Setting keys.
const (
	KeyPollingInterval = "polling.interval"
	KeyOffOnDisconnect = "safety.off_on_disconnect"
	KeyOffOnExit       = "safety.off_on_exit"
	KeyDevicePort      = "device.port"
	KeyBaudRate        = "device.baud_rate"
	KeySimulate        = "device.simulate"
	KeyDeviceTimeout   = "device.timeout"
	KeyGraphRetention  = "graph.retention_seconds"
	KeyLogDebug        = "log.debug"
	KeyHTTPPort        = "http.port"
	KeyDBPath          = "db.path"
	KeyAuthSigningKey  = "auth.signing_key"
	KeyAuthTokenTTL    = "auth.token_ttl"
)

const (
	minPollingInterval   = 0.05
	defaultBaudRate      = 115200
	defaultDeviceTimeout = 1.0
	minSigningKeyLen     = 16
	generatedKeyBytes    = 32
)

type Settings struct {
	Polling struct {
		Interval float64 `mapstructure:"interval" json:"interval"` // seconds
	} `mapstructure:"polling" json:"polling"`
	Safety struct {
		OffOnDisconnect bool `mapstructure:"off_on_disconnect" json:"off_on_disconnect"`
		OffOnExit       bool `mapstructure:"off_on_exit" json:"off_on_exit"`
	} `mapstructure:"safety" json:"safety"`
	Device struct {
		Port     string  `mapstructure:"port" json:"port"`
		BaudRate int     `mapstructure:"baud_rate" json:"baud_rate"`
		Simulate bool    `mapstructure:"simulate" json:"simulate"`
		Timeout  float64 `mapstructure:"timeout" json:"timeout"` // seconds
	} `mapstructure:"device" json:"device"`
	Graph struct {
		RetentionSeconds float64 `mapstructure:"retention_seconds" json:"retention_seconds"`
	} `mapstructure:"graph" json:"graph"`
	Log struct {
		Debug bool `mapstructure:"debug" json:"debug"`
	} `mapstructure:"log" json:"log"`
	HTTP struct {
		Port string `mapstructure:"port" json:"port"`
	} `mapstructure:"http" json:"http"`
	DB struct {
		Path string `mapstructure:"path" json:"path"`
	} `mapstructure:"db" json:"db"`
	Auth struct {
		SigningKey string        `mapstructure:"signing_key" json:"-"`
		TokenTTL   time.Duration `mapstructure:"token_ttl" json:"token_ttl"`
	} `mapstructure:"auth" json:"auth"`
}

// PollInterval returns the polling period as a duration.
func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.Polling.Interval * float64(time.Second))
}

// DeviceTimeout returns the serial read timeout as a duration.
func (s Settings) DeviceTimeout() time.Duration {
	return time.Duration(s.Device.Timeout * float64(time.Second))
}

// Validate checks every value a user can change.
func (s Settings) Validate() error {
	if s.Polling.Interval < minPollingInterval {
		return &errs.ValidationError{Field: KeyPollingInterval, Value: s.Polling.Interval, Bound: minPollingInterval, Rule: "min"}
	}
	if !slices.Contains(device.BaudRates, s.Device.BaudRate) {
		return &errs.ValidationError{Field: KeyBaudRate, Value: float64(s.Device.BaudRate), Rule: "unknown"}
	}
	if s.Device.Timeout <= 0 {
		return &errs.ValidationError{Field: KeyDeviceTimeout, Value: s.Device.Timeout, Rule: "positive"}
	}
	// the period must be at least a tenth of the read timeout
	if s.Polling.Interval < s.Device.Timeout/10 {
		return &errs.ValidationError{Field: KeyPollingInterval, Value: s.Polling.Interval, Bound: s.Device.Timeout / 10, Rule: "min"}
	}
	if s.Graph.RetentionSeconds <= 0 {
		return &errs.ValidationError{Field: KeyGraphRetention, Value: s.Graph.RetentionSeconds, Rule: "positive"}
	}
	if n := len(s.Auth.SigningKey); n < minSigningKeyLen {
		return &errs.ValidationError{Field: KeyAuthSigningKey, Value: float64(n), Bound: minSigningKeyLen, Rule: "min"}
	}
	return nil
}

// newSigningKey returns a random hex key for signing API tokens.
func newSigningKey() (string, error) {
	b := make([]byte, generatedKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate signing key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyPollingInterval, 0.5)
	v.SetDefault(KeyOffOnDisconnect, false)
	v.SetDefault(KeyOffOnExit, true)
	v.SetDefault(KeyDevicePort, "")
	v.SetDefault(KeyBaudRate, defaultBaudRate)
	v.SetDefault(KeySimulate, false)
	v.SetDefault(KeyDeviceTimeout, defaultDeviceTimeout)
	v.SetDefault(KeyGraphRetention, 30.0)
	v.SetDefault(KeyLogDebug, false)
	v.SetDefault(KeyHTTPPort, "8080")
	v.SetDefault(KeyDBPath, "app.db")
	v.SetDefault(KeyAuthSigningKey, "")
	v.SetDefault(KeyAuthTokenTTL, "12h")
}

// Store is the settings file plus its decoded form.
type Store struct {
	mu       sync.RWMutex
	v        *viper.Viper
	path     string
	created  bool
	settings Settings
}

// Load reads the settings file at path. When the file does not exist it is
// created with the defaults. Environment variables prefixed ELOAD_
// override file values (ELOAD_HTTP_PORT for http.port).
func Load(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("ELOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	s := &Store{v: v, path: path}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create config dir: %w", err)
		}
		if err := ensureSigningKey(v); err != nil {
			return nil, err
		}
		if err := v.SafeWriteConfigAs(path); err != nil {
			return nil, fmt.Errorf("write default config %q: %w", path, err)
		}
		s.created = true
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	// files written before keys were generated get one now, persisted so
	// issued tokens survive a restart
	if v.GetString(KeyAuthSigningKey) == "" {
		if err := ensureSigningKey(v); err != nil {
			return nil, err
		}
		if err := v.WriteConfigAs(path); err != nil {
			return nil, fmt.Errorf("write config %q: %w", path, err)
		}
	}

	var st Settings
	if err := v.Unmarshal(&st); err != nil {
		return nil, fmt.Errorf("decode config %q: %w", path, err)
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	s.settings = st
	return s, nil
}

func ensureSigningKey(v *viper.Viper) error {
	if v.GetString(KeyAuthSigningKey) != "" {
		return nil
	}
	key, err := newSigningKey()
	if err != nil {
		return err
	}
	v.Set(KeyAuthSigningKey, key)
	return nil
}

// Created reports whether Load wrote a fresh defaults file.
func (s *Store) Created() bool { return s.created }

func (s *Store) Path() string { return s.path }

func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update applies fn to a copy of the settings, validates the result and
// writes it to disk. Nothing changes when validation fails.
func (s *Store) Update(fn func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	fn(&next)
	if err := next.Validate(); err != nil {
		return s.settings, err
	}

	for key, val := range map[string]any{
		KeyPollingInterval: next.Polling.Interval,
		KeyOffOnDisconnect: next.Safety.OffOnDisconnect,
		KeyOffOnExit:       next.Safety.OffOnExit,
		KeyDevicePort:      next.Device.Port,
		KeyBaudRate:        next.Device.BaudRate,
		KeySimulate:        next.Device.Simulate,
		KeyDeviceTimeout:   next.Device.Timeout,
		KeyGraphRetention:  next.Graph.RetentionSeconds,
		KeyLogDebug:        next.Log.Debug,
	} {
		s.v.Set(key, val)
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return s.settings, fmt.Errorf("write config %q: %w", s.path, err)
	}
	s.settings = next
	return next, nil
}

// AllSettings returns the raw key tree, as written to disk.
func (s *Store) AllSettings() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.AllSettings()
}

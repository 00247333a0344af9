package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"electronic_load/internal/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FirstRunWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "config.yml")

	s, err := Load(path)
	require.NoError(t, err)
	assert.True(t, s.Created())

	_, err = os.Stat(path)
	require.NoError(t, err, "defaults must be persisted")

	st := s.Settings()
	assert.Equal(t, 0.5, st.Polling.Interval)
	assert.Equal(t, 500*time.Millisecond, st.PollInterval())
	assert.False(t, st.Safety.OffOnDisconnect)
	assert.True(t, st.Safety.OffOnExit)
	assert.Equal(t, 115200, st.Device.BaudRate)
	assert.Equal(t, 30.0, st.Graph.RetentionSeconds)
	assert.False(t, st.Log.Debug)
	assert.Equal(t, 12*time.Hour, st.Auth.TokenTTL)
	assert.Len(t, st.Auth.SigningKey, 2*generatedKeyBytes)

	again, err := Load(path)
	require.NoError(t, err)
	assert.False(t, again.Created())
	assert.Equal(t, st, again.Settings())
}

func TestLoad_ReadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := "polling:\n  interval: 0.25\ndevice:\n  baud_rate: 9600\n  port: /dev/ttyACM0\nsafety:\n  off_on_disconnect: true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	st := s.Settings()
	assert.Equal(t, 0.25, st.Polling.Interval)
	assert.Equal(t, 9600, st.Device.BaudRate)
	assert.Equal(t, "/dev/ttyACM0", st.Device.Port)
	assert.True(t, st.Safety.OffOnDisconnect)
	assert.True(t, st.Safety.OffOnExit, "missing keys fall back to defaults")
}

func TestLoad_RejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("device:\n  baud_rate: 1234\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	ve, ok := errs.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, KeyBaudRate, ve.Field)
}

func TestStore_UpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	s, err := Load(path)
	require.NoError(t, err)

	got, err := s.Update(func(st *Settings) {
		st.Polling.Interval = 1
		st.Log.Debug = true
		st.Device.BaudRate = 57600
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Polling.Interval)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1.0, reloaded.Settings().Polling.Interval)
	assert.True(t, reloaded.Settings().Log.Debug)
	assert.Equal(t, 57600, reloaded.Settings().Device.BaudRate)
}

func TestStore_UpdateRejectsInvalid(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "config.yml"))
	require.NoError(t, err)
	before := s.Settings()

	cases := map[string]func(*Settings){
		"interval below minimum": func(st *Settings) { st.Polling.Interval = 0.01 },
		"zero interval":          func(st *Settings) { st.Polling.Interval = 0 },
		"unsupported baud":       func(st *Settings) { st.Device.BaudRate = 4800 },
		"zero retention":         func(st *Settings) { st.Graph.RetentionSeconds = 0 },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Update(fn)
			_, ok := errs.AsValidation(err)
			assert.True(t, ok, "want ValidationError, got %v", err)
			assert.Equal(t, before, s.Settings())
		})
	}
}

func TestLoad_SigningKeyPerInstall(t *testing.T) {
	a, err := Load(filepath.Join(t.TempDir(), "config.yml"))
	require.NoError(t, err)
	b, err := Load(filepath.Join(t.TempDir(), "config.yml"))
	require.NoError(t, err)
	assert.NotEqual(t, a.Settings().Auth.SigningKey, b.Settings().Auth.SigningKey)
}

func TestLoad_MissingSigningKeyIsGeneratedAndKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("polling:\n  interval: 0.5\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	key := s.Settings().Auth.SigningKey
	require.Len(t, key, 2*generatedKeyBytes)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), key)

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, key, again.Settings().Auth.SigningKey)
}

func TestLoad_RejectsWeakSigningKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  signing_key: change-me\n"), 0o644))

	_, err := Load(path)
	ve, ok := errs.AsValidation(err)
	require.True(t, ok, "want ValidationError, got %v", err)
	assert.Equal(t, KeyAuthSigningKey, ve.Field)
}

func TestLoad_SigningKeyFromEnvironment(t *testing.T) {
	t.Setenv("ELOAD_AUTH_SIGNING_KEY", "0123456789abcdef0123")
	s, err := Load(filepath.Join(t.TempDir(), "config.yml"))
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123", s.Settings().Auth.SigningKey)
}

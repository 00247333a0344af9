package service

import (
	"path/filepath"
	"testing"
	"time"

	"electronic_load/internal/config"
	"electronic_load/internal/errs"
	"electronic_load/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingIntervalSetter struct{ got []time.Duration }

func (r *recordingIntervalSetter) SetInterval(d time.Duration) error {
	r.got = append(r.got, d)
	return nil
}

func newSettingsFixture(t *testing.T) (*SettingsService, *config.Store, *recordingIntervalSetter, *logger.Logger) {
	t.Helper()
	store, err := config.Load(filepath.Join(t.TempDir(), "config.yml"))
	require.NoError(t, err)
	acq := &recordingIntervalSetter{}
	log := logger.Nop()
	return NewSettingsService(store, acq, log), store, acq, log
}

func ptr[T any](v T) *T { return &v }

func TestSettingsService_UpdateAppliesAndPersists(t *testing.T) {
	svc, store, acq, log := newSettingsFixture(t)

	got, err := svc.Update(SettingsPatch{
		PollingInterval: ptr(0.25),
		OffOnDisconnect: ptr(true),
		BaudRate:        ptr(9600),
		Debug:           ptr(true),
	})
	require.NoError(t, err)

	assert.Equal(t, 0.25, got.Polling.Interval)
	assert.True(t, got.Safety.OffOnDisconnect)
	assert.True(t, got.Safety.OffOnExit, "untouched field keeps its default")
	assert.Equal(t, 9600, got.Device.BaudRate)
	assert.Equal(t, []time.Duration{250 * time.Millisecond}, acq.got)
	assert.True(t, log.DebugEnabled())

	reloaded, err := config.Load(store.Path())
	require.NoError(t, err)
	assert.Equal(t, 0.25, reloaded.Settings().Polling.Interval)
	assert.Equal(t, 9600, reloaded.Settings().Device.BaudRate)
}

func TestSettingsService_UpdateRejectsInvalid(t *testing.T) {
	svc, _, acq, _ := newSettingsFixture(t)
	before := svc.Settings()

	_, err := svc.Update(SettingsPatch{PollingInterval: ptr(0.01)})
	require.Error(t, err)
	_, ok := errs.AsValidation(err)
	assert.True(t, ok, "want ValidationError, got %T", err)

	assert.Equal(t, before, svc.Settings())
	assert.Empty(t, acq.got)
}

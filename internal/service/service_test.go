package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"electronic_load/internal/config"
	"electronic_load/internal/device"
	"electronic_load/internal/logger"
	"electronic_load/internal/models"
	"electronic_load/internal/repository"
	"electronic_load/internal/repository/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_EndToEndWithSimulator(t *testing.T) {
	dir := t.TempDir()
	store, err := config.Load(filepath.Join(dir, "config.yml"))
	require.NoError(t, err)
	_, err = store.Update(func(s *config.Settings) { s.Device.Simulate = true })
	require.NoError(t, err)

	conn, err := db.InitDB(filepath.Join(dir, "load.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	repos := repository.NewRepository(conn)

	opener := device.OpenerFunc(func(string) (device.Device, error) { return device.NewSimulator(nil), nil })
	svc := NewService(repos, store, opener, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(runDone)
	}()
	t.Cleanup(func() {
		cancel()
		<-runDone
	})

	sub := svc.Subscribe()
	defer sub.Close()

	_, err = svc.Connection.Connect(ctx, "")
	require.NoError(t, err)
	require.NoError(t, svc.Control.Start(ctx, true))

	// a fresh run publishes telemetry through the hub
	deadline := time.After(3 * time.Second)
	for running := false; !running; {
		select {
		case m := <-sub.C():
			running = m.Type == MessageTelemetry && m.Telemetry.RunState == models.Running
		case <-deadline:
			t.Fatal("no running telemetry received")
		}
	}

	tel, err := svc.Monitoring.Telemetry(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Running, tel.RunState)

	// the recorder persists the run start
	require.Eventually(t, func() bool {
		evs, err := svc.EventLog.List(ctx, LogFilter{Type: models.EventStart})
		return err == nil && len(evs) == 1
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, svc.Shutdown(ctx))
	assert.False(t, svc.Connection.Status().Connected)
}

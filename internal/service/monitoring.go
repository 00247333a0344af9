package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"electronic_load/internal/errs"
	"electronic_load/internal/export"
	"electronic_load/internal/models"
	"electronic_load/internal/repository"
)

// MonitoringService serves read-only views of the engine's results. Reads
// never touch the device.
type MonitoringService struct {
	acc       *Accumulator
	stateRepo repository.StateRepo
	settings  SettingsSource
	now       func() time.Time
}

func NewMonitoringService(acc *Accumulator, stateRepo repository.StateRepo, settings SettingsSource) *MonitoringService {
	return &MonitoringService{acc: acc, stateRepo: stateRepo, settings: settings, now: time.Now}
}

// Telemetry returns the latest telemetry record. Before the first completed
// poll cycle it falls back to the last persisted state, or a stopped zero
// record when nothing was persisted yet.
func (s *MonitoringService) Telemetry(ctx context.Context) (models.Telemetry, error) {
	if s.acc.Cycles() > 0 {
		return s.acc.Telemetry(), nil
	}
	state, err := s.stateRepo.Load(ctx)
	if err != nil {
		return models.Telemetry{}, err
	}
	if state.ID == 0 {
		return s.baseline(), nil
	}
	t := state.Telemetry()
	t.RunState = models.Stopped
	t.UpdatedAt = normalizeToUTC(t.UpdatedAt)
	return t, nil
}

// Series returns the recorded series trimmed to the last window seconds.
// A zero window uses graph.retention_seconds.
func (s *MonitoringService) Series(window float64) (models.SeriesSet, error) {
	if window < 0 {
		return models.SeriesSet{}, &errs.ValidationError{Field: "window", Value: window, Rule: "min"}
	}
	if window == 0 {
		window = s.settings.Settings().Graph.RetentionSeconds
	}
	return s.acc.Series(window), nil
}

// Export writes the whole series of the given kind as CSV.
func (s *MonitoringService) Export(w io.Writer, kind models.SeriesKind) error {
	samples := s.acc.Series(0).Get(kind)
	if err := export.CSV(w, samples); err != nil {
		return fmt.Errorf("export %s: %w", kind, err)
	}
	return nil
}

// RestoreLastRun seeds the accumulator with the persisted totals and run
// clock so a restarted process can resume the previous run. It reports
// whether anything was restored.
func (s *MonitoringService) RestoreLastRun(ctx context.Context) (bool, error) {
	state, err := s.stateRepo.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load last state: %w", err)
	}
	if state.ID == 0 || (state.ChargeAh == 0 && state.EnergyWh == 0 && state.ElapsedSeconds == 0) {
		return false, nil
	}
	s.acc.Restore(models.Totals{ChargeAh: state.ChargeAh, EnergyWh: state.EnergyWh}, state.ElapsedSeconds)
	return true, nil
}

func (s *MonitoringService) baseline() models.Telemetry {
	return models.Telemetry{
		RunState:     models.Stopped,
		ChargeSource: models.ChargeEstimated,
		UpdatedAt:    s.now().UTC(),
	}
}

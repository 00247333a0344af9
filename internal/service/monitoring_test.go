package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"electronic_load/internal/config"
	"electronic_load/internal/errs"
	"electronic_load/internal/models"
)

// fakeStateRepo satisfies repository.StateRepo and keeps every save.
type fakeStateRepo struct {
	mu      sync.Mutex
	loaded  models.LoadState
	loadErr error
	saveErr error
	saved   []models.LoadState
}

func (f *fakeStateRepo) Load(ctx context.Context) (models.LoadState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded, f.loadErr
}

func (f *fakeStateRepo) Save(ctx context.Context, s models.LoadState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, s)
	return nil
}

func (f *fakeStateRepo) Saved() []models.LoadState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.LoadState(nil), f.saved...)
}

// staticSettings serves a fixed configuration.
type staticSettings struct{ s config.Settings }

func (s staticSettings) Settings() config.Settings { return s.s }

func testSettings() config.Settings {
	var s config.Settings
	s.Polling.Interval = 0.5
	s.Device.BaudRate = 115200
	s.Device.Timeout = 1
	s.Graph.RetentionSeconds = 30
	s.Safety.OffOnExit = true
	return s
}

func TestMonitoringService_Telemetry(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2025, 5, 5, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		repo    *fakeStateRepo
		applied bool
		check   func(t *testing.T, got models.Telemetry, err error)
	}{
		{
			name: "repository error before first cycle",
			repo: &fakeStateRepo{loadErr: errors.New("db down")},
			check: func(t *testing.T, got models.Telemetry, err error) {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
			},
		},
		{
			name: "baseline when nothing persisted",
			repo: &fakeStateRepo{},
			check: func(t *testing.T, got models.Telemetry, err error) {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.RunState != models.Stopped || got.Totals != (models.Totals{}) {
					t.Fatalf("unexpected baseline: %+v", got)
				}
				if !got.UpdatedAt.Equal(fixed) {
					t.Fatalf("UpdatedAt: want %v, got %v", fixed, got.UpdatedAt)
				}
			},
		},
		{
			name: "persisted state shown as stopped in UTC",
			repo: &fakeStateRepo{loaded: models.LoadState{
				ID:             1,
				RunState:       models.Running,
				Mode:           models.ModeConstantPower,
				Voltage:        11.9,
				ChargeAh:       1.25,
				EnergyWh:       15,
				ElapsedSeconds: 3600,
				UpdatedAt:      time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("X", -3*3600)),
			}},
			check: func(t *testing.T, got models.Telemetry, err error) {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.RunState != models.Stopped {
					t.Errorf("RunState: want STOPPED, got %s", got.RunState)
				}
				if got.Mode != models.ModeConstantPower || got.Totals.ChargeAh != 1.25 || got.RuntimeSeconds != 3600 {
					t.Errorf("unexpected fields: %+v", got)
				}
				want := time.Date(2025, 1, 2, 6, 4, 5, 0, time.UTC)
				if !got.UpdatedAt.Equal(want) || got.UpdatedAt.Location() != time.UTC {
					t.Errorf("UpdatedAt: want %v, got %v", want, got.UpdatedAt)
				}
			},
		},
		{
			name:    "live telemetry once a cycle completed",
			repo:    &fakeStateRepo{loadErr: errors.New("must not be read")},
			applied: true,
			check: func(t *testing.T, got models.Telemetry, err error) {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.Cycle != 1 || got.Voltage != 5 || got.RunState != models.Running {
					t.Fatalf("unexpected live telemetry: %+v", got)
				}
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			acc := NewAccumulator()
			if tc.applied {
				acc.Apply(ccSnap(0, 5, 2, 10, true))
			}
			svc := NewMonitoringService(acc, tc.repo, staticSettings{testSettings()})
			svc.now = func() time.Time { return fixed }

			got, err := svc.Telemetry(context.Background())
			tc.check(t, got, err)
		})
	}
}

func TestMonitoringService_Series(t *testing.T) {
	acc := NewAccumulator()
	for sec := 0.0; sec <= 60; sec += 10 {
		acc.Apply(ccSnap(sec, 5, 1, 5, true))
	}
	svc := NewMonitoringService(acc, &fakeStateRepo{}, staticSettings{testSettings()})

	def, err := svc.Series(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// retention 30 s keeps the samples at 30, 40, 50 and 60
	if len(def.Voltage) != 4 || def.Voltage[0].Elapsed != 30 {
		t.Fatalf("default window: got %+v", def.Voltage)
	}

	narrow, err := svc.Series(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(narrow.Current) != 2 {
		t.Fatalf("10 s window: got %+v", narrow.Current)
	}

	if _, err := svc.Series(-1); err == nil {
		t.Fatalf("expected error for negative window")
	} else if _, ok := errs.AsValidation(err); !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestMonitoringService_Export(t *testing.T) {
	acc := NewAccumulator()
	for _, sec := range []float64{0, 1, 2} {
		acc.Apply(ccSnap(sec, 5, 2, 10, true))
	}
	svc := NewMonitoringService(acc, &fakeStateRepo{}, staticSettings{testSettings()})

	var buf bytes.Buffer
	if err := svc.Export(&buf, models.SeriesPower); err != nil {
		t.Fatalf("Export: %v", err)
	}
	want := "Time,Value\n0.000000,0.000000\n1.000000,10.000000\n2.000000,10.000000\n"
	if buf.String() != want {
		t.Fatalf("unexpected csv:\n%s", buf.String())
	}
	if n := strings.Count(buf.String(), "\n"); n != 4 {
		t.Fatalf("rows: want 4, got %d", n)
	}
}

func TestMonitoringService_RestoreLastRun(t *testing.T) {
	t.Run("nothing persisted", func(t *testing.T) {
		acc := NewAccumulator()
		svc := NewMonitoringService(acc, &fakeStateRepo{}, staticSettings{testSettings()})
		ok, err := svc.RestoreLastRun(context.Background())
		if err != nil || ok {
			t.Fatalf("want (false, nil), got (%v, %v)", ok, err)
		}
	})

	t.Run("totals and clock restored", func(t *testing.T) {
		acc := NewAccumulator()
		repo := &fakeStateRepo{loaded: models.LoadState{ID: 1, ChargeAh: 0.5, EnergyWh: 6, ElapsedSeconds: 120}}
		svc := NewMonitoringService(acc, repo, staticSettings{testSettings()})

		ok, err := svc.RestoreLastRun(context.Background())
		if err != nil || !ok {
			t.Fatalf("want (true, nil), got (%v, %v)", ok, err)
		}
		if got := acc.Totals(); got.ChargeAh != 0.5 || got.EnergyWh != 6 {
			t.Fatalf("unexpected totals: %+v", got)
		}

		// resuming continues the clock at 120 s
		acc.Apply(ccSnap(0, 5, 1, 5, true))
		tel := acc.Apply(ccSnap(10, 5, 1, 5, true))
		if tel.RuntimeSeconds != 130 {
			t.Fatalf("runtime: want 130, got %v", tel.RuntimeSeconds)
		}
	})

	t.Run("load error", func(t *testing.T) {
		svc := NewMonitoringService(NewAccumulator(), &fakeStateRepo{loadErr: errors.New("boom")}, staticSettings{testSettings()})
		if _, err := svc.RestoreLastRun(context.Background()); err == nil {
			t.Fatalf("expected error")
		}
	})
}

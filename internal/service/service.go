package service

import (
	"context"
	"io"
	"sync"
	"time"

	"electronic_load/internal/arbiter"
	"electronic_load/internal/config"
	"electronic_load/internal/device"
	"electronic_load/internal/logger"
	"electronic_load/internal/models"
	"electronic_load/internal/repository"
)

const (
	hubQueueLen      = 16
	recorderQueueLen = 64
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Control issues commands to the device through the shared connection.
type Control interface {
	Start(ctx context.Context, fresh bool) error
	Stop(ctx context.Context) error
	ClearSeries(ctx context.Context)
	ApplySetpoint(ctx context.Context, sp models.Setpoint) error
	Trigger(ctx context.Context) error

	Limits(ctx context.Context) (models.Limits, error)
	SetLimits(ctx context.Context, l models.Limits) (models.Limits, error)
	ResetLimits(ctx context.Context) (models.Limits, error)

	BatteryProfile(ctx context.Context, slot int) (models.BatteryProfile, error)
	SetBatteryProfile(ctx context.Context, p models.BatteryProfile) error
	OCPProfile(ctx context.Context, slot int) (models.OCPProfile, error)
	SetOCPProfile(ctx context.Context, p models.OCPProfile) error
	OPPProfile(ctx context.Context, slot int) (models.OPPProfile, error)
	SetOPPProfile(ctx context.Context, p models.OPPProfile) error
	ListProfile(ctx context.Context, slot int) (models.ListProfile, error)
	SetListProfile(ctx context.Context, p models.ListProfile) error
	ValidateDynamic(ctx context.Context, p models.DynamicProfile) error
	SetDynamic(ctx context.Context, p models.DynamicProfile) error
	Validate(p Validator) error

	InitSlots(ctx context.Context) error
	SaveMemory(ctx context.Context, slot int) error
	RecallMemory(ctx context.Context, slot int) error
	FactoryReset(ctx context.Context) error

	DeviceSettings(ctx context.Context) (models.DeviceSettings, error)
	SetDeviceSettings(ctx context.Context, st models.DeviceSettings) error
}

// Monitoring exposes read-only views of telemetry and series.
type Monitoring interface {
	Telemetry(ctx context.Context) (models.Telemetry, error)
	Series(window float64) (models.SeriesSet, error)
	Export(w io.Writer, kind models.SeriesKind) error
}

type Connection interface {
	Connect(ctx context.Context, port string) (ConnectionStatus, error)
	Disconnect(ctx context.Context) error
	Status() ConnectionStatus
}

// Acquisition controls the background polling loop.
type Acquisition interface {
	Halt()
	Resume()
	Status() AcquisitionStatus
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.LoadEvent, error)
}

type Settings interface {
	Settings() config.Settings
	Update(p SettingsPatch) (config.Settings, error)
}

// Stream hands out live telemetry subscriptions.
type Stream interface {
	Subscribe() *Subscription
}

// Service aggregates all sub-services.
type Service struct {
	Control
	Monitoring
	Connection
	Acquisition
	EventLog
	Settings
	Stream
	Authorization

	engine *engine
}

// engine holds the concrete parts the process entry point drives.
type engine struct {
	acc        *Accumulator
	acq        *AcquisitionService
	recorder   *Recorder
	conn       *ConnectionService
	monitoring *MonitoringService
	log        *logger.Logger
}

// NewService wires the repositories, the settings file and the device
// opener into the engine and its sub-services.
func NewService(repos *repository.Repository, store *config.Store, opener device.Opener, log *logger.Logger) *Service {
	st := store.Settings()

	arb := arbiter.New(nil)
	acc := NewAccumulator()
	hub := NewHub(hubQueueLen)
	recorder := NewRecorder(repos.StateRepo, repos.EventRepo, log, recorderQueueLen)

	acq := NewAcquisitionService(NewSampler(arb, time.Now), acc, arb, log, hub, recorder)
	if err := acq.SetInterval(st.PollInterval()); err != nil {
		log.Warnw("poll_interval_rejected", "interval", st.Polling.Interval, "error", err)
	}

	control := NewControlService(arb, acc, repos.EventRepo, log, time.Now)
	conn := NewConnectionService(arb, opener, control, store, repos.EventRepo, log)
	monitoring := NewMonitoringService(acc, repos.StateRepo, store)

	return &Service{
		Control:       control,
		Monitoring:    monitoring,
		Connection:    conn,
		Acquisition:   acq,
		EventLog:      NewEventLogService(repos.EventRepo),
		Settings:      NewSettingsService(store, acq, log),
		Stream:        hub,
		Authorization: NewAuthService(repos.Auth, st.Auth.SigningKey, st.Auth.TokenTTL),
		engine: &engine{
			acc:        acc,
			acq:        acq,
			recorder:   recorder,
			conn:       conn,
			monitoring: monitoring,
			log:        log,
		},
	}
}

// Run restores the previous run's totals and drives the polling loop and
// the recorder until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	e := s.engine
	if ok, err := e.monitoring.RestoreLastRun(ctx); err != nil {
		e.log.Warnw("restore_failed", "error", err)
	} else if ok {
		t := e.acc.Totals()
		e.log.Infow("run_restored", "charge_ah", t.ChargeAh, "energy_wh", t.EnergyWh)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.recorder.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		e.acq.Run(ctx)
	}()
	wg.Wait()
}

// Shutdown applies the exit safety policy and releases the device.
func (s *Service) Shutdown(ctx context.Context) error {
	e := s.engine
	return e.conn.Shutdown(ctx, e.acc.RunState() == models.Running)
}

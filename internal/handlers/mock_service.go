package handlers

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"electronic_load/internal/config"
	"electronic_load/internal/device"
	"electronic_load/internal/models"
	"electronic_load/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

// mockControl records the last call of each kind. err is returned by every
// method.
type mockControl struct {
	err error

	calls        []string
	lastFresh    bool
	lastSetpoint models.Setpoint
	lastLimits   models.Limits
	lastSlot     int
	lastProfile  any

	limits  models.Limits
	battery models.BatteryProfile
	system  models.DeviceSettings
}

func (m *mockControl) call(name string) error {
	m.calls = append(m.calls, name)
	return m.err
}

func (m *mockControl) Start(ctx context.Context, fresh bool) error {
	m.lastFresh = fresh
	return m.call("Start")
}
func (m *mockControl) Stop(ctx context.Context) error  { return m.call("Stop") }
func (m *mockControl) ClearSeries(ctx context.Context) { _ = m.call("ClearSeries") }
func (m *mockControl) ApplySetpoint(ctx context.Context, sp models.Setpoint) error {
	m.lastSetpoint = sp
	return m.call("ApplySetpoint")
}
func (m *mockControl) Trigger(ctx context.Context) error { return m.call("Trigger") }

func (m *mockControl) Limits(ctx context.Context) (models.Limits, error) {
	return m.limits, m.call("Limits")
}
func (m *mockControl) SetLimits(ctx context.Context, l models.Limits) (models.Limits, error) {
	m.lastLimits = l
	return l, m.call("SetLimits")
}
func (m *mockControl) ResetLimits(ctx context.Context) (models.Limits, error) {
	return models.DefaultLimits, m.call("ResetLimits")
}

func (m *mockControl) BatteryProfile(ctx context.Context, slot int) (models.BatteryProfile, error) {
	m.lastSlot = slot
	return m.battery, m.call("BatteryProfile")
}
func (m *mockControl) SetBatteryProfile(ctx context.Context, p models.BatteryProfile) error {
	m.lastProfile = p
	return m.call("SetBatteryProfile")
}
func (m *mockControl) OCPProfile(ctx context.Context, slot int) (models.OCPProfile, error) {
	m.lastSlot = slot
	return models.OCPProfile{Slot: slot}, m.call("OCPProfile")
}
func (m *mockControl) SetOCPProfile(ctx context.Context, p models.OCPProfile) error {
	m.lastProfile = p
	return m.call("SetOCPProfile")
}
func (m *mockControl) OPPProfile(ctx context.Context, slot int) (models.OPPProfile, error) {
	m.lastSlot = slot
	return models.OPPProfile{Slot: slot}, m.call("OPPProfile")
}
func (m *mockControl) SetOPPProfile(ctx context.Context, p models.OPPProfile) error {
	m.lastProfile = p
	return m.call("SetOPPProfile")
}
func (m *mockControl) ListProfile(ctx context.Context, slot int) (models.ListProfile, error) {
	m.lastSlot = slot
	return models.ListProfile{Slot: slot}, m.call("ListProfile")
}
func (m *mockControl) SetListProfile(ctx context.Context, p models.ListProfile) error {
	m.lastProfile = p
	return m.call("SetListProfile")
}
func (m *mockControl) ValidateDynamic(ctx context.Context, p models.DynamicProfile) error {
	m.lastProfile = p
	return m.call("ValidateDynamic")
}
func (m *mockControl) SetDynamic(ctx context.Context, p models.DynamicProfile) error {
	m.lastProfile = p
	return m.call("SetDynamic")
}

// Validate runs the real profile checks, like the service does.
func (m *mockControl) Validate(p service.Validator) error {
	m.lastProfile = p
	m.calls = append(m.calls, "Validate")
	return p.Validate()
}

func (m *mockControl) InitSlots(ctx context.Context) error { return m.call("InitSlots") }
func (m *mockControl) SaveMemory(ctx context.Context, slot int) error {
	m.lastSlot = slot
	return m.call("SaveMemory")
}
func (m *mockControl) RecallMemory(ctx context.Context, slot int) error {
	m.lastSlot = slot
	return m.call("RecallMemory")
}
func (m *mockControl) FactoryReset(ctx context.Context) error { return m.call("FactoryReset") }

func (m *mockControl) DeviceSettings(ctx context.Context) (models.DeviceSettings, error) {
	return m.system, m.call("DeviceSettings")
}

// SetDeviceSettings validates like the service before recording.
func (m *mockControl) SetDeviceSettings(ctx context.Context, st models.DeviceSettings) error {
	if err := st.Validate(device.BaudRates); err != nil {
		return err
	}
	m.system = st
	return m.call("SetDeviceSettings")
}

type mockMonitoring struct {
	telemetry  models.Telemetry
	err        error
	series     models.SeriesSet
	seriesErr  error
	lastWindow float64
	csv        string
}

func (m *mockMonitoring) Telemetry(ctx context.Context) (models.Telemetry, error) {
	return m.telemetry, m.err
}
func (m *mockMonitoring) Series(window float64) (models.SeriesSet, error) {
	m.lastWindow = window
	return m.series, m.seriesErr
}
func (m *mockMonitoring) Export(w io.Writer, kind models.SeriesKind) error {
	_, err := io.WriteString(w, m.csv)
	return err
}

type mockConnection struct {
	status   service.ConnectionStatus
	err      error
	lastPort string
	closed   int
}

func (m *mockConnection) Connect(ctx context.Context, port string) (service.ConnectionStatus, error) {
	m.lastPort = port
	return m.status, m.err
}
func (m *mockConnection) Disconnect(ctx context.Context) error {
	m.closed++
	return m.err
}
func (m *mockConnection) Status() service.ConnectionStatus { return m.status }

type mockAcquisition struct {
	mu     sync.Mutex
	halted bool
}

func (m *mockAcquisition) Halt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halted = true
}
func (m *mockAcquisition) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halted = false
}
func (m *mockAcquisition) Status() service.AcquisitionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return service.AcquisitionStatus{Halted: m.halted, IntervalSec: 0.5}
}

type mockEventLog struct {
	resp     []models.LoadEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.LoadEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

type mockSettings struct {
	settings  config.Settings
	err       error
	lastPatch service.SettingsPatch
}

func (m *mockSettings) Settings() config.Settings { return m.settings }
func (m *mockSettings) Update(p service.SettingsPatch) (config.Settings, error) {
	m.lastPatch = p
	if m.err != nil {
		return config.Settings{}, m.err
	}
	if p.PollingInterval != nil {
		m.settings.Polling.Interval = *p.PollingInterval
	}
	return m.settings, nil
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"electronic_load/internal/models"
	"electronic_load/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// --- parseInterval unit tests ---

func TestParseInterval(t *testing.T) {
	h := NewHandler(&service.Service{}, nil)

	cases := []struct {
		name string
		u    string
		want time.Duration
	}{
		{"default_when_missing", "/ws", 1 * time.Second},
		{"interval_string_valid", "/ws?interval=200ms", 200 * time.Millisecond},
		{"interval_ms_valid", "/ws?interval_ms=150", 150 * time.Millisecond},
		{"interval_too_large", "/ws?interval=20s", 1 * time.Second},
		{"interval_ms_too_large", "/ws?interval_ms=20000", 1 * time.Second},
		{"interval_invalid_string", "/ws?interval=bogus", 1 * time.Second},
		{"interval_ms_invalid", "/ws?interval_ms=NaN", 1 * time.Second},
		{"both_present_interval_wins", "/ws?interval=2s&interval_ms=150", 2 * time.Second},
		{"both_present_invalid_interval_ms_used", "/ws?interval=bogus&interval_ms=250", 250 * time.Millisecond},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.u, nil)
			c, _ := gin.CreateTestContext(w)
			c.Request = req
			got := h.parseInterval(c)
			if got != tc.want {
				t.Fatalf("got %v, want %v for %s", got, tc.want, tc.u)
			}
		})
	}
}

// --- websocket integration tests ---

type envelope struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func dialStream(t *testing.T, s *service.Service, query url.Values) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(s, nil)
	r.GET("/ws", h.wsConnect)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	u.RawQuery = query.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func waitSubscribed(t *testing.T, hub *service.Hub) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocket_InitialThenStreamed(t *testing.T) {
	mon := &mockMonitoring{telemetry: models.Telemetry{
		Mode:     models.ModeConstantCurrent,
		Voltage:  12.1,
		RunState: models.Stopped,
	}}
	hub := service.NewHub(8)
	s := &service.Service{Monitoring: mon, Stream: hub}

	conn := dialStream(t, s, url.Values{"interval_ms": {"20"}})

	env := readEnvelope(t, conn)
	if env.Type != service.MessageTelemetry || len(env.Data) == 0 {
		t.Fatalf("bad envelope: %+v", env)
	}
	var first models.Telemetry
	if err := json.Unmarshal(env.Data, &first); err != nil {
		t.Fatalf("unmarshal telemetry: %v", err)
	}
	if first.Mode != models.ModeConstantCurrent || first.Voltage != 12.1 {
		t.Fatalf("unexpected telemetry: %+v", first)
	}

	waitSubscribed(t, hub)
	hub.Publish(models.Telemetry{Cycle: 7, Voltage: 11.8, RunState: models.Running})

	env = readEnvelope(t, conn)
	var next models.Telemetry
	if err := json.Unmarshal(env.Data, &next); err != nil {
		t.Fatalf("unmarshal telemetry: %v", err)
	}
	if env.Type != service.MessageTelemetry || next.Cycle != 7 || next.RunState != models.Running {
		t.Fatalf("unexpected streamed telemetry: %+v", next)
	}
}

func TestWebSocket_CoalescesTelemetry(t *testing.T) {
	hub := service.NewHub(16)
	s := &service.Service{Monitoring: &mockMonitoring{}, Stream: hub}

	conn := dialStream(t, s, url.Values{"interval": {"300ms"}})
	readEnvelope(t, conn)
	waitSubscribed(t, hub)

	for i := uint64(1); i <= 5; i++ {
		hub.Publish(models.Telemetry{Cycle: i})
	}

	env := readEnvelope(t, conn)
	var got models.Telemetry
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("unmarshal telemetry: %v", err)
	}
	if got.Cycle != 5 {
		t.Fatalf("expected only the newest telemetry, got cycle %d", got.Cycle)
	}
}

func TestWebSocket_ErrorsSentImmediately(t *testing.T) {
	hub := service.NewHub(8)
	s := &service.Service{Monitoring: &mockMonitoring{}, Stream: hub}

	// a long interval: the error must not wait for a tick
	conn := dialStream(t, s, url.Values{"interval": {"10s"}})
	readEnvelope(t, conn)
	waitSubscribed(t, hub)

	hub.PublishError(models.PollError{Op: "read voltage", Kind: "TIMEOUT", Message: "no reply", At: time.Now()})

	env := readEnvelope(t, conn)
	if env.Type != service.MessageError || env.Error != "no reply" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	var pe models.PollError
	if err := json.Unmarshal(env.Data, &pe); err != nil {
		t.Fatalf("unmarshal poll error: %v", err)
	}
	if pe.Kind != "TIMEOUT" || pe.Op != "read voltage" {
		t.Fatalf("unexpected poll error: %+v", pe)
	}
}

func TestWebSocket_InitialTelemetryError_Closes(t *testing.T) {
	mon := &mockMonitoring{err: errors.New("boom")}
	s := &service.Service{Monitoring: mon, Stream: service.NewHub(1)}

	conn := dialStream(t, s, nil)

	_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	var raw json.RawMessage
	if err := conn.ReadJSON(&raw); err == nil {
		t.Fatalf("expected read error (closed), got message: %s", string(raw))
	}
}

package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"electronic_load/internal/models"
	"electronic_load/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMsgSize       = 1 << 12 // 4 KB
	defaultInterval  = 1 * time.Second
	maxInterval      = 10 * time.Second
	maxIntervalMilli = 10_000 // 10s in ms
)

// Envelope used for WebSocket messages.
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origins once the UI host is configurable
}

// @Summary      Telemetry stream
// @Description  WebSocket. Sends the current telemetry on connect, then at most one telemetry message per interval. Poll errors are sent as soon as they happen.
// @Tags         stream
// @Param        interval      query  string  false  "Push interval, e.g. 500ms (max 10s)"
// @Param        interval_ms   query  int     false  "Push interval in milliseconds"
// @Param        access_token  query  string  false  "Token for clients that cannot set headers"
// @Router       /ws [get]
// @Security     BearerAuth
func (h *Handler) wsConnect(c *gin.Context) {
	interval := h.parseInterval(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	// Configure read limits and pong handler to extend read deadline.
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go h.startReader(conn, done)

	ctx := c.Request.Context()
	if err := h.sendInitial(ctx, conn); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err)
		}
		return
	}

	sub := h.services.Stream.Subscribe()
	defer sub.Close()

	ticker := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	// only the newest telemetry is kept between ticks
	var pending *models.Telemetry
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			switch msg.Type {
			case service.MessageTelemetry:
				pending = msg.Telemetry
			case service.MessageError:
				if err := writeEnvelope(conn, wsEnvelope{Type: service.MessageError, Data: msg.Error, Error: msg.Error.Message}); err != nil {
					h.wsWriteFailed(err)
					return
				}
			}
		case <-ticker.C:
			if pending == nil {
				continue
			}
			if err := writeEnvelope(conn, wsEnvelope{Type: service.MessageTelemetry, Data: pending}); err != nil {
				h.wsWriteFailed(err)
				return
			}
			pending = nil
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
		}
	}
}

// parseInterval reads ?interval=2s or ?interval_ms=2000 with bounds.
func (h *Handler) parseInterval(c *gin.Context) time.Duration {
	interval := defaultInterval

	if s := c.Query("interval"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 && d <= maxInterval {
			return d
		}
	}

	if ms := c.Query("interval_ms"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 && v <= maxIntervalMilli {
			return time.Duration(v) * time.Millisecond
		}
	}

	return interval
}

// startReader drains incoming messages to handle control frames and detect closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if h.log != nil {
				h.log.Debugw("ws_read_closed", "err", err)
			}
			return
		}
	}
}

// sendInitial writes the current telemetry so a client has data before the
// first tick.
func (h *Handler) sendInitial(ctx context.Context, conn *websocket.Conn) error {
	t, err := h.services.Monitoring.Telemetry(ctx)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_telemetry_failed", "err", err)
		}
		return err
	}
	return writeEnvelope(conn, wsEnvelope{Type: service.MessageTelemetry, Data: t})
}

func (h *Handler) wsWriteFailed(err error) {
	if h.log != nil {
		h.log.Infow("ws_write_failed", "err", err)
	}
}

func writeEnvelope(conn *websocket.Conn, env wsEnvelope) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}

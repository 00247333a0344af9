package handlers

import (
	"net/http"
	"strconv"
	"time"

	"electronic_load/internal/export"
	"electronic_load/internal/models"

	"github.com/gin-gonic/gin"
)

type startRequest struct {
	// Fresh resets totals and series before the output is switched on.
	Fresh bool `json:"fresh" example:"true"`
}

type connectRequest struct {
	Port string `json:"port" example:"/dev/ttyUSB0"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// @Summary      Current telemetry
// @Description  Latest readings, totals and run state. Never touches the device.
// @Tags         load
// @Produce      json
// @Success      200  {object}  models.Telemetry
// @Failure      401  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /api/v1/load/state [get]
// @Security     BearerAuth
func (h *Handler) getState(c *gin.Context) {
	t, err := h.services.Monitoring.Telemetry(c.Request.Context())
	if err != nil {
		h.fail(c, "state_read_failed", err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// @Summary      Recorded series
// @Description  Voltage, current and power series trimmed to the last window seconds. Omit window for the configured retention.
// @Tags         load
// @Produce      json
// @Param        window  query     number  false  "Window in seconds"  example(60)
// @Success      200     {object}  models.SeriesSet
// @Failure      400     {object}  errorResponse
// @Router       /api/v1/load/series [get]
// @Security     BearerAuth
func (h *Handler) getSeries(c *gin.Context) {
	var window float64
	if s := c.Query("window"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			h.badRequest(c, "invalid 'window'; use seconds")
			return
		}
		window = v
	}
	set, err := h.services.Monitoring.Series(window)
	if err != nil {
		h.fail(c, "series_read_failed", err)
		return
	}
	c.JSON(http.StatusOK, set)
}

// @Summary      Export series as CSV
// @Tags         load
// @Produce      text/csv
// @Param        kind  path  string  true  "Series"  Enums(voltage,current,power)
// @Success      200   {string}  string  "Time,Value rows"
// @Failure      400   {object}  errorResponse
// @Router       /api/v1/series/{kind}/export [get]
// @Security     BearerAuth
func (h *Handler) exportSeries(c *gin.Context) {
	kind, ok := models.ParseSeriesKind(c.Param("kind"))
	if !ok {
		h.badRequest(c, "unknown series; use voltage, current or power")
		return
	}
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="`+export.Filename(kind)+`"`)
	c.Status(http.StatusOK)
	if err := h.services.Monitoring.Export(c.Writer, kind); err != nil && h.log != nil {
		// headers are already sent
		h.log.Errorw("series_export_failed", "kind", kind, "err", err)
	}
}

// @Summary      Connect to the load
// @Description  Opens the serial port (or the configured one when port is empty) and reads the device limits.
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        input  body      connectRequest  false  "Port"
// @Success      200    {object}  service.ConnectionStatus
// @Failure      409    {object}  errorResponse
// @Failure      503    {object}  errorResponse
// @Router       /api/v1/load/connect [post]
// @Security     BearerAuth
func (h *Handler) connect(c *gin.Context) {
	var req connectRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}
	st, err := h.services.Connection.Connect(c.Request.Context(), req.Port)
	if err != nil {
		h.fail(c, "connect_failed", err, "port", req.Port)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Disconnect from the load
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      500  {object}  errorResponse
// @Router       /api/v1/load/disconnect [post]
// @Security     BearerAuth
func (h *Handler) disconnect(c *gin.Context) {
	if err := h.services.Connection.Disconnect(c.Request.Context()); err != nil {
		h.fail(c, "disconnect_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

// @Summary      Connection status
// @Tags         device
// @Produce      json
// @Success      200  {object}  service.ConnectionStatus
// @Router       /api/v1/load/connection [get]
// @Security     BearerAuth
func (h *Handler) connectionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Connection.Status())
}

// @Summary      Start the load
// @Description  Switches the output on. With fresh=true totals and series restart from zero.
// @Tags         load
// @Accept       json
// @Produce      json
// @Param        input  body      startRequest  false  "Start options"
// @Success      200    {object}  map[string]string
// @Failure      409    {object}  errorResponse
// @Failure      504    {object}  errorResponse
// @Router       /api/v1/load/start [post]
// @Security     BearerAuth
func (h *Handler) start(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}
	if err := h.services.Control.Start(c.Request.Context(), req.Fresh); err != nil {
		h.fail(c, "start_failed", err, "fresh", req.Fresh)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

// @Summary      Stop the load
// @Tags         load
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      409  {object}  errorResponse
// @Router       /api/v1/load/stop [post]
// @Security     BearerAuth
func (h *Handler) stop(c *gin.Context) {
	if err := h.services.Control.Stop(c.Request.Context()); err != nil {
		h.fail(c, "stop_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// @Summary      Clear series and totals
// @Tags         load
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /api/v1/load/clear [post]
// @Security     BearerAuth
func (h *Handler) clearSeries(c *gin.Context) {
	h.services.Control.ClearSeries(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

// @Summary      Apply a static setpoint
// @Description  Validated against the cached device limits before anything is sent.
// @Tags         load
// @Accept       json
// @Produce      json
// @Param        input  body      models.Setpoint  true  "Mode and value"
// @Success      200    {object}  models.Setpoint
// @Failure      400    {object}  errorResponse
// @Failure      409    {object}  errorResponse
// @Router       /api/v1/load/setpoint [post]
// @Security     BearerAuth
func (h *Handler) applySetpoint(c *gin.Context) {
	var sp models.Setpoint
	if !h.bindJSON(c, &sp) {
		return
	}
	mode, err := models.ParseMode(string(sp.Mode))
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	sp.Mode = mode
	if err := h.services.Control.ApplySetpoint(c.Request.Context(), sp); err != nil {
		h.fail(c, "setpoint_failed", err, "mode", sp.Mode, "value", sp.Value)
		return
	}
	c.JSON(http.StatusOK, sp)
}

// @Summary      Bus trigger
// @Tags         load
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      409  {object}  errorResponse
// @Router       /api/v1/load/trigger [post]
// @Security     BearerAuth
func (h *Handler) trigger(c *gin.Context) {
	if err := h.services.Control.Trigger(c.Request.Context()); err != nil {
		h.fail(c, "trigger_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "triggered"})
}

// @Summary      Device limits
// @Tags         limits
// @Produce      json
// @Success      200  {object}  models.Limits
// @Failure      409  {object}  errorResponse
// @Router       /api/v1/load/limits [get]
// @Security     BearerAuth
func (h *Handler) getLimits(c *gin.Context) {
	l, err := h.services.Control.Limits(c.Request.Context())
	if err != nil {
		h.fail(c, "limits_read_failed", err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// @Summary      Set device limits
// @Description  Every limit is checked against the device maximum; the limits read back are returned.
// @Tags         limits
// @Accept       json
// @Produce      json
// @Param        input  body      models.Limits  true  "Limits"
// @Success      200    {object}  models.Limits
// @Failure      400    {object}  errorResponse
// @Failure      409    {object}  errorResponse
// @Router       /api/v1/load/limits [put]
// @Security     BearerAuth
func (h *Handler) setLimits(c *gin.Context) {
	var l models.Limits
	if !h.bindJSON(c, &l) {
		return
	}
	got, err := h.services.Control.SetLimits(c.Request.Context(), l)
	if err != nil {
		h.fail(c, "limits_write_failed", err)
		return
	}
	c.JSON(http.StatusOK, got)
}

// @Summary      Reset device limits to factory values
// @Tags         limits
// @Produce      json
// @Success      200  {object}  models.Limits
// @Failure      409  {object}  errorResponse
// @Router       /api/v1/load/limits/reset [post]
// @Security     BearerAuth
func (h *Handler) resetLimits(c *gin.Context) {
	got, err := h.services.Control.ResetLimits(c.Request.Context())
	if err != nil {
		h.fail(c, "limits_reset_failed", err)
		return
	}
	c.JSON(http.StatusOK, got)
}

// @Summary      Save settings to a memory slot
// @Tags         device
// @Produce      json
// @Param        slot  path  int  true  "Slot"  minimum(1)  maximum(4)
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /api/v1/memory/{slot}/save [post]
// @Security     BearerAuth
func (h *Handler) saveMemory(c *gin.Context) {
	slot, ok := h.slotParam(c)
	if !ok {
		return
	}
	if err := h.services.Control.SaveMemory(c.Request.Context(), slot); err != nil {
		h.fail(c, "memory_save_failed", err, "slot", slot)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved", "slot": slot})
}

// @Summary      Recall settings from a memory slot
// @Tags         device
// @Produce      json
// @Param        slot  path  int  true  "Slot"  minimum(1)  maximum(4)
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /api/v1/memory/{slot}/recall [post]
// @Security     BearerAuth
func (h *Handler) recallMemory(c *gin.Context) {
	slot, ok := h.slotParam(c)
	if !ok {
		return
	}
	if err := h.services.Control.RecallMemory(c.Request.Context(), slot); err != nil {
		h.fail(c, "memory_recall_failed", err, "slot", slot)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recalled", "slot": slot})
}

// @Summary      Factory reset
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      409  {object}  errorResponse
// @Router       /api/v1/device/factory-reset [post]
// @Security     BearerAuth
func (h *Handler) factoryReset(c *gin.Context) {
	if err := h.services.Control.FactoryReset(c.Request.Context()); err != nil {
		h.fail(c, "factory_reset_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// @Summary      Acquisition status
// @Tags         acquisition
// @Produce      json
// @Success      200  {object}  service.AcquisitionStatus
// @Router       /api/v1/acquisition [get]
// @Security     BearerAuth
func (h *Handler) acquisitionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Acquisition.Status())
}

// @Summary      Halt polling
// @Description  Commands keep working while polling is halted.
// @Tags         acquisition
// @Produce      json
// @Success      200  {object}  service.AcquisitionStatus
// @Router       /api/v1/acquisition/halt [post]
// @Security     BearerAuth
func (h *Handler) haltAcquisition(c *gin.Context) {
	h.services.Acquisition.Halt()
	c.JSON(http.StatusOK, h.services.Acquisition.Status())
}

// @Summary      Resume polling
// @Tags         acquisition
// @Produce      json
// @Success      200  {object}  service.AcquisitionStatus
// @Router       /api/v1/acquisition/resume [post]
// @Security     BearerAuth
func (h *Handler) resumeAcquisition(c *gin.Context) {
	h.services.Acquisition.Resume()
	c.JSON(http.StatusOK, h.services.Acquisition.Status())
}

// slotParam reads the :slot path parameter. Range checks belong to the
// service, which knows how many slots each kind has.
func (h *Handler) slotParam(c *gin.Context) (int, bool) {
	slot, err := strconv.Atoi(c.Param("slot"))
	if err != nil {
		h.badRequest(c, "invalid slot; use an integer")
		return 0, false
	}
	return slot, true
}

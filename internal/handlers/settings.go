package handlers

import (
	"net/http"

	"electronic_load/internal/models"
	"electronic_load/internal/service"

	"github.com/gin-gonic/gin"
)

// @Summary      Current settings
// @Tags         settings
// @Produce      json
// @Success      200  {object}  config.Settings
// @Router       /api/v1/settings [get]
// @Security     BearerAuth
func (h *Handler) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Settings.Settings())
}

// @Summary      Update settings
// @Description  Only the fields present are changed. The file is rewritten and the polling interval applies from the next cycle.
// @Tags         settings
// @Accept       json
// @Produce      json
// @Param        input  body      service.SettingsPatch  true  "Changed settings"
// @Success      200    {object}  config.Settings
// @Failure      400    {object}  errorResponse
// @Failure      500    {object}  errorResponse
// @Router       /api/v1/settings [put]
// @Security     BearerAuth
func (h *Handler) putSettings(c *gin.Context) {
	var p service.SettingsPatch
	if !h.bindJSON(c, &p) {
		return
	}
	st, err := h.services.Settings.Update(p)
	if err != nil {
		h.fail(c, "settings_update_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Device system settings
// @Description  Reads baud rate, panel switches and LAN settings from the load itself.
// @Tags         device
// @Produce      json
// @Success      200  {object}  models.DeviceSettings
// @Failure      409  {object}  errorResponse
// @Router       /api/v1/device/settings [get]
// @Security     BearerAuth
func (h *Handler) getDeviceSettings(c *gin.Context) {
	st, err := h.services.Control.DeviceSettings(c.Request.Context())
	if err != nil {
		h.fail(c, "device_settings_read_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Write device system settings
// @Description  All fields are written. A changed baud rate needs a reconnect at the new rate.
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        input  body      models.DeviceSettings  true  "Device settings"
// @Success      200    {object}  models.DeviceSettings
// @Failure      400    {object}  errorResponse
// @Failure      409    {object}  errorResponse
// @Router       /api/v1/device/settings [put]
// @Security     BearerAuth
func (h *Handler) putDeviceSettings(c *gin.Context) {
	var st models.DeviceSettings
	if !h.bindJSON(c, &st) {
		return
	}
	if err := h.services.Control.SetDeviceSettings(c.Request.Context(), st); err != nil {
		h.fail(c, "device_settings_write_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

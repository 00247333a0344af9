package handlers

import (
	"net/http"

	"electronic_load/internal/models"
	"electronic_load/internal/service"

	"github.com/gin-gonic/gin"
)

// @Summary      Read a battery test slot
// @Tags         profiles
// @Produce      json
// @Param        slot  path      int  true  "Slot"  minimum(1)  maximum(10)
// @Success      200   {object}  models.BatteryProfile
// @Failure      409   {object}  errorResponse
// @Router       /api/v1/profiles/battery/{slot} [get]
// @Security     BearerAuth
func (h *Handler) getBatteryProfile(c *gin.Context) {
	slot, ok := h.slotParam(c)
	if !ok {
		return
	}
	p, err := h.services.Control.BatteryProfile(c.Request.Context(), slot)
	if err != nil {
		h.fail(c, "battery_profile_read_failed", err, "slot", slot)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Write a battery test slot
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Param        slot   path      int                    true  "Slot"
// @Param        input  body      models.BatteryProfile  true  "Profile"
// @Success      200    {object}  models.BatteryProfile
// @Failure      400    {object}  errorResponse
// @Failure      409    {object}  errorResponse
// @Router       /api/v1/profiles/battery/{slot} [put]
// @Security     BearerAuth
func (h *Handler) putBatteryProfile(c *gin.Context) {
	var p models.BatteryProfile
	slot, ok := h.bindSlotProfile(c, &p)
	if !ok {
		return
	}
	p.Slot = slot
	if err := h.services.Control.SetBatteryProfile(c.Request.Context(), p); err != nil {
		h.fail(c, "battery_profile_write_failed", err, "slot", slot)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Read an OCP test slot
// @Tags         profiles
// @Produce      json
// @Param        slot  path      int  true  "Slot"  minimum(1)  maximum(10)
// @Success      200   {object}  models.OCPProfile
// @Failure      409   {object}  errorResponse
// @Router       /api/v1/profiles/ocp/{slot} [get]
// @Security     BearerAuth
func (h *Handler) getOCPProfile(c *gin.Context) {
	slot, ok := h.slotParam(c)
	if !ok {
		return
	}
	p, err := h.services.Control.OCPProfile(c.Request.Context(), slot)
	if err != nil {
		h.fail(c, "ocp_profile_read_failed", err, "slot", slot)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Write an OCP test slot
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Param        slot   path      int                true  "Slot"
// @Param        input  body      models.OCPProfile  true  "Profile"
// @Success      200    {object}  models.OCPProfile
// @Failure      400    {object}  errorResponse
// @Failure      409    {object}  errorResponse
// @Router       /api/v1/profiles/ocp/{slot} [put]
// @Security     BearerAuth
func (h *Handler) putOCPProfile(c *gin.Context) {
	var p models.OCPProfile
	slot, ok := h.bindSlotProfile(c, &p)
	if !ok {
		return
	}
	p.Slot = slot
	if err := h.services.Control.SetOCPProfile(c.Request.Context(), p); err != nil {
		h.fail(c, "ocp_profile_write_failed", err, "slot", slot)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Read an OPP test slot
// @Tags         profiles
// @Produce      json
// @Param        slot  path      int  true  "Slot"  minimum(1)  maximum(10)
// @Success      200   {object}  models.OPPProfile
// @Failure      409   {object}  errorResponse
// @Router       /api/v1/profiles/opp/{slot} [get]
// @Security     BearerAuth
func (h *Handler) getOPPProfile(c *gin.Context) {
	slot, ok := h.slotParam(c)
	if !ok {
		return
	}
	p, err := h.services.Control.OPPProfile(c.Request.Context(), slot)
	if err != nil {
		h.fail(c, "opp_profile_read_failed", err, "slot", slot)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Write an OPP test slot
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Param        slot   path      int                true  "Slot"
// @Param        input  body      models.OPPProfile  true  "Profile"
// @Success      200    {object}  models.OPPProfile
// @Failure      400    {object}  errorResponse
// @Failure      409    {object}  errorResponse
// @Router       /api/v1/profiles/opp/{slot} [put]
// @Security     BearerAuth
func (h *Handler) putOPPProfile(c *gin.Context) {
	var p models.OPPProfile
	slot, ok := h.bindSlotProfile(c, &p)
	if !ok {
		return
	}
	p.Slot = slot
	if err := h.services.Control.SetOPPProfile(c.Request.Context(), p); err != nil {
		h.fail(c, "opp_profile_write_failed", err, "slot", slot)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Read a list-mode slot
// @Tags         profiles
// @Produce      json
// @Param        slot  path      int  true  "Slot"  minimum(1)  maximum(7)
// @Success      200   {object}  models.ListProfile
// @Failure      409   {object}  errorResponse
// @Router       /api/v1/profiles/list/{slot} [get]
// @Security     BearerAuth
func (h *Handler) getListProfile(c *gin.Context) {
	slot, ok := h.slotParam(c)
	if !ok {
		return
	}
	p, err := h.services.Control.ListProfile(c.Request.Context(), slot)
	if err != nil {
		h.fail(c, "list_profile_read_failed", err, "slot", slot)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Write a list-mode slot
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Param        slot   path      int                 true  "Slot"
// @Param        input  body      models.ListProfile  true  "Profile"
// @Success      200    {object}  models.ListProfile
// @Failure      400    {object}  errorResponse
// @Failure      409    {object}  errorResponse
// @Router       /api/v1/profiles/list/{slot} [put]
// @Security     BearerAuth
func (h *Handler) putListProfile(c *gin.Context) {
	var p models.ListProfile
	slot, ok := h.bindSlotProfile(c, &p)
	if !ok {
		return
	}
	p.Slot = slot
	if err := h.services.Control.SetListProfile(c.Request.Context(), p); err != nil {
		h.fail(c, "list_profile_write_failed", err, "slot", slot)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Apply a dynamic test
// @Description  Levels are checked against the cached limit for the test kind before anything is sent.
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Param        input  body      models.DynamicProfile  true  "Profile"
// @Success      200    {object}  models.DynamicProfile
// @Failure      400    {object}  errorResponse
// @Failure      409    {object}  errorResponse
// @Router       /api/v1/profiles/dynamic [put]
// @Security     BearerAuth
func (h *Handler) putDynamicProfile(c *gin.Context) {
	var p models.DynamicProfile
	if !h.bindJSON(c, &p) {
		return
	}
	if err := h.services.Control.SetDynamic(c.Request.Context(), p); err != nil {
		h.fail(c, "dynamic_profile_write_failed", err, "kind", p.Kind)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Validate a profile without sending it
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Param        kind   path      string  true  "Profile kind"  Enums(battery,ocp,opp,list,dynamic)
// @Param        input  body      object  true  "Profile"
// @Success      200    {object}  map[string]bool
// @Failure      400    {object}  errorResponse
// @Router       /api/v1/profiles/{kind}/validate [post]
// @Security     BearerAuth
func (h *Handler) validateProfile(c *gin.Context) {
	kind := c.Param("kind")
	if kind == "dynamic" {
		var p models.DynamicProfile
		if !h.bindJSON(c, &p) {
			return
		}
		if err := h.services.Control.ValidateDynamic(c.Request.Context(), p); err != nil {
			h.fail(c, "profile_invalid", err, "kind", kind)
			return
		}
		c.JSON(http.StatusOK, gin.H{"valid": true})
		return
	}

	var p service.Validator
	switch kind {
	case "battery":
		p = &models.BatteryProfile{}
	case "ocp":
		p = &models.OCPProfile{}
	case "opp":
		p = &models.OPPProfile{}
	case "list":
		p = &models.ListProfile{}
	default:
		h.badRequest(c, "unknown profile kind; use battery, ocp, opp, list or dynamic")
		return
	}
	if !h.bindJSON(c, p) {
		return
	}
	if err := h.services.Control.Validate(p); err != nil {
		h.fail(c, "profile_invalid", err, "kind", kind)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// @Summary      Initialise every profile slot with defaults
// @Tags         profiles
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      409  {object}  errorResponse
// @Router       /api/v1/profiles/init [post]
// @Security     BearerAuth
func (h *Handler) initSlots(c *gin.Context) {
	if err := h.services.Control.InitSlots(c.Request.Context()); err != nil {
		h.fail(c, "init_slots_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "initialised"})
}

// bindSlotProfile reads the :slot parameter and the body.
func (h *Handler) bindSlotProfile(c *gin.Context, dst any) (int, bool) {
	slot, ok := h.slotParam(c)
	if !ok {
		return 0, false
	}
	if !h.bindJSON(c, dst) {
		return 0, false
	}
	return slot, true
}

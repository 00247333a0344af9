package handlers

import (
	"errors"
	"net/http"

	"electronic_load/internal/errs"
	"electronic_load/internal/service"

	"github.com/gin-gonic/gin"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error" example:"invalid current: 31 exceeds limit 30"`
	Kind  string `json:"kind,omitempty" example:"VALIDATION"`
	Field string `json:"field,omitempty" example:"current"`
}

const (
	kindValidation = "VALIDATION"
	kindState      = "STATE"
	kindInternal   = "INTERNAL"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) (int, errorResponse) {
	resp := errorResponse{Error: err.Error()}
	if ve, ok := errs.AsValidation(err); ok {
		resp.Kind, resp.Field = kindValidation, ve.Field
		return http.StatusBadRequest, resp
	}
	if _, ok := errs.AsState(err); ok {
		resp.Kind = kindState
		return http.StatusConflict, resp
	}
	if de, ok := errs.AsDevice(err); ok {
		resp.Kind = string(de.Kind)
		switch de.Kind {
		case errs.KindTimeout:
			return http.StatusGatewayTimeout, resp
		case errs.KindPortClosed:
			return http.StatusServiceUnavailable, resp
		case errs.KindMalformed:
			return http.StatusBadGateway, resp
		case errs.KindOutOfLimit:
			return http.StatusUnprocessableEntity, resp
		}
	}
	if errors.Is(err, service.ErrInvalidTimeRange) || errors.Is(err, service.ErrUnknownEventType) {
		resp.Kind = kindValidation
		return http.StatusBadRequest, resp
	}
	return http.StatusInternalServerError, errorResponse{Error: "internal error", Kind: kindInternal}
}

// fail logs err under logKey and writes the mapped response. Client errors
// log at info, everything else at error.
func (h *Handler) fail(c *gin.Context, logKey string, err error, kv ...any) {
	code, resp := statusFor(err)
	if h.log != nil {
		fields := append([]any{"err", err, "status", code}, kv...)
		if code >= http.StatusInternalServerError {
			h.log.Errorw(logKey, fields...)
		} else {
			h.log.Infow(logKey, fields...)
		}
	}
	c.AbortWithStatusJSON(code, resp)
}

func (h *Handler) badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: msg, Kind: kindValidation})
}

// bindJSON binds the request body into dst and writes a 400 on failure.
// It reports whether the handler may continue.
func (h *Handler) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if h.log != nil {
			h.log.Infow("bad_request_body", "path", c.FullPath(), "err", err)
		}
		h.badRequest(c, "invalid body: "+err.Error())
		return false
	}
	return true
}

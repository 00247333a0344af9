package handlers

import (
	"electronic_load/internal/logger"
	"electronic_load/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", h.health)

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// telemetry stream, same port; browsers pass the token as a query parameter
	router.GET("/ws", h.userIdMiddleware, h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		h.registerLoadRoutes(api)
		h.registerProfileRoutes(api)
		h.registerDeviceRoutes(api)
		h.registerAcquisitionRoutes(api)
		h.registerSeriesRoutes(api)
		h.registerSettingsRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerLoadRoutes(api *gin.RouterGroup) {
	load := api.Group("/load")
	{
		load.GET("/state", h.getState)
		load.GET("/series", h.getSeries)
		load.POST("/connect", h.connect)
		load.POST("/disconnect", h.disconnect)
		load.GET("/connection", h.connectionStatus)
		load.POST("/start", h.start)
		load.POST("/stop", h.stop)
		load.POST("/clear", h.clearSeries)
		// Body example: {"mode":"CC","value":2.5}
		load.POST("/setpoint", h.applySetpoint)
		load.POST("/trigger", h.trigger)
		load.GET("/limits", h.getLimits)
		load.PUT("/limits", h.setLimits)
		load.POST("/limits/reset", h.resetLimits)
	}
}

func (h *Handler) registerProfileRoutes(api *gin.RouterGroup) {
	profiles := api.Group("/profiles")
	{
		profiles.GET("/battery/:slot", h.getBatteryProfile)
		profiles.PUT("/battery/:slot", h.putBatteryProfile)
		profiles.GET("/ocp/:slot", h.getOCPProfile)
		profiles.PUT("/ocp/:slot", h.putOCPProfile)
		profiles.GET("/opp/:slot", h.getOPPProfile)
		profiles.PUT("/opp/:slot", h.putOPPProfile)
		profiles.GET("/list/:slot", h.getListProfile)
		profiles.PUT("/list/:slot", h.putListProfile)
		profiles.PUT("/dynamic", h.putDynamicProfile)
		profiles.POST("/:kind/validate", h.validateProfile)
		profiles.POST("/init", h.initSlots)
	}
}

func (h *Handler) registerDeviceRoutes(api *gin.RouterGroup) {
	api.POST("/memory/:slot/save", h.saveMemory)
	api.POST("/memory/:slot/recall", h.recallMemory)
	api.POST("/device/factory-reset", h.factoryReset)
	api.GET("/device/settings", h.getDeviceSettings)
	api.PUT("/device/settings", h.putDeviceSettings)
}

func (h *Handler) registerAcquisitionRoutes(api *gin.RouterGroup) {
	acq := api.Group("/acquisition")
	{
		acq.GET("", h.acquisitionStatus)
		acq.POST("/halt", h.haltAcquisition)
		acq.POST("/resume", h.resumeAcquisition)
	}
}

func (h *Handler) registerSeriesRoutes(api *gin.RouterGroup) {
	api.GET("/series/:kind/export", h.exportSeries)
}

func (h *Handler) registerSettingsRoutes(api *gin.RouterGroup) {
	api.GET("/settings", h.getSettings)
	api.PUT("/settings", h.putSettings)
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}

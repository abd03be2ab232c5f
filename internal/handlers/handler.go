package handlers

import (
	"errors"
	"net/http"

	"telemetry_relay/internal/logger"
	"telemetry_relay/internal/models"
	"telemetry_relay/internal/pin"
	"telemetry_relay/internal/plugin/fermentation"
	"telemetry_relay/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

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
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// devices authenticate with their token, not a user JWT
	router.GET("/hardware", h.hardwareConnect)

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
		api.GET("/ws", h.appConnect)
		h.registerProfileRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerProfileRoutes(api *gin.RouterGroup) {
	profile := api.Group("/profile")
	{
		profile.GET("", h.getProfile)
		profile.PUT("", h.updateProfile)
	}
	api.GET("/dashboards/:dashId/devices/:deviceId/status", h.getDeviceStatus)
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	api.GET("/events", h.getEvents)
	api.GET("/readings", h.getReadings)
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// logAndJSONError logs err under logKey and writes userMsg with httpCode.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		if httpCode >= http.StatusInternalServerError {
			h.log.Errorw(logKey, fields...)
		} else {
			h.log.Infow(logKey, fields...)
		}
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrDeviceNotFound),
		errors.Is(err, service.ErrDashboardNotFound),
		errors.Is(err, service.ErrWidgetNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidProfile),
		errors.Is(err, service.ErrEmptyUsername),
		errors.Is(err, service.ErrEmptyPassword),
		errors.Is(err, service.ErrInvalidTimeRange),
		errors.Is(err, service.ErrUnknownEventType),
		errors.Is(err, service.ErrInvalidLimit),
		errors.Is(err, service.ErrNotAWrite),
		errors.Is(err, service.ErrInvalidHeartbeat),
		errors.Is(err, pin.ErrInvalidBody),
		errors.Is(err, pin.ErrUnknownPinType),
		errors.Is(err, fermentation.ErrInvalidValue),
		errors.Is(err, models.ErrDeviceNotSelected):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrDeviceNotConnected),
		errors.Is(err, service.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidDeviceToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

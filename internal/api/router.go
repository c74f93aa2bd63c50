package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/faceid/internal/api/handlers"
	"github.com/your-org/faceid/internal/api/ws"
	"github.com/your-org/faceid/internal/auth"
)

type RouterConfig struct {
	APIKeys    []string
	Registrar  handlers.Registrar
	Recognizer handlers.Recognizer
	Persons    handlers.PersonReader
	Images     handlers.ImageReader
	Events     handlers.EventReader // optional audit log
	// Checks are pinged by /readyz, keyed by name.
	Checks map[string]handlers.Pinger
	Device handlers.DeviceStatus
	Hub    *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks, cfg.Device)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	requireKey := auth.APIKeyMiddleware(cfg.APIKeys)
	identityH := handlers.NewIdentityHandler(cfg.Registrar, cfg.Recognizer)

	// Command-style endpoints
	r.POST("/facial_recognition.recognize_user", requireKey, identityH.Recognize)
	r.POST("/facial_recognition.register_user", requireKey, identityH.Register)

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(requireKey)

	v1.POST("/recognize", identityH.Recognize)
	v1.POST("/register", identityH.Register)

	if cfg.Persons != nil {
		personH := handlers.NewPersonHandler(cfg.Persons, cfg.Images)
		v1.GET("/persons", personH.List)
		v1.GET("/persons/:id", personH.Get)
		v1.GET("/persons/:id/profile-image", personH.ProfileImage)
	}

	if cfg.Events != nil {
		eventH := handlers.NewEventHandler(cfg.Events)
		v1.GET("/events", eventH.List)
	}

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	return r
}

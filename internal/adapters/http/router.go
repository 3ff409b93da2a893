package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/msgflow/internal/adapters/http/handlers"
	"github.com/jsamuelsen/msgflow/internal/adapters/http/middleware"
	"github.com/jsamuelsen/msgflow/internal/platform/config"
	"github.com/jsamuelsen/msgflow/internal/platform/telemetry"
)

// DefaultRequestTimeout bounds /api/v1 requests when messages have no
// processing timeout.
const DefaultRequestTimeout = 30 * time.Second

// RouterConfig is what SetupRouter mounts. Nil handlers are skipped.
type RouterConfig struct {
	// ServiceName names the server spans.
	ServiceName string

	Health   *handlers.HealthHandler
	Messages *handlers.MessageHandler
	Events   *handlers.EventHandler

	// Timeout is the deadline of /api/v1 requests. Zero disables it.
	Timeout time.Duration
}

// NewRouterConfig derives the service name and API timeout from cfg. The
// timeout leaves a timed out unit of work one second to roll back and answer.
func NewRouterConfig(cfg *config.Config) RouterConfig {
	rc := RouterConfig{ServiceName: cfg.App.Name, Timeout: DefaultRequestTimeout}
	if cfg.Processing.Timeout > 0 {
		rc.Timeout = cfg.Processing.Timeout + time.Second
	}
	return rc
}

// SetupRouter installs the middleware chain and routes on engine.
//
// Every request passes recovery, request and correlation ids, tracing and
// access logging, in that order. Health checks live under /-/; the message and
// event API under /api/v1 additionally gets the request deadline.
func SetupRouter(engine *gin.Engine, cfg RouterConfig) {
	name := cfg.ServiceName
	if name == "" {
		name = "msgflow"
	}

	engine.Use(middleware.Recovery(), middleware.RequestID(), middleware.CorrelationID())
	engine.Use(telemetry.Middleware(name)...)
	engine.Use(middleware.Logging())

	if cfg.Health != nil {
		cfg.Health.RegisterHealthRoutesOnEngine(engine)
	}

	api := engine.Group("/api/v1")
	if cfg.Timeout > 0 {
		api.Use(middleware.Timeout(cfg.Timeout))
	}
	if cfg.Messages != nil {
		cfg.Messages.RegisterMessageRoutes(api)
	}
	if cfg.Events != nil {
		cfg.Events.RegisterEventRoutes(api)
	}
}

package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/frevohq/frevo-core/internal/backend"
	"github.com/frevohq/frevo-core/internal/bus"
	httphandlers "github.com/frevohq/frevo-core/internal/http"
	"github.com/frevohq/frevo-core/internal/infrastructure/monitoring"
	"github.com/frevohq/frevo-core/internal/store"
	"github.com/frevohq/frevo-core/internal/ws"
)

// Deps are the collaborators the control plane exposes.
type Deps struct {
	Bus      *bus.Bus
	Store    store.Store
	Client   *backend.Client
	Projects *backend.ProjectDataMap
	Metrics  *monitoring.Metrics
	Logger   *zap.Logger
}

// Server is the control-plane HTTP server.
type Server struct {
	router *gin.Engine
	ws     *ws.Handler
	logger *zap.Logger
}

// New wires the router, middleware, and routes.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if deps.Metrics != nil {
		router.Use(monitoring.Middleware(deps.Metrics))
	}

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	router.Use(cors.New(corsCfg))

	handlers := httphandlers.NewHandlers(deps.Bus, deps.Store, deps.Client, deps.Projects, deps.Metrics, logger)
	wsHandler := ws.NewHandler(deps.Bus, deps.Store, deps.Metrics, logger)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/settings", handlers.GetSettings)
		api.PUT("/settings", handlers.PutSettings)
		api.GET("/pagination", handlers.GetPagination)
		api.PUT("/pagination", handlers.PutPagination)
		api.POST("/actions", handlers.Dispatch)

		api.POST("/auth/google-signin", handlers.SignIn)
		api.GET("/users/profile", handlers.Profile)
		api.POST("/users/job-owner-details", handlers.RevealOwner)
		api.POST("/generate-proposal", handlers.GenerateProposal)

		api.GET("/projects/:id", handlers.GetProject)
		api.GET("/projects", handlers.GetProject)
	}

	router.GET("/stream", wsHandler.HandleConnection)

	return &Server{router: router, ws: wsHandler, logger: logger}
}

// WS exposes the WebSocket handler so runtime components can publish events.
func (s *Server) WS() *ws.Handler {
	return s.ws
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts serving on addr, blocking until the listener fails.
func (s *Server) Run(addr string) error {
	s.logger.Info("control plane listening", zap.String("addr", addr))
	return s.router.Run(addr)
}

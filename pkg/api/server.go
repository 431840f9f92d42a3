package api

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/unraidmate/console/pkg/api/handlers"
	"github.com/unraidmate/console/pkg/api/middleware"
	"github.com/unraidmate/console/pkg/auth"
	"github.com/unraidmate/console/pkg/graphql"
	"github.com/unraidmate/console/pkg/metrics"
	"github.com/unraidmate/console/pkg/models"
	"github.com/unraidmate/console/pkg/monitor"
	"github.com/unraidmate/console/pkg/servers"
	"github.com/unraidmate/console/pkg/settings"
)

// Config holds server configuration
type Config struct {
	Port        int
	DevMode     bool
	JWTSecret   string
	FrontendURL string
	TokenTTL    time.Duration
	// StaticDir serves the built UI when set and not in dev mode
	StaticDir string
}

// Deps are the components the API exposes
type Deps struct {
	Auth     *auth.Manager
	Servers  *servers.Controller
	Settings *settings.SettingsManager
	Clients  *graphql.Provider
	Monitor  *monitor.Monitor
}

// Server represents the API server
type Server struct {
	app    *fiber.App
	config Config
	deps   Deps
	hub    *handlers.Hub

	originMu sync.RWMutex
	origin   string
}

// NewServer creates a new API server and subscribes the WebSocket hub to
// session, client and reachability changes.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: true,
	})

	hub := handlers.NewHub(cfg.JWTSecret)
	go hub.Run()

	s := &Server{
		app:    app,
		config: cfg,
		deps:   deps,
		hub:    hub,
		origin: cfg.FrontendURL,
	}

	s.subscribe()
	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) subscribe() {
	s.deps.Auth.OnSessionChange(func(session models.Session) {
		state := fiber.Map{"state": session.State}
		if session.Active() {
			state["serverAddress"] = session.Credentials.ServerAddress
		}
		s.hub.BroadcastAll(handlers.Message{Type: handlers.EventSessionChanged, Data: state})
	})
	s.deps.Clients.OnRebuild(func(c *graphql.Client) {
		s.hub.BroadcastAll(handlers.Message{
			Type: handlers.EventClientRebuilt,
			Data: fiber.Map{"endpoint": c.Endpoint(), "connected": c.Configured()},
		})
		if s.deps.Monitor != nil {
			s.deps.Monitor.Poke()
		}
	})
	if s.deps.Monitor != nil {
		s.deps.Monitor.OnChange(func(status monitor.Status) {
			s.hub.BroadcastAll(handlers.Message{Type: handlers.EventServerStatus, Data: status})
		})
	}
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New())

	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "15:04:05",
	}))

	// Origin is checked per request so a reloaded frontend URL applies live
	s.app.Use(cors.New(cors.Config{
		AllowOriginsFunc: s.allowOrigin,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: s.config.FrontendURL != "",
	}))
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	// Auth routes (public)
	authHandler := handlers.NewAuthHandler(s.deps.Auth, handlers.AuthConfig{
		JWTSecret: s.config.JWTSecret,
		TokenTTL:  s.config.TokenTTL,
	})
	s.app.Post("/api/auth/login", authHandler.Login)
	s.app.Get("/api/auth/check", authHandler.Check)

	// API routes (protected)
	api := s.app.Group("/api", middleware.JWTAuth(s.config.JWTSecret))
	api.Post("/auth/logout", authHandler.Logout)
	api.Post("/auth/refresh", authHandler.RefreshToken)

	serversHandler := handlers.NewServersHandler(s.deps.Servers, s.deps.Auth)
	api.Get("/servers", serversHandler.List)
	api.Get("/servers/probe", serversHandler.ProbeStream)
	api.Post("/servers", serversHandler.Add)
	api.Put("/servers/:id", serversHandler.Update)
	api.Delete("/servers/:id", serversHandler.Remove)
	api.Post("/servers/:id/activate", serversHandler.Activate)

	settingsHandler := handlers.NewSettingsHandler(s.deps.Settings)
	api.Get("/settings", settingsHandler.GetSettings)
	api.Put("/settings", settingsHandler.SaveSettings)
	api.Post("/settings/export", settingsHandler.ExportSettings)
	api.Post("/settings/import", settingsHandler.ImportSettings)

	api.Post("/graphql", handlers.NewGraphQLHandler(s.deps.Clients).Proxy)

	if s.deps.Monitor != nil {
		api.Get("/status", func(c *fiber.Ctx) error {
			return c.JSON(s.deps.Monitor.Last())
		})
		api.Get("/status/history", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"samples": s.deps.Monitor.History()})
		})
	}

	// WebSocket for real-time updates
	s.app.Use("/ws", middleware.WebSocketUpgrade())
	s.app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		s.hub.HandleConnection(c)
	}))

	if !s.config.DevMode && s.config.StaticDir != "" {
		s.app.Static("/", s.config.StaticDir)
		s.app.Get("/*", func(c *fiber.Ctx) error {
			return c.SendFile(strings.TrimSuffix(s.config.StaticDir, "/") + "/index.html")
		})
	}
}

// SetFrontendURL changes the admitted CORS origin
func (s *Server) SetFrontendURL(origin string) {
	s.originMu.Lock()
	defer s.originMu.Unlock()
	if origin != s.origin {
		log.Printf("[api] CORS origin now %s", origin)
	}
	s.origin = origin
}

func (s *Server) allowOrigin(origin string) bool {
	s.originMu.RLock()
	defer s.originMu.RUnlock()
	return s.origin != "" && strings.EqualFold(origin, s.origin)
}

// Hub returns the WebSocket hub
func (s *Server) Hub() *handlers.Hub {
	return s.hub
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	log.Printf("Starting server on %s (dev=%v)", addr, s.config.DevMode)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	s.hub.Close()
	return s.app.Shutdown()
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
	})
}

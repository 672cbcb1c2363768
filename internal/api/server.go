// Package api exposes the medication tracker over HTTP.
package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/gmsas95/dosetrack/internal/config"
	"github.com/gmsas95/dosetrack/internal/insights"
	"github.com/gmsas95/dosetrack/internal/meds"
	"github.com/gmsas95/dosetrack/internal/metrics"
	"github.com/gmsas95/dosetrack/internal/vitals"
)

// Server handles the HTTP API.
type Server struct {
	app      *fiber.App
	config   *config.Config
	store    *meds.Store
	ledger   *meds.Ledger
	doser    *meds.DoseLogger
	insights *insights.Client
	vitals   *vitals.Store
	clock    meds.Clock
	logger   *zap.Logger
}

// Deps carries the server's collaborators.
type Deps struct {
	Store    *meds.Store
	Ledger   *meds.Ledger
	Doser    *meds.DoseLogger
	Insights *insights.Client
	Vitals   *vitals.Store
	Clock    meds.Clock
}

// New creates a new API server.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	clock := deps.Clock
	if clock == nil {
		clock = meds.SystemClock()
	}

	s := &Server{
		app:      app,
		config:   cfg,
		store:    deps.Store,
		ledger:   deps.Ledger,
		doser:    deps.Doser,
		insights: deps.Insights,
		vitals:   deps.Vitals,
		clock:    clock,
		logger:   logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Middleware
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// Health check and metrics
	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := s.app.Group("/api")

	// Public routes
	api.Post("/auth/login", s.handleLogin)

	// Protected routes
	protected := api.Use(s.authMiddleware())

	// Medications
	protected.Get("/medications", s.handleListMedications)
	protected.Post("/medications", s.handleCreateMedication)
	protected.Get("/medications/overdue", s.handleOverdue)
	protected.Get("/medications/:id", s.handleGetMedication)
	protected.Put("/medications/:id", s.handleUpdateMedication)
	protected.Delete("/medications/:id", s.handleDeleteMedication)

	// Doses and history
	protected.Post("/medications/:id/doses", s.handleLogDose)
	protected.Get("/medications/:id/history", s.handleMedicationHistory)
	protected.Get("/history", s.handleHistory)

	// Insights
	protected.Get("/medications/:id/insights", s.handleMedicationInsights)
	protected.Post("/interactions", s.handleCheckInteractions)
	protected.Post("/images/analyze", s.handleAnalyzeImage)
	protected.Get("/providers/search", s.handleFindProviders)

	// Vitals
	protected.Get("/vitals", s.handleListVitals)
	protected.Post("/vitals", s.handleRecordVital)
	protected.Get("/vitals/latest", s.handleLatestVital)
}

// Start starts the server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   "0.1.0",
		"timestamp": s.clock.Now().Unix(),
	})
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		Password string `json:"password"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	if s.config.Security.AdminPassword != "" && req.Password != s.config.Security.AdminPassword {
		return c.Status(401).JSON(fiber.Map{"error": "invalid password"})
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "default",
		"iat": s.clock.Now().Unix(),
		"exp": s.clock.Now().Add(7 * 24 * time.Hour).Unix(),
	})

	tokenString, err := token.SignedString([]byte(s.config.Security.JWTSecret))
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to generate token"})
	}

	return c.JSON(fiber.Map{"token": tokenString})
}

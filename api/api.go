package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/spool/pkg/service"
)

// Server is the API server over one spool service.
type Server struct {
	config Config
	svc    *service.Service
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
// The service is injected to allow sharing with other components
// (e.g., a CLI session driving the same catalog).
func NewServer(config Config, svc *service.Service, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		svc:    svc,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/version", s.handleVersion)

	app.Post("/refresh", s.handleRefresh)
	app.Get("/hydration", s.handleHydration)

	app.Get("/logs", s.handleListLogs)
	app.Get("/logs/:name", s.handleGetLog)
	app.Get("/logs/:name/siblings", s.handleSiblings)
	app.Post("/logs/:name/hydrate", s.handleHydrateNow)
	app.Post("/logs/:name/prioritize", s.handlePrioritize)
	app.Post("/logs/:name/annotate", s.handleAnnotate)
	app.Put("/logs/:name/tags", s.handleSetTags)

	app.Post("/branches/:reference", s.handleDetectBranches)
	app.Get("/trie", s.handleTrie)

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/evidenceledger/psd2attr/internal/attrprovider"
	"github.com/evidenceledger/psd2attr/internal/certconfig"
	"github.com/evidenceledger/psd2attr/internal/database"
	"github.com/evidenceledger/psd2attr/internal/handlers"
	"github.com/evidenceledger/psd2attr/internal/html"
	"github.com/evidenceledger/psd2attr/internal/jwt"
	"github.com/evidenceledger/psd2attr/internal/middleware"
	"github.com/evidenceledger/psd2attr/internal/util/x509util"
)

// cleanupInterval is how often expired audit records are removed
const cleanupInterval = time.Hour

// Server is the PSD2 attribute HTTP service
type Server struct {
	cfg      certconfig.Config
	app      *fiber.App
	db       *database.Database
	provider *attrprovider.Provider
}

// New creates the server, opening the audit database and the signing key.
func New(cfg certconfig.Config) (*Server, error) {
	db := database.New(cfg.DatabasePath)
	if err := db.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	jwtService, err := jwt.NewService(cfg.URL, cfg.AssertionTTL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	renderer, err := html.NewRendererFiber(cfg.Development)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize template engine: %w", err)
	}

	// The decoder holds no state and is shared by all requests
	provider := attrprovider.New(attrprovider.Config{
		CertificateAttributeName: cfg.CertificateAttributeName,
		CacheTTL:                 cfg.CacheTTL,
	}, x509util.NewDecoder())

	app := fiber.New(fiber.Config{
		AppName:      "PSD2 Attribute Provider",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	s := &Server{
		cfg:      cfg,
		app:      app,
		db:       db,
		provider: provider,
	}

	s.setupRoutes(handlers.NewAttributeHandlers(provider, db, jwtService), handlers.NewAdminHandlers(db, renderer))

	return s, nil
}

func (s *Server) setupRoutes(attrs *handlers.AttributeHandlers, admin *handlers.AdminHandlers) {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	s.app.Get("/.well-known/jwks.json", attrs.JWKS)

	s.app.Post("/attributes", attrs.GetAttributes)
	s.app.Get("/attributes/mtls", attrs.GetAttributesMTLS)
	s.app.Get("/attributes/subject/:subject", attrs.GetAttributesForSubject)

	adminGroup := s.app.Group("/admin", middleware.NewAdminAuth(s.cfg.AdminPassword).AuthMiddleware())
	adminGroup.Get("/", admin.Dashboard)
	adminGroup.Get("/lookups", admin.ListLookups)
}

// App returns the fiber application, used by tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Start serves the HTTP API until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	defer s.db.Close()

	addr := net.JoinHostPort("0.0.0.0", s.cfg.Port)

	slog.Info("Starting PSD2 attribute server",
		"addr", addr,
		"url", s.cfg.URL,
		"certificate_attribute", s.provider.CertificateAttributeName(),
		"development", s.cfg.Development)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := s.app.Listen(addr); err != nil {
			errChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	if s.cfg.AuditRetention > 0 {
		go s.cleanupLoop(ctx)
	}

	// Wait for context cancellation or error
	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		slog.Info("Shutting down server")
		return s.app.Shutdown()
	}
}

func (s *Server) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.db.CleanupLookups(s.cfg.AuditRetention); err != nil {
				slog.Error("Failed to cleanup attribute lookups", "error", err)
			}
		}
	}
}

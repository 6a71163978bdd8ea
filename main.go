package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evidenceledger/psd2attr/internal/certconfig"
	"github.com/evidenceledger/psd2attr/internal/database"
	"github.com/evidenceledger/psd2attr/internal/server"
)

var (
	adminPassword  string
	port           string
	serverURL      string
	databasePath   string
	certAttribute  string
	cacheTTL       time.Duration
	assertionTTL   time.Duration
	auditRetention time.Duration
	development    bool
)

func main() {
	// The password for admin screens
	flag.StringVar(&adminPassword, "admin-password", "", "Admin password for the server")

	// The URL and port of the attribute server. The URL is also the issuer of attribute assertions
	flag.StringVar(&port, "port", "", "Port for the attribute server")
	flag.StringVar(&serverURL, "url", "", "Public URL of the attribute server")

	flag.StringVar(&databasePath, "db", "", "Path of the SQLite audit database")
	flag.StringVar(&certAttribute, "cert-attribute", "", "Subject attribute holding the client certificate")

	flag.DurationVar(&cacheTTL, "cache-ttl", certconfig.DefaultCacheTTL, "Lifetime of cached extraction results, 0 disables the cache")
	flag.DurationVar(&assertionTTL, "assertion-ttl", certconfig.DefaultAssertionTTL, "Lifetime of signed attribute assertions")
	flag.DurationVar(&auditRetention, "audit-retention", certconfig.DefaultAuditRetention, "How long lookup records are kept, 0 keeps them forever")
	flag.BoolVar(&development, "dev", false, "Development mode: debug logging and templates read from disk")

	flag.Parse()

	// Initialize logging
	level := slog.LevelInfo
	if development {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Get admin password from command line (priority) or environment variable
	if adminPassword == "" {
		adminPassword = os.Getenv("PSD2ATTR_ADMIN_PASSWORD")
		if adminPassword == "" {
			slog.Error("Admin password required. Set PSD2ATTR_ADMIN_PASSWORD environment variable")
			os.Exit(1)
		}
	}

	port = withEnv(port, "PSD2ATTR_PORT", certconfig.DefaultPort)
	serverURL = withEnv(serverURL, "PSD2ATTR_URL", certconfig.DefaultURL)
	databasePath = withEnv(databasePath, "PSD2ATTR_DB", database.DefaultPath)
	certAttribute = withEnv(certAttribute, "PSD2ATTR_CERT_ATTRIBUTE", "")

	// Create the configuration
	cfg := certconfig.Config{
		Development:              development,
		Port:                     port,
		URL:                      serverURL,
		AdminPassword:            adminPassword,
		DatabasePath:             databasePath,
		CertificateAttributeName: certAttribute,
		CacheTTL:                 cacheTTL,
		AssertionTTL:             assertionTTL,
		AuditRetention:           auditRetention,
	}

	// Create the server. This initializes the database and the signing key.
	srv, err := server.New(cfg)
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received")
		cancel()
	}()

	// Start server
	if err := srv.Start(ctx); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// withEnv returns value if set, else the environment variable, else def
func withEnv(value, env, def string) string {
	if value != "" {
		return value
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

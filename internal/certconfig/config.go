package certconfig

import (
	"time"
)

// Config is the runtime configuration of the attribute service
type Config struct {
	Development bool

	// Port is where the HTTP API listens
	Port string
	// URL is the public URL of the service and the issuer of assertions
	URL string

	AdminPassword string
	DatabasePath  string

	// CertificateAttributeName is the subject attribute with the certificate
	CertificateAttributeName string

	CacheTTL     time.Duration
	AssertionTTL time.Duration
	// AuditRetention is how long lookup records are kept; zero keeps them forever
	AuditRetention time.Duration
}

// Defaults used by main when neither a flag nor an environment variable is set.
const (
	DefaultPort           = "8090"
	DefaultURL            = "https://psd2attr.evidenceledger.eu"
	DefaultCacheTTL       = 10 * time.Minute
	DefaultAssertionTTL   = 5 * time.Minute
	DefaultAuditRetention = 30 * 24 * time.Hour
)

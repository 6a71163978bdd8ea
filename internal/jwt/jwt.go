package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/evidenceledger/psd2attr/internal/errl"
	"github.com/evidenceledger/psd2attr/internal/models"
	"github.com/evidenceledger/psd2attr/internal/util/x509util"
)

// KeyID identifies the signing key in the JWKS.
const KeyID = "psd2attr-key"

// DefaultAssertionTTL is used when the service is created with a zero TTL.
const DefaultAssertionTTL = 5 * time.Minute

// Service signs and verifies attribute assertions
type Service struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	ttl        time.Duration
}

// NewService creates a new JWT service with a fresh RSA signing key
func NewService(issuer string, ttl time.Duration) (*Service, error) {
	// Generate RSA key pair for token signing
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultAssertionTTL
	}

	slog.Info("JWT service initialized", "issuer", issuer, "ttl", ttl)
	return &Service{
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
		issuer:     issuer,
		ttl:        ttl,
	}, nil
}

// Thumbprint returns the base64url SHA-256 thumbprint of the DER encoding of cert
func Thumbprint(cert *x509util.Certificate) string {
	sum := sha256.Sum256(cert.X509().Raw)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// IssueAttributeAssertion signs the attributes extracted from cert
func (s *Service) IssueAttributeAssertion(cert *x509util.Certificate, result models.ExtractionResult) (*models.AttributeAssertion, error) {
	now := time.Now()

	roles := result.Roles
	if roles == nil {
		roles = []string{}
	}

	claims := &models.AttributeClaims{
		OrganizationIdentifier: result.OrganizationIdentifier,
		Roles:                  roles,
		CertificateThumbprint:  Thumbprint(cert),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   result.OrganizationIdentifier,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = KeyID

	tokenString, err := token.SignedString(s.privateKey)
	if err != nil {
		return nil, errl.Errorf("failed to sign attribute assertion: %w", err)
	}

	slog.Debug("Attribute assertion generated",
		"subject", claims.Subject,
		"roles", claims.Roles,
		"expiration", claims.ExpiresAt,
	)

	return &models.AttributeAssertion{
		Token:     tokenString,
		TokenType: "JWT",
		ExpiresIn: int(s.ttl.Seconds()),
	}, nil
}

// VerifyAttributeAssertion checks the signature, issuer and expiry of an
// assertion issued by this service and returns its claims
func (s *Service) VerifyAttributeAssertion(tokenString string) (*models.AttributeClaims, error) {
	claims := &models.AttributeClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return s.publicKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errl.Errorf("invalid attribute assertion: %w", err)
	}

	return claims, nil
}

// GetJWKS returns the JSON Web Key Set with the public signing key
func (s *Service) GetJWKS() (map[string]any, error) {
	jk, err := jwk.Import(s.publicKey)
	if err != nil {
		return nil, errl.Errorf("failed to import public key: %w", err)
	}

	if err := jk.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, errl.Error(err)
	}
	if err := jk.Set(jwk.KeyIDKey, KeyID); err != nil {
		return nil, errl.Error(err)
	}
	if err := jk.Set(jwk.AlgorithmKey, "RS256"); err != nil {
		return nil, errl.Error(err)
	}

	jwks := map[string]any{
		"keys": []any{jk},
	}
	return jwks, nil
}

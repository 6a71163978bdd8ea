package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// AttributeAssertion is a signed statement of the PSD2 attributes of a
// certificate, returned to callers that ask for one.
type AttributeAssertion struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
}

// AttributeClaims are the claims of an attribute assertion. The subject is
// the organization identifier.
type AttributeClaims struct {
	OrganizationIdentifier string   `json:"organization_identifier"`
	Roles                  []string `json:"psd2_roles"`
	CertificateThumbprint  string   `json:"x5t#S256"`
	jwt.RegisteredClaims
}

// Make sure we implement the Claims interface
var _ jwt.Claims = (*AttributeClaims)(nil)

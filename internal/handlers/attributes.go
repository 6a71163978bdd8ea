package handlers

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/evidenceledger/psd2attr/internal/attrprovider"
	"github.com/evidenceledger/psd2attr/internal/database"
	"github.com/evidenceledger/psd2attr/internal/errl"
	"github.com/evidenceledger/psd2attr/internal/jwt"
	"github.com/evidenceledger/psd2attr/internal/models"
)

// Sources of attribute lookups, stored with each audit record.
const (
	SourceAttributes = "attributes"
	SourceMTLS       = "mtls"
)

// ClientCertificateHeader carries the base64 DER client certificate set by
// the TLS terminating proxy.
const ClientCertificateHeader = "tls-client-certificate"

// GenericErrorDescription is returned instead of the error text for
// generic errors, whose detail is only logged.
const GenericErrorDescription = "the certificate attributes could not be processed"

// AttributeHandlers handles attribute lookup HTTP requests
type AttributeHandlers struct {
	provider   *attrprovider.Provider
	db         *database.Database
	jwtService *jwt.Service
}

// NewAttributeHandlers creates new attribute handlers
func NewAttributeHandlers(provider *attrprovider.Provider, db *database.Database, jwtService *jwt.Service) *AttributeHandlers {
	return &AttributeHandlers{
		provider:   provider,
		db:         db,
		jwtService: jwtService,
	}
}

// attributesResponse is the body of a successful lookup
type attributesResponse struct {
	*models.AttributeTable
	Assertion *models.AttributeAssertion `json:"assertion,omitempty"`
}

// GetAttributes handles lookups where the body is the JSON object of
// subject attributes
func (h *AttributeHandlers) GetAttributes(c *fiber.Ctx) error {
	var subjectAttributes map[string]any
	if err := c.BodyParser(&subjectAttributes); err != nil {
		slog.Debug("Invalid subject attributes body", "error", err)
		return h.fail(c, SourceAttributes, nil, errl.Errorf("%w: %w", attrprovider.ErrInvalidInput, err))
	}

	return h.lookup(c, SourceAttributes, subjectAttributes)
}

// GetAttributesMTLS handles lookups for the client certificate of the TLS
// connection, forwarded by the proxy in a request header
func (h *AttributeHandlers) GetAttributesMTLS(c *fiber.Ctx) error {
	certHeader := c.Get(ClientCertificateHeader)
	if certHeader == "" {
		slog.Debug("No certificate provided in header", "header", ClientCertificateHeader)
		return h.fail(c, SourceMTLS, nil, attrprovider.ErrInvalidInput)
	}

	slog.Debug("Client certificate received", "cert_length", len(certHeader))

	return h.lookup(c, SourceMTLS, map[string]any{
		h.provider.CertificateAttributeName(): certHeader,
	})
}

// GetAttributesForSubject handles lookups by subject identifier only, which
// the provider cannot serve
func (h *AttributeHandlers) GetAttributesForSubject(c *fiber.Ctx) error {
	_, err := h.provider.GetAttributesForSubject(c.Params("subject"))
	return h.fail(c, SourceAttributes, nil, err)
}

// JWKS handles JSON Web Key Set endpoint
func (h *AttributeHandlers) JWKS(c *fiber.Ctx) error {
	jwks, err := h.jwtService.GetJWKS()
	if err != nil {
		slog.Error("Failed to build JWKS", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": attrprovider.CodeGeneric,
		})
	}
	return c.JSON(jwks)
}

func (h *AttributeHandlers) lookup(c *fiber.Ctx, source string, subjectAttributes map[string]any) error {
	res, err := h.provider.Resolve(subjectAttributes)
	if err != nil {
		return h.fail(c, source, res, err)
	}

	resp := attributesResponse{AttributeTable: models.NewAttributeTable(res.Result)}

	if c.QueryBool("assertion") {
		assertion, err := h.jwtService.IssueAttributeAssertion(res.Certificate, res.Result)
		if err != nil {
			slog.Error("Failed to issue attribute assertion", "error", err)
			return h.fail(c, source, res, errl.Errorf("%w: %w", attrprovider.ErrGeneric, err))
		}
		resp.Assertion = assertion
	}

	h.audit(newLookup(source, res, nil))

	slog.Info("PSD2 attributes resolved",
		"source", source,
		"organization_identifier", res.Result.OrganizationIdentifier,
		"roles", res.Result.Roles,
	)

	return c.JSON(resp)
}

// fail writes the error response for err and records the failed lookup.
// res may be nil when no certificate was decoded.
func (h *AttributeHandlers) fail(c *fiber.Ctx, source string, res *attrprovider.Resolution, err error) error {
	code := attrprovider.ErrorCode(err)
	status := StatusCode(code)

	if status == fiber.StatusInternalServerError {
		slog.Error("Attribute lookup failed", "source", source, "error", err)
	} else {
		slog.Info("Attribute lookup rejected", "source", source, "code", code, "error", err)
	}

	h.audit(newLookup(source, res, err))

	return c.Status(status).JSON(fiber.Map{
		"error":             code,
		"error_description": errorDescription(code, err),
	})
}

// audit stores the lookup record. Storage errors are logged and never fail
// the request.
func (h *AttributeHandlers) audit(l *models.AttributeLookup) {
	if h.db == nil {
		return
	}
	if err := h.db.CreateLookup(l); err != nil {
		slog.Error("Failed to store attribute lookup", "error", err)
	}
}

func newLookup(source string, res *attrprovider.Resolution, err error) *models.AttributeLookup {
	l := &models.AttributeLookup{
		Outcome:   models.OutcomeSuccess,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}

	if res != nil && res.Certificate != nil {
		cert := res.Certificate.X509()
		l.Fingerprint = res.Certificate.Fingerprint()
		l.ValidFrom = cert.NotBefore
		l.ValidTo = cert.NotAfter
	}

	if err != nil {
		l.Outcome = models.OutcomeFailure
		l.ErrorCode = attrprovider.ErrorCode(err)
		return l
	}

	if res != nil {
		l.OrganizationIdentifier = res.Result.OrganizationIdentifier
		l.Roles = res.Result.Roles
	}
	return l
}

func errorDescription(code string, err error) string {
	if code == attrprovider.CodeGeneric {
		return GenericErrorDescription
	}
	return err.Error()
}

// StatusCode returns the HTTP status for an attribute provider error code
func StatusCode(code string) int {
	switch code {
	case attrprovider.CodeInvalidInput:
		return fiber.StatusBadRequest
	case attrprovider.CodeAccessDenied:
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}

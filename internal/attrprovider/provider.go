// Package attrprovider is the attribute data access provider: it finds the
// client certificate in the subject attributes handed over by the identity
// server and returns its PSD2 attributes as a one row attribute table.
package attrprovider

import (
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/evidenceledger/psd2attr/internal/cache"
	"github.com/evidenceledger/psd2attr/internal/errl"
	"github.com/evidenceledger/psd2attr/internal/models"
	"github.com/evidenceledger/psd2attr/internal/psd2"
	"github.com/evidenceledger/psd2attr/internal/util/x509util"
)

// DefaultCertificateAttributeName is the subject attribute holding the
// certificate when none is configured.
const DefaultCertificateAttributeName = "x5c"

// Config is the configuration of the provider
type Config struct {
	// CertificateAttributeName is the subject attribute with the PEM (or
	// base64 DER) certificate.
	CertificateAttributeName string
	// CacheTTL enables caching of extraction results by certificate
	// fingerprint when positive.
	CacheTTL time.Duration
}

// Provider resolves PSD2 attributes from subject attributes.
type Provider struct {
	attributeName string
	decoder       *x509util.Decoder
	extractor     *psd2.Extractor
	results       *cache.Cache[models.ExtractionResult]
	cacheTTL      time.Duration
}

// Resolution is the outcome of resolving one set of subject attributes.
type Resolution struct {
	// Certificate is set once the certificate was decoded, even if the
	// extraction failed afterwards.
	Certificate *x509util.Certificate
	Result      models.ExtractionResult
}

// New creates a new provider. The decoder is shared and must not be nil.
func New(cfg Config, decoder *x509util.Decoder) *Provider {
	name := cfg.CertificateAttributeName
	if name == "" {
		name = DefaultCertificateAttributeName
	}

	p := &Provider{
		attributeName: name,
		decoder:       decoder,
		extractor:     psd2.NewExtractor(psd2.WithDiagnostics(logDiagnostic)),
		cacheTTL:      cfg.CacheTTL,
	}
	if cfg.CacheTTL > 0 {
		p.results = cache.New[models.ExtractionResult](cfg.CacheTTL)
	}

	slog.Debug("Attribute provider initialized", "certificate_attribute", name, "cache_ttl", cfg.CacheTTL)
	return p
}

func logDiagnostic(d psd2.Diagnostic) {
	slog.Info("Unexpected size of PSD2 role pair",
		"size", d.Size,
		"statement", d.Statement,
		"entry", d.Entry)
}

// CertificateAttributeName returns the subject attribute read by the provider.
func (p *Provider) CertificateAttributeName() string {
	return p.attributeName
}

// GetAttributesForSubject exists for identity servers that only pass the
// subject identifier. The certificate cannot be found that way, so it
// always fails with ErrInvalidInput.
func (p *Provider) GetAttributesForSubject(subject string) (*models.AttributeTable, error) {
	return nil, errl.Errorf("%w: the provider requires the full subject attributes", ErrInvalidInput)
}

// GetAttributes returns the roles and organizationIdentifier of the
// certificate found in subjectAttributes as a single row table.
func (p *Provider) GetAttributes(subjectAttributes map[string]any) (*models.AttributeTable, error) {
	res, err := p.Resolve(subjectAttributes)
	if err != nil {
		return nil, err
	}
	return models.NewAttributeTable(res.Result), nil
}

// Resolve decodes the certificate in subjectAttributes and extracts its
// attributes.
func (p *Provider) Resolve(subjectAttributes map[string]any) (*Resolution, error) {
	pemString, ok := subjectAttributes[p.attributeName].(string)
	if !ok {
		slog.Debug("Missing certificate in subject attributes",
			"attribute", p.attributeName,
			"attributes", attributeNames(subjectAttributes))
		return nil, errl.Errorf("%w: missing certificate in attribute %q", ErrInvalidInput, p.attributeName)
	}

	cert, err := p.decoder.Decode(pemString)
	if err != nil {
		slog.Debug("Failed to decode certificate", "attribute", p.attributeName, "error", err)
		return nil, errl.Errorf("%w: %w", ErrInvalidInput, err)
	}

	res := &Resolution{Certificate: cert}

	fingerprint := cert.Fingerprint()
	if p.results != nil {
		if cached, ok := p.results.Get(fingerprint); ok {
			res.Result = cached.Clone()
			return res, nil
		}
	}

	result, err := p.extractor.Extract(cert)
	if err != nil {
		return res, classify(err, fingerprint)
	}

	if p.results != nil {
		p.results.Set(fingerprint, result.Clone(), p.cacheTTL)
	}

	res.Result = result
	return res, nil
}

func classify(err error, fingerprint string) error {
	switch {
	case errors.Is(err, psd2.ErrOrganizationIdentifierNotFound):
		slog.Info("Certificate without organizationIdentifier", "fingerprint", fingerprint)
		return errl.Errorf("%w: invalid certificate: %w", ErrAccessDenied, err)
	case errors.Is(err, psd2.ErrMalformedQcStatement):
		slog.Info("Could not parse QCStatement", "fingerprint", fingerprint, "error", err)
		return errl.Errorf("%w: could not parse QCStatement: %w", ErrGeneric, err)
	}
	return errl.Errorf("%w: %w", ErrGeneric, err)
}

// attributeNames lists the keys only; values may be personal data.
func attributeNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Package psd2 reads the PSD2 identity attributes of a qualified certificate:
// the roles of the payment service provider from the ETSI QCStatements
// extension (ETSI TS 119 495) and the X.520 organizationIdentifier.
//
// Nothing here validates the certificate. The extractor only interprets an
// already decoded leaf certificate.
package psd2

import (
	"errors"
	"fmt"

	"github.com/evidenceledger/psd2attr/internal/errl"
	"github.com/evidenceledger/psd2attr/internal/models"
	"github.com/evidenceledger/psd2attr/internal/util/der"
	"github.com/evidenceledger/psd2attr/internal/util/x509util"
)

const (
	OIDQcStatements           = "1.3.6.1.5.5.7.1.3"
	OIDPSD2Statement          = "0.4.0.19495.2"
	OIDOrganizationIdentifier = "2.5.4.97"

	// Roles of PSP
	OIDRoleAccountServicing   = "0.4.0.19495.1.1" // PSP_AS
	OIDRolePaymentInitiation  = "0.4.0.19495.1.2" // PSP_PI
	OIDRoleAccountInformation = "0.4.0.19495.1.3" // PSP_AI
	OIDRoleCardIssuing        = "0.4.0.19495.1.4" // PSP_IC
)

var (
	ErrOrganizationIdentifierNotFound = errors.New("organizationIdentifier not found in certificate subject")
	ErrMalformedQcStatement           = errors.New("malformed QCStatement")
)

// Certificate is what the extractor needs from a decoded certificate.
// *x509util.Certificate implements it.
type Certificate interface {
	Subject() []x509util.AttributeTypeAndValue
	ExtensionValue(oid string) ([]byte, bool)
}

// MalformedError reports where the QCStatements structure did not match
// the expected schema. It matches ErrMalformedQcStatement with errors.Is.
type MalformedError struct {
	Field string
	Want  string
	Found string
	Err   error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", ErrMalformedQcStatement, e.Field, e.Err)
	}
	return fmt.Sprintf("%v: %s: expected %s, found %s", ErrMalformedQcStatement, e.Field, e.Want, e.Found)
}

func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedQcStatement
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

func mismatch(field, want string, found der.Value) error {
	return errl.Error(&MalformedError{Field: field, Want: want, Found: der.TypeName(found)})
}

// Diagnostic describes a role entry that was skipped.
type Diagnostic struct {
	Statement int // index in the QCStatements sequence
	Entry     int // index in rolesOfPSP
	Size      int
	Message   string
}

// DiagnosticFunc receives recoverable anomalies found while extracting.
type DiagnosticFunc func(Diagnostic)

// Option configures an Extractor.
type Option func(*Extractor)

// WithDiagnostics sets the callback for skipped role entries.
func WithDiagnostics(fn DiagnosticFunc) Option {
	return func(e *Extractor) {
		e.diagnostics = fn
	}
}

// Extractor reads PSD2 attributes from certificates. It is immutable once
// built and safe for concurrent use, provided the diagnostic callback is.
type Extractor struct {
	diagnostics DiagnosticFunc
}

// NewExtractor creates a new extractor
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) diagnose(d Diagnostic) {
	if e.diagnostics != nil {
		e.diagnostics(d)
	}
}

// OrganizationIdentifier returns the first organizationIdentifier attribute
// of the subject in its string form. A value that is not a character string,
// such as an INTEGER, is returned as "#" followed by the hex of its full
// encoding (for example "#020101"), not as a decimal number.
func (e *Extractor) OrganizationIdentifier(cert Certificate) (string, error) {
	for _, atv := range cert.Subject() {
		if atv.Type == OIDOrganizationIdentifier {
			return atv.Value.String(), nil
		}
	}
	return "", errl.Error(ErrOrganizationIdentifierNotFound)
}

// Extract returns the roles and the organization identifier of cert.
// Either both are returned or an error.
func (e *Extractor) Extract(cert Certificate) (models.ExtractionResult, error) {
	roles, err := e.Roles(cert)
	if err != nil {
		return models.ExtractionResult{}, err
	}

	orgID, err := e.OrganizationIdentifier(cert)
	if err != nil {
		return models.ExtractionResult{}, err
	}

	return models.ExtractionResult{
		Roles:                  roles,
		OrganizationIdentifier: orgID,
	}, nil
}

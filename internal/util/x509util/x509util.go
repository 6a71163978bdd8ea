// Package x509util decodes certificates received from clients and exposes
// the parts the attribute extractors need: the subject RDNs in encoding order
// and the raw extension values.
package x509util

import (
	"crypto/sha256"
	"crypto/x509"
	encasn1 "encoding/asn1"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"strings"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"github.com/evidenceledger/psd2attr/internal/errl"
	"github.com/evidenceledger/psd2attr/internal/util/der"
)

var (
	ErrNoCertificate   = errors.New("no certificate found")
	ErrInvalidEncoding = errors.New("invalid certificate encoding")
	ErrInvalidSubject  = errors.New("invalid subject name")
)

// AttributeTypeAndValue is one RDN component of a distinguished name.
type AttributeTypeAndValue struct {
	Type  string
	Value der.Value
}

// Certificate is a parsed X.509 certificate.
type Certificate struct {
	cert    *x509.Certificate
	subject []AttributeTypeAndValue
}

// Decoder turns PEM or base64 DER text into certificates. It has no state,
// so one instance can be shared by concurrent callers.
type Decoder struct{}

// NewDecoder creates a new certificate decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode accepts either a PEM "CERTIFICATE" block or the bare base64 DER
// used in the x5c JOSE header and in the tls-client-certificate header.
func (d *Decoder) Decode(text string) (*Certificate, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errl.Error(ErrNoCertificate)
	}

	if strings.HasPrefix(text, "-----BEGIN") {
		block, _ := pem.Decode([]byte(text))
		if block == nil {
			return nil, errl.Errorf("%w: malformed PEM", ErrInvalidEncoding)
		}
		if block.Type != "CERTIFICATE" {
			return nil, errl.Errorf("%w: unexpected PEM block %q", ErrInvalidEncoding, block.Type)
		}
		return d.DecodeDER(block.Bytes)
	}

	return d.DecodeBase64DER(text)
}

// DecodeBase64DER decodes standard base64 DER, ignoring embedded line breaks.
func (d *Decoder) DecodeBase64DER(text string) (*Certificate, error) {
	text = strings.Join(strings.Fields(text), "")
	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, errl.Errorf("%w: %w", ErrInvalidEncoding, err)
	}
	return d.DecodeDER(raw)
}

// DecodeDER parses a DER encoded certificate.
func (d *Decoder) DecodeDER(raw []byte) (*Certificate, error) {
	if len(raw) == 0 {
		return nil, errl.Error(ErrNoCertificate)
	}

	cert, err := x509.ParseCertificate(raw)
	if err != nil {
		return nil, errl.Errorf("%w: %w", ErrInvalidEncoding, err)
	}

	subject, err := ParseRDNSequence(cert.RawSubject)
	if err != nil {
		return nil, err
	}

	return &Certificate{cert: cert, subject: subject}, nil
}

// X509 returns the underlying parsed certificate.
func (c *Certificate) X509() *x509.Certificate {
	return c.cert
}

// Subject returns the subject attributes in encoding order.
func (c *Certificate) Subject() []AttributeTypeAndValue {
	out := make([]AttributeTypeAndValue, len(c.subject))
	copy(out, c.subject)
	return out
}

// ExtensionValue returns the extension value for the dotted oid still wrapped
// in its extnValue OCTET STRING, as encoded in the certificate.
func (c *Certificate) ExtensionValue(oid string) ([]byte, bool) {
	for _, ext := range c.cert.Extensions {
		if ext.Id.String() != oid {
			continue
		}
		var b cryptobyte.Builder
		b.AddASN1OctetString(ext.Value)
		out, err := b.Bytes()
		if err != nil {
			return nil, false
		}
		return out, true
	}
	return nil, false
}

// Fingerprint is the hex SHA-256 of the DER certificate.
func (c *Certificate) Fingerprint() string {
	sum := sha256.Sum256(c.cert.Raw)
	return hex.EncodeToString(sum[:])
}

// ParseRDNSequence walks a DER Name, keeping every attribute value as a
// generic der.Value.
//
//	Name ::= SEQUENCE OF SET OF SEQUENCE { type OBJECT IDENTIFIER, value ANY }
func ParseRDNSequence(raw []byte) ([]AttributeTypeAndValue, error) {
	in := cryptobyte.String(raw)
	var rdns cryptobyte.String
	if !in.ReadASN1(&rdns, asn1.SEQUENCE) || !in.Empty() {
		return nil, errl.Errorf("%w: not a SEQUENCE", ErrInvalidSubject)
	}

	var out []AttributeTypeAndValue
	for !rdns.Empty() {
		var set cryptobyte.String
		if !rdns.ReadASN1(&set, asn1.SET) {
			return nil, errl.Errorf("%w: RDN is not a SET", ErrInvalidSubject)
		}
		for !set.Empty() {
			var atv cryptobyte.String
			if !set.ReadASN1(&atv, asn1.SEQUENCE) {
				return nil, errl.Errorf("%w: attribute is not a SEQUENCE", ErrInvalidSubject)
			}

			var oid encasn1.ObjectIdentifier
			if !atv.ReadASN1ObjectIdentifier(&oid) {
				return nil, errl.Errorf("%w: invalid attribute type", ErrInvalidSubject)
			}

			var elem cryptobyte.String
			var tag asn1.Tag
			if !atv.ReadAnyASN1Element(&elem, &tag) || !atv.Empty() {
				return nil, errl.Errorf("%w: invalid value for %s", ErrInvalidSubject, oid)
			}

			value, err := der.Decode(elem)
			if err != nil {
				return nil, errl.Errorf("%w: value for %s: %w", ErrInvalidSubject, oid, err)
			}

			out = append(out, AttributeTypeAndValue{Type: oid.String(), Value: value})
		}
	}

	return out, nil
}

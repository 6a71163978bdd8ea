// Package testcert mints throwaway certificates and DER payloads for tests.
package testcert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	encasn1 "encoding/asn1"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

var (
	oidQcStatements           = encasn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 3}
	oidOrganizationIdentifier = encasn1.ObjectIdentifier{2, 5, 4, 97}

	OIDPSD2Statement = encasn1.ObjectIdentifier{0, 4, 0, 19495, 2}
	OIDQcCompliance  = encasn1.ObjectIdentifier{0, 4, 0, 1862, 1, 1}
	OIDRoleAS        = encasn1.ObjectIdentifier{0, 4, 0, 19495, 1, 1}
	OIDRolePI        = encasn1.ObjectIdentifier{0, 4, 0, 19495, 1, 2}
	OIDRoleAI        = encasn1.ObjectIdentifier{0, 4, 0, 19495, 1, 3}
	OIDRoleIC        = encasn1.ObjectIdentifier{0, 4, 0, 19495, 1, 4}
)

// Item adds one ASN.1 value to a builder.
type Item func(b *cryptobyte.Builder)

func Seq(items ...Item) Item {
	return func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			for _, item := range items {
				item(b)
			}
		})
	}
}

func OID(oid encasn1.ObjectIdentifier) Item {
	return func(b *cryptobyte.Builder) { b.AddASN1ObjectIdentifier(oid) }
}

func UTF8(s string) Item {
	return func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.UTF8String, func(b *cryptobyte.Builder) { b.AddBytes([]byte(s)) })
	}
}

func Printable(s string) Item {
	return func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.PrintableString, func(b *cryptobyte.Builder) { b.AddBytes([]byte(s)) })
	}
}

func Int(n int64) Item {
	return func(b *cryptobyte.Builder) { b.AddASN1Int64(n) }
}

func Octets(content []byte) Item {
	return func(b *cryptobyte.Builder) { b.AddASN1OctetString(content) }
}

// Role is a RoleOfPSP entry.
func Role(oid encasn1.ObjectIdentifier, name string) Item {
	return Seq(OID(oid), UTF8(name))
}

// PSD2Statement is a QCStatement carrying a PSD2QcType.
func PSD2Statement(ncaName, ncaID string, roles ...Item) Item {
	return Seq(OID(OIDPSD2Statement), Seq(Seq(roles...), UTF8(ncaName), UTF8(ncaID)))
}

// Encode serialises item.
func Encode(t testing.TB, item Item) []byte {
	t.Helper()
	var b cryptobyte.Builder
	item(&b)
	out, err := b.Bytes()
	if err != nil {
		t.Fatalf("encoding DER: %v", err)
	}
	return out
}

// Options describes the certificate to mint.
type Options struct {
	CommonName              string
	OrganizationIdentifiers []string
	// QCStatements is the DER of the QCStatements SEQUENCE; nil leaves the
	// extension out.
	QCStatements []byte
}

// NewDER returns a self-signed certificate in DER form.
func NewDER(t testing.TB, opts Options) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	cn := opts.CommonName
	if cn == "" {
		cn = "Test TPP"
	}
	subject := pkix.Name{
		Country:    []string{"FI"},
		CommonName: cn,
	}
	for _, id := range opts.OrganizationIdentifiers {
		subject.ExtraNames = append(subject.ExtraNames, pkix.AttributeTypeAndValue{
			Type:  oidOrganizationIdentifier,
			Value: id,
		})
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      subject,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	if opts.QCStatements != nil {
		template.ExtraExtensions = []pkix.Extension{{Id: oidQcStatements, Value: opts.QCStatements}}
	}

	raw, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}
	return raw
}

// NewPEM returns a self-signed certificate in PEM form.
func NewPEM(t testing.TB, opts Options) string {
	t.Helper()
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: NewDER(t, opts)}))
}

package x509util

import (
	encasn1 "encoding/asn1"
	"encoding/base64"
	"encoding/pem"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"github.com/evidenceledger/psd2attr/internal/util/der"
)

func loadFixture(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile("testdata/psd2_qwac.pem")
	require.NoError(t, err)
	return string(b)
}

func TestDecodePEM(t *testing.T) {
	cert, err := NewDecoder().Decode(loadFixture(t))
	require.NoError(t, err)

	subject := cert.Subject()
	require.NotEmpty(t, subject)
	assert.Equal(t, "2.5.4.6", subject[0].Type)
	assert.Equal(t, "FI - usage strictly limited to EU/EEA", subject[0].Value.String())

	var orgID der.Value
	for _, atv := range subject {
		if atv.Type == "2.5.4.97" {
			orgID = atv.Value
		}
	}
	require.NotNil(t, orgID)
	assert.Equal(t, der.String{StringTag: asn1.PrintableString, Text: "PSDFI-FSA-112233"}, orgID)

	ext, ok := cert.ExtensionValue("1.3.6.1.5.5.7.1.3")
	require.True(t, ok)
	assert.Equal(t, []byte{0x04, 0x72, 0x30, 0x70}, ext[:4])
	assert.Len(t, ext, 0x72+2)

	_, ok = cert.ExtensionValue("2.5.29.19")
	assert.False(t, ok)
}

func TestDecodeBase64DER(t *testing.T) {
	block, _ := pem.Decode([]byte(loadFixture(t)))
	require.NotNil(t, block)

	d := NewDecoder()
	fromPEM, err := d.Decode(loadFixture(t))
	require.NoError(t, err)

	b64 := base64.StdEncoding.EncodeToString(block.Bytes)
	fromB64, err := d.Decode(b64)
	require.NoError(t, err)
	assert.Equal(t, fromPEM.Fingerprint(), fromB64.Fingerprint())

	// wrapped at 64 columns like a PEM body
	var wrapped strings.Builder
	for i := 0; i < len(b64); i += 64 {
		wrapped.WriteString(b64[i:min(i+64, len(b64))])
		wrapped.WriteString("\n")
	}
	fromWrapped, err := d.Decode(wrapped.String())
	require.NoError(t, err)
	assert.Equal(t, fromPEM.Fingerprint(), fromWrapped.Fingerprint())
	assert.Len(t, fromPEM.Fingerprint(), 64)
}

func TestDecodeErrors(t *testing.T) {
	otherBlock := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: []byte{1, 2, 3}}))

	tests := []struct {
		name string
		in   string
		want error
	}{
		{"empty", "   ", ErrNoCertificate},
		{"broken pem", "-----BEGIN CERTIFICATE-----\nabc", ErrInvalidEncoding},
		{"other pem block", otherBlock, ErrInvalidEncoding},
		{"not base64", "this is not a certificate!", ErrInvalidEncoding},
		{"base64 garbage", base64.StdEncoding.EncodeToString([]byte("garbage")), ErrInvalidEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert, err := NewDecoder().Decode(tt.in)
			assert.Nil(t, cert)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecoderConcurrentUse(t *testing.T) {
	d := NewDecoder()
	pemText := loadFixture(t)

	var wg sync.WaitGroup
	fingerprints := make([]string, 8)
	for i := range fingerprints {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cert, err := d.Decode(pemText)
			if err == nil {
				fingerprints[i] = cert.Fingerprint()
			}
		}()
	}
	wg.Wait()

	for _, fp := range fingerprints {
		assert.Equal(t, fingerprints[0], fp)
		assert.NotEmpty(t, fp)
	}
}

func TestParseRDNSequence(t *testing.T) {
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.SET, func(b *cryptobyte.Builder) {
			b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1ObjectIdentifier(encasn1.ObjectIdentifier{2, 5, 4, 97})
				b.AddASN1(asn1.UTF8String, func(b *cryptobyte.Builder) { b.AddBytes([]byte("first")) })
			})
			b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1ObjectIdentifier(encasn1.ObjectIdentifier{2, 5, 4, 3})
				b.AddASN1Int64(7)
			})
		})
		b.AddASN1(asn1.SET, func(b *cryptobyte.Builder) {
			b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1ObjectIdentifier(encasn1.ObjectIdentifier{2, 5, 4, 97})
				b.AddASN1(asn1.UTF8String, func(b *cryptobyte.Builder) { b.AddBytes([]byte("second")) })
			})
		})
	})
	raw, err := b.Bytes()
	require.NoError(t, err)

	got, err := ParseRDNSequence(raw)
	require.NoError(t, err)
	assert.Equal(t, []AttributeTypeAndValue{
		{Type: "2.5.4.97", Value: der.UTF8String("first")},
		{Type: "2.5.4.3", Value: der.Other{OtherTag: asn1.INTEGER, Bytes: []byte{7}}},
		{Type: "2.5.4.97", Value: der.UTF8String("second")},
	}, got)

	_, err = ParseRDNSequence([]byte{0x31, 0x00})
	assert.ErrorIs(t, err, ErrInvalidSubject)

	_, err = ParseRDNSequence([]byte{0x30, 0x02, 0x30, 0x00})
	assert.ErrorIs(t, err, ErrInvalidSubject)
}

// Package der decodes DER encoded ASN.1 into a small tree of typed values.
//
// Only the shapes needed to walk certificate extensions and distinguished
// names get their own variant. Anything else is kept as Other with its tag
// and content octets, so callers can still report what they found.
package der

import (
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// MaxDepth bounds the nesting of constructed values accepted by Decode.
const MaxDepth = 32

// Universal tags that cryptobyte/asn1 does not name.
const (
	tagNumericString   = asn1.Tag(18)
	tagVisibleString   = asn1.Tag(26)
	tagUniversalString = asn1.Tag(28)
	tagBMPString       = asn1.Tag(30)
)

var (
	ErrTrailingData = errors.New("der: trailing data after value")
	ErrTooDeep      = errors.New("der: value nested too deeply")
	ErrSyntax       = errors.New("der: malformed encoding")
)

// Value is one decoded ASN.1 node. The concrete type is always one of
// Sequence, OctetString, UTF8String, ObjectIdentifier, String or Other.
type Value interface {
	Tag() asn1.Tag
	String() string
	sealed()
}

// Sequence is a SEQUENCE; it owns its elements.
type Sequence []Value

// OctetString is an OCTET STRING.
type OctetString []byte

// UTF8String is a UTF8String.
type UTF8String string

// ObjectIdentifier is an OBJECT IDENTIFIER in dotted form.
type ObjectIdentifier string

// String is any character string type other than UTF8String.
type String struct {
	StringTag asn1.Tag
	Text      string
}

// Other is any value without a dedicated variant. Bytes holds the content
// octets; constructed values are not descended into.
type Other struct {
	OtherTag asn1.Tag
	Bytes    []byte
}

func (Sequence) Tag() asn1.Tag         { return asn1.SEQUENCE }
func (OctetString) Tag() asn1.Tag      { return asn1.OCTET_STRING }
func (UTF8String) Tag() asn1.Tag       { return asn1.UTF8String }
func (ObjectIdentifier) Tag() asn1.Tag { return asn1.OBJECT_IDENTIFIER }
func (s String) Tag() asn1.Tag         { return s.StringTag }
func (o Other) Tag() asn1.Tag          { return o.OtherTag }

func (Sequence) sealed()         {}
func (OctetString) sealed()      {}
func (UTF8String) sealed()       {}
func (ObjectIdentifier) sealed() {}
func (String) sealed()           {}
func (Other) sealed()            {}

func (s Sequence) String() string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (o OctetString) String() string      { return "#" + hex.EncodeToString(o) }
func (u UTF8String) String() string       { return string(u) }
func (o ObjectIdentifier) String() string { return string(o) }
func (s String) String() string           { return s.Text }

// String renders the full encoding in hex, the way RFC 4514 prints values
// that have no string form.
func (o Other) String() string {
	var b cryptobyte.Builder
	b.AddASN1(o.OtherTag, func(c *cryptobyte.Builder) {
		c.AddBytes(o.Bytes)
	})
	enc, err := b.Bytes()
	if err != nil {
		return "#" + hex.EncodeToString(o.Bytes)
	}
	return "#" + hex.EncodeToString(enc)
}

// Decode parses exactly one DER element from b.
func Decode(b []byte) (Value, error) {
	in := cryptobyte.String(b)
	v, err := decodeNext(&in, 0)
	if err != nil {
		return nil, err
	}
	if !in.Empty() {
		return nil, ErrTrailingData
	}
	return v, nil
}

func decodeNext(in *cryptobyte.String, depth int) (Value, error) {
	var content cryptobyte.String
	var tag asn1.Tag
	if !in.ReadAnyASN1(&content, &tag) {
		return nil, ErrSyntax
	}
	return decodeContent(tag, content, depth)
}

func decodeContent(tag asn1.Tag, content cryptobyte.String, depth int) (Value, error) {
	switch tag {
	case asn1.SEQUENCE:
		if depth >= MaxDepth {
			return nil, ErrTooDeep
		}
		seq := Sequence{}
		for !content.Empty() {
			v, err := decodeNext(&content, depth+1)
			if err != nil {
				return nil, err
			}
			seq = append(seq, v)
		}
		return seq, nil

	case asn1.OCTET_STRING:
		return OctetString(clone(content)), nil

	case asn1.UTF8String:
		if !utf8.Valid(content) {
			return nil, fmt.Errorf("%w: invalid UTF8String", ErrSyntax)
		}
		return UTF8String(content), nil

	case asn1.OBJECT_IDENTIFIER:
		var oid x509.OID
		if err := oid.UnmarshalBinary(content); err != nil {
			return nil, fmt.Errorf("%w: invalid OBJECT IDENTIFIER", ErrSyntax)
		}
		return ObjectIdentifier(oid.String()), nil

	case asn1.PrintableString, asn1.IA5String, tagNumericString, tagVisibleString:
		return String{StringTag: tag, Text: string(content)}, nil

	case asn1.T61String:
		text, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid T61String", ErrSyntax)
		}
		return String{StringTag: tag, Text: string(text)}, nil

	case tagBMPString:
		if len(content)%2 != 0 {
			return nil, fmt.Errorf("%w: odd length BMPString", ErrSyntax)
		}
		text, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(content)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid BMPString", ErrSyntax)
		}
		return String{StringTag: tag, Text: string(text)}, nil

	case tagUniversalString:
		if len(content)%4 != 0 {
			return nil, fmt.Errorf("%w: invalid UniversalString length", ErrSyntax)
		}
		text, err := utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM).NewDecoder().Bytes(content)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid UniversalString", ErrSyntax)
		}
		return String{StringTag: tag, Text: string(text)}, nil
	}

	return Other{OtherTag: tag, Bytes: clone(content)}, nil
}

// TypeName names the ASN.1 type of v for diagnostics.
func TypeName(v Value) string {
	switch t := v.(type) {
	case nil:
		return "nothing"
	case Sequence:
		return "SEQUENCE"
	case OctetString:
		return "OCTET STRING"
	case UTF8String:
		return "UTF8String"
	case ObjectIdentifier:
		return "OBJECT IDENTIFIER"
	case String:
		return stringTypeName(t.StringTag)
	case Other:
		switch t.OtherTag {
		case asn1.SET:
			return "SET"
		case asn1.INTEGER:
			return "INTEGER"
		case asn1.BOOLEAN:
			return "BOOLEAN"
		case asn1.NULL:
			return "NULL"
		case asn1.BIT_STRING:
			return "BIT STRING"
		}
		return fmt.Sprintf("tag 0x%02x", uint8(t.OtherTag))
	}
	return fmt.Sprintf("%T", v)
}

func stringTypeName(tag asn1.Tag) string {
	switch tag {
	case asn1.PrintableString:
		return "PrintableString"
	case asn1.IA5String:
		return "IA5String"
	case asn1.T61String:
		return "T61String"
	case tagNumericString:
		return "NumericString"
	case tagVisibleString:
		return "VisibleString"
	case tagBMPString:
		return "BMPString"
	case tagUniversalString:
		return "UniversalString"
	}
	return fmt.Sprintf("string tag 0x%02x", uint8(tag))
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

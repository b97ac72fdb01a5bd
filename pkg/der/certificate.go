// Package der implements the L1 DerReader layer: decoding DER bytes into
// in-memory certificate, CRL, and CMS structures, and exposing the
// accessors the higher layers consume (spec §4.1). Certificate and CRL
// parsing is built on crypto/x509 exactly as the teacher's pkg/pki and
// pkg/mdoc/iaca.go do; CMS parsing is built on github.com/digitorus/pkcs7,
// the closest ecosystem analogue of RFC 5652 SignedData to PKCS#7.
package der

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"strings"
	"time"

	"epasspkd/pkg/codec"
	"epasspkd/pkg/pkderrors"
)

// ParseErrorKind distinguishes the taxonomy of parse failures spec §4.1
// requires: "not DER", "truncated", "unexpected tag", "unsupported feature".
type ParseErrorKind string

const (
	KindNotDER              ParseErrorKind = "NOT_DER"
	KindTruncated           ParseErrorKind = "TRUNCATED"
	KindUnexpectedTag       ParseErrorKind = "UNEXPECTED_TAG"
	KindUnsupportedFeature  ParseErrorKind = "UNSUPPORTED_FEATURE"
)

// ParseError is the tagged error variant returned by every parse operation
// in this package. It never escapes as a panic.
type ParseError struct {
	Kind ParseErrorKind
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("der: %s: %s", e.Kind, e.Msg)
}

// Certificate is the parsed X.509 certificate with the fields spec §3
// names as explicit accessors, backed by the DER bytes as the
// authoritative source.
type Certificate struct {
	Raw                []byte
	Native             *x509.Certificate
	SubjectDN          string
	IssuerDN           string
	SerialHex          string
	NotBefore          time.Time
	NotAfter           time.Time
	SignatureAlgorithm string
	Signature          []byte
	PublicKeyAlgorithm string
	Extensions         []pkix.Extension

	// Warnings captures non-fatal observations made during parsing (e.g.
	// DER trailing bytes, see SPEC_FULL.md Open Question 2).
	Warnings []*pkderrors.Error
}

// Fingerprint returns the SHA-256 fingerprint of the certificate DER,
// 64 lowercase hex characters (spec §4.2).
func (c *Certificate) Fingerprint() string {
	return codec.Fingerprint(c.Raw)
}

// ParseCertificate decodes DER bytes into a Certificate. It verifies the
// outer SEQUENCE tag, tolerates trailing bytes (recording a warning), but
// rejects truncated or malformed input (spec §4.1).
func ParseCertificate(data []byte) (*Certificate, error) {
	if len(data) == 0 {
		return nil, &ParseError{Kind: KindTruncated, Msg: "empty input"}
	}
	if data[0] != 0x30 {
		return nil, &ParseError{Kind: KindUnexpectedTag, Msg: fmt.Sprintf("expected SEQUENCE (0x30), got 0x%02x", data[0])}
	}
	length, consumed, err := codec.DERLength(data[1:])
	if err != nil {
		return nil, &ParseError{Kind: KindNotDER, Msg: err.Error()}
	}
	totalLen := 1 + consumed + length
	if totalLen > len(data) {
		return nil, &ParseError{Kind: KindTruncated, Msg: "buffer shorter than declared DER length"}
	}

	// x509.ParseCertificate rejects any input carrying bytes past the
	// parsed SEQUENCE, so trailing bytes must be trimmed off before the
	// call rather than tolerated after it.
	native, err := x509.ParseCertificate(data[:totalLen])
	if err != nil {
		return nil, &ParseError{Kind: KindUnsupportedFeature, Msg: err.Error()}
	}

	cert := &Certificate{
		Raw:                native.Raw,
		Native:             native,
		SubjectDN:          native.Subject.String(),
		IssuerDN:           native.Issuer.String(),
		SerialHex:          serialHex(native.SerialNumber),
		NotBefore:          native.NotBefore,
		NotAfter:           native.NotAfter,
		SignatureAlgorithm: native.SignatureAlgorithm.String(),
		Signature:          native.Signature,
		PublicKeyAlgorithm: native.PublicKeyAlgorithm.String(),
		Extensions:         native.Extensions,
	}

	if totalLen < len(data) {
		cert.Warnings = append(cert.Warnings, pkderrors.NewError(
			pkderrors.CodeDERTrailingBytes,
			"certificate DER has trailing bytes past the declared length",
		))
	}

	return cert, nil
}

// ToDER deterministically re-encodes a Certificate, required for
// fingerprint stability across parse/re-encode cycles (spec §4.1, §8
// DER round-trip property).
func ToDER(cert *Certificate) []byte {
	out := make([]byte, len(cert.Raw))
	copy(out, cert.Raw)
	return out
}

func serialHex(n *big.Int) string {
	if n == nil {
		return ""
	}
	s := strings.ToLower(n.Text(16))
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return s
}

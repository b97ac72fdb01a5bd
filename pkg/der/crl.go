package der

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"time"

	"epasspkd/pkg/codec"
)

// RevokedCert is one entry of a parsed CRL, grounded on RFC 5280 §5.3.1.
type RevokedCert struct {
	SerialHex      string
	RevocationTime time.Time
	ReasonCode     int
	HasReasonCode  bool
}

// CRL is the parsed certificate revocation list.
type CRL struct {
	Raw        []byte
	Native     *x509.RevocationList
	IssuerDN   string
	ThisUpdate time.Time
	NextUpdate time.Time
	Revoked    []RevokedCert
}

// Fingerprint returns the SHA-256 fingerprint of the CRL DER.
func (c *CRL) Fingerprint() string {
	return codec.Fingerprint(c.Raw)
}

// oidCRLReason is id-ce-cRLReason (RFC 5280 §5.3.1), an ENUMERATED entry
// extension giving the reason a certificate was revoked.
var oidCRLReason = asn1.ObjectIdentifier{2, 5, 29, 21}

// ParseCRL decodes DER bytes into a CRL, extracting the per-entry
// revocation reason code where present (spec §4.1, §6 revocation model).
func ParseCRL(data []byte) (*CRL, error) {
	if len(data) == 0 {
		return nil, &ParseError{Kind: KindTruncated, Msg: "empty input"}
	}
	if data[0] != 0x30 {
		return nil, &ParseError{Kind: KindUnexpectedTag, Msg: fmt.Sprintf("expected SEQUENCE (0x30), got 0x%02x", data[0])}
	}

	native, err := x509.ParseRevocationList(data)
	if err != nil {
		return nil, &ParseError{Kind: KindUnsupportedFeature, Msg: err.Error()}
	}

	crl := &CRL{
		Raw:        native.Raw,
		Native:     native,
		IssuerDN:   native.Issuer.String(),
		ThisUpdate: native.ThisUpdate,
		NextUpdate: native.NextUpdate,
	}

	for _, rc := range native.RevokedCertificateEntries {
		entry := RevokedCert{
			SerialHex:      serialHex(rc.SerialNumber),
			RevocationTime: rc.RevocationTime,
		}
		if code, ok := crlEntryReasonCode(rc.Extensions); ok {
			entry.ReasonCode = code
			entry.HasReasonCode = true
		} else if rc.ReasonCode != 0 {
			entry.ReasonCode = rc.ReasonCode
			entry.HasReasonCode = true
		}
		crl.Revoked = append(crl.Revoked, entry)
	}

	return crl, nil
}

// crlEntryReasonCode decodes the ENUMERATED value of id-ce-cRLReason
// directly, since the Go standard library surfaces ReasonCode as a bare
// int indistinguishable from "absent, default unspecified".
func crlEntryReasonCode(exts []pkix.Extension) (int, bool) {
	for _, e := range exts {
		if !e.Id.Equal(oidCRLReason) {
			continue
		}
		var code asn1.Enumerated
		if _, err := asn1.Unmarshal(e.Value, &code); err != nil {
			continue
		}
		return int(code), true
	}
	return 0, false
}

package der

import (
	"crypto/x509"

	"github.com/digitorus/pkcs7"
)

// CMS is the parsed RFC 5652 SignedData structure wrapping an SOD or a
// Master List. digitorus/pkcs7 is the ecosystem's closest PKCS#7/CMS
// SignedData parser; its shape (Content, Certificates, Signers) maps
// directly onto the fields spec §4.4/§4.7 require.
type CMS struct {
	native *pkcs7.PKCS7

	// Content is the encapsulated content octets (the DER-encoded
	// LDSSecurityObject for an SOD, or the CscaMasterList for a Master
	// List), after CMS unwrapping.
	Content []byte

	// Certificates are every certificate carried in the CMS
	// SignedData.certificates field (the signing DSC for an SOD, or the
	// Master List Signing Certificate plus the bundled CSCAs).
	Certificates []*x509.Certificate
}

// ParseCMS decodes a DER-encoded CMS SignedData structure.
func ParseCMS(data []byte) (*CMS, error) {
	native, err := pkcs7.Parse(data)
	if err != nil {
		return nil, &ParseError{Kind: KindUnsupportedFeature, Msg: err.Error()}
	}
	return &CMS{
		native:       native,
		Content:      native.Content,
		Certificates: native.Certificates,
	}, nil
}

// VerifySignedBy verifies the CMS SignedData's signature against signer,
// the certificate asserted to have produced it (the DSC for an SOD, the
// Master List Signing Certificate for a Master List). digitorus/pkcs7
// checks the signed attributes' message digest against Content and the
// signature over the signed attributes against signer's public key.
func (c *CMS) VerifySignedBy(signer *x509.Certificate) error {
	if signer != nil {
		c.native.Certificates = append([]*x509.Certificate{signer}, c.native.Certificates...)
	}
	return c.native.Verify()
}

// GetOnlySigner returns the sole signer certificate embedded in the CMS
// structure, or nil if there is none or more than one (spec §4.4: an SOD
// carries exactly one signer, the DSC).
func (c *CMS) GetOnlySigner() *x509.Certificate {
	return c.native.GetOnlySigner()
}

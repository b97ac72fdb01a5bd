// Package compliance implements the AlgorithmComplianceChecker: the
// Doc 9303 Appendix A approved/deprecated signature and digest
// algorithm table, plus the RSA key-size floor (spec §4.8). It is
// consulted per-certificate by the trustchain layer; it never performs
// I/O and never consults a provider.
package compliance

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"epasspkd/pkg/pkderrors"
)

// minRSAModulusBits is the Doc 9303 Appendix A floor for RSA keys used
// in the ePassport PKI (1024-bit RSA is deprecated; 2048 is the
// present-day minimum any compliant CSCA/DSC must meet).
const minRSAModulusBits = 2048

// deprecatedSignatureAlgorithms are the signature algorithms Doc 9303
// Appendix A marks deprecated: MD5/SHA-1-based signatures, retained
// only for historical document verification, never for new issuance.
var deprecatedSignatureAlgorithms = map[x509.SignatureAlgorithm]bool{
	x509.MD5WithRSA:    true,
	x509.SHA1WithRSA:   true,
	x509.DSAWithSHA1:   true,
	x509.ECDSAWithSHA1: true,
}

// deprecatedSignatureAlgorithm returns the algorithm's name if
// deprecated, or "" if it is Doc 9303-compliant.
func deprecatedSignatureAlgorithm(alg x509.SignatureAlgorithm) string {
	if deprecatedSignatureAlgorithms[alg] {
		return alg.String()
	}
	return ""
}

// Check evaluates a certificate's signature algorithm and, for RSA
// keys, its modulus size, against the Appendix A compliance table. It
// never rejects outright; callers decide how to weigh a WARNING
// against their own acceptance policy (spec §4.8, §7 severity model).
func Check(cert *x509.Certificate) []*pkderrors.Error {
	var errs []*pkderrors.Error

	if deprecated := deprecatedSignatureAlgorithm(cert.SignatureAlgorithm); deprecated != "" {
		errs = append(errs, pkderrors.NewErrorDetails(
			pkderrors.CodeAlgorithmDeprecated,
			fmt.Sprintf("signature algorithm %s is deprecated by Doc 9303 Appendix A", cert.SignatureAlgorithm),
			deprecated,
		))
	}

	if rsaKey, ok := cert.PublicKey.(*rsa.PublicKey); ok {
		bits := rsaKey.N.BitLen()
		if bits < minRSAModulusBits {
			errs = append(errs, pkderrors.NewErrorDetails(
				pkderrors.CodeAlgorithmDeprecated,
				fmt.Sprintf("RSA modulus %d bits is below the %d-bit Doc 9303 Appendix A floor", bits, minRSAModulusBits),
				bits,
			))
		}
	}

	return errs
}

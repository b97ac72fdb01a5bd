package der

import (
	"encoding/pem"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// ToJWK exports a certificate's public key as a JWK, for hosts that want
// to publish trusted CSCA/DSC keys alongside a JWKS-consuming fleet.
func ToJWK(cert *Certificate) (jwk.Key, error) {
	block := &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}
	return jwk.ParseKey(pem.EncodeToMemory(block), jwk.WithPEM(true))
}

// PublicKeyOf extracts the raw crypto public key without round-tripping
// through PEM/JWK.
func PublicKeyOf(cert *Certificate) any {
	if cert == nil || cert.Native == nil {
		return nil
	}
	return cert.Native.PublicKey
}

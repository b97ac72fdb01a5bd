package sod

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/digitorus/pkcs7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeDSC(t *testing.T) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(7),
		Subject:                pkix.Name{CommonName: "Sweden DSC", Country: []string{"SE"}},
		NotBefore:              time.Now().Add(-time.Hour),
		NotAfter:               time.Now().Add(24 * time.Hour),
		KeyUsage:               x509.KeyUsageDigitalSignature,
		BasicConstraintsValid:  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return cert, priv
}

func signCMS(t *testing.T, content []byte, cert *x509.Certificate, key *ecdsa.PrivateKey) []byte {
	t.Helper()
	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		t.Fatalf("NewSignedData: %v", err)
	}
	if err := sd.AddSigner(cert, key, pkcs7.SignerInfoConfig{}); err != nil {
		t.Fatalf("AddSigner: %v", err)
	}
	out, err := sd.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return out
}

func TestParseAndVerifySignature(t *testing.T) {
	cert, key := makeDSC(t)
	content := []byte{0x30, 0x03, 0x02, 0x01, 0x00} // trivial DER SEQUENCE
	cms := signCMS(t, content, cert, key)

	parsed, err := Parse(cms)
	require.NoError(t, err)
	require.NotNil(t, parsed.DSC, "expected embedded DSC")
	assert.Nil(t, parsed.VerifySignature())
}

func TestUnwrap_TagPresent(t *testing.T) {
	inner := []byte{0x01, 0x02, 0x03}
	wrapped := append([]byte{0x77, byte(len(inner))}, inner...)
	assert.Equal(t, inner, Unwrap(wrapped))
}

func TestUnwrap_NoTag(t *testing.T) {
	raw := []byte{0x30, 0x03, 0x02, 0x01, 0x00}
	assert.Equal(t, raw, Unwrap(raw))
}

package masterlist

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"github.com/digitorus/pkcs7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSignedRoot(t *testing.T, cn string) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:                pkix.Name{CommonName: cn, Country: []string{"SE"}},
		NotBefore:              time.Now().Add(-time.Hour),
		NotAfter:               time.Now().Add(24 * time.Hour),
		IsCA:                   true,
		KeyUsage:               x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
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

func TestParse(t *testing.T) {
	mlsc, mlscKey := selfSignedRoot(t, "Sweden MLSC")
	csca1, _ := selfSignedRoot(t, "Sweden CSCA 1")
	csca2, _ := selfSignedRoot(t, "Sweden CSCA 2")

	content, err := asn1.Marshal(cscaMasterList{
		Version: 0,
		CertList: []asn1.RawValue{
			{FullBytes: csca1.Raw},
			{FullBytes: csca2.Raw},
		},
	})
	if err != nil {
		t.Fatalf("asn1.Marshal: %v", err)
	}

	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		t.Fatalf("NewSignedData: %v", err)
	}
	if err := sd.AddSigner(mlsc, mlscKey, pkcs7.SignerInfoConfig{}); err != nil {
		t.Fatalf("AddSigner: %v", err)
	}
	cms, err := sd.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	ml, err := Parse(cms)
	require.NoError(t, err)
	assert.NotNil(t, ml.SigningCertificate)
	assert.Len(t, ml.CSCAs, 2)
	assert.Empty(t, ml.Skipped)
}

func nonCALeaf(t *testing.T, cn string, issuer *x509.Certificate, issuerKey *ecdsa.PrivateKey) *x509.Certificate {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(7),
		Subject:                pkix.Name{CommonName: cn, Country: []string{"SE"}},
		NotBefore:              time.Now().Add(-time.Hour),
		NotAfter:               time.Now().Add(24 * time.Hour),
		KeyUsage:               x509.KeyUsageDigitalSignature,
		BasicConstraintsValid:  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, issuer, &priv.PublicKey, issuerKey)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return cert
}

func TestParse_SkipsNonCAEntry(t *testing.T) {
	mlsc, mlscKey := selfSignedRoot(t, "Sweden MLSC")
	csca, cscaKey := selfSignedRoot(t, "Sweden CSCA")
	leaf := nonCALeaf(t, "Sweden DSC", csca, cscaKey)

	content, err := asn1.Marshal(cscaMasterList{
		Version: 0,
		CertList: []asn1.RawValue{
			{FullBytes: csca.Raw},
			{FullBytes: leaf.Raw},
		},
	})
	if err != nil {
		t.Fatalf("asn1.Marshal: %v", err)
	}

	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		t.Fatalf("NewSignedData: %v", err)
	}
	if err := sd.AddSigner(mlsc, mlscKey, pkcs7.SignerInfoConfig{}); err != nil {
		t.Fatalf("AddSigner: %v", err)
	}
	cms, err := sd.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	ml, err := Parse(cms)
	require.NoError(t, err)
	assert.Len(t, ml.CSCAs, 1, "expected the non-CA leaf to be skipped")
	if assert.Len(t, ml.Skipped, 1) {
		assert.Equal(t, "MASTERLIST_ENTRY_SKIPPED", string(ml.Skipped[0].Code))
	}
}

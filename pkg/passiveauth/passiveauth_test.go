package passiveauth

import (
	"context"
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

	"epasspkd/pkg/codec"
	"epasspkd/pkg/directory"
)

type ldsDataGroupHash struct {
	DataGroupNumber int
	Digest          []byte
}

type ldsAlgorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

type ldsSecurityObject struct {
	Version       int
	HashAlgorithm ldsAlgorithmIdentifier
	DataGroupHash []ldsDataGroupHash
}

func makeCSCA(t *testing.T) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:                pkix.Name{CommonName: "Sweden CSCA", Country: []string{"SE"}},
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

func makeDSC(t *testing.T, issuer *x509.Certificate, issuerKey *ecdsa.PrivateKey) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(99),
		Subject:                pkix.Name{CommonName: "Sweden DSC", Country: []string{"SE"}},
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
	return cert, priv
}

func TestAuthenticate_HappyPath(t *testing.T) {
	csca, cscaKey := makeCSCA(t)
	dsc, dscKey := makeDSC(t, csca, cscaKey)

	dg1Content := []byte("data group 1 content")
	dg1Hash, _ := codec.Digest(codec.HashSHA256, dg1Content)

	ldsContent, err := asn1.Marshal(ldsSecurityObject{
		Version:       0,
		HashAlgorithm: ldsAlgorithmIdentifier{Algorithm: asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}},
		DataGroupHash: []ldsDataGroupHash{{DataGroupNumber: 1, Digest: dg1Hash}},
	})
	if err != nil {
		t.Fatalf("asn1.Marshal: %v", err)
	}

	sd, err := pkcs7.NewSignedData(ldsContent)
	if err != nil {
		t.Fatalf("NewSignedData: %v", err)
	}
	if err := sd.AddSigner(dsc, dscKey, pkcs7.SignerInfoConfig{}); err != nil {
		t.Fatalf("AddSigner: %v", err)
	}
	sodBytes, err := sd.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	dir := directory.NewInMemoryDirectory()
	dir.AddCsca(csca)

	auth := NewAuthenticator(Config{CscaProvider: dir, CrlProvider: dir})
	result := auth.Authenticate(context.Background(), "SE", sodBytes, []DataGroup{
		{Number: 1, Content: dg1Content},
	})

	assert.True(t, result.SignatureValid, "errors: %v", result.Errors)
	assert.True(t, result.ChainValid, "errors: %v", result.Errors)
	if assert.NotNil(t, result.DataGroupResults[1]) {
		assert.True(t, result.DataGroupResults[1].Matched)
		assert.Equal(t, result.DataGroupResults[1].ExpectedHash, result.DataGroupResults[1].ActualHash)
	}
	assert.Equal(t, 1, result.DataGroupSummary.Total)
	assert.Equal(t, 1, result.DataGroupSummary.Valid)
	assert.Equal(t, 0, result.DataGroupSummary.Invalid)
	assert.NotEmpty(t, result.TraceID)
}

func TestAuthenticate_TamperedDataGroup(t *testing.T) {
	csca, cscaKey := makeCSCA(t)
	dsc, dscKey := makeDSC(t, csca, cscaKey)

	dg1Hash, _ := codec.Digest(codec.HashSHA256, []byte("original content"))
	ldsContent, _ := asn1.Marshal(ldsSecurityObject{
		Version:       0,
		HashAlgorithm: ldsAlgorithmIdentifier{Algorithm: asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}},
		DataGroupHash: []ldsDataGroupHash{{DataGroupNumber: 1, Digest: dg1Hash}},
	})

	sd, _ := pkcs7.NewSignedData(ldsContent)
	_ = sd.AddSigner(dsc, dscKey, pkcs7.SignerInfoConfig{})
	sodBytes, _ := sd.Finish()

	dir := directory.NewInMemoryDirectory()
	dir.AddCsca(csca)

	auth := NewAuthenticator(Config{CscaProvider: dir, CrlProvider: dir})
	result := auth.Authenticate(context.Background(), "SE", sodBytes, []DataGroup{
		{Number: 1, Content: []byte("tampered content")},
	})

	require.False(t, result.Valid(), "expected tampered data group to invalidate the result")
	if assert.NotNil(t, result.DataGroupResults[1]) {
		assert.False(t, result.DataGroupResults[1].Matched)
		assert.NotEqual(t, result.DataGroupResults[1].ExpectedHash, result.DataGroupResults[1].ActualHash)
	}
	assert.Equal(t, 1, result.DataGroupSummary.Invalid)
}

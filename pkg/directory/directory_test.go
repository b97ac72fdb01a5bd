package directory

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epasspkd/pkg/der"
	"epasspkd/pkg/ldif"
	"epasspkd/pkg/masterlist"
)

func makeCSCA(t *testing.T, cn string, serial int64) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
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

func makeDSC(t *testing.T, issuer *x509.Certificate, issuerKey *ecdsa.PrivateKey) *x509.Certificate {
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
	return cert
}

func TestInMemoryDirectory_FindCsca(t *testing.T) {
	csca, _ := makeCSCA(t, "Sweden CSCA", 1)
	dir := NewInMemoryDirectory()
	dir.AddCsca(csca)

	ctx := context.Background()
	found, err := dir.FindCscaByIssuerDn(ctx, csca.Subject.String())
	require.NoError(t, err)
	assert.NotNil(t, found, "expected to find indexed CSCA")
}

func TestDisambiguateRollover_SignatureMatch(t *testing.T) {
	cscaOld, cscaOldKey := makeCSCA(t, "Sweden CSCA", 1)
	cscaNew, _ := makeCSCA(t, "Sweden CSCA", 2)
	dsc := makeDSC(t, cscaOld, cscaOldKey)

	picked, dnOnlyFallback, err := DisambiguateRollover(dsc, []*x509.Certificate{cscaNew, cscaOld}, RolloverStrict)
	require.NoError(t, err)
	assert.Equal(t, 0, picked.SerialNumber.Cmp(cscaOld.SerialNumber))
	assert.False(t, dnOnlyFallback, "expected a signature match, not a DN-only fallback")
}

func TestDisambiguateRollover_StrictFailsWithoutMatch(t *testing.T) {
	cscaA, _ := makeCSCA(t, "Sweden CSCA", 1)
	cscaB, bKey := makeCSCA(t, "Sweden CSCA", 2)
	otherDSC := makeDSC(t, cscaB, bKey)

	_, _, err := DisambiguateRollover(otherDSC, []*x509.Certificate{cscaA}, RolloverStrict)
	assert.Error(t, err, "expected RolloverStrict to fail without a verifying candidate")
}

func TestDisambiguateRollover_PermissiveFallsBack(t *testing.T) {
	cscaA, _ := makeCSCA(t, "Sweden CSCA", 1)
	cscaB, bKey := makeCSCA(t, "Sweden CSCA", 2)
	otherDSC := makeDSC(t, cscaB, bKey)

	picked, dnOnlyFallback, err := DisambiguateRollover(otherDSC, []*x509.Certificate{cscaA}, RolloverPermissive)
	require.NoError(t, err)
	assert.NotNil(t, picked, "expected permissive fallback to return a candidate")
	assert.True(t, dnOnlyFallback, "expected the fallback to be flagged as DN-only")
}

func TestNormalizeCountryCode(t *testing.T) {
	assert.Equal(t, "SE", NormalizeCountryCode(" se "))
	assert.True(t, IsValidCountryCode("se"))
	assert.False(t, IsValidCountryCode("SWE"), "expected three-letter code to be invalid")
}

func TestCachingCscaProvider(t *testing.T) {
	csca, _ := makeCSCA(t, "Sweden CSCA", 1)
	dir := NewInMemoryDirectory()
	dir.AddCsca(csca)

	cached := NewCachingCscaProvider(dir, 50*time.Millisecond)
	ctx := context.Background()

	first, err := cached.FindCscaByIssuerDn(ctx, csca.Subject.String())
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := cached.FindCscaByIssuerDn(ctx, csca.Subject.String())
	require.NoError(t, err)
	assert.NotNil(t, second)
}

func TestIngestMasterList(t *testing.T) {
	cscaRaw, _ := makeCSCA(t, "Sweden CSCA", 1)
	parsed, err := der.ParseCertificate(cscaRaw.Raw)
	require.NoError(t, err)

	ml := &masterlist.MasterList{CSCAs: []*der.Certificate{parsed}}

	dir := NewInMemoryDirectory()
	assert.Equal(t, 1, dir.IngestMasterList(ml))

	found, err := dir.FindCscaByIssuerDn(context.Background(), cscaRaw.Subject.String())
	require.NoError(t, err)
	assert.NotNil(t, found, "expected ingested CSCA to be findable")
}

func TestIngestLdif(t *testing.T) {
	csca, cscaKey := makeCSCA(t, "Sweden CSCA", 1)

	crlTmpl := &x509.RevocationList{
		Number:     big.NewInt(1),
		ThisUpdate: time.Now().Add(-time.Hour),
		NextUpdate: time.Now().Add(24 * time.Hour),
	}
	crlDER, err := x509.CreateRevocationList(rand.Reader, crlTmpl, csca, cscaKey)
	require.NoError(t, err)

	entries := []*ldif.Entry{
		{
			DN: "cn=Sweden CSCA,c=SE",
			Attributes: []ldif.Attribute{
				{Name: "cACertificate", Value: csca.Raw},
			},
		},
		{
			DN: "cn=Sweden CRL,c=SE",
			Attributes: []ldif.Attribute{
				{Name: "certificateRevocationList", Value: crlDER},
				{Name: "c", Value: []byte("SE")},
			},
		},
	}

	dir := NewInMemoryDirectory()
	cscaCount, crlCount, errs := dir.IngestLdif(entries)
	require.Empty(t, errs)
	assert.Equal(t, 1, cscaCount)
	assert.Equal(t, 1, crlCount)

	_, err = dir.FindCscaByIssuerDn(context.Background(), csca.Subject.String())
	require.NoError(t, err)

	crl, err := dir.FindCrlByCountry(context.Background(), "SE")
	require.NoError(t, err)
	assert.NotNil(t, crl, "expected ingested CRL to be findable")
}

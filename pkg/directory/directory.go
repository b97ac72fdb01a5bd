// Package directory is the PKD's in-memory storage and provider layer:
// it is the only package in this module permitted mutable state (spec
// §5 "no shared mutable state exists in the core" outside provider
// implementations). It implements the CscaProvider and CrlProvider
// interfaces the trustchain and crl layers consume, and a caching
// decorator pair grounded on the teacher's pkg/trust/cache.go TrustCache
// (ttlcache-backed, composite-keyed).
package directory

import (
	"context"
	"crypto/x509"
	"fmt"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"epasspkd/pkg/certops"
	"epasspkd/pkg/der"
	"epasspkd/pkg/ldif"
	"epasspkd/pkg/masterlist"
	"epasspkd/pkg/pkderrors"
)

// ldifCscaAttribute and ldifCrlAttribute are the LDAP PKI schema attribute
// names national PKDs publish CSCA certificates and CRLs under
// (RFC 4523's pkiUser/pkiCA object classes); ldifCountryAttribute is the
// standard "c" attribute LDAP uses for a country code.
const (
	ldifCscaAttribute    = "cACertificate"
	ldifCrlAttribute     = "certificateRevocationList"
	ldifCountryAttribute = "c"
)

// RolloverPolicy resolves the Open Question on CSCA key-rollover
// disambiguation (SPEC_FULL.md Open Question 1): when multiple CSCAs
// share an issuer DN, RolloverStrict requires a DSC's signature to
// verify against a specific candidate before trusting it;
// RolloverPermissive falls back to a DN-only match if no candidate's
// signature verifies (e.g. because the DSC was issued under a CSCA
// generation the provider has not yet ingested).
type RolloverPolicy string

const (
	RolloverStrict    RolloverPolicy = "strict"
	RolloverPermissive RolloverPolicy = "permissive"
)

// CscaProvider is the host-supplied lookup interface for CSCA
// certificates, keyed by issuer distinguished name (spec §5).
type CscaProvider interface {
	// FindAllCscasByIssuerDn returns every CSCA certificate whose subject
	// DN normalizes equal to issuerDn, to support key-rollover
	// disambiguation (there may be more than one generation in force).
	FindAllCscasByIssuerDn(ctx context.Context, issuerDn string) ([]*x509.Certificate, error)

	// FindCscaByIssuerDn returns a single CSCA certificate, for providers
	// that do not need rollover disambiguation.
	FindCscaByIssuerDn(ctx context.Context, issuerDn string) (*x509.Certificate, error)
}

// CrlProvider is the host-supplied lookup interface for CRLs, keyed by
// ISO 3166-1 alpha-2 country code (spec §5, §6).
type CrlProvider interface {
	FindCrlByCountry(ctx context.Context, countryCode string) (*der.CRL, error)
}

// InMemoryDirectory is a CscaProvider/CrlProvider backed by in-process
// maps, suitable for tests and small deployments that load a full PKD
// snapshot (Master List plus LDIF bulk ingest) at startup.
type InMemoryDirectory struct {
	cscasByIssuerDn map[string][]*x509.Certificate
	crlsByCountry   map[string]*der.CRL
}

// NewInMemoryDirectory creates an empty directory.
func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		cscasByIssuerDn: make(map[string][]*x509.Certificate),
		crlsByCountry:   make(map[string]*der.CRL),
	}
}

// AddCsca indexes a CSCA certificate by its normalized subject DN (the
// DN a DSC's issuer field must match to chain to it).
func (d *InMemoryDirectory) AddCsca(cert *x509.Certificate) {
	key := normalizedDNKey(cert.Subject.String())
	d.cscasByIssuerDn[key] = append(d.cscasByIssuerDn[key], cert)
}

// AddCrl indexes a CRL by country code.
func (d *InMemoryDirectory) AddCrl(countryCode string, crl *der.CRL) {
	d.crlsByCountry[NormalizeCountryCode(countryCode)] = crl
}

// IngestMasterList bulk-loads every CSCA certificate from a parsed Master
// List (SPEC_FULL.md supplemented feature: Master List as a CSCA bulk
// ingestion path). Entries masterlist.Parse already skipped are not
// retried here; its Skipped slice is the place a host inspects those.
func (d *InMemoryDirectory) IngestMasterList(ml *masterlist.MasterList) int {
	count := 0
	for _, cert := range ml.CSCAs {
		d.AddCsca(cert.Native)
		count++
	}
	return count
}

// IngestLdif bulk-loads CSCA certificates and CRLs out of parsed LDIF
// entries (SPEC_FULL.md supplemented feature: LDIF as the other bulk
// ingestion path a national PKD publishes over). A CRL entry is indexed
// by the country code its own "c" attribute carries, or by the issuer DN's
// country component when the attribute is absent. Malformed attribute
// values are recorded rather than aborting the whole ingest, matching the
// ldif package's own per-entry tolerance.
func (d *InMemoryDirectory) IngestLdif(entries []*ldif.Entry) (cscaCount, crlCount int, errs []*pkderrors.Error) {
	for _, entry := range entries {
		if certBytes := entry.Get(ldifCscaAttribute); certBytes != nil {
			cert, err := der.ParseCertificate(certBytes)
			if err != nil {
				errs = append(errs, pkderrors.NewErrorDetails(
					pkderrors.CodeLdifRecordSkipped,
					"failed to parse "+ldifCscaAttribute+" attribute",
					err.Error(),
				))
			} else {
				d.AddCsca(cert.Native)
				cscaCount++
			}
		}

		if crlBytes := entry.Get(ldifCrlAttribute); crlBytes != nil {
			parsed, err := der.ParseCRL(crlBytes)
			if err != nil {
				errs = append(errs, pkderrors.NewErrorDetails(
					pkderrors.CodeLdifRecordSkipped,
					"failed to parse "+ldifCrlAttribute+" attribute",
					err.Error(),
				))
				continue
			}
			country := countryOfEntry(entry, parsed)
			if !IsValidCountryCode(country) {
				errs = append(errs, pkderrors.NewError(
					pkderrors.CodeInvalidCountryCode,
					"LDIF CRL entry "+entry.DN+" has no resolvable country code",
				))
				continue
			}
			d.AddCrl(country, parsed)
			crlCount++
		}
	}
	return cscaCount, crlCount, errs
}

// countryOfEntry resolves a CRL's country code from the entry's own "c"
// attribute, falling back to the CRL issuer DN's "C=" RDN.
func countryOfEntry(entry *ldif.Entry, crl *der.CRL) string {
	if c := entry.Get(ldifCountryAttribute); len(c) > 0 {
		return string(c)
	}
	for _, part := range strings.Split(crl.IssuerDN, ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(strings.ToUpper(part), "C=") {
			return part[2:]
		}
	}
	return ""
}

func (d *InMemoryDirectory) FindAllCscasByIssuerDn(_ context.Context, issuerDn string) ([]*x509.Certificate, error) {
	return d.cscasByIssuerDn[normalizedDNKey(issuerDn)], nil
}

func (d *InMemoryDirectory) FindCscaByIssuerDn(ctx context.Context, issuerDn string) (*x509.Certificate, error) {
	all, _ := d.FindAllCscasByIssuerDn(ctx, issuerDn)
	if len(all) == 0 {
		return nil, nil
	}
	return all[0], nil
}

func (d *InMemoryDirectory) FindCrlByCountry(_ context.Context, countryCode string) (*der.CRL, error) {
	crl, ok := d.crlsByCountry[NormalizeCountryCode(countryCode)]
	if !ok {
		return nil, nil
	}
	return crl, nil
}

func normalizedDNKey(dn string) string {
	return strings.ToLower(strings.Join(strings.Fields(dn), " "))
}

// NormalizeCountryCode upper-cases and trims a country code (SPEC_FULL.md
// supplemented feature: "country-code normalization"). It does not
// validate the result; IsValidCountryCode does that.
func NormalizeCountryCode(cc string) string {
	return strings.ToUpper(strings.TrimSpace(cc))
}

// IsValidCountryCode reports whether cc, once normalized, is a
// plausible ISO 3166-1 alpha-2 code: exactly two ASCII letters. It does
// not check the code against the actual ISO 3166-1 table, since that
// table changes independently of this module's release cycle.
func IsValidCountryCode(cc string) bool {
	n := NormalizeCountryCode(cc)
	if len(n) != 2 {
		return false
	}
	for _, r := range n {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// CachingCscaProvider wraps a CscaProvider with a ttlcache-backed
// memoization layer, grounded on the teacher's TrustCache
// (pkg/trust/cache.go): a composite string key, a fixed TTL, and a
// background expiration goroutine.
type CachingCscaProvider struct {
	inner CscaProvider
	cache *ttlcache.Cache[string, []*x509.Certificate]
}

// NewCachingCscaProvider wraps inner with a cache of the given TTL.
func NewCachingCscaProvider(inner CscaProvider, ttl time.Duration) *CachingCscaProvider {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []*x509.Certificate](ttl),
	)
	go cache.Start()
	return &CachingCscaProvider{inner: inner, cache: cache}
}

func (c *CachingCscaProvider) FindAllCscasByIssuerDn(ctx context.Context, issuerDn string) ([]*x509.Certificate, error) {
	key := normalizedDNKey(issuerDn)
	if item := c.cache.Get(key); item != nil {
		return item.Value(), nil
	}
	certs, err := c.inner.FindAllCscasByIssuerDn(ctx, issuerDn)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, certs, ttlcache.DefaultTTL)
	return certs, nil
}

func (c *CachingCscaProvider) FindCscaByIssuerDn(ctx context.Context, issuerDn string) (*x509.Certificate, error) {
	all, err := c.FindAllCscasByIssuerDn(ctx, issuerDn)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

// CachingCrlProvider wraps a CrlProvider the same way.
type CachingCrlProvider struct {
	inner CrlProvider
	cache *ttlcache.Cache[string, *der.CRL]
}

// NewCachingCrlProvider wraps inner with a cache of the given TTL.
func NewCachingCrlProvider(inner CrlProvider, ttl time.Duration) *CachingCrlProvider {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *der.CRL](ttl),
	)
	go cache.Start()
	return &CachingCrlProvider{inner: inner, cache: cache}
}

func (c *CachingCrlProvider) FindCrlByCountry(ctx context.Context, countryCode string) (*der.CRL, error) {
	key := NormalizeCountryCode(countryCode)
	if item := c.cache.Get(key); item != nil {
		return item.Value(), nil
	}
	crl, err := c.inner.FindCrlByCountry(ctx, countryCode)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, crl, ttlcache.DefaultTTL)
	return crl, nil
}

// DisambiguateRollover picks the CSCA among candidates that actually
// signed dsc, per policy (SPEC_FULL.md Open Question 1). It tries a
// signature match against every candidate first; under
// RolloverPermissive it falls back to the first DN-matching candidate
// if none verifies, in which case dnOnlyFallback reports true so the
// caller can record that the match was not signature-verified.
func DisambiguateRollover(dsc *x509.Certificate, candidates []*x509.Certificate, policy RolloverPolicy) (csca *x509.Certificate, dnOnlyFallback bool, err error) {
	for _, candidate := range candidates {
		if certops.VerifySignature(dsc, candidate) == nil {
			return candidate, false, nil
		}
	}
	if policy == RolloverPermissive {
		for _, candidate := range candidates {
			if certops.NormalizedDNEqual(candidate.Subject.String(), dsc.Issuer.String()) {
				return candidate, true, nil
			}
		}
	}
	return nil, false, fmt.Errorf("directory: no candidate CSCA signature verifies for issuer %q", dsc.Issuer.String())
}

// Package trustchain implements the TrustChainBuilder (L3): the
// iterative leaf-to-root walk from a DSC up through its issuing CSCA
// (and any Link Certificates bridging key rollover), with cycle
// detection, a maximum-depth guard, and key-rollover disambiguation
// (spec §3 TrustChain invariant, §4.3). Grounded on the teacher's
// LocalTrustEvaluator.evaluateX5C chain-walk (pkg/trust/local.go),
// generalized from a single x509.Verify pooled call into an explicit
// step-by-step walk so every hop's signature, validity window, and
// extension profile can be reported individually.
package trustchain

import (
	"context"
	"crypto/x509"
	"fmt"
	"strings"
	"time"

	"epasspkd/pkg/certops"
	"epasspkd/pkg/codec"
	"epasspkd/pkg/compliance"
	"epasspkd/pkg/directory"
	"epasspkd/pkg/extvalidate"
	"epasspkd/pkg/pkderrors"
)

// DefaultMaxChainDepth bounds chain-walk recursion absent an explicit
// override (spec §3 TrustChain invariant: "construction must terminate").
const DefaultMaxChainDepth = 10

// Result is the outcome of building a trust chain from a DSC to a CSCA
// root.
type Result struct {
	// Chain is the certificate path, leaf (DSC) first, CSCA root last.
	Chain []*x509.Certificate

	// LinkCertificateCount counts non-self-signed CSCAs traversed en
	// route to the self-signed root (SPEC_FULL.md supplemented feature:
	// "Link-certificate recursion depth").
	LinkCertificateCount int

	// Path is a human-readable role annotation of Chain, e.g.
	// "DSC -> Link -> CSCA -> Root" (spec §4.3 step 7).
	Path string

	// Depth is the number of certificates in Chain once construction
	// stopped, whether it stopped at a root or on a failure partway up
	// (spec §4.3 Result fields; §8 scenario 1's chain.depth assertion).
	Depth int

	// CscaExpired and DscExpired are informational-only: ICAO's hybrid
	// expiry tolerance means an expired CSCA or DSC in an otherwise
	// correctly signed chain never fails Valid() on its own (spec §4.3
	// step 6, SPEC_FULL.md Open Question). A CRITICAL error elsewhere in
	// the chain can still fail it.
	CscaExpired bool
	DscExpired  bool

	// RootSubjectDn and RootFingerprint identify the self-signed CSCA the
	// chain terminated at, set only when construction reached one.
	RootSubjectDn   string
	RootFingerprint string

	// Message is a short human-readable summary of the outcome, success
	// or failure.
	Message string

	Errors   []*pkderrors.Error
	Warnings []*pkderrors.Error
}

// Valid reports whether the chain was built without any CRITICAL error.
func (r *Result) Valid() bool {
	return !pkderrors.HasCritical(r.Errors)
}

// Builder constructs trust chains against a directory.CscaProvider.
type Builder struct {
	provider       directory.CscaProvider
	maxDepth       int
	rolloverPolicy directory.RolloverPolicy
	clock          func() time.Time
}

// Config configures a Builder.
type Config struct {
	Provider       directory.CscaProvider
	MaxDepth       int
	RolloverPolicy directory.RolloverPolicy
	Clock          func() time.Time
}

// NewBuilder constructs a Builder from Config, applying defaults for
// zero-valued fields.
func NewBuilder(cfg Config) *Builder {
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxChainDepth
	}
	policy := cfg.RolloverPolicy
	if policy == "" {
		policy = directory.RolloverPermissive
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Builder{
		provider:       cfg.Provider,
		maxDepth:       maxDepth,
		rolloverPolicy: policy,
		clock:          clock,
	}
}

// Build walks from dsc up to a self-signed CSCA root, resolving
// key-rollover ambiguity and Link Certificates along the way (spec
// §4.3). It never panics; every failure mode is reported in the
// returned Result.
func (b *Builder) Build(ctx context.Context, dsc *x509.Certificate) *Result {
	result := &Result{Chain: []*x509.Certificate{dsc}}
	path := []string{"DSC"}

	result.Errors = append(result.Errors, extvalidate.CheckDSC(dsc)...)
	result.Warnings = append(result.Warnings, compliance.Check(dsc)...)
	if !certops.IsWithinValidity(dsc, b.clock()) {
		result.DscExpired = true
		result.Warnings = append(result.Warnings, pkderrors.NewError(
			pkderrors.CodeCertificateExpired,
			fmt.Sprintf("DSC %q is outside its validity window", dsc.Subject.String()),
		))
	}

	current := dsc
	seen := map[string]bool{certops.NormalizeDN(current.Subject.String()): true}

	for depth := 0; depth < b.maxDepth; depth++ {
		if certops.IsSelfSigned(current) {
			result.Depth = len(result.Chain)
			result.Path = strings.Join(path, " -> ")
			result.RootSubjectDn = current.Subject.String()
			result.RootFingerprint = codec.Fingerprint(current.Raw)
			result.Message = "trust chain built to self-signed CSCA root"
			return result
		}

		next, dnOnlyFallback, err := b.resolveIssuer(ctx, current)
		if err != nil {
			result.Depth = len(result.Chain)
			result.Path = strings.Join(path, " -> ")
			result.Message = err.Error()
			result.Errors = append(result.Errors, pkderrors.NewError(
				pkderrors.CodeCSCANotFound,
				err.Error(),
			))
			return result
		}
		if next == nil {
			result.Depth = len(result.Chain)
			result.Path = strings.Join(path, " -> ")
			result.Message = fmt.Sprintf("no CSCA found for issuer %q", current.Issuer.String())
			result.Errors = append(result.Errors, pkderrors.NewError(
				pkderrors.CodeCSCANotFound,
				result.Message,
			))
			return result
		}
		if dnOnlyFallback {
			result.Warnings = append(result.Warnings, pkderrors.NewError(
				pkderrors.CodeRolloverDNOnlyMatch,
				fmt.Sprintf("CSCA %q selected by issuer DN match only; no candidate signature verified", next.Subject.String()),
			))
		}

		key := certops.NormalizeDN(next.Subject.String())
		if seen[key] {
			result.Depth = len(result.Chain)
			result.Path = strings.Join(path, " -> ")
			result.Message = fmt.Sprintf("cycle detected at %q", next.Subject.String())
			result.Errors = append(result.Errors, pkderrors.NewError(
				pkderrors.CodeChainCycleDetected,
				result.Message,
			))
			return result
		}
		seen[key] = true

		if err := certops.VerifySignature(current, next); err != nil {
			result.Depth = len(result.Chain)
			result.Path = strings.Join(path, " -> ")
			result.Message = fmt.Sprintf("signature from %q to %q does not verify: %v", next.Subject.String(), current.Subject.String(), err)
			result.Errors = append(result.Errors, pkderrors.NewError(
				pkderrors.CodeChainValidationFailed,
				result.Message,
			))
			return result
		}

		// An expired intermediate/root CSCA never fails the chain on its
		// own: ICAO's hybrid tolerance lets passports already issued under
		// an expired CSCA keep validating (spec §4.3 step 6). It is
		// recorded as informational, not CRITICAL.
		if !certops.IsWithinValidity(next, b.clock()) {
			result.CscaExpired = true
			result.Warnings = append(result.Warnings, pkderrors.NewError(
				pkderrors.CodeCertificateExpired,
				fmt.Sprintf("CSCA %q is outside its validity window", next.Subject.String()),
			))
		}

		result.Errors = append(result.Errors, extvalidate.CheckCSCA(next)...)
		result.Warnings = append(result.Warnings, compliance.Check(next)...)

		switch {
		case certops.IsLinkCertificate(next):
			result.LinkCertificateCount++
			path = append(path, "Link")
		case certops.IsSelfSigned(next):
			path = append(path, "Root")
		default:
			path = append(path, "CSCA")
		}

		result.Chain = append(result.Chain, next)
		current = next
	}

	result.Depth = len(result.Chain)
	result.Path = strings.Join(path, " -> ")
	result.Message = fmt.Sprintf("chain exceeded maximum depth %d", b.maxDepth)
	result.Errors = append(result.Errors, pkderrors.NewErrorDetails(
		pkderrors.CodeChainMaxDepthExceeded,
		result.Message,
		b.maxDepth,
	))
	return result
}

// resolveIssuer finds the CSCA issuing current, disambiguating
// key-rollover candidates sharing current's issuer DN per the
// Builder's RolloverPolicy (SPEC_FULL.md Open Question 1). dnOnlyFallback
// reports whether the candidate was chosen without a verifying signature.
func (b *Builder) resolveIssuer(ctx context.Context, current *x509.Certificate) (csca *x509.Certificate, dnOnlyFallback bool, err error) {
	candidates, err := b.provider.FindAllCscasByIssuerDn(ctx, current.Issuer.String())
	if err != nil {
		return nil, false, err
	}
	if len(candidates) == 0 {
		return nil, false, nil
	}
	if len(candidates) == 1 {
		return candidates[0], false, nil
	}
	return directory.DisambiguateRollover(current, candidates, b.rolloverPolicy)
}

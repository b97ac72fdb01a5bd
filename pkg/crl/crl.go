// Package crl implements the L3 CrlChecker: freshness evaluation,
// serial-number revocation lookup, and RFC 5280 §5.3.1 reason-code
// decoding against a country's CRL (spec §6). It consumes
// directory.CrlProvider rather than performing any I/O itself.
package crl

import (
	"context"
	"fmt"
	"time"

	"epasspkd/pkg/der"
	"epasspkd/pkg/directory"
	"epasspkd/pkg/pkderrors"
)

// ReasonCode mirrors RFC 5280 §5.3.1 CRLReason, the ENUMERATED values a
// revoked entry may carry.
type ReasonCode int

const (
	ReasonUnspecified          ReasonCode = 0
	ReasonKeyCompromise        ReasonCode = 1
	ReasonCACompromise         ReasonCode = 2
	ReasonAffiliationChanged   ReasonCode = 3
	ReasonSuperseded           ReasonCode = 4
	ReasonCessationOfOperation ReasonCode = 5
	ReasonCertificateHold      ReasonCode = 6
	ReasonRemoveFromCRL        ReasonCode = 8
	ReasonPrivilegeWithdrawn   ReasonCode = 9
	ReasonAACompromise         ReasonCode = 10
)

var reasonNames = map[ReasonCode]string{
	ReasonUnspecified:          "unspecified",
	ReasonKeyCompromise:        "keyCompromise",
	ReasonCACompromise:         "cACompromise",
	ReasonAffiliationChanged:   "affiliationChanged",
	ReasonSuperseded:           "superseded",
	ReasonCessationOfOperation: "cessationOfOperation",
	ReasonCertificateHold:      "certificateHold",
	ReasonRemoveFromCRL:        "removeFromCRL",
	ReasonPrivilegeWithdrawn:   "privilegeWithdrawn",
	ReasonAACompromise:         "aACompromise",
}

// String renders the reason code's RFC 5280 name, or a numeric fallback
// for an undefined code.
func (r ReasonCode) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(r))
}

// RevocationStatus is the outcome of a serial-number lookup against a
// country's CRL.
type RevocationStatus string

const (
	StatusValid       RevocationStatus = "VALID"
	StatusRevoked     RevocationStatus = "REVOKED"
	StatusUnavailable RevocationStatus = "CRL_UNAVAILABLE"
	StatusExpired     RevocationStatus = "CRL_EXPIRED"
)

// Result is the outcome of a Checker.Check call.
type Result struct {
	Status     RevocationStatus
	ReasonCode ReasonCode
	HasReason  bool
	Warnings   []*pkderrors.Error
}

// Checker evaluates certificate revocation status against a
// directory.CrlProvider.
type Checker struct {
	provider directory.CrlProvider
	clock    func() time.Time
}

// NewChecker builds a Checker. clock defaults to time.Now when nil,
// overridable in tests.
func NewChecker(provider directory.CrlProvider, clock func() time.Time) *Checker {
	if clock == nil {
		clock = time.Now
	}
	return &Checker{provider: provider, clock: clock}
}

// Check looks up the CRL for countryCode and reports whether serialHex
// is revoked on it. A missing CRL produces its own StatusUnavailable
// outcome and a stale one its own StatusExpired outcome, per
// SPEC_FULL.md Open Question 3: "a CRL lookup failure must never be
// reported as VALID" (spec §6 fail-closed posture for revocation). VALID
// and REVOKED are returned only when a fresh CRL was actually consulted.
func (c *Checker) Check(ctx context.Context, countryCode, serialHex string) *Result {
	if serialHex == "" {
		return &Result{
			Status: StatusUnavailable,
			Warnings: []*pkderrors.Error{pkderrors.NewError(
				pkderrors.CodeCRLUnavailable,
				"certificate serial number unavailable; CRL not consulted",
			)},
		}
	}

	crl, err := c.provider.FindCrlByCountry(ctx, countryCode)
	if err != nil {
		return &Result{
			Status: StatusUnavailable,
			Warnings: []*pkderrors.Error{pkderrors.NewError(
				pkderrors.CodeCRLUnavailable,
				"CRL provider lookup failed: "+err.Error(),
			)},
		}
	}
	if crl == nil {
		return &Result{
			Status: StatusUnavailable,
			Warnings: []*pkderrors.Error{pkderrors.NewError(
				pkderrors.CodeCRLUnavailable,
				"no CRL available for country "+directory.NormalizeCountryCode(countryCode),
			)},
		}
	}

	if c.isStale(crl) {
		return &Result{
			Status: StatusExpired,
			Warnings: []*pkderrors.Error{pkderrors.NewErrorDetails(
				pkderrors.CodeCRLExpired,
				"CRL nextUpdate has passed",
				crl.NextUpdate,
			)},
		}
	}

	result := &Result{Status: StatusValid}
	for _, entry := range crl.Revoked {
		if entry.SerialHex == serialHex {
			result.Status = StatusRevoked
			if entry.HasReasonCode {
				result.ReasonCode = ReasonCode(entry.ReasonCode)
				result.HasReason = true
			}
			break
		}
	}

	return result
}

// isStale reports whether the CRL's NextUpdate has passed (spec §6: a
// stale CRL's revocation data is no longer trustworthy on its own, so
// it is reported as CRL_EXPIRED rather than folded into VALID/REVOKED).
func (c *Checker) isStale(crl *der.CRL) bool {
	return !crl.NextUpdate.IsZero() && c.clock().After(crl.NextUpdate)
}

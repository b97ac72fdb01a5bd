// Package sod unwraps and verifies the Document Security Object (SOD),
// the CMS SignedData structure stored in EF.SOD that binds an ePassport's
// Data Group hashes to the issuing DSC's signature (spec §4.4-§4.5).
// The unwrap-then-verify-then-parse pipeline is grounded on the
// orchestration pattern of the teacher's Verifier.verifyDocumentWithContext
// in pkg/mdoc/verifier.go (parse issuer auth -> verify signature -> decode
// payload), generalized from COSE_Sign1/CBOR to CMS SignedData/DER.
package sod

import (
	"crypto/x509"
	"fmt"

	"epasspkd/pkg/codec"
	"epasspkd/pkg/der"
	"epasspkd/pkg/lds"
	"epasspkd/pkg/pkderrors"
)

// icaoApplicationTag is the EF.SOD application tag 0x77 (ICAO Doc 9303
// Part 10 §4.1) that some readers wrap the raw CMS SignedData bytes in.
const icaoApplicationTag = 0x77

// SOD is the parsed Document Security Object: the CMS SignedData and its
// embedded DSC. The LDSSecurityObject is decoded on demand by
// SecurityObject.
type SOD struct {
	cms *der.CMS

	// DSC is the signer certificate embedded in the CMS SignedData. It is
	// the DSC the trustchain layer must validate up to a CSCA (spec §4.4).
	DSC *x509.Certificate
}

// Unwrap strips the optional ICAO application tag 0x77 wrapper, if
// present, returning the bare CMS SignedData bytes. Some EF.SOD readers
// emit raw CMS; others wrap it per the LDS data structure convention.
// Both are accepted (spec §4.4).
func Unwrap(data []byte) []byte {
	if len(data) == 0 || data[0] != icaoApplicationTag {
		return data
	}
	// The tag byte is followed by a DER length field, then the CMS bytes.
	if len(data) < 2 {
		return data
	}
	length, consumed, err := codec.DERLength(data[1:])
	if err != nil {
		return data
	}
	start := 1 + consumed
	end := start + length
	if end > len(data) {
		return data
	}
	return data[start:end]
}

// Parse unwraps and CMS-parses an SOD, extracting its embedded DSC. It
// does not verify the signature or validate the DSC's place in the trust
// chain; that is the caller's responsibility (spec §4.4, §4.6 layering).
func Parse(data []byte) (*SOD, error) {
	unwrapped := Unwrap(data)

	cms, err := der.ParseCMS(unwrapped)
	if err != nil {
		return nil, pkderrors.NewError(pkderrors.CodeSODParseError, err.Error())
	}

	dsc := cms.GetOnlySigner()
	if dsc == nil {
		return nil, pkderrors.NewError(pkderrors.CodeDSCExtractionFailed, "SOD does not carry exactly one signer certificate")
	}

	return &SOD{cms: cms, DSC: dsc}, nil
}

// VerifySignature checks the CMS SignedData signature against the DSC
// embedded in the SOD (spec §4.5). It does not trust the DSC; the caller
// must separately validate the DSC's certificate chain.
func (s *SOD) VerifySignature() *pkderrors.Error {
	if err := s.cms.VerifySignedBy(s.DSC); err != nil {
		return pkderrors.NewError(pkderrors.CodeSODSignatureInvalid, err.Error())
	}
	return nil
}

// SecurityObject decodes the CMS eContent into the LDSSecurityObject
// (spec §4.6). Callers should call VerifySignature first; SecurityObject
// does not itself re-verify the CMS signature.
func (s *SOD) SecurityObject() (*lds.SecurityObject, error) {
	so, err := lds.Parse(s.cms.Content)
	if err != nil {
		return nil, fmt.Errorf("sod: %w", err)
	}
	return so, nil
}

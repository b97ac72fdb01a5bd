// Package lds parses the LDSSecurityObject (ICAO Doc 9303 Part 10 §4),
// the ASN.1 structure the SOD's CMS content encapsulates: a digest
// algorithm identifier plus a list of (data group number, hash) pairs.
// The per-data-group digest comparison this package exposes is grounded
// on the teacher's VerifyDigest/GetDigestIDs pair in pkg/mdoc/mso.go,
// generalized from CBOR/COSE digest maps to the DER SEQUENCE OF
// DataGroupHash the LDS uses.
package lds

import (
	"encoding/asn1"
	"fmt"
	"sort"

	"epasspkd/pkg/codec"
	"epasspkd/pkg/pkderrors"
)

// oidLDSSecurityObject is id-icao-ldsSecurityObject, 2.23.136.1.1.1.
var oidLDSSecurityObject = asn1.ObjectIdentifier{2, 23, 136, 1, 1, 1}

// algorithmIdentifier mirrors pkix.AlgorithmIdentifier but keeps the
// optional parameters as raw bytes, since LDS digest algorithms never
// carry parameters ICAO Doc 9303 readers need to interpret.
type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

// dataGroupHash is one entry of DataGroupHashValues, DataGroupNumber
// INTEGER and the digest OCTET STRING (Doc 9303 Part 10 §4.6.2).
type dataGroupHash struct {
	DataGroupNumber int
	Digest          []byte
}

// ldsSecurityObject is the ASN.1 shape of the LDSSecurityObject, per
// Doc 9303 Part 10 §4.6.2:
//
//	LDSSecurityObject ::= SEQUENCE {
//	  version                INTEGER,
//	  hashAlgorithm          AlgorithmIdentifier,
//	  dataGroupHashValues    SEQUENCE OF DataGroupHash,
//	  ldsVersionInfo         LDSVersionInfo OPTIONAL }
type ldsSecurityObject struct {
	Version        int
	HashAlgorithm  algorithmIdentifier
	DataGroupHash  []dataGroupHash
	LDSVersionInfo asn1.RawValue `asn1:"optional"`
}

// SecurityObject is the parsed, caller-facing LDSSecurityObject.
type SecurityObject struct {
	Version       int
	HashAlgorithm codec.HashAlgorithm
	DataGroupHash map[int][]byte
}

// Parse decodes DER bytes into a SecurityObject. The data passed in is
// the CMS eContent of an SOD (spec §4.5), already unwrapped by pkg/sod.
func Parse(data []byte) (*SecurityObject, error) {
	var raw ldsSecurityObject
	if _, err := asn1.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("lds: malformed LDSSecurityObject: %w", err)
	}

	alg, err := hashAlgorithmOf(raw.HashAlgorithm.Algorithm)
	if err != nil {
		return nil, err
	}

	digests := make(map[int][]byte, len(raw.DataGroupHash))
	for _, dg := range raw.DataGroupHash {
		digests[dg.DataGroupNumber] = dg.Digest
	}

	return &SecurityObject{
		Version:       raw.Version,
		HashAlgorithm: alg,
		DataGroupHash: digests,
	}, nil
}

// hashAlgorithmOf maps the ASN.1 OID to codec.HashAlgorithm. Doc 9303
// Appendix A restricts LDS digests to SHA-1 (legacy), SHA-256,
// SHA-384, and SHA-512.
func hashAlgorithmOf(oid asn1.ObjectIdentifier) (codec.HashAlgorithm, error) {
	switch {
	case oid.Equal(asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}):
		return codec.HashSHA1, nil
	case oid.Equal(asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}):
		return codec.HashSHA256, nil
	case oid.Equal(asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}):
		return codec.HashSHA384, nil
	case oid.Equal(asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}):
		return codec.HashSHA512, nil
	default:
		return "", fmt.Errorf("lds: unsupported hash algorithm OID %s", oid.String())
	}
}

// SortedDataGroupNumbers returns the data group numbers present in the
// security object in ascending order, for deterministic reporting.
func (s *SecurityObject) SortedDataGroupNumbers() []int {
	nums := make([]int, 0, len(s.DataGroupHash))
	for n := range s.DataGroupHash {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// DataGroupComparison is the full outcome of comparing one data group's
// recomputed digest against its stored value: both the expected and
// actual hex digest are always populated, not just on mismatch (spec §3
// Hash-correctness property, §8).
type DataGroupComparison struct {
	Number       int
	Matched      bool
	ExpectedHash string
	ActualHash   string
}

// CompareDataGroup recomputes the digest of dgContent under the
// SecurityObject's declared hash algorithm and compares it against the
// stored digest for dgNumber (spec §4.6 Data Group hash comparison,
// grounded on the teacher's VerifyDigest recompute-and-compare pattern).
// The returned comparison carries both hex digests whenever a stored
// hash exists for dgNumber, whether or not they match; the returned
// error is non-nil only when the comparison failed.
func (s *SecurityObject) CompareDataGroup(dgNumber int, dgContent []byte) (*DataGroupComparison, *pkderrors.Error) {
	expected, ok := s.DataGroupHash[dgNumber]
	if !ok {
		return nil, pkderrors.NewErrorDetails(
			pkderrors.CodeDGHashMissing,
			fmt.Sprintf("no stored hash for data group %d", dgNumber),
			dgNumber,
		)
	}

	actual, err := codec.Digest(s.HashAlgorithm, dgContent)
	if err != nil {
		return nil, pkderrors.NewError(pkderrors.CodeDGHashMismatch, err.Error())
	}

	comparison := &DataGroupComparison{
		Number:       dgNumber,
		ExpectedHash: fmt.Sprintf("%x", expected),
		ActualHash:   fmt.Sprintf("%x", actual),
	}

	if !bytesEqual(actual, expected) {
		return comparison, pkderrors.NewErrorDetails(
			pkderrors.CodeDGHashMismatch,
			fmt.Sprintf("hash mismatch for data group %d", dgNumber),
			map[string]string{
				"expected": comparison.ExpectedHash,
				"actual":   comparison.ActualHash,
			},
		)
	}
	comparison.Matched = true
	return comparison, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

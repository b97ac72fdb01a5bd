// Package masterlist parses an ICAO CSCA Master List: a CMS SignedData
// structure whose eContent is a CscaMasterList SET OF Certificate,
// signed by a Master List Signing Certificate (MLSC). It is the bulk
// ingestion format ICAO publishes for CSCA distribution (Doc 9303 Part
// 12 §3), supplementing spec §4.7's per-certificate CSCA model with the
// bulk-ingest path a real PKD deployment needs (SPEC_FULL.md
// supplemented feature). Grounded on pkg/sod's CMS-unwrap pattern and
// the teacher's pkg/mdoc/iaca.go ExportCertificateChainPEM bulk-export
// style, run in reverse.
package masterlist

import (
	"crypto/x509"
	"encoding/asn1"
	"fmt"

	"epasspkd/pkg/certops"
	"epasspkd/pkg/der"
	"epasspkd/pkg/pkderrors"
)

// cscaMasterList is the ASN.1 shape of the Master List content, Doc
// 9303 Part 12 §3.1:
//
//	CscaMasterList ::= SEQUENCE {
//	  version     INTEGER,
//	  certList    SET OF Certificate }
type cscaMasterList struct {
	Version  int
	CertList []asn1.RawValue `asn1:"set"`
}

// MasterList is the parsed CSCA Master List: the Master List Signing
// Certificate that produced the CMS signature, and the bundled CSCA
// certificates (both self-signed roots and Link Certificates).
type MasterList struct {
	// SigningCertificate is the MLSC extracted from the CMS SignedData
	// (SPEC_FULL.md supplemented feature: "Master List signer cert/MLSC
	// extraction").
	SigningCertificate *x509.Certificate

	// CSCAs are the certificates in the SET OF Certificate payload that
	// parsed and are either self-signed or assert Basic Constraints
	// CA:true, not yet individually classified root-vs-link; callers
	// apply certops.IsSelfSigned/IsLinkCertificate per entry.
	CSCAs []*der.Certificate

	// Skipped records entries that failed to parse or that are neither
	// self-signed nor a CA (spec §4.7 tolerance: a bad entry degrades
	// that entry, not the whole list).
	Skipped []*pkderrors.Error
}

// Parse decodes a DER-encoded Master List CMS SignedData structure,
// verifies its signature against the embedded MLSC, and parses every
// bundled CSCA certificate.
func Parse(data []byte) (*MasterList, error) {
	cms, err := der.ParseCMS(data)
	if err != nil {
		return nil, pkderrors.NewError(pkderrors.CodeSODParseError, fmt.Sprintf("master list CMS: %v", err))
	}

	signer := cms.GetOnlySigner()
	if signer == nil {
		return nil, pkderrors.NewError(pkderrors.CodeDSCExtractionFailed, "master list CMS does not carry exactly one signer certificate")
	}

	if err := cms.VerifySignedBy(signer); err != nil {
		return nil, pkderrors.NewError(pkderrors.CodeSODSignatureInvalid, fmt.Sprintf("master list signature: %v", err))
	}

	var raw cscaMasterList
	if _, err := asn1.Unmarshal(cms.Content, &raw); err != nil {
		return nil, pkderrors.NewError(pkderrors.CodeSODParseError, fmt.Sprintf("CscaMasterList: %v", err))
	}

	ml := &MasterList{SigningCertificate: signer}
	for _, entry := range raw.CertList {
		cert, parseErr := der.ParseCertificate(entry.FullBytes)
		if parseErr != nil {
			ml.Skipped = append(ml.Skipped, pkderrors.NewErrorDetails(
				pkderrors.CodeMasterListEntrySkipped,
				"failed to parse master list certificate entry",
				parseErr.Error(),
			))
			continue
		}

		// A Master List entry is only trustworthy as a CSCA if it is
		// either a self-signed root or a Basic-Constraints CA (a Link
		// Certificate bridging key rollover); anything else is not a CSCA
		// at all and must not enter the trust store silently.
		if !certops.IsSelfSigned(cert.Native) && !certops.IsCA(cert.Native) {
			ml.Skipped = append(ml.Skipped, pkderrors.NewErrorDetails(
				pkderrors.CodeMasterListEntrySkipped,
				"master list entry is neither self-signed nor a Basic Constraints CA certificate",
				cert.SubjectDN,
			))
			continue
		}

		ml.CSCAs = append(ml.CSCAs, cert)
	}

	return ml, nil
}

// Package ldif parses RFC 2849 LDIF files for bulk PKI ingestion: the
// line-folded entry format national PKDs use to publish CSCA
// certificates and CRLs over LDAP-style directory exchange
// (SPEC_FULL.md supplemented feature — spec.md's distillation omits
// bulk ingestion, but a production PKD deployment needs it). Grounded
// on the teacher's line-oriented config parsing conventions
// (pkg/configuration) generalized to RFC 2849's continuation-line and
// base64-attribute rules.
package ldif

import (
	"encoding/base64"
	"fmt"
	"strings"

	"epasspkd/pkg/pkderrors"
)

// Attribute is one attribute:value (or attribute::base64value) pair of
// an LDIF entry.
type Attribute struct {
	Name  string
	Value []byte
}

// Entry is a single LDIF record: its distinguished name and its
// attributes in file order.
type Entry struct {
	DN         string
	Attributes []Attribute
}

// Get returns the first attribute value with the given name, or nil.
func (e *Entry) Get(name string) []byte {
	for _, a := range e.Attributes {
		if strings.EqualFold(a.Name, name) {
			return a.Value
		}
	}
	return nil
}

// GetAll returns every attribute value with the given name, in order.
func (e *Entry) GetAll(name string) [][]byte {
	var out [][]byte
	for _, a := range e.Attributes {
		if strings.EqualFold(a.Name, name) {
			out = append(out, a.Value)
		}
	}
	return out
}

// IngestStats summarizes a bulk LDIF parse run (SPEC_FULL.md
// supplemented feature), so a host can log or alert on a partially
// malformed feed without aborting the whole ingestion.
type IngestStats struct {
	EntriesParsed  int
	EntriesSkipped int
	Errors         []*pkderrors.Error
}

// Parse decodes an RFC 2849 LDIF document into its entries, unfolding
// continuation lines and base64-decoding "::"-marked attribute values.
// A malformed entry is skipped and recorded in stats rather than
// aborting the parse (spec's general tolerance posture, §4 "a feed's
// one bad record should not sink the whole load").
func Parse(data []byte) ([]*Entry, *IngestStats) {
	stats := &IngestStats{}
	lines := unfold(splitLines(string(data)))

	var entries []*Entry
	var current *Entry
	malformed := false

	flush := func() {
		if current == nil && !malformed {
			return
		}
		if malformed {
			stats.EntriesSkipped++
		} else if current.DN == "" {
			stats.EntriesSkipped++
			stats.Errors = append(stats.Errors, pkderrors.NewError(
				pkderrors.CodeLdifRecordSkipped,
				"LDIF entry has no dn: attribute",
			))
		} else {
			entries = append(entries, current)
			stats.EntriesParsed++
		}
		current = nil
		malformed = false
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		name, value, isBase64, err := splitAttributeLine(line)
		if err != nil {
			malformed = true
			stats.Errors = append(stats.Errors, pkderrors.NewErrorDetails(
				pkderrors.CodeLdifRecordSkipped,
				"malformed LDIF attribute line",
				err.Error(),
			))
			continue
		}

		decoded := []byte(value)
		if isBase64 {
			decoded, err = base64.StdEncoding.DecodeString(strings.TrimSpace(value))
			if err != nil {
				malformed = true
				stats.Errors = append(stats.Errors, pkderrors.NewErrorDetails(
					pkderrors.CodeLdifRecordSkipped,
					"invalid base64 in LDIF attribute value",
					err.Error(),
				))
				continue
			}
		}

		if current == nil {
			current = &Entry{}
		}
		if strings.EqualFold(name, "dn") {
			current.DN = string(decoded)
			continue
		}
		current.Attributes = append(current.Attributes, Attribute{Name: name, Value: decoded})
	}
	flush()

	return entries, stats
}

// splitLines splits on LF, tolerating CRLF line endings.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Split(s, "\n")
}

// unfold joins RFC 2849 continuation lines: any line beginning with a
// single space is a continuation of the previous line, with the leading
// space stripped.
func unfold(lines []string) []string {
	var out []string
	for _, line := range lines {
		if strings.HasPrefix(line, " ") && len(out) > 0 {
			out[len(out)-1] += line[1:]
			continue
		}
		out = append(out, line)
	}
	return out
}

// splitAttributeLine splits "name: value" or "name:: base64value" into
// its parts. isBase64 reports the double-colon form.
func splitAttributeLine(line string) (name, value string, isBase64 bool, err error) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false, fmt.Errorf("ldif: no ':' separator in %q", line)
	}
	name = line[:idx]
	rest := line[idx+1:]
	if strings.HasPrefix(rest, ":") {
		return name, strings.TrimPrefix(rest, ":"), true, nil
	}
	return name, strings.TrimPrefix(rest, " "), false, nil
}

// Package scan turns a raw ID scan into a customer identity.  The resolver
// never creates customers: an unknown scan comes back as an Extraction for
// staff to complete at the register.
package scan

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/clubdesk/internal/model"
	"github.com/iliyamo/clubdesk/internal/store"
)

// OutcomeKind tags a resolution result.
type OutcomeKind string

const (
	Matched    OutcomeKind = "MATCHED"
	Candidates OutcomeKind = "CANDIDATES"
	Extracted  OutcomeKind = "EXTRACTION"
)

// Extraction holds the fields read off an unrecognised scan.
type Extraction struct {
	FirstName string     `json:"firstName,omitempty"`
	LastName  string     `json:"lastName,omitempty"`
	DOB       *time.Time `json:"dob,omitempty"`
	IDNumber  string     `json:"idNumber,omitempty"`
}

// Outcome is the result of Resolve.  Exactly one of Customer, Candidates or
// Extraction is set, according to Kind.
type Outcome struct {
	Kind       OutcomeKind      `json:"kind"`
	Customer   *model.Customer  `json:"customer,omitempty"`
	Candidates []model.Customer `json:"candidates,omitempty"`
	Extraction *Extraction      `json:"extraction,omitempty"`
}

// Resolver resolves a raw scan payload inside the caller's transaction.
type Resolver interface {
	Resolve(ctx context.Context, tx store.Tx, raw string) (Outcome, error)
}

// HashResolver matches the SHA-256 of the normalised payload against stored
// scan hashes and falls back to the licence number.
type HashResolver struct{}

// NewHashResolver returns the default resolver.
func NewHashResolver() HashResolver { return HashResolver{} }

// Resolve implements Resolver.
func (HashResolver) Resolve(ctx context.Context, tx store.Tx, raw string) (Outcome, error) {
	norm := Normalize(raw)
	if norm == "" {
		return Outcome{}, fmt.Errorf("empty scan")
	}
	ext := Parse(raw)
	found, err := tx.FindCustomersByScan(ctx, Hash(raw), ext.IDNumber)
	if err != nil {
		return Outcome{}, err
	}
	switch len(found) {
	case 0:
		return Outcome{Kind: Extracted, Extraction: &ext}, nil
	case 1:
		c := found[0]
		return Outcome{Kind: Matched, Customer: &c}, nil
	default:
		return Outcome{Kind: Candidates, Candidates: found}, nil
	}
}

// Normalize upper-cases the payload, strips carriage returns and trims
// surrounding whitespace on every line.
func Normalize(raw string) string {
	raw = strings.ReplaceAll(raw, "\r", "\n")
	var lines []string
	for _, l := range strings.Split(raw, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, strings.ToUpper(l))
		}
	}
	return strings.Join(lines, "\n")
}

// Hash is the stored fingerprint of a scan.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(Normalize(raw)))
	return hex.EncodeToString(sum[:])
}

// Parse reads the AAMVA elements the desk cares about: DAQ (licence number),
// DCS (family name), DAC (given name) and DBB (date of birth, MMDDYYYY or
// YYYYMMDD).  A payload with no AAMVA elements is treated as a bare licence
// number.
func Parse(raw string) Extraction {
	var ext Extraction
	norm := Normalize(raw)
	aamva := false
	sc := bufio.NewScanner(strings.NewReader(norm))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.Index(line, "DAQ"); i >= 0 && strings.HasPrefix(line, "ANSI") {
			// the header line may carry the first element inline
			line = line[i:]
		}
		if len(line) < 4 {
			continue
		}
		val := strings.TrimSpace(line[3:])
		switch line[:3] {
		case "DAQ":
			ext.IDNumber, aamva = val, true
		case "DCS":
			ext.LastName, aamva = titleCase(val), true
		case "DAC", "DCT":
			if f := strings.Fields(val); len(f) > 0 && ext.FirstName == "" {
				ext.FirstName = titleCase(f[0])
			}
			aamva = true
		case "DBB":
			if d, ok := parseDOB(val); ok {
				ext.DOB = &d
			}
			aamva = true
		}
	}
	if !aamva {
		ext.IDNumber = strings.ReplaceAll(norm, "\n", "")
	}
	return ext
}

func parseDOB(s string) (time.Time, bool) {
	for _, layout := range []string{"01022006", "20060102"} {
		if t, err := time.Parse(layout, s); err == nil && t.Year() > 1900 {
			return t, true
		}
	}
	return time.Time{}, false
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

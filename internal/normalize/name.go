// Package normalize canonicalizes company names for lookup, caching and
// cross-provider joins.
package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// legalSuffixes lists legal-entity tokens removed during normalization.
// Tokens are compared lower-cased with surrounding punctuation and inner
// dots removed, so "L.L.C." and "Inc.," match too.
var legalSuffixes = map[string]struct{}{
	"ltd":          {},
	"limited":      {},
	"inc":          {},
	"incorporated": {},
	"corp":         {},
	"corporation":  {},
	"llc":          {},
	"pvt":          {},
	"plc":          {},
}

// Name returns the canonical form of a company name:
//  1. lower-case
//  2. drop legal-suffix tokens (ltd, inc, corp, llc, pvt, plc and long forms)
//  3. collapse whitespace and trim trailing separators
//  4. title-case
//
// Name is idempotent and never fails; an input made only of suffixes or
// whitespace normalizes to "".
func Name(raw string) string {
	tokens := strings.Fields(strings.ToLower(raw))
	kept := tokens[:0]
	for _, tok := range tokens {
		if isLegalSuffix(tok) {
			continue
		}
		kept = append(kept, tok)
	}

	name := strings.Join(kept, " ")
	name = strings.TrimSpace(strings.TrimRight(name, ",; "))
	if name == "" {
		return ""
	}

	// A Caser is stateful; build one per call so Name stays goroutine-safe.
	return cases.Title(language.English).String(name)
}

func isLegalSuffix(tok string) bool {
	tok = strings.Trim(tok, ".,;:()")
	tok = strings.ReplaceAll(tok, ".", "")
	_, ok := legalSuffixes[tok]
	return ok
}

// Slug converts a normalized name to an encyclopedia article slug
// ("Acme Widgets" -> "Acme_Widgets").
func Slug(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}

// Ticker converts a normalized name to the symbol form queried against
// market-data sources ("Acme Widgets" -> "ACMEWIDGETS").
func Ticker(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), ""))
}

// Dedupe returns the distinct, non-blank entries of names in first-seen
// order. Entries are trimmed before comparison.
func Dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

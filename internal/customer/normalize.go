package customer

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeIdentifiers trims whitespace and upper-cases the alphanumeric
// identifiers so the same upstream value always hits the same unique index.
// Mobile numbers keep digits only (upstream validates shape, but separators
// and country-code prefixes vary by source system).
func NormalizeIdentifiers(ids Identifiers) Identifiers {
	return Identifiers{
		Mobile:         normalizeMobile(ids.Mobile),
		NationalID:     strings.ToUpper(strings.TrimSpace(ids.NationalID)),
		NationalIDRef:  strings.ToUpper(strings.TrimSpace(ids.NationalIDRef)),
		UCID:           strings.TrimSpace(ids.UCID),
		PriorAppNumber: strings.ToUpper(strings.TrimSpace(ids.PriorAppNumber)),
	}
}

func normalizeMobile(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	// Keep the trailing ten digits when a country prefix was supplied.
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits
}

// NormalizeAttributes NFC-normalizes free-form string values before they are
// merged into a customer's attribute map, so re-ingesting the same name in a
// different Unicode composition does not churn the row.
func NormalizeAttributes(attrs map[string]any) map[string]any {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if s, ok := v.(string); ok {
			out[k] = norm.NFC.String(strings.TrimSpace(s))
			continue
		}
		out[k] = v
	}
	return out
}

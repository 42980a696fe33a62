package provider

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// DefaultPlaceholders are generic phrases extraction backends sometimes emit
// instead of leaving a field empty. Any field value containing one of these
// (case-insensitive) is discarded rather than forwarded to consumers.
var DefaultPlaceholders = []string{
	"unknown vendor",
	"not provided",
	"n/a",
	"generic company",
	"placeholder",
	"default company",
	"desconhecido",
	"não fornecido",
	"address not provided",
	"phone not provided",
}

// CleanField normalizes the value to NFC (OCR output often carries
// decomposed accents) and returns it, or "" when it matches a placeholder
// phrase.
func CleanField(value string, placeholders []string) string {
	v := strings.TrimSpace(norm.NFC.String(value))
	if v == "" {
		return ""
	}
	lower := strings.ToLower(v)
	for _, p := range placeholders {
		if strings.Contains(lower, p) {
			zap.L().Debug("provider: rejected placeholder value",
				zap.String("value", v),
				zap.String("pattern", p),
			)
			return ""
		}
	}
	return v
}

var taxPrefixRe = regexp.MustCompile(`^[A-Z]{2}`)

// countryPattern maps legal-entity suffixes and domain hints to an ISO
// country code for tax-id prefixing.
type countryPattern struct {
	country string
	hints   []string
}

// Order matters: more specific suffixes come before ambiguous ones.
var countryPatterns = []countryPattern{
	{"FR", []string{"S.A.R.L.", "SARL", ".FR"}},
	{"IT", []string{"S.R.L.", "S.P.A.", ".IT"}},
	{"PT", []string{"LDA", "UNIPESSOAL", ".PT"}},
	{"ES", []string{"S.A.", "S.L.", ".ES"}},
	{"DE", []string{"GMBH", ".DE"}},
	{"NL", []string{"B.V.", ".NL"}},
	{"DK", []string{"APS", "A/S", ".DK"}},
	{"FI", []string{"OY", ".FI"}},
	{"PL", []string{"SP. Z O.O.", "SP.", ".PL"}},
	{"CZ", []string{"S.R.O.", ".CZ"}},
	{"SE", []string{" AB", ".SE"}},
	{"AT", []string{".AT"}},
	{"BE", []string{".BE"}},
}

// DetectTaxCountry infers a two-letter country code from a vendor's legal
// name. It returns "" when no pattern matches: a tax id is left unprefixed
// rather than mislabeled.
func DetectTaxCountry(vendor string) string {
	if vendor == "" {
		return ""
	}
	upper := strings.ToUpper(vendor)
	for _, cp := range countryPatterns {
		for _, hint := range cp.hints {
			if strings.Contains(upper, hint) {
				return cp.country
			}
		}
	}
	return ""
}

// NormalizeTaxID ensures an explicit country prefix when one can be
// determined. It returns the (possibly prefixed) tax id and the country
// code, or the original id with "" when the country is uncertain.
func NormalizeTaxID(taxID, vendor string) (string, string) {
	id := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(taxID), " ", ""))
	if id == "" {
		return "", ""
	}
	if taxPrefixRe.MatchString(id) {
		return id, id[:2]
	}
	if country := DetectTaxCountry(vendor); country != "" {
		return country + id, country
	}
	return id, ""
}

// primaryFields drive the completeness component of a provider's
// self-reported confidence.
var primaryFields = []string{"vendor", "invoice_number", "issue_date", "total", "tax_id"}

// scoreConfidence blends a backend's self-reported confidence with observed
// field completeness so the headline value tracks what was actually
// extracted on this call.
func scoreConfidence(selfReported float64, populated map[string]string) float64 {
	if selfReported < 0 {
		selfReported = 0
	}
	if selfReported > 1 {
		selfReported = 1
	}
	present := 0
	for _, f := range primaryFields {
		if populated[f] != "" {
			present++
		}
	}
	completeness := float64(present) / float64(len(primaryFields))
	score := 0.6*selfReported + 0.4*completeness
	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}

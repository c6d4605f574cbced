package importer

import "strings"

// Schema is the logical content of a delimited or spreadsheet file, decided
// from its column headers rather than its name.
type Schema string

const (
	SchemaTaxGrade Schema = "tax_grade"
	SchemaDividend Schema = "dividend"
	SchemaUnknown  Schema = "unknown"
)

var (
	dividendMarkers = []string{"commercial_period", "market_type", "instrument", "dividend_payment_date"}
	taxGradeMarkers = []string{"taxpayer_id", "name", "year"}
)

// DetectSchema inspects normalized headers and picks a schema. Dividend
// markers are checked first because dividend exports sometimes carry a
// generic name column as well.
func DetectSchema(headers []string) Schema {
	set := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		set[normalizeHeader(h)] = struct{}{}
	}
	for _, marker := range dividendMarkers {
		if _, ok := set[marker]; ok {
			return SchemaDividend
		}
	}
	for _, marker := range taxGradeMarkers {
		if _, ok := set[marker]; ok {
			return SchemaTaxGrade
		}
	}
	return SchemaUnknown
}

// RequiredColumns lists the columns a spreadsheet must carry for the schema.
// Delimited files skip this check; their rows fail individually instead.
func RequiredColumns(schema Schema) []string {
	switch schema {
	case SchemaTaxGrade:
		return []string{"taxpayer_id", "name", "year"}
	case SchemaDividend:
		return []string{"commercial_period", "market_type", "instrument", "dividend_payment_date"}
	}
	return nil
}

// MissingColumns returns the required columns absent from headers.
func MissingColumns(schema Schema, headers []string) []string {
	set := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		set[normalizeHeader(h)] = struct{}{}
	}
	var missing []string
	for _, col := range RequiredColumns(schema) {
		if _, ok := set[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

package importer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fiscalia/fiscalia/internal/dividend"
	"github.com/fiscalia/fiscalia/internal/taxgrade"
)

// minCapitalEventSeq is the lowest valid capital event sequence. Registry
// sequences start above this value; anything at or below it is a typo.
const minCapitalEventSeq = 10000

// RowError is a validation failure for a single row. Required fields fail
// the row; optional fields coerce silently to their defaults.
type RowError struct {
	Field   string
	Message string
}

func (e *RowError) Error() string { return e.Message }

func rowErrorf(field, format string, args ...any) *RowError {
	return &RowError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NormalizeTaxGradeRow validates and coerces one delimited or spreadsheet
// row into an upsert input. Keys must already be normalized headers.
func NormalizeTaxGradeRow(fields map[string]string) (taxgrade.UpsertInput, error) {
	var in taxgrade.UpsertInput

	in.TaxpayerID = strings.TrimSpace(fields["taxpayer_id"])
	if in.TaxpayerID == "" {
		return in, rowErrorf("taxpayer_id", "RUT es requerido")
	}
	in.Name = strings.TrimSpace(fields["name"])
	if in.Name == "" {
		return in, rowErrorf("name", "Nombre es requerido")
	}

	rawYear := strings.TrimSpace(fields["year"])
	if rawYear == "" {
		return in, rowErrorf("year", "Año es requerido")
	}
	year, err := strconv.Atoi(rawYear)
	if err != nil {
		return in, rowErrorf("year", "Año inválido: %s", rawYear)
	}
	in.FiscalYear = year

	in.Amount = parseDecimalOrZero(fields["amount"])
	in.Factor = parseDecimalOrNil(fields["factor"])
	in.CalculationBasis = strings.TrimSpace(fields["calculation_basis"])

	in.SourceType = taxgrade.SourceManual
	if st, ok := taxgrade.ParseSourceType(strings.ToLower(strings.TrimSpace(fields["source_type"]))); ok {
		in.SourceType = st
	}
	in.Status = taxgrade.StatusActive
	if st, ok := taxgrade.ParseStatus(strings.ToLower(strings.TrimSpace(fields["status"]))); ok {
		in.Status = st
	}
	in.Origin = taxgrade.OriginFile
	return in, nil
}

// NormalizeDividendRow validates and coerces one row into a dividend upsert
// input. The factor_1..factor_31 columns map to labeled factors offset by
// seven to match the registry form numbering.
func NormalizeDividendRow(fields map[string]string) (dividend.UpsertInput, error) {
	var in dividend.UpsertInput

	rawPeriod := strings.TrimSpace(fields["commercial_period"])
	if rawPeriod == "" {
		return in, rowErrorf("commercial_period", "Periodo comercial es requerido")
	}
	period, err := strconv.Atoi(rawPeriod)
	if err != nil {
		return in, rowErrorf("commercial_period", "Periodo comercial inválido: %s", rawPeriod)
	}
	in.CommercialPeriod = period

	rawMarket := strings.ToLower(strings.TrimSpace(fields["market_type"]))
	if rawMarket == "" {
		return in, rowErrorf("market_type", "Tipo de mercado es requerido")
	}
	marketType, ok := dividend.ParseMarketType(rawMarket)
	if !ok {
		return in, rowErrorf("market_type", "Tipo de mercado inválido: %s", rawMarket)
	}
	in.MarketType = marketType

	in.Instrument = strings.TrimSpace(fields["instrument"])
	if in.Instrument == "" {
		return in, rowErrorf("instrument", "Instrumento es requerido")
	}

	rawDate := strings.TrimSpace(fields["dividend_payment_date"])
	if rawDate == "" {
		return in, rowErrorf("dividend_payment_date", "Fecha de pago es requerida")
	}
	paymentDate, err := parseDate(rawDate)
	if err != nil {
		return in, rowErrorf("dividend_payment_date", "Fecha de pago inválida: %s", rawDate)
	}
	in.PaymentDate = paymentDate

	rawSeq := strings.TrimSpace(fields["capital_event_sequence"])
	if rawSeq == "" {
		// Some registry exports abbreviate the column name.
		rawSeq = strings.TrimSpace(fields["capital_event_seq"])
	}
	if rawSeq != "" {
		seq, err := strconv.Atoi(rawSeq)
		if err != nil || seq <= minCapitalEventSeq {
			return in, rowErrorf("capital_event_sequence", "Secuencia de evento de capital inválida: %s (debe ser mayor a %d)", rawSeq, minCapitalEventSeq)
		}
		in.CapitalEventSeq = &seq
	}

	in.InformationOrigin = dividend.OriginBroker
	if o, ok := dividend.ParseInformationOrigin(strings.ToLower(strings.TrimSpace(fields["information_origin"]))); ok {
		in.InformationOrigin = o
	}
	in.TaxTreatment = dividend.TreatmentNone
	if t, ok := dividend.ParseTaxTreatment(strings.ToLower(strings.TrimSpace(fields["tax_treatment"]))); ok {
		in.TaxTreatment = t
	}

	in.Description = strings.TrimSpace(fields["description"])
	in.UpdateFactor = parseDecimalOrNil(fields["update_factor"])
	in.Amount = parseDecimalOrZero(fields["dividend"])
	in.HistoricalValue = parseDecimalOrNil(fields["historical_value"])
	in.Factors = collectFactors(fields)
	return in, nil
}

// collectFactors picks up every populated factor_N column. Unparseable
// values are dropped; the row itself still succeeds.
func collectFactors(fields map[string]string) map[string]dividend.FactorEntry {
	var factors map[string]dividend.FactorEntry
	for n := 1; n <= 31; n++ {
		key := fmt.Sprintf("factor_%d", n)
		raw := strings.TrimSpace(fields[key])
		if raw == "" {
			continue
		}
		value, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		if factors == nil {
			factors = make(map[string]dividend.FactorEntry)
		}
		factors[key] = dividend.FactorEntry{
			Label: fmt.Sprintf("Factor-%d", n+7),
			Value: value,
		}
	}
	return factors
}

func parseDecimalOrZero(raw string) decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return v
}

func parseDecimalOrNil(raw string) *decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil
	}
	return &v
}

// parseDate accepts ISO dates only. Localized formats like 15/05/2024 fail
// the row instead of being guessed at.
func parseDate(raw string) (time.Time, error) {
	return time.Parse("2006-01-02", raw)
}

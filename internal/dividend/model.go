package dividend

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarketType classifies the instrument's market.
type MarketType string

const (
	MarketStocks      MarketType = "stocks"
	MarketCFI         MarketType = "cfi"
	MarketMutualFunds MarketType = "mutual_funds"
)

// ParseMarketType reports whether s is a known market type.
func ParseMarketType(s string) (MarketType, bool) {
	switch MarketType(s) {
	case MarketStocks, MarketCFI, MarketMutualFunds:
		return MarketType(s), true
	}
	return "", false
}

// InformationOrigin records who supplied the dividend data.
type InformationOrigin string

const (
	OriginBroker InformationOrigin = "broker"
	OriginSystem InformationOrigin = "system"
)

// ParseInformationOrigin reports whether s is a known origin.
func ParseInformationOrigin(s string) (InformationOrigin, bool) {
	switch InformationOrigin(s) {
	case OriginBroker, OriginSystem:
		return InformationOrigin(s), true
	}
	return "", false
}

// TaxTreatment marks the special tax regime a dividend is covered by.
type TaxTreatment string

const (
	TreatmentISFUT TaxTreatment = "isfut"
	TreatmentISIFT TaxTreatment = "isift"
	TreatmentNone  TaxTreatment = "none"
)

// ParseTaxTreatment reports whether s is a known treatment.
func ParseTaxTreatment(s string) (TaxTreatment, bool) {
	switch TaxTreatment(s) {
	case TreatmentISFUT, TreatmentISIFT, TreatmentNone:
		return TaxTreatment(s), true
	}
	return "", false
}

// FactorEntry is one named numeric factor with its display label.
type FactorEntry struct {
	Label string          `json:"label"`
	Value decimal.Decimal `json:"value"`
}

// Dividend is one dividend payment record. The natural key is
// (commercial_period, instrument, payment_date, capital_event_seq); the
// sequence participates only when present, and valid sequences are always
// greater than 10000.
type Dividend struct {
	ID                uuid.UUID              `json:"id"`
	MarketType        MarketType             `json:"market_type"`
	InformationOrigin InformationOrigin      `json:"information_origin"`
	CommercialPeriod  int                    `json:"commercial_period"`
	Instrument        string                 `json:"instrument"`
	PaymentDate       time.Time              `json:"payment_date"`
	Description       string                 `json:"description"`
	CapitalEventSeq   *int                   `json:"capital_event_seq,omitempty"`
	TaxTreatment      TaxTreatment           `json:"tax_treatment"`
	UpdateFactor      *decimal.Decimal       `json:"update_factor,omitempty"`
	Amount            decimal.Decimal        `json:"amount"`
	HistoricalValue   *decimal.Decimal       `json:"historical_value,omitempty"`
	Factors           map[string]FactorEntry `json:"factors,omitempty"`
	CreatedBy         string                 `json:"created_by"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedBy         string                 `json:"updated_by"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// Snapshot renders the audit view of the record.
func (d Dividend) Snapshot() map[string]any {
	return map[string]any{
		"id":                 d.ID.String(),
		"market_type":        string(d.MarketType),
		"information_origin": string(d.InformationOrigin),
		"commercial_period":  d.CommercialPeriod,
		"instrument":         d.Instrument,
		"payment_date":       d.PaymentDate.Format("2006-01-02"),
		"tax_treatment":      string(d.TaxTreatment),
		"amount":             d.Amount.String(),
	}
}

// UpsertInput carries one normalized row into the upsert engine.
type UpsertInput struct {
	MarketType        MarketType
	InformationOrigin InformationOrigin
	CommercialPeriod  int
	Instrument        string
	PaymentDate       time.Time
	Description       string
	CapitalEventSeq   *int
	TaxTreatment      TaxTreatment
	UpdateFactor      *decimal.Decimal
	Amount            decimal.Decimal
	HistoricalValue   *decimal.Decimal
	Factors           map[string]FactorEntry
}

package dividend

import "github.com/shopspring/decimal"

type CreateDividendRequest struct {
	MarketType        string                 `json:"market_type" validate:"required,oneof=stocks cfi mutual_funds"`
	InformationOrigin string                 `json:"information_origin" validate:"required,oneof=broker system"`
	CommercialPeriod  int                    `json:"commercial_period" validate:"required,gte=1900,lte=2100"`
	Instrument        string                 `json:"instrument" validate:"required,max=255"`
	PaymentDate       string                 `json:"payment_date" validate:"required,datetime=2006-01-02"`
	Description       string                 `json:"description"`
	CapitalEventSeq   *int                   `json:"capital_event_seq,omitempty" validate:"omitempty,gt=10000"`
	TaxTreatment      string                 `json:"tax_treatment" validate:"omitempty,oneof=isfut isift none"`
	UpdateFactor      *decimal.Decimal       `json:"update_factor,omitempty"`
	Amount            decimal.Decimal        `json:"amount"`
	HistoricalValue   *decimal.Decimal       `json:"historical_value,omitempty"`
	Factors           map[string]FactorEntry `json:"factors,omitempty"`
}

type UpdateDividendRequest struct {
	MarketType        *string                `json:"market_type,omitempty" validate:"omitempty,oneof=stocks cfi mutual_funds"`
	InformationOrigin *string                `json:"information_origin,omitempty" validate:"omitempty,oneof=broker system"`
	Description       *string                `json:"description,omitempty"`
	TaxTreatment      *string                `json:"tax_treatment,omitempty" validate:"omitempty,oneof=isfut isift none"`
	UpdateFactor      *decimal.Decimal       `json:"update_factor,omitempty"`
	Amount            *decimal.Decimal       `json:"amount,omitempty"`
	HistoricalValue   *decimal.Decimal       `json:"historical_value,omitempty"`
	Factors           map[string]FactorEntry `json:"factors,omitempty"`
}

type ListFilters struct {
	MarketType        string
	InformationOrigin string
	CommercialPeriod  *int
	Instrument        string
	Page              int
	PerPage           int
}

package taxgrade

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateTaxGradeRequest struct {
	TaxpayerID       string           `json:"taxpayer_id" validate:"required,max=20"`
	Name             string           `json:"name" validate:"required,max=255"`
	FiscalYear       int              `json:"fiscal_year" validate:"required,gte=1900,lte=2100"`
	SourceType       string           `json:"source_type" validate:"omitempty,oneof=declaration certificate manual calculated"`
	Amount           decimal.Decimal  `json:"amount"`
	Factor           *decimal.Decimal `json:"factor,omitempty"`
	CalculationBasis string           `json:"calculation_basis"`
	Status           string           `json:"status" validate:"omitempty,oneof=active inactive"`
}

type UpdateTaxGradeRequest struct {
	Name             *string          `json:"name,omitempty" validate:"omitempty,max=255"`
	SourceType       *string          `json:"source_type,omitempty" validate:"omitempty,oneof=declaration certificate manual calculated"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	Factor           *decimal.Decimal `json:"factor,omitempty"`
	CalculationBasis *string          `json:"calculation_basis,omitempty"`
	Status           *string          `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
}

type ListFilters struct {
	TaxpayerID string
	FiscalYear *int
	SourceType string
	Status     string
	YearFrom   *int
	YearTo     *int
	DateFrom   time.Time
	DateTo     time.Time
	Page       int
	PerPage    int
}

package taxgrade

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SourceType classifies where a tax grade value came from.
type SourceType string

const (
	SourceDeclaration SourceType = "declaration"
	SourceCertificate SourceType = "certificate"
	SourceManual      SourceType = "manual"
	SourceCalculated  SourceType = "calculated"
)

// ParseSourceType reports whether s is a known source type.
func ParseSourceType(s string) (SourceType, bool) {
	switch SourceType(s) {
	case SourceDeclaration, SourceCertificate, SourceManual, SourceCalculated:
		return SourceType(s), true
	}
	return "", false
}

// Origin records which channel introduced the record.
type Origin string

const (
	OriginFile   Origin = "file"
	OriginManual Origin = "manual"
	OriginSystem Origin = "system"
)

// Status is the record lifecycle flag. Records are never hard-deleted from
// the API; deletion flips the status to inactive.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ParseStatus reports whether s is a known status.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusActive, StatusInactive:
		return Status(s), true
	}
	return "", false
}

// TaxGrade is a taxpayer's grade for one fiscal year. The pair
// (taxpayer_id, fiscal_year) is the natural key and is unique.
type TaxGrade struct {
	ID               uuid.UUID        `json:"id"`
	TaxpayerID       string           `json:"taxpayer_id"`
	Name             string           `json:"name"`
	FiscalYear       int              `json:"fiscal_year"`
	SourceType       SourceType       `json:"source_type"`
	Origin           Origin           `json:"origin"`
	Amount           decimal.Decimal  `json:"amount"`
	Factor           *decimal.Decimal `json:"factor,omitempty"`
	CalculationBasis string           `json:"calculation_basis"`
	Status           Status           `json:"status"`
	CreatedBy        string           `json:"created_by"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedBy        string           `json:"updated_by"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Snapshot renders the audit view of the record.
func (g TaxGrade) Snapshot() map[string]any {
	return map[string]any{
		"id":          g.ID.String(),
		"taxpayer_id": g.TaxpayerID,
		"name":        g.Name,
		"fiscal_year": g.FiscalYear,
		"source_type": string(g.SourceType),
		"origin":      string(g.Origin),
		"amount":      g.Amount.String(),
		"status":      string(g.Status),
	}
}

// UpsertInput carries one normalized row into the upsert engine. The import
// pipeline and the manual API both funnel through it.
type UpsertInput struct {
	TaxpayerID       string
	Name             string
	FiscalYear       int
	SourceType       SourceType
	Origin           Origin
	Amount           decimal.Decimal
	Factor           *decimal.Decimal
	CalculationBasis string
	Status           Status
}

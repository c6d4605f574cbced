package dividend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fiscalia/fiscalia/internal/audit"
	"github.com/fiscalia/fiscalia/internal/shared"
)

const entityName = "dividend_records"

// Service owns dividend business rules. Unlike tax grades, dividends expose
// full create/update/delete through the API; the import pipeline still only
// upserts.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService returns a new dividend service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Upsert creates or updates the record identified by the composite natural
// key. One ledger entry per successful call, in the same transaction as the
// mutation.
func (s *Service) Upsert(ctx context.Context, in UpsertInput, actor shared.Actor, meta shared.ClientMeta) (*Dividend, audit.Action, error) {
	var result *Dividend
	var action audit.Action

	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := repo.GetByKey(ctx, in.CommercialPeriod, in.Instrument, in.PaymentDate, in.CapitalEventSeq)
		switch {
		case err == nil:
			before := existing.Snapshot()
			existing.MarketType = in.MarketType
			existing.InformationOrigin = in.InformationOrigin
			existing.Description = in.Description
			existing.TaxTreatment = in.TaxTreatment
			existing.UpdateFactor = in.UpdateFactor
			existing.Amount = in.Amount
			existing.HistoricalValue = in.HistoricalValue
			existing.Factors = in.Factors
			existing.UpdatedBy = actor.ID
			existing.UpdatedAt = s.now()
			if err := repo.Update(ctx, *existing); err != nil {
				return err
			}
			result = existing
			action = audit.ActionUpdate
			return repo.Audit().Record(ctx, audit.Entry{
				ActorID:   actor.ID,
				Entity:    entityName,
				EntityID:  existing.ID.String(),
				Action:    audit.ActionUpdate,
				Before:    before,
				After:     existing.Snapshot(),
				IPAddress: meta.IPAddress,
				UserAgent: meta.UserAgent,
				At:        s.now(),
			})
		case errors.Is(err, ErrNotFound):
			now := s.now()
			d := Dividend{
				ID:                uuid.New(),
				MarketType:        in.MarketType,
				InformationOrigin: in.InformationOrigin,
				CommercialPeriod:  in.CommercialPeriod,
				Instrument:        in.Instrument,
				PaymentDate:       in.PaymentDate,
				Description:       in.Description,
				CapitalEventSeq:   in.CapitalEventSeq,
				TaxTreatment:      in.TaxTreatment,
				UpdateFactor:      in.UpdateFactor,
				Amount:            in.Amount,
				HistoricalValue:   in.HistoricalValue,
				Factors:           in.Factors,
				CreatedBy:         actor.ID,
				CreatedAt:         now,
				UpdatedBy:         actor.ID,
				UpdatedAt:         now,
			}
			if err := repo.Create(ctx, d); err != nil {
				return err
			}
			result = &d
			action = audit.ActionCreate
			return repo.Audit().Record(ctx, audit.Entry{
				ActorID:   actor.ID,
				Entity:    entityName,
				EntityID:  d.ID.String(),
				Action:    audit.ActionCreate,
				After:     d.Snapshot(),
				IPAddress: meta.IPAddress,
				UserAgent: meta.UserAgent,
				At:        now,
			})
		default:
			return err
		}
	})
	if err != nil {
		return nil, "", fmt.Errorf("upsert dividend: %w", err)
	}
	return result, action, nil
}

// Create inserts a record entered through the API.
func (s *Service) Create(ctx context.Context, req CreateDividendRequest, actor shared.Actor, meta shared.ClientMeta) (*Dividend, error) {
	marketType, _ := ParseMarketType(req.MarketType)
	origin, _ := ParseInformationOrigin(req.InformationOrigin)
	treatment := TreatmentNone
	if t, ok := ParseTaxTreatment(req.TaxTreatment); ok {
		treatment = t
	}
	paymentDate, err := time.Parse("2006-01-02", req.PaymentDate)
	if err != nil {
		return nil, fmt.Errorf("create dividend: parse payment date: %w", err)
	}

	now := s.now()
	d := Dividend{
		ID:                uuid.New(),
		MarketType:        marketType,
		InformationOrigin: origin,
		CommercialPeriod:  req.CommercialPeriod,
		Instrument:        req.Instrument,
		PaymentDate:       paymentDate,
		Description:       req.Description,
		CapitalEventSeq:   req.CapitalEventSeq,
		TaxTreatment:      treatment,
		UpdateFactor:      req.UpdateFactor,
		Amount:            req.Amount,
		HistoricalValue:   req.HistoricalValue,
		Factors:           req.Factors,
		CreatedBy:         actor.ID,
		CreatedAt:         now,
		UpdatedBy:         actor.ID,
		UpdatedAt:         now,
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.Create(ctx, d); err != nil {
			return err
		}
		return repo.Audit().Record(ctx, audit.Entry{
			ActorID:   actor.ID,
			Entity:    entityName,
			EntityID:  d.ID.String(),
			Action:    audit.ActionCreate,
			After:     d.Snapshot(),
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			At:        now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create dividend: %w", err)
	}
	return &d, nil
}

// Update modifies mutable fields; the natural key itself is immutable.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateDividendRequest, actor shared.Actor, meta shared.ClientMeta) (*Dividend, error) {
	var result *Dividend
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		before := existing.Snapshot()

		if req.MarketType != nil {
			if mt, ok := ParseMarketType(*req.MarketType); ok {
				existing.MarketType = mt
			}
		}
		if req.InformationOrigin != nil {
			if o, ok := ParseInformationOrigin(*req.InformationOrigin); ok {
				existing.InformationOrigin = o
			}
		}
		if req.Description != nil {
			existing.Description = *req.Description
		}
		if req.TaxTreatment != nil {
			if t, ok := ParseTaxTreatment(*req.TaxTreatment); ok {
				existing.TaxTreatment = t
			}
		}
		if req.UpdateFactor != nil {
			existing.UpdateFactor = req.UpdateFactor
		}
		if req.Amount != nil {
			existing.Amount = *req.Amount
		}
		if req.HistoricalValue != nil {
			existing.HistoricalValue = req.HistoricalValue
		}
		if req.Factors != nil {
			existing.Factors = req.Factors
		}
		existing.UpdatedBy = actor.ID
		existing.UpdatedAt = s.now()

		if err := repo.Update(ctx, *existing); err != nil {
			return err
		}
		result = existing
		return repo.Audit().Record(ctx, audit.Entry{
			ActorID:   actor.ID,
			Entity:    entityName,
			EntityID:  existing.ID.String(),
			Action:    audit.ActionUpdate,
			Before:    before,
			After:     existing.Snapshot(),
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			At:        s.now(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("update dividend: %w", err)
	}
	return result, nil
}

// Delete removes the record. Dividends allow hard deletes from the API; the
// ledger entry written here is what preserves the history.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor shared.Actor, meta shared.ClientMeta) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		before := existing.Snapshot()
		if err := repo.Delete(ctx, id); err != nil {
			return err
		}
		return repo.Audit().Record(ctx, audit.Entry{
			ActorID:   actor.ID,
			Entity:    entityName,
			EntityID:  id.String(),
			Action:    audit.ActionDelete,
			Before:    before,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			At:        s.now(),
		})
	})
	if err != nil {
		return fmt.Errorf("delete dividend: %w", err)
	}
	return nil
}

// Get fetches one record by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Dividend, error) {
	return s.repo.Get(ctx, id)
}

// List returns records matching the filters.
func (s *Service) List(ctx context.Context, f ListFilters) ([]Dividend, int, error) {
	if f.PerPage <= 0 {
		f.PerPage = 20
	}
	if f.PerPage > 100 {
		f.PerPage = 100
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	return s.repo.List(ctx, f)
}

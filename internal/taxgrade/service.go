package taxgrade

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/fiscalia/fiscalia/internal/audit"
	"github.com/fiscalia/fiscalia/internal/shared"
)

const entityName = "tax_grades"

// Service owns tax grade business rules, including the upsert engine used by
// the import pipeline.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService returns a new tax grade service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Upsert creates or updates the record identified by the row's natural key
// (taxpayer_id, fiscal_year). The mutation and its audit entry commit in one
// transaction; exactly one ledger entry is written per successful call. The
// first writer of a key remains its creator, later writers only touch
// updated_by.
func (s *Service) Upsert(ctx context.Context, in UpsertInput, actor shared.Actor, meta shared.ClientMeta) (*TaxGrade, audit.Action, error) {
	var result *TaxGrade
	var action audit.Action

	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := repo.GetByKey(ctx, in.TaxpayerID, in.FiscalYear)
		switch {
		case err == nil:
			before := existing.Snapshot()
			existing.Name = in.Name
			existing.SourceType = in.SourceType
			existing.Amount = in.Amount
			existing.Factor = in.Factor
			existing.CalculationBasis = in.CalculationBasis
			existing.Status = in.Status
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
			g := TaxGrade{
				ID:               uuid.New(),
				TaxpayerID:       in.TaxpayerID,
				Name:             in.Name,
				FiscalYear:       in.FiscalYear,
				SourceType:       in.SourceType,
				Origin:           in.Origin,
				Amount:           in.Amount,
				Factor:           in.Factor,
				CalculationBasis: in.CalculationBasis,
				Status:           in.Status,
				CreatedBy:        actor.ID,
				CreatedAt:        now,
				UpdatedBy:        actor.ID,
				UpdatedAt:        now,
			}
			if err := repo.Create(ctx, g); err != nil {
				return err
			}
			result = &g
			action = audit.ActionCreate
			return repo.Audit().Record(ctx, audit.Entry{
				ActorID:   actor.ID,
				Entity:    entityName,
				EntityID:  g.ID.String(),
				Action:    audit.ActionCreate,
				After:     g.Snapshot(),
				IPAddress: meta.IPAddress,
				UserAgent: meta.UserAgent,
				At:        now,
			})
		default:
			return err
		}
	})
	if err != nil {
		return nil, "", fmt.Errorf("upsert tax grade: %w", err)
	}
	return result, action, nil
}

// Create inserts a manually entered record.
func (s *Service) Create(ctx context.Context, req CreateTaxGradeRequest, actor shared.Actor, meta shared.ClientMeta) (*TaxGrade, error) {
	sourceType := SourceManual
	if st, ok := ParseSourceType(req.SourceType); ok {
		sourceType = st
	}
	status := StatusActive
	if st, ok := ParseStatus(req.Status); ok {
		status = st
	}

	now := s.now()
	g := TaxGrade{
		ID:               uuid.New(),
		TaxpayerID:       req.TaxpayerID,
		Name:             req.Name,
		FiscalYear:       req.FiscalYear,
		SourceType:       sourceType,
		Origin:           OriginManual,
		Amount:           req.Amount,
		Factor:           req.Factor,
		CalculationBasis: req.CalculationBasis,
		Status:           status,
		CreatedBy:        actor.ID,
		CreatedAt:        now,
		UpdatedBy:        actor.ID,
		UpdatedAt:        now,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.Create(ctx, g); err != nil {
			return err
		}
		return repo.Audit().Record(ctx, audit.Entry{
			ActorID:   actor.ID,
			Entity:    entityName,
			EntityID:  g.ID.String(),
			Action:    audit.ActionCreate,
			After:     g.Snapshot(),
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			At:        now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create tax grade: %w", err)
	}
	return &g, nil
}

// Update modifies mutable fields. The record's origin and creator never change.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateTaxGradeRequest, actor shared.Actor, meta shared.ClientMeta) (*TaxGrade, error) {
	var result *TaxGrade
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		before := existing.Snapshot()

		if req.Name != nil {
			existing.Name = *req.Name
		}
		if req.SourceType != nil {
			if st, ok := ParseSourceType(*req.SourceType); ok {
				existing.SourceType = st
			}
		}
		if req.Amount != nil {
			existing.Amount = *req.Amount
		}
		if req.Factor != nil {
			existing.Factor = req.Factor
		}
		if req.CalculationBasis != nil {
			existing.CalculationBasis = *req.CalculationBasis
		}
		if req.Status != nil {
			if st, ok := ParseStatus(*req.Status); ok {
				existing.Status = st
			}
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
		return nil, fmt.Errorf("update tax grade: %w", err)
	}
	return result, nil
}

// Deactivate flips the record to inactive. This is the only deletion the API
// offers; the row and its audit trail stay in place.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID, actor shared.Actor, meta shared.ClientMeta) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		before := existing.Snapshot()
		existing.Status = StatusInactive
		existing.UpdatedBy = actor.ID
		existing.UpdatedAt = s.now()
		if err := repo.Update(ctx, *existing); err != nil {
			return err
		}
		return repo.Audit().Record(ctx, audit.Entry{
			ActorID:   actor.ID,
			Entity:    entityName,
			EntityID:  existing.ID.String(),
			Action:    audit.ActionDelete,
			Before:    before,
			After:     map[string]any{"status": string(StatusInactive)},
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			At:        s.now(),
		})
	})
	if err != nil {
		return fmt.Errorf("deactivate tax grade: %w", err)
	}
	return nil
}

// Get fetches one record by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*TaxGrade, error) {
	return s.repo.Get(ctx, id)
}

// List returns records matching the filters. Without an explicit status
// filter only active records are returned, so deactivated records disappear
// from default listings.
func (s *Service) List(ctx context.Context, f ListFilters) ([]TaxGrade, int, error) {
	if f.Status == "" {
		f.Status = string(StatusActive)
	}
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

// Export returns all active records of a fiscal year and records an export
// entry in the ledger.
func (s *Service) Export(ctx context.Context, year int, actor shared.Actor, meta shared.ClientMeta) ([]TaxGrade, error) {
	grades, err := s.repo.ListByYear(ctx, year, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("export tax grades: %w", err)
	}
	err = s.repo.Audit().Record(ctx, audit.Entry{
		ActorID:   actor.ID,
		Entity:    entityName,
		EntityID:  strconv.Itoa(year),
		Action:    audit.ActionExport,
		After:     map[string]any{"fiscal_year": year, "count": len(grades)},
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		At:        s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("export tax grades: %w", err)
	}
	return grades, nil
}

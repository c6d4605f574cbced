package audit

import (
	"context"
	"fmt"
)

// Service coordinates read access to the audit ledger.
type Service struct {
	repo Repository
}

// NewService returns a new audit listing service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns ledger entries matching the filters, newest first.
func (s *Service) List(ctx context.Context, f Filters) ([]Entry, int, error) {
	if s.repo == nil {
		return nil, 0, fmt.Errorf("audit: repository not configured")
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

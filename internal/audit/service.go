package audit

import (
	"context"
	"fmt"
)

// TrailRepository exposes the query side of the audit store.
type TrailRepository interface {
	Trail(ctx context.Context, f TrailFilters, limit, offset int) ([]Record, error)
}

// Service coordinates audit trail reads.
type Service struct {
	repo TrailRepository
}

// NewService constructs a trail service.
func NewService(repo TrailRepository) *Service {
	return &Service{repo: repo}
}

// Trail returns one page of audit records matching the filters.
func (s *Service) Trail(ctx context.Context, filters TrailFilters) (TrailResult, error) {
	if s.repo == nil {
		return TrailResult{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.Trail(ctx, filters, pageSize+1, offset)
	if err != nil {
		return TrailResult{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	return TrailResult{
		Rows:   rows,
		Paging: PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext},
	}, nil
}

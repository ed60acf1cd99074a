package service

import (
	"context"
	"fmt"

	"github.com/errmate/errmate/internal/model"
)

// Query history page sizes.
const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 100
)

// QueryService reads stored explanations.
type QueryService struct {
	queries QueryStore
}

// NewQueryService creates a new QueryService.
func NewQueryService(queries QueryStore) *QueryService {
	return &QueryService{queries: queries}
}

// List returns the user's explanations, newest first. limit is clamped to
// [1, MaxQueryLimit]; 0 means DefaultQueryLimit.
func (s *QueryService) List(ctx context.Context, userID string, limit int) ([]*model.QueryResponse, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	switch {
	case limit <= 0:
		limit = DefaultQueryLimit
	case limit > MaxQueryLimit:
		limit = MaxQueryLimit
	}

	items, err := s.queries.ListQueryResponsesByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	if items == nil {
		items = []*model.QueryResponse{}
	}
	return items, nil
}

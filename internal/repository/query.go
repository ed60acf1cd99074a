package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/errmate/errmate/internal/model"
)

// CreateQueryResponse stores a served explanation.
// Empty resource lists are stored as NULL.
func (r *Repository) CreateQueryResponse(ctx context.Context, q *model.QueryResponse) error {
	var resources any
	if len(q.Resources) > 0 {
		raw, err := json.Marshal(q.Resources)
		if err != nil {
			return fmt.Errorf("failed to encode resources: %w", err)
		}
		resources = string(raw)
	}

	query := `
		INSERT INTO query_responses (
			id, user_id, error_text, context_text, tech_context, explanation, resources, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		q.ID,
		q.UserID,
		q.ErrorText,
		q.ContextText,
		q.TechContext,
		q.Explanation,
		resources,
		q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create query response: %w", err)
	}

	return nil
}

// ListQueryResponsesByUser returns a user's stored explanations, newest first.
func (r *Repository) ListQueryResponsesByUser(ctx context.Context, userID string, limit int) ([]*model.QueryResponse, error) {
	query := `
		SELECT id, user_id, error_text, context_text, tech_context, explanation, resources, created_at
		FROM query_responses
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list query responses: %w", err)
	}
	defer rows.Close()

	result := make([]*model.QueryResponse, 0)
	for rows.Next() {
		var (
			q         model.QueryResponse
			resources []byte
		)
		if err := rows.Scan(
			&q.ID,
			&q.UserID,
			&q.ErrorText,
			&q.ContextText,
			&q.TechContext,
			&q.Explanation,
			&resources,
			&q.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan query response: %w", err)
		}

		q.Resources = []model.Resource{}
		if len(resources) > 0 {
			if err := json.Unmarshal(resources, &q.Resources); err != nil {
				return nil, fmt.Errorf("failed to decode resources for %s: %w", q.ID, err)
			}
		}
		result = append(result, &q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate query responses: %w", err)
	}

	return result, nil
}

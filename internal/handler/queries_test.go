package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/errmate/errmate/internal/model"
)

func TestQueryHandler_List(t *testing.T) {
	env := newTestEnv(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, env.store.CreateQueryResponse(context.Background(), &model.QueryResponse{
			ID:          fmt.Sprintf("q%d", i),
			UserID:      "u1",
			ErrorText:   "err",
			TechContext: "Go",
			Explanation: "x",
			Resources:   []model.Resource{},
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	tests := []struct {
		name      string
		target    string
		wantCount int
		wantFirst string
	}{
		{"default_limit", "/api/queries", 3, "q2"},
		{"explicit_limit", "/api/queries?limit=1", 1, "q2"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			env.queries.List(rec, newRequest(http.MethodGet, test.target, "", &model.User{ID: "u1"}))

			require.Equal(t, http.StatusOK, rec.Code)
			var items []model.QueryResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&items))
			require.Len(t, items, test.wantCount)
			assert.Equal(t, test.wantFirst, items[0].ID)
		})
	}
}

func TestQueryHandler_ListEmptyIsArray(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.queries.List(rec, newRequest(http.MethodGet, "/api/queries", "", &model.User{ID: "u1"}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestQueryHandler_ListErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.queries.List(rec, newRequest(http.MethodGet, "/api/queries?limit=ten", "", &model.User{ID: "u1"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_LIMIT", decodeError(t, rec).Code)

	rec = httptest.NewRecorder()
	env.queries.List(rec, newRequest(http.MethodGet, "/api/queries", "", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", decodeError(t, rec).Error)
}

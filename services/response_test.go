package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/krshsl/influenceos/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{name: "auth", err: models.NewAuthError("session expired", nil), wantStatus: http.StatusUnauthorized, wantCode: "auth", wantMessage: "session expired"},
		{name: "network", err: models.NewNetworkError("profile_fetch request failed", nil), wantStatus: http.StatusBadGateway, wantCode: "network"},
		{name: "generation", err: models.NewGenerationError("empty completion", nil), wantStatus: http.StatusBadGateway, wantCode: "generation"},
		{name: "publish", err: models.NewPublishError("rejected", nil), wantStatus: http.StatusBadGateway, wantCode: "publish"},
		{name: "storage", err: models.NewStorageError("failed to list posts", nil), wantStatus: http.StatusInternalServerError, wantCode: "storage"},
		{name: "validation", err: models.NewValidationError("limit must be an integer", nil), wantStatus: http.StatusBadRequest, wantCode: "validation"},
		{name: "not found", err: models.NewNotFoundError("post not found"), wantStatus: http.StatusNotFound, wantCode: "not_found"},
		{name: "conflict", err: models.NewConflictError("post is already published"), wantStatus: http.StatusConflict, wantCode: "conflict"},
		{
			name:        "wrapped app error",
			err:         fmt.Errorf("drafting: %w", models.NewGenerationError("empty completion", nil)),
			wantStatus:  http.StatusBadGateway,
			wantCode:    "generation",
			wantMessage: "empty completion",
		},
		{
			name:        "plain error hides details",
			err:         errors.New("pq: password authentication failed"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "internal",
			wantMessage: "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, body.Error.Message)
			}
		})
	}
}

package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/krshsl/influenceos/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGemini(t *testing.T, handler http.HandlerFunc) (*GeminiService, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/"+DefaultModelName+":generateContent"), r.URL.Path)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	g, err := NewGeminiService(context.Background(), AIConfig{
		GeminiAPIKey:  "test-key",
		GeminiBaseURL: server.URL,
		GeminiTimeout: 5 * time.Second,
	}, NewMetrics())
	require.NoError(t, err)
	return g, &calls
}

func TestGeminiGenerate(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		want     string
		wantKind models.ErrorKind
	}{
		{
			name:   "completion returned verbatim",
			status: http.StatusOK,
			body:   `{"candidates":[{"content":{"role":"model","parts":[{"text":"Jane Doe shipped a thing. #launch"}]},"finishReason":"STOP"}]}`,
			want:   "Jane Doe shipped a thing. #launch",
		},
		{
			name:     "no candidates",
			status:   http.StatusOK,
			body:     `{"candidates":[]}`,
			wantKind: models.KindGeneration,
		},
		{
			name:     "blocked prompt",
			status:   http.StatusOK,
			body:     `{"promptFeedback":{"blockReason":"SAFETY"}}`,
			wantKind: models.KindGeneration,
		},
		{
			name:     "provider error",
			status:   http.StatusBadRequest,
			body:     `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`,
			wantKind: models.KindGeneration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
				var req map[string]interface{}
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Contains(t, req, "systemInstruction")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			text, err := g.Generate(context.Background(), "Write about Jane Doe's launch")
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Empty(t, text)
				assert.Equal(t, tt.wantKind, models.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, text)
		})
	}
}

func TestGeminiGenerate_BlankPromptSkipsProvider(t *testing.T) {
	for _, prompt := range []string{"", "   ", "\n\t"} {
		g, calls := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		text, err := g.Generate(context.Background(), prompt)
		require.Error(t, err)
		assert.Empty(t, text)
		assert.Equal(t, models.KindGeneration, models.KindOf(err))
		assert.Equal(t, int32(0), atomic.LoadInt32(calls))
	}
}

func TestGeminiGenerate_TimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	g, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	g.timeout = 50 * time.Millisecond

	_, err := g.Generate(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, models.KindNetwork, models.KindOf(err))
}

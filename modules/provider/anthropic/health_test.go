package anthropic

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

func TestHealthCheck_Success(t *testing.T) {
	t.Parallel()

	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "claude-sonnet-4-5-20250929",
			"type": "model",
			"display_name": "Claude Sonnet 4.5",
			"created_at": "2025-09-29T00:00:00Z"
		}`))
	}))
	defer srv.Close()

	if err := newTestProvider(srv.URL).HealthCheck(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gotMethod != http.MethodGet {
		t.Errorf("method = %s, want GET", gotMethod)
	}
	if gotPath != "/v1/models/claude-sonnet-4-5-20250929" {
		t.Errorf("path = %q, want model lookup", gotPath)
	}
}

func TestHealthCheck_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"auth", http.StatusUnauthorized, nil},
		{"rate limit", http.StatusTooManyRequests, provider.ErrRateLimit},
		{"down", http.StatusBadGateway, provider.ErrProviderDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := errorServer(t, tt.status, `{"type":"error","error":{"type":"api_error","message":"nope"}}`)
			err := newTestProvider(srv.URL).HealthCheck(context.Background())
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

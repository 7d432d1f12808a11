package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Inovico-app/inovy-sub002/internal/pool"
	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

func TestHealth(t *testing.T) {
	t.Parallel()

	stats := []pool.Stats{
		{Provider: provider.OpenAI, Total: 3, Healthy: 3},
		{Provider: provider.Anthropic, Total: 3, Healthy: 0},
	}

	tests := []struct {
		name       string
		pool       PoolStatus
		wantCode   int
		wantStatus string
		wantCount  int
	}{
		{"all healthy", fakePool{stats: stats[:1]}, http.StatusOK, "ok", 1},
		{"degraded", fakePool{degraded: true, stats: stats}, http.StatusServiceUnavailable, "degraded", 2},
		{"no pool", nil, http.StatusOK, "ok", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := newTestGateway(t, Config{}, Deps{Generator: &fakeGenerator{}, Pool: tt.pool})
			rr := httptest.NewRecorder()
			g.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rr.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", rr.Code, tt.wantCode)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if len(resp.Providers) != tt.wantCount {
				t.Errorf("providers = %d, want %d", len(resp.Providers), tt.wantCount)
			}
		})
	}
}

func TestStatus_RequiresAuth(t *testing.T) {
	t.Parallel()

	p := fakePool{stats: []pool.Stats{{Provider: provider.OpenAI, Total: 2, Healthy: 2, Active: 1, Utilization: 5}}}

	t.Run("not mounted without auth", func(t *testing.T) {
		t.Parallel()
		g := newTestGateway(t, Config{}, Deps{Generator: &fakeGenerator{}, Pool: p})
		rr := httptest.NewRecorder()
		g.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
		if rr.Code != http.StatusNotFound {
			t.Errorf("status code = %d, want 404", rr.Code)
		}
	})

	t.Run("authenticated", func(t *testing.T) {
		t.Parallel()
		g := newTestGateway(t, Config{Auth: AuthConfig{BearerToken: "tok"}}, Deps{Generator: &fakeGenerator{}, Pool: p})
		started := g.startedAt
		g.now = func() time.Time { return started.Add(90 * time.Second) }

		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set("Authorization", "Bearer tok")
		rr := httptest.NewRecorder()
		g.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status code = %d, want 200", rr.Code)
		}
		var resp StatusResponse
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.UptimeSeconds != 90 {
			t.Errorf("uptime = %d, want 90", resp.UptimeSeconds)
		}
		if resp.Degraded || len(resp.Providers) != 1 || resp.Providers[0].Active != 1 {
			t.Errorf("unexpected status %+v", resp)
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		t.Parallel()
		g := newTestGateway(t, Config{Auth: AuthConfig{BearerToken: "tok"}}, Deps{Generator: &fakeGenerator{}, Pool: p})
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rr := httptest.NewRecorder()
		g.Handler().ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status code = %d, want 401", rr.Code)
		}
	})
}

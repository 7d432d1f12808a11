package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/Inovico-app/inovy-sub002/internal/pool"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string       `json:"status"` // "ok" or "degraded"
	Providers []pool.Stats `json:"providers"`
}

// handleHealth answers 200 while every pooled provider has a healthy
// client and 503 once one has none.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok", Providers: []pool.Stats{}}
		if g.pool != nil {
			resp.Providers = g.pool.AllStats()
			if g.pool.Degraded() {
				resp.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == "degraded" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

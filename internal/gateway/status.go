package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Inovico-app/inovy-sub002/internal/pool"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	UptimeSeconds int64        `json:"uptime_seconds"`
	Degraded      bool         `json:"degraded"`
	Providers     []pool.Stats `json:"providers"`
}

func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			UptimeSeconds: int64(g.now().Sub(g.startedAt) / time.Second),
			Providers:     []pool.Stats{},
		}
		if g.pool != nil {
			resp.Degraded = g.pool.Degraded()
			resp.Providers = g.pool.AllStats()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

package api

import (
	"net/http"
	"time"

	"pdptw/internal/buildinfo"
)

// DebugHandler reports build information and the non-secret parts of the
// service configuration.
func (s *Server) DebugHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	info := map[string]any{
		"build": buildinfo.Get(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":                  s.Config.Port,
			"LOG_LEVEL":             s.Config.LogLevel,
			"OPTIMIZER_CONFIG":      s.Config.OptimizerConfig,
			"RATE_LIMIT_RPS":        s.Config.RateLimitRPS,
			"RATE_LIMIT_BURST":      s.Config.RateLimitBurst,
			"WEBHOOK_MAX_ATTEMPTS":  s.Config.WebhookMaxAttempts,
			"MAX_CONCURRENT_SOLVES": s.Config.MaxConcurrentSolves,
			"HAS_DATABASE_URL":      s.Config.DatabaseURL != "",
			"HAS_REDIS_URL":         s.Config.RedisURL != "",
		},
		"optimizer": s.Optimizer,
	}
	writeJSON(w, http.StatusOK, info)
}

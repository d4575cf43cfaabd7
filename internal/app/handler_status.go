package app

import (
	"net/http"
	"time"

	"github.com/seawire/vela/internal/version"
)

// statusHandler reports cookie-pool health alongside process identity
func (a *Application) statusHandler(w http.ResponseWriter, r *http.Request) {
	pool, err := a.pool.Status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("pool status unavailable"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"version": version.Version,
		"uptime":  time.Since(a.startedAt).Round(time.Second).String(),
		"pool":    pool,
	})
}

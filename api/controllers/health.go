package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/acavero/shopline-backend/api/responses"
	"github.com/acavero/shopline-backend/pkg/config"
	"github.com/acavero/shopline-backend/pkg/db"
	"github.com/acavero/shopline-backend/pkg/logger"
)

const readyProbeTimeout = 2 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Shopline-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady probes the datasources the API cannot serve without.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP db.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyProbeTimeout)
		defer cancel()

		checks := map[string]string{}
		healthy := true
		probe := func(name string, p db.Pinger) {
			if p == nil {
				checks[name] = "not configured"
				healthy = false
				return
			}
			if err := p.Ping(ctx); err != nil {
				checks[name] = err.Error()
				healthy = false
				if logg != nil {
					logg.Error(logg.WithFields(ctx, map[string]any{"dependency": name}), "health.ready", err)
				}
				return
			}
			checks[name] = "ok"
		}

		probe("database", dbP)
		probe("redis", redisP)

		w.Header().Set("X-Shopline-Env", cfg.App.Env)
		status := http.StatusOK
		state := "ready"
		if !healthy {
			status = http.StatusServiceUnavailable
			state = "degraded"
		}
		responses.WriteSuccessStatus(w, status, map[string]any{
			"status": state,
			"checks": checks,
		})
	}
}

package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/coutlabs/cout-backend/api/responses"
	"github.com/coutlabs/cout-backend/pkg/config"
	"github.com/coutlabs/cout-backend/pkg/db"
	pkgerrors "github.com/coutlabs/cout-backend/pkg/errors"
	"github.com/coutlabs/cout-backend/pkg/logger"
	"github.com/coutlabs/cout-backend/pkg/redis"
)

const readinessTimeout = 5 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Cout-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings each dependency and reports per-target status.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Cout-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		statuses := map[string]string{}
		healthy := true

		check := func(name string, ping func(context.Context) error) {
			if ping == nil {
				statuses[name] = "skipped"
				return
			}
			if err := ping(ctx); err != nil {
				healthy = false
				statuses[name] = "unreachable"
				if logg != nil {
					logg.Error(ctx, "readiness check failed: "+name, err)
				}
				return
			}
			statuses[name] = "ok"
		}

		if dbP != nil {
			check("database", dbP.Ping)
		} else {
			statuses["database"] = "skipped"
		}
		if redisP != nil {
			check("redis", redisP.Ping)
		} else {
			statuses["redis"] = "skipped"
		}

		if !healthy {
			err := pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(statuses)
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": statuses})
	}
}

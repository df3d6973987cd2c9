package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const healthCheckTimeout = 2 * time.Second

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Healthz reports liveness of the process and its collaborators. A
// failing dependency degrades the status but still answers 200, so
// probes can tell "degraded" from "down".
func Healthz(db *sql.DB, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp := HealthResponse{
			Status: "healthy",
			Checks: map[string]string{},
		}

		if err := db.PingContext(ctx); err != nil {
			resp.Checks["database"] = "error: " + err.Error()
			resp.Status = "degraded"
		} else {
			resp.Checks["database"] = "ok"
		}

		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				resp.Checks["redis"] = "error: " + err.Error()
				resp.Status = "degraded"
			} else {
				resp.Checks["redis"] = "ok"
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

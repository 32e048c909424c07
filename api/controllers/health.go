package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/wxviz-backend/api/responses"
	"github.com/angelmondragon/wxviz-backend/internal/state"
	"github.com/angelmondragon/wxviz-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
	"github.com/angelmondragon/wxviz-backend/pkg/logger"
)

const envHeader = "X-WXViz-Env"

// Pinger is an optional backing service checked on readiness.
type Pinger interface {
	Ping(context.Context) error
}

type countsReader interface {
	Counts() state.Counts
}

type readiness struct {
	Status           string `json:"status"`
	MapboxConfigured bool   `json:"mapbox_configured"`
	ActiveJobs       int    `json:"active_jobs"`
	ActiveSessions   int    `json:"active_sessions"`
	Batches          int    `json:"batches"`
	Files            int    `json:"files"`
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports record counts and whether publishing is configured.
// A nil cache pinger means redis is disabled.
func HealthReady(cfg *config.Config, st countsReader, cache Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		if cache != nil {
			if err := cache.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable"))
				return
			}
		}
		c := st.Counts()
		responses.WriteSuccess(w, readiness{
			Status:           "ready",
			MapboxConfigured: cfg.Mapbox.Configured(),
			ActiveJobs:       c.Visualizations,
			ActiveSessions:   c.Sessions,
			Batches:          c.Batches,
			Files:            c.Files,
		})
	}
}

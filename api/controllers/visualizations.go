package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/wxviz-backend/api/responses"
	"github.com/angelmondragon/wxviz-backend/api/validators"
	"github.com/angelmondragon/wxviz-backend/internal/state"
	"github.com/angelmondragon/wxviz-backend/internal/visualizations"
	"github.com/angelmondragon/wxviz-backend/pkg/logger"
)

// VisualizationService answers visualization, session and tileset queries.
type VisualizationService interface {
	Status(jobID string) (state.Visualization, error)
	WindData(ctx context.Context, sessionID string) (*visualizations.WindData, error)
	Active() visualizations.Active
	Delete(ctx context.Context, jobID string) error
	LoadTileset(ctx context.Context, tilesetID string) (*visualizations.TilesetConfig, error)
	TilesetStatus(ctx context.Context, tilesetID string) (*visualizations.TilesetStatus, error)
}

type loadTilesetRequest struct {
	TilesetID string `json:"tileset_id" validate:"required,tileset_id"`
}

func ActiveVisualizations(svc VisualizationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, svc.Active())
	}
}

func VisualizationStatus(svc VisualizationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.Status(chi.URLParam(r, "jobId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, v)
	}
}

func DeleteVisualization(svc VisualizationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), chi.URLParam(r, "jobId")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, deleteResponse{Success: true, Message: "Visualization deleted"})
	}
}

// SessionWindData serves the animation grid of a session.
func SessionWindData(svc VisualizationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := svc.WindData(r.Context(), chi.URLParam(r, "sessionId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, data)
	}
}

func LoadTileset(svc VisualizationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body loadTilesetRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cfg, err := svc.LoadTileset(r.Context(), body.TilesetID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cfg)
	}
}

func TilesetStatus(svc VisualizationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.TilesetStatus(r.Context(), chi.URLParam(r, "tilesetId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, st)
	}
}

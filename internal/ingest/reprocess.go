package ingest

import (
	"context"
	"fmt"
	"os"

	"github.com/angelmondragon/wxviz-backend/internal/publishing"
	"github.com/angelmondragon/wxviz-backend/internal/state"
	"github.com/angelmondragon/wxviz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
)

// Reprocess re-extracts a stored upload and sends it through publishing again.
// The job keeps its id and tileset id. Only terminal records are reset; a job
// that is still publishing is a STATE_CONFLICT.
func (s *Service) Reprocess(ctx context.Context, jobID string, vizType enums.VisualizationType) (*FileResult, error) {
	vizType = normalizeType(vizType)
	if !vizType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid visualization type %q", vizType))
	}
	file, ok := s.state.File(jobID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "File not found")
	}
	if _, err := os.Stat(file.Path); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "File no longer exists on disk")
	}
	if existing, ok := s.state.Visualization(jobID); ok && !existing.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "File is still being processed")
	}
	ctx = s.logg.WithJobID(ctx, jobID)
	ctx = s.logg.WithBatchID(ctx, file.BatchID)

	res, err := s.extract(file.Path, vizType)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var tilesetID string
	if existing, ok := s.state.Visualization(jobID); ok && existing.TilesetID != "" {
		tilesetID = existing.TilesetID
	}
	if tilesetID == "" {
		tilesetID = s.synth.TilesetID(file.Filename, "", file.BatchID)
	}

	apply := func(v *state.Visualization) {
		v.FilePath = file.Path
		v.TilesetID = tilesetID
		v.Metadata = res.Metadata
		v.WindComponents = res.WindComponents
		v.Bounds = res.Bounds
		v.Center = res.Center
		v.Zoom = res.Zoom
		v.VisualizationType = vizType
		v.RequestedFormat = vizType.RequestedFormat()
		v.ScalarVars = res.ScalarVars
		v.VectorPairs = res.VectorPairs
		v.SessionID = jobID
		v.SourceLayer = ""
		v.RecipeID = ""
		v.PublishJobID = ""
	}
	if _, err := s.state.ResetJob(jobID, apply); err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
		viz := &state.Visualization{
			JobID:     jobID,
			Status:    enums.ProcessingStatusProcessing,
			BatchID:   file.BatchID,
			CreatedAt: now,
		}
		apply(viz)
		s.state.PutJob(nil, viz, nil)
	}
	metadata := res.Metadata
	s.state.UpdateFile(jobID, func(f *state.FileRecord) {
		f.Metadata = &metadata
		f.ProcessingStatus = enums.ProcessingStatusProcessing
		f.Error = ""
	})
	if res.Grid != nil {
		s.state.PutSession(state.Session{
			SessionID: jobID,
			FilePath:  file.Path,
			Grid:      res.Grid,
			Bounds:    res.Bounds,
			Center:    res.Center,
			Zoom:      res.Zoom,
			CreatedAt: now,
			BatchID:   file.BatchID,
		})
	}

	result := &FileResult{
		JobID:             jobID,
		Filename:          file.OriginalFilename,
		Success:           true,
		TilesetID:         tilesetID,
		Metadata:          res.Metadata,
		WindComponents:    res.WindComponents,
		Bounds:            res.Bounds,
		Center:            res.Center,
		Zoom:              res.Zoom,
		VisualizationType: vizType,
		RequestedFormat:   vizType.RequestedFormat(),
		ScalarVars:        res.ScalarVars,
		VectorPairs:       res.VectorPairs,
		Previews:          res.Previews,
		WindStatistics:    res.WindStats,
		BatchID:           file.BatchID,
		Warnings:          res.Warnings,
	}
	if res.Grid != nil {
		result.SessionID = jobID
	}

	s.logg.Info(s.logg.WithField(ctx, "event", "ingest.reprocess"), "reprocessing upload")
	if s.configured {
		result.Message = fmt.Sprintf("Reprocessing file %s...", file.OriginalFilename)
		s.schedule(ctx, publishing.Job{JobID: jobID, FilePath: file.Path, TilesetID: tilesetID, BatchID: file.BatchID})
	} else {
		s.state.CompleteJob(ctx, jobID, state.Completion{})
	}
	if current, ok := s.state.Visualization(jobID); ok {
		result.Status = current.Status
		result.Error = current.Error
	}
	return result, nil
}

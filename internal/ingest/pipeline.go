package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/angelmondragon/wxviz-backend/internal/events"
	"github.com/angelmondragon/wxviz-backend/internal/geodata"
	"github.com/angelmondragon/wxviz-backend/internal/naming"
	"github.com/angelmondragon/wxviz-backend/internal/publishing"
	"github.com/angelmondragon/wxviz-backend/internal/state"
	"github.com/angelmondragon/wxviz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
	"github.com/angelmondragon/wxviz-backend/pkg/storage/gcs"
)

// ErrEncoding is reported when a file opens but its contents cannot be decoded.
const ErrEncoding = "NetCDF file encoding error. The file may be corrupted."

func (s *Service) ingestOne(ctx context.Context, jobID, batchID string, up Upload, opts Options) (*FileResult, error) {
	ctx = s.logg.WithJobID(ctx, jobID)
	safe := naming.SafeFilename(up.Filename)
	stored := naming.StoredFilename(jobID, safe)
	path := filepath.Join(s.uploadDir, stored)

	size, err := Store(path, up.Content, s.maxFileBytes)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"event": "ingest.file_stored",
		"path":  path,
		"size":  size,
	}), "upload stored")

	res, err := s.extract(path, opts.VisualizationType)
	if err != nil {
		s.removeQuietly(ctx, path)
		return nil, err
	}

	now := s.now()
	tilesetID := s.synth.TilesetID(stored, opts.TilesetName, batchID)
	viz := &state.Visualization{
		JobID:             jobID,
		FilePath:          path,
		TilesetID:         tilesetID,
		Metadata:          res.Metadata,
		WindComponents:    res.WindComponents,
		Bounds:            res.Bounds,
		Center:            res.Center,
		Zoom:              res.Zoom,
		VisualizationType: opts.VisualizationType,
		RequestedFormat:   opts.VisualizationType.RequestedFormat(),
		Status:            enums.ProcessingStatusProcessing,
		BatchID:           batchID,
		ScalarVars:        res.ScalarVars,
		VectorPairs:       res.VectorPairs,
		SessionID:         jobID,
		CreatedAt:         now,
	}
	metadata := res.Metadata
	file := &state.FileRecord{
		JobID:            jobID,
		Filename:         stored,
		OriginalFilename: up.Filename,
		Size:             size,
		Path:             path,
		UploadedAt:       now,
		Status:           state.FileStatusActive,
		ProcessingStatus: enums.ProcessingStatusProcessing,
		BatchID:          batchID,
		Metadata:         &metadata,
		TilesetID:        tilesetID,
	}
	var session *state.Session
	if res.Grid != nil {
		session = &state.Session{
			SessionID: jobID,
			FilePath:  path,
			Grid:      res.Grid,
			Bounds:    res.Bounds,
			Center:    res.Center,
			Zoom:      res.Zoom,
			CreatedAt: now,
			BatchID:   batchID,
		}
	}
	s.state.PutJob(file, viz, session)

	result := &FileResult{
		JobID:             jobID,
		Filename:          up.Filename,
		Success:           true,
		TilesetID:         tilesetID,
		Metadata:          res.Metadata,
		WindComponents:    res.WindComponents,
		Bounds:            res.Bounds,
		Center:            res.Center,
		Zoom:              res.Zoom,
		VisualizationType: opts.VisualizationType,
		RequestedFormat:   viz.RequestedFormat,
		ScalarVars:        res.ScalarVars,
		VectorPairs:       res.VectorPairs,
		Previews:          res.Previews,
		WindStatistics:    res.WindStats,
		BatchID:           batchID,
		Warnings:          res.Warnings,
	}
	if session != nil {
		result.SessionID = jobID
	}

	if batchID != "" {
		s.state.RecordBatchFile(batchID, state.BatchFile{
			JobID:     jobID,
			Filename:  up.Filename,
			Success:   true,
			Status:    enums.ProcessingStatusProcessing,
			TilesetID: tilesetID,
		})
	}

	s.emit(ctx, jobID, batchID, tilesetID, viz.RequestedFormat)

	if opts.CreateTileset && s.configured {
		result.Message = fmt.Sprintf("File %s uploaded successfully. Creating Mapbox tileset...", up.Filename)
		s.schedule(ctx, publishing.Job{JobID: jobID, FilePath: path, TilesetID: tilesetID, BatchID: batchID})
	} else {
		s.state.CompleteJob(ctx, jobID, state.Completion{})
		result.Message = fmt.Sprintf("File %s uploaded successfully.", up.Filename)
	}
	s.mirror(ctx, jobID, safe, path)

	if current, ok := s.state.Visualization(jobID); ok {
		result.Status = current.Status
		result.Error = current.Error
	}
	return result, nil
}

// Store writes content to path, enforcing maxBytes on the bytes actually read.
// Nothing is left on disk when it fails.
func Store(path string, content io.Reader, maxBytes int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create upload dir")
	}
	out, err := os.Create(path)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create upload file")
	}
	written, copyErr := io.Copy(out, io.LimitReader(content, maxBytes+1))
	closeErr := out.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(path)
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, copyErr, "write upload file")
	}
	if err := naming.ValidateFileSize(written, maxBytes); err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return written, nil
}

func (s *Service) extract(path string, vizType enums.VisualizationType) (*geodata.Result, error) {
	ds, err := s.opener.Open(path)
	if err != nil {
		return nil, classifyOpenError(err)
	}
	if ds == nil {
		return nil, pkgerrors.New(pkgerrors.CodeExtraction, publishing.ErrUnreadableFile)
	}
	defer func() { _ = ds.Close() }()
	return geodata.Extract(ds, geodata.Options{VisualizationType: vizType, PreviewVars: previewVars})
}

func classifyOpenError(err error) error {
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "decode") || strings.Contains(lower, "encoding") {
		return pkgerrors.Wrap(pkgerrors.CodeExtraction, err, ErrEncoding)
	}
	return pkgerrors.Wrap(pkgerrors.CodeExtraction, err, publishing.ErrUnreadableFile)
}

// schedule queues publishing. A rejected submission fails the job at once so
// it never stays processing.
func (s *Service) schedule(ctx context.Context, job publishing.Job) {
	err := s.pool.Submit("publish:"+job.JobID, func(taskCtx context.Context) {
		s.publisher.Publish(taskCtx, job)
	})
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "event", "ingest.schedule_failed"), "could not schedule publishing", err)
		s.state.FailJob(ctx, job.JobID, pkgerrors.MessageOf(err))
	}
}

// mirror copies the stored upload to the archive bucket in the background.
func (s *Service) mirror(ctx context.Context, jobID, safe, path string) {
	if s.archive == nil {
		return
	}
	object := gcs.ArchiveObjectName(jobID, safe)
	logCtx := s.logg.WithFields(ctx, map[string]any{"event": "ingest.archive", "object": object})
	err := s.pool.Submit("archive:"+jobID, func(taskCtx context.Context) {
		if err := s.archive.UploadFile(taskCtx, object, path); err != nil {
			s.logg.Error(logCtx, "archive upload failed", err)
			return
		}
		s.logg.Info(logCtx, "upload archived")
	})
	if err != nil {
		s.logg.Warn(logCtx, "archive upload skipped: "+pkgerrors.MessageOf(err))
	}
}

func (s *Service) emit(ctx context.Context, jobID, batchID, tilesetID string, format enums.TilesetFormat) {
	if s.events == nil {
		return
	}
	s.events.EmitLogged(ctx, events.Event{
		Type:      events.TypeUploadAccepted,
		JobID:     jobID,
		BatchID:   batchID,
		TilesetID: tilesetID,
		Format:    string(format),
		Status:    string(enums.ProcessingStatusProcessing),
	})
}

func (s *Service) removeQuietly(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logg.Error(s.logg.WithField(ctx, "event", "ingest.cleanup_failed"), "failed to remove upload", err)
	}
}

package controllers

import (
	"context"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/wxviz-backend/api/responses"
	"github.com/angelmondragon/wxviz-backend/api/validators"
	"github.com/angelmondragon/wxviz-backend/internal/ingest"
	"github.com/angelmondragon/wxviz-backend/internal/state"
	"github.com/angelmondragon/wxviz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
	"github.com/angelmondragon/wxviz-backend/pkg/logger"
)

const (
	formFile              = "file"
	formFiles             = "files"
	formCreateTileset     = "create_tileset"
	formTilesetName       = "tileset_name"
	formTilesetNames      = "tileset_names"
	formVisualizationType = "visualization_type"

	maxNameLen = 256
	// multipart framing around the file payload
	formOverhead = 1 << 20
)

// UploadService ingests uploads and reprocesses stored ones.
type UploadService interface {
	Ingest(ctx context.Context, up ingest.Upload, opts ingest.Options) (*ingest.FileResult, error)
	IngestBatch(ctx context.Context, uploads []ingest.Upload, opts ingest.BatchOptions) (*state.Batch, error)
	Reprocess(ctx context.Context, jobID string, vizType enums.VisualizationType) (*ingest.FileResult, error)
}

// UploadLimits bound the request body size before parsing.
type UploadLimits struct {
	MaxFileBytes int64
	MaxBatchSize int
}

func (l UploadLimits) single() int64 {
	return l.MaxFileBytes + formOverhead
}

func (l UploadLimits) batch() int64 {
	return l.MaxFileBytes*int64(l.MaxBatchSize) + formOverhead
}

// UploadFile handles a single NetCDF upload.
func UploadFile(svc UploadService, limits UploadLimits, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := validators.ParseMultipart(w, r, limits.single()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		fh, err := validators.FormFile(r, formFile)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		create, err := validators.FormBool(r, formCreateTileset, true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		f, err := fh.Open()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "File is empty"))
			return
		}
		defer func() { _ = f.Close() }()

		res, err := svc.Ingest(r.Context(), ingest.Upload{Filename: fh.Filename, Size: fh.Size, Content: f}, ingest.Options{
			CreateTileset:     create,
			TilesetName:       validators.FormString(r, formTilesetName, maxNameLen),
			VisualizationType: enums.VisualizationType(validators.FormString(r, formVisualizationType, maxNameLen)),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

// UploadBatch handles a multi file upload. Per file failures are part of
// the returned batch.
func UploadBatch(svc UploadService, limits UploadLimits, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := validators.ParseMultipart(w, r, limits.batch()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		headers := validators.FormFiles(r, formFiles)
		if len(headers) == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "No files provided"))
			return
		}
		create, err := validators.FormBool(r, formCreateTileset, true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		uploads, closeAll, err := openUploads(headers)
		defer closeAll()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		batch, err := svc.IngestBatch(r.Context(), uploads, ingest.BatchOptions{
			CreateTileset:     create,
			TilesetNames:      r.FormValue(formTilesetNames),
			VisualizationType: enums.VisualizationType(validators.FormString(r, formVisualizationType, maxNameLen)),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, batch)
	}
}

func openUploads(headers []*multipart.FileHeader) ([]ingest.Upload, func(), error) {
	opened := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	uploads := make([]ingest.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fh.Filename+": File is empty")
		}
		opened = append(opened, f)
		uploads = append(uploads, ingest.Upload{Filename: fh.Filename, Size: fh.Size, Content: f})
	}
	return uploads, closeAll, nil
}

// BatchReader derives batch status on read.
type BatchReader interface {
	BatchStatus(batchID string) (state.Batch, error)
}

func BatchStatus(st BatchReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batch, err := st.BatchStatus(chi.URLParam(r, "batchId"))
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				err = pkgerrors.New(pkgerrors.CodeNotFound, "Batch not found")
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, batch)
	}
}

// ReprocessFile extracts a stored upload again and republishes it.
func ReprocessFile(svc UploadService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vizType := validators.ParseQueryString(r, formVisualizationType, maxNameLen)
		res, err := svc.Reprocess(r.Context(), chi.URLParam(r, "fileId"), enums.VisualizationType(vizType))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/wxviz-backend/api/responses"
	"github.com/angelmondragon/wxviz-backend/api/validators"
	"github.com/angelmondragon/wxviz-backend/internal/datasets"
	"github.com/angelmondragon/wxviz-backend/internal/ingest"
	"github.com/angelmondragon/wxviz-backend/internal/state"
	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
	"github.com/angelmondragon/wxviz-backend/pkg/logger"
	"github.com/angelmondragon/wxviz-backend/pkg/mapbox"
)

const (
	formDatasetName = "dataset_name"
	formBatchID     = "batch_id"

	maxBatchIDLen = 64
)

// DatasetService uploads files as remote datasets and manages them.
type DatasetService interface {
	Upload(ctx context.Context, up ingest.Upload, opts datasets.UploadOptions) (*datasets.UploadResult, error)
	Status(jobID string) (state.Dataset, error)
	List(ctx context.Context) (*datasets.ListResult, error)
	Info(ctx context.Context, datasetID string) (*mapbox.Dataset, error)
	Delete(ctx context.Context, datasetID string) error
}

// UploadDataset stores the file and answers 202 while creation runs.
func UploadDataset(svc DatasetService, limits UploadLimits, logg *logger.Logger) http.HandlerFunc {
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
		f, err := fh.Open()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "File is empty"))
			return
		}
		defer func() { _ = f.Close() }()

		res, err := svc.Upload(r.Context(), ingest.Upload{Filename: fh.Filename, Size: fh.Size, Content: f},
			datasets.UploadOptions{
				Name:    validators.FormString(r, formDatasetName, maxNameLen),
				BatchID: validators.FormString(r, formBatchID, maxBatchIDLen),
			})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, res)
	}
}

func DatasetJobStatus(svc DatasetService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds, err := svc.Status(chi.URLParam(r, "jobId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ds)
	}
}

func ListDatasets(svc DatasetService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

func DatasetInfo(svc DatasetService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := svc.Info(r.Context(), chi.URLParam(r, "datasetId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, info)
	}
}

func DeleteDataset(svc DatasetService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), chi.URLParam(r, "datasetId")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, deleteResponse{Success: true, Message: "Dataset deleted successfully"})
	}
}

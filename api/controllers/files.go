package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/wxviz-backend/api/responses"
	"github.com/angelmondragon/wxviz-backend/api/validators"
	"github.com/angelmondragon/wxviz-backend/internal/files"
	"github.com/angelmondragon/wxviz-backend/pkg/logger"
)

const maxQueryLen = 128

// FileService is the query and delete surface over stored uploads.
type FileService interface {
	List(ctx context.Context, p files.ListParams) (*files.ListResult, error)
	Details(jobID string) (*files.Details, error)
	Delete(ctx context.Context, jobID string) error
	DeleteMany(ctx context.Context, jobIDs []string) *files.DeleteManyResult
	Download(jobID string) (*files.Download, error)
	DeleteBatch(ctx context.Context, batchID string) (*files.BatchDeleteResult, error)
}

type deleteFilesRequest struct {
	FileIDs []string `json:"file_ids" validate:"required,min=1,dive,required"`
}

type deleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	FileID  string `json:"file_id,omitempty"`
}

// ListFiles lists uploads, newest first unless asked otherwise.
func ListFiles(svc FileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sortBy, err := validators.ParseQueryEnum(r, "sort_by", files.SortByFilename, files.SortBySize, files.SortByUploadDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := validators.ParseQueryEnum(r, "sort_order", "asc", "desc")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if sortBy == "" {
			sortBy = files.SortByUploadDate
		}
		if order == "" {
			order = "desc"
		}

		res, err := svc.List(r.Context(), files.ListParams{
			Search:    validators.ParseQueryString(r, "search", maxQueryLen),
			Status:    validators.ParseQueryString(r, "status", maxQueryLen),
			SortBy:    sortBy,
			SortOrder: order,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

func FileDetails(svc FileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := svc.Details(chi.URLParam(r, "fileId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, d)
	}
}

func DeleteFile(svc FileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "fileId")
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, deleteResponse{Success: true, Message: "File deleted successfully", FileID: id})
	}
}

// DeleteFiles deletes every id in the body independently.
func DeleteFiles(svc FileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body deleteFilesRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, svc.DeleteMany(r.Context(), body.FileIDs))
	}
}

func DownloadFile(svc FileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := svc.Download(chi.URLParam(r, "fileId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteFile(w, r, d.Path, d.Filename, d.ContentType)
	}
}

func DeleteBatch(svc FileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.DeleteBatch(r.Context(), chi.URLParam(r, "batchId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

package files

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/angelmondragon/wxviz-backend/internal/geodata"
	"github.com/angelmondragon/wxviz-backend/internal/naming"
	"github.com/angelmondragon/wxviz-backend/internal/state"
	"github.com/angelmondragon/wxviz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
	"github.com/angelmondragon/wxviz-backend/pkg/logger"
	"go.uber.org/multierr"
)

const (
	ErrFileNotFound = "File not found"
	ErrFileMissing  = "File no longer exists on disk"

	ContentTypeNetCDF = "application/x-netcdf"

	netcdfExt = ".nc"
	statusAll = "all"
)

// Sort keys accepted by List.
const (
	SortByFilename   = "filename"
	SortBySize       = "size"
	SortByUploadDate = "upload_date"
)

// ListParams filter and order a file listing. Empty fields are ignored.
type ListParams struct {
	Search    string
	Status    string
	SortBy    string
	SortOrder string
}

// File is a file record with its display helpers.
type File struct {
	state.FileRecord
	SizeDisplay     string `json:"size_display"`
	MetadataSummary string `json:"metadata_summary"`
}

// ListResult is a filtered file listing.
type ListResult struct {
	Success bool   `json:"success"`
	Files   []File `json:"files"`
	Total   int    `json:"total"`
}

// VisualizationInfo is the publishing side of a file shown on its details.
type VisualizationInfo struct {
	TilesetID      string                    `json:"tileset_id"`
	MapboxTileset  string                    `json:"mapbox_tileset,omitempty"`
	TilesetDisplay string                    `json:"tileset_display,omitempty"`
	Format         enums.TilesetFormat       `json:"format,omitempty"`
	Status         enums.ProcessingStatus    `json:"status"`
	WindComponents *geodata.VectorComponents `json:"wind_components,omitempty"`
	Bounds         *geodata.Bounds           `json:"bounds,omitempty"`
	Center         *geodata.Center           `json:"center,omitempty"`
	CenterDisplay  string                    `json:"center_display,omitempty"`
	Zoom           *int                      `json:"zoom,omitempty"`
}

// Details is a file with its visualization, when one exists.
type Details struct {
	File
	VisualizationInfo *VisualizationInfo `json:"visualization_info,omitempty"`
}

// DeleteError reports one id a multi delete could not remove.
type DeleteError struct {
	FileID string `json:"file_id"`
	Error  string `json:"error"`
}

// DeleteManyResult summarises a multi delete.
type DeleteManyResult struct {
	Success bool          `json:"success"`
	Deleted []string      `json:"deleted"`
	Errors  []DeleteError `json:"errors"`
	Message string        `json:"message"`
}

// BatchDeleteResult summarises a batch delete.
type BatchDeleteResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	DeletedCount int    `json:"deleted_count"`
}

// Download locates the original upload of a job.
type Download struct {
	Path        string
	Filename    string
	ContentType string
}

// Service is the query and delete surface over stored uploads.
type Service struct {
	logg      *logger.Logger
	state     *state.Manager
	cleaner   *Cleaner
	uploadDir string
}

func NewService(logg *logger.Logger, st *state.Manager, cleaner *Cleaner, uploadDir string) (*Service, error) {
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if st == nil {
		return nil, errors.New("state manager is required")
	}
	if cleaner == nil {
		return nil, errors.New("cleaner is required")
	}
	if strings.TrimSpace(uploadDir) == "" {
		return nil, errors.New("upload dir is required")
	}
	return &Service{logg: logg, state: st, cleaner: cleaner, uploadDir: uploadDir}, nil
}

// LoadFromDisk reconciles the file table with the NetCDF uploads present in
// the upload directory.
func (s *Service) LoadFromDisk(ctx context.Context) error {
	entries, err := os.ReadDir(s.uploadDir)
	if err != nil && !os.IsNotExist(err) {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list upload dir")
	}
	found := make(map[string]state.FileRecord, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, netcdfExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stem := strings.TrimSuffix(name, netcdfExt)
		jobID := naming.JobIDFromStem(stem)
		original := strings.TrimPrefix(stem, jobID+"_")
		found[jobID] = state.FileRecord{
			JobID:            jobID,
			Filename:         name,
			OriginalFilename: original + netcdfExt,
			Size:             info.Size(),
			Path:             filepath.Join(s.uploadDir, name),
			UploadedAt:       info.ModTime().UTC(),
		}
	}
	added, dropped := s.state.ReconcileFiles(found)
	if added > 0 || dropped > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event":   "files.reconciled",
			"added":   added,
			"dropped": dropped,
		}), "file table reconciled with upload dir")
	}
	return nil
}

// List reconciles with disk, then applies search, status filter and sort.
func (s *Service) List(ctx context.Context, p ListParams) (*ListResult, error) {
	if err := s.LoadFromDisk(ctx); err != nil {
		return nil, err
	}
	records := s.state.Files()

	search := strings.ToLower(strings.TrimSpace(p.Search))
	status := strings.TrimSpace(p.Status)
	out := make([]File, 0, len(records))
	for _, rec := range records {
		if search != "" && !strings.Contains(strings.ToLower(rec.OriginalFilename), search) {
			continue
		}
		if status != "" && status != statusAll && string(rec.ProcessingStatus) != status {
			continue
		}
		out = append(out, view(rec))
	}
	sortFiles(out, p.SortBy, strings.EqualFold(p.SortOrder, "desc"))
	return &ListResult{Success: true, Files: out, Total: len(out)}, nil
}

func sortFiles(files []File, sortBy string, desc bool) {
	var less func(a, b File) bool
	switch sortBy {
	case SortByFilename:
		less = func(a, b File) bool { return a.OriginalFilename < b.OriginalFilename }
	case SortBySize:
		less = func(a, b File) bool { return a.Size < b.Size }
	case SortByUploadDate:
		less = func(a, b File) bool { return a.UploadedAt.Before(b.UploadedAt) }
	default:
		return
	}
	sort.SliceStable(files, func(i, j int) bool {
		if desc {
			return less(files[j], files[i])
		}
		return less(files[i], files[j])
	})
}

// Details returns a file and its visualization info.
func (s *Service) Details(jobID string) (*Details, error) {
	rec, ok := s.state.File(jobID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, ErrFileNotFound)
	}
	d := &Details{File: view(rec)}
	if v, ok := s.state.Visualization(jobID); ok {
		info := &VisualizationInfo{
			TilesetID:      v.TilesetID,
			MapboxTileset:  v.MapboxTileset,
			TilesetDisplay: FormatTilesetID(v.MapboxTileset),
			Format:         v.Format,
			Status:         v.Status,
			WindComponents: v.WindComponents,
			Bounds:         v.Bounds,
			Center:         v.Center,
			Zoom:           v.Zoom,
		}
		if v.Center != nil {
			info.CenterDisplay = FormatCoordinates(v.Center.Lat(), v.Center.Lon())
		}
		d.VisualizationInfo = info
	}
	return d, nil
}

// Delete cascades the removal of one uploaded file.
func (s *Service) Delete(ctx context.Context, jobID string) error {
	if _, ok := s.state.File(jobID); !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, ErrFileNotFound)
	}
	if _, err := s.cleaner.RemoveJob(ctx, jobID); err != nil {
		return err
	}
	return nil
}

// DeleteMany deletes each id independently and reports the ones that failed.
func (s *Service) DeleteMany(ctx context.Context, jobIDs []string) *DeleteManyResult {
	res := &DeleteManyResult{Deleted: []string{}, Errors: []DeleteError{}}
	var errs error
	for _, id := range jobIDs {
		if err := s.Delete(ctx, id); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", id, err))
			res.Errors = append(res.Errors, DeleteError{FileID: id, Error: pkgerrors.MessageOf(err)})
			continue
		}
		res.Deleted = append(res.Deleted, id)
	}
	if errs != nil {
		s.logg.Warn(s.logg.WithField(ctx, "event", "files.delete_many_partial"), errs.Error())
	}
	res.Success = len(res.Deleted) > 0
	res.Message = fmt.Sprintf("Deleted %d files, %d errors", len(res.Deleted), len(res.Errors))
	return res
}

// Download returns the on-disk location and client name of an upload.
func (s *Service) Download(jobID string) (*Download, error) {
	rec, ok := s.state.File(jobID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, ErrFileNotFound)
	}
	if _, err := os.Stat(rec.Path); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, ErrFileMissing)
	}
	name := rec.OriginalFilename
	if name == "" {
		name = rec.Filename
	}
	return &Download{Path: rec.Path, Filename: name, ContentType: ContentTypeNetCDF}, nil
}

// DeleteBatch removes a batch and every visualization it produced.
func (s *Service) DeleteBatch(ctx context.Context, batchID string) (*BatchDeleteResult, error) {
	n, err := s.cleaner.RemoveBatch(ctx, batchID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Batch not found")
		}
		return nil, err
	}
	return &BatchDeleteResult{
		Success:      true,
		Message:      fmt.Sprintf("Batch deleted. Removed %d visualizations.", n),
		DeletedCount: n,
	}, nil
}

func view(rec state.FileRecord) File {
	return File{
		FileRecord:      rec,
		SizeDisplay:     FormatFileSize(rec.Size),
		MetadataSummary: MetadataSummary(rec.Metadata),
	}
}

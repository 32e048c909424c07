package validators

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
)

// multipartMemory is how much of a form stays in memory before parts spill
// to temp files.
const multipartMemory = 32 << 20

// ParseMultipart parses a multipart/form-data body capped at maxBytes.
// Callers should defer r.MultipartForm.RemoveAll().
func ParseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pkgerrors.New(pkgerrors.CodeValidation, "File too large").
				WithDetails(map[string]any{"max_bytes": tooLarge.Limit})
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form")
	}
	return nil
}

// FormFile returns the single file under key.
func FormFile(r *http.Request, key string) (*multipart.FileHeader, error) {
	files := FormFiles(r, key)
	if len(files) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "No file provided").WithDetails(map[string]any{"field": key})
	}
	return files[0], nil
}

// FormFiles returns every file under key, or nil.
func FormFiles(r *http.Request, key string) []*multipart.FileHeader {
	if r.MultipartForm == nil || r.MultipartForm.File == nil {
		return nil
	}
	return r.MultipartForm.File[key]
}

// FormString returns the trimmed form value, capped at maxLen.
func FormString(r *http.Request, key string, maxLen int) string {
	return SanitizeString(r.FormValue(key), maxLen)
}

// FormBool parses a boolean form field. Missing fields yield defaultVal.
func FormBool(r *http.Request, key string, defaultVal bool) (bool, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "form field must be a boolean").WithDetails(map[string]any{"field": key})
	}
	return v, nil
}

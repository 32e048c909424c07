package naming

import (
	"fmt"
	"regexp"
	"strings"

	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
)

const (
	netcdfExtension   = ".nc"
	maxFilenameLength = 255
)

var (
	forbiddenFilenameParts = []string{"/", "\\", "..", "~", "|", ">", "<", ":", "*", "?", "\""}
	tilesetNamePattern     = regexp.MustCompile(`^[a-z0-9\-_]+$`)
)

// ValidateFilename checks an uploaded NetCDF filename.
func ValidateFilename(filename string) error {
	if !strings.HasSuffix(filename, netcdfExtension) {
		return pkgerrors.New(pkgerrors.CodeValidation, "Only NetCDF (.nc) files are allowed")
	}
	for _, part := range forbiddenFilenameParts {
		if strings.Contains(filename, part) {
			return pkgerrors.New(pkgerrors.CodeValidation, "Filename contains invalid characters")
		}
	}
	if len(filename) > maxFilenameLength {
		return pkgerrors.New(pkgerrors.CodeValidation, "Filename is too long (max 255 characters)")
	}
	return nil
}

// ValidateTilesetName checks a user supplied tileset name. Empty names are allowed.
func ValidateTilesetName(name string) error {
	if name == "" {
		return nil
	}
	if len(name) > maxTilesetIDLength {
		return pkgerrors.New(pkgerrors.CodeValidation, "Tileset name must be 32 characters or less")
	}
	if !tilesetNamePattern.MatchString(strings.ToLower(name)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "Tileset name can only contain lowercase letters, numbers, hyphens, and underscores")
	}
	return nil
}

// ValidateBatchSize checks the number of files in a batch upload.
func ValidateBatchSize(count, max int) error {
	if count > max {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("Too many files. Maximum batch size is %d", max))
	}
	if count == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "No files provided")
	}
	return nil
}

// ValidateFileSize checks size against max bytes.
func ValidateFileSize(size, max int64) error {
	if size > max {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("File too large. Maximum size is %dMB", max/1024/1024))
	}
	if size == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "File is empty")
	}
	return nil
}

package util

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrInvalidFileName indicates the provided file name cannot be stored safely.
var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName strips path components and rejects names that would
// escape the storage namespace.
func SanitizeFileName(name string) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", ErrInvalidFileName
	}
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, base)
	if strings.TrimSpace(cleaned) == "" {
		return "", ErrInvalidFileName
	}
	return cleaned, nil
}

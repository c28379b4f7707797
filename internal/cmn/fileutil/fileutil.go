// Package fileutil provides small filesystem helpers shared across packages.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// FileExists returns true if the file exists.
func FileExists(file string) bool {
	_, err := os.Stat(file)
	return err == nil
}

// IsDir returns true if the path exists and is a directory.
func IsDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// IsFileNonEmpty returns true if the path exists, is a regular file, and has
// a size greater than zero.
func IsFileNonEmpty(file string) bool {
	fi, err := os.Stat(file)
	return err == nil && fi.Mode().IsRegular() && fi.Size() > 0
}

// OpenOrCreateFile opens the file for appending, creating it (and its parent
// directory) if necessary. The file is opened with O_SYNC so that concurrent
// appenders produce atomic writes.
func OpenOrCreateFile(file string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(file), 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", file, err)
	}
	return os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY|os.O_SYNC, 0600)
}

// ResolvePath expands a leading ~ and environment variables and returns the
// absolute form of the path.
func ResolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is empty")
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(os.ExpandEnv(path))
}

var unsafeNameChars = regexp.MustCompile(`[^0-9a-zA-Z_.-]`)

// SafeName converts an arbitrary string into a name usable as a file or
// directory component. Unsafe characters are replaced with underscores.
func SafeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// TruncString truncates val to at most max bytes.
func TruncString(val string, max int) string {
	if len(val) <= max {
		return val
	}
	return val[:max]
}

package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
)

// IsTerminal reports whether the given file descriptor is attached to a
// terminal (including Cygwin/MSYS pseudo-terminals on Windows).
func IsTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// EnsureFilepathExists creates the directory for a given file path if it does
// not exist yet. The caller is expected to log failures.
func EnsureFilepathExists(filePath string) error {
	dir := filepath.Dir(filePath)
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Package files has small filesystem helpers shared by the hub cache.
package files

import "os"

// Exists reports whether the path exists (as a file or directory).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether the path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

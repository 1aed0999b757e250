// Package local implements a local filesystem blob store.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore writes snapshots to the local filesystem.
type BlobStore struct {
	baseDir string
}

// New creates a filesystem-backed blob store rooted at baseDir.
func New(baseDir string) (*BlobStore, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(baseDir)
	switch {
	case err != nil && os.IsNotExist(err):
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}
	return &BlobStore{baseDir: baseDir}, nil
}

// PutObject writes data to a file under the base directory and returns a
// file:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data []byte) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}

	fullPath := filepath.Join(s.baseDir, path)

	// Reject anything escaping the base directory.
	cleanBase := filepath.Clean(s.baseDir)
	cleanFull := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFull, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return fmt.Sprintf("file://%s", fullPath), nil
}

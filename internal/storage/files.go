package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"page-loader/pkg/types"
)

const (
	dirMode  = 0o755
	fileMode = 0o644
)

// FileStore writes mirrored pages and resources to the local filesystem.
type FileStore struct{}

// NewFileStore constructs a filesystem-backed store.
func NewFileStore() *FileStore {
	return &FileStore{}
}

// CheckDir verifies that dir exists, is a directory, and accepts new files.
func (s *FileStore) CheckDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return &types.ValidationError{Field: "output", Message: "output directory must be provided"}
	}
	info, err := os.Stat(dir)
	if err != nil {
		return &types.ValidationError{
			Field:   "output",
			Message: fmt.Sprintf("output directory %s is not accessible: %s", dir, describe(err)),
		}
	}
	if !info.IsDir() {
		return &types.ValidationError{Field: "output", Message: fmt.Sprintf("output path %s is not a directory", dir)}
	}
	probe, err := os.CreateTemp(dir, ".page-loader-*")
	if err != nil {
		return &types.ValidationError{
			Field:   "output",
			Message: fmt.Sprintf("output directory %s is not writable: %s", dir, describe(err)),
		}
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

// EnsureDir creates dir and any missing parents.
func (s *FileStore) EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return wrap("create directory", dir, err)
	}
	return nil
}

// Write stores data as dir/name, creating dir when needed, and returns the full path.
func (s *FileStore) Write(ctx context.Context, dir, name string, data []byte) (string, error) {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
	}
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", &types.ValidationError{Field: "file", Message: fmt.Sprintf("invalid file name %q", name)}
	}
	if err := s.EnsureDir(dir); err != nil {
		return "", err
	}
	fullPath := filepath.Join(dir, name)
	if err := os.WriteFile(fullPath, data, fileMode); err != nil {
		return "", wrap("write file", fullPath, err)
	}
	return fullPath, nil
}

func wrap(op, path string, err error) *types.FilesystemError {
	return &types.FilesystemError{Op: op, Path: path, Kind: classify(err), Cause: err}
}

func classify(err error) types.FilesystemErrorKind {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return types.FSPermission
	case errors.Is(err, fs.ErrNotExist):
		return types.FSNotFound
	default:
		return types.FSOther
	}
}

func describe(err error) string {
	switch classify(err) {
	case types.FSPermission:
		return "permission denied"
	case types.FSNotFound:
		return "no such directory"
	default:
		return err.Error()
	}
}

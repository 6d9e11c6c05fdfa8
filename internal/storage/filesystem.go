package storage

import (
	"context"
	"fmt"
	"os"
)

// FilesystemKeySource reads a PEM private key from local disk.
type FilesystemKeySource struct {
	path string
}

func NewFilesystemKeySource(path string) (*FilesystemKeySource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat key file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("key path %s is a directory", path)
	}

	return &FilesystemKeySource{
		path: path,
	}, nil
}

func (f *FilesystemKeySource) LoadSigningKey(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("key file not found: %w", err)
		}
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	return data, nil
}

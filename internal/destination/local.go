package destination

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
)

// LocalStore mirrors backups into directories on the local filesystem.
// Container IDs are slash-separated paths relative to the base path; the
// empty ID is the base path itself. A configured root ID names a
// subdirectory of the base and is created on first use.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates a new local store
func NewLocalStore(basePath string) *LocalStore {
	return &LocalStore{
		basePath: basePath,
	}
}

// FindOrCreateContainer creates a directory under parentID unless it exists
func (ls *LocalStore) FindOrCreateContainer(ctx context.Context, name, parentID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := checkContainerID(parentID); err != nil {
		return "", err
	}
	if err := os.MkdirAll(ls.resolve(parentID), 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	id := path.Join(parentID, safeName(name))
	dirPath := ls.resolve(id)

	info, err := os.Stat(dirPath)
	if err == nil {
		if !info.IsDir() {
			return "", fmt.Errorf("failed to create folder '%s': a file with that name exists", name)
		}
		return id, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check folder '%s': %w", name, err)
	}

	if err := os.Mkdir(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create folder '%s': %w", name, err)
	}

	log.Printf("[LocalDest] Created folder %s", dirPath)
	return id, nil
}

// Upload writes an artifact into the parent directory
func (ls *LocalStore) Upload(ctx context.Context, parentID, name string, reader io.Reader, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := checkContainerID(parentID); err != nil {
		return "", err
	}

	id := path.Join(parentID, safeName(name))
	destPath := ls.resolve(id)

	file, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}

	written, err := io.Copy(file, reader)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(destPath) // Cleanup on error
		return "", fmt.Errorf("failed to write backup file: %w", err)
	}

	log.Printf("[LocalDest] Wrote %s (%d bytes, %s)", destPath, written, contentType)
	return id, nil
}

// Type returns the destination type
func (ls *LocalStore) Type() string {
	return TypeLocal
}

// Close is a no-op for the local store
func (ls *LocalStore) Close() error {
	return nil
}

func (ls *LocalStore) resolve(id string) string {
	return filepath.Join(ls.basePath, filepath.FromSlash(id))
}

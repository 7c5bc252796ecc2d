// Package destination holds the storage backends a backup mirrors into.
// Every backend exposes the same two operations: resolve-or-create a
// container under a parent container, and upload an artifact into one.
package destination

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Store is a backup destination organised as nested containers.
type Store interface {
	// FindOrCreateContainer returns the ID of the container called name
	// directly under parentID, creating it when no exact, case-sensitive
	// match exists. Calling it twice with the same arguments returns the
	// same ID.
	FindOrCreateContainer(ctx context.Context, name, parentID string) (string, error)

	// Upload writes an artifact into the container parentID and returns
	// the new artifact's ID.
	Upload(ctx context.Context, parentID, name string, reader io.Reader, contentType string) (string, error)

	// Type returns the destination type identifier
	Type() string

	// Close releases connections held by the store
	Close() error
}

var (
	// ErrUnsupportedType is returned by New for an unknown destination type.
	ErrUnsupportedType = errors.New("unsupported destination type")

	// ErrOutsideBase is returned when a container ID would resolve outside
	// the base path of a filesystem-like destination.
	ErrOutsideBase = errors.New("container is outside the destination base path")
)

const (
	TypeDrive = "drive"
	TypeLocal = "local"
	TypeS3    = "s3"
	TypeSFTP  = "sftp"
)

// Config contains configuration for a backup destination
type Config struct {
	Type string // "drive", "local", "sftp", "s3"
	Path string // Base path for filesystem-like destinations

	// Drive specific
	CredentialsFile string
	DriveEndpoint   string // Optional, overrides the Drive API endpoint

	// SFTP specific
	SFTPHost          string
	SFTPPort          int
	SFTPUsername      string
	SFTPPassword      string
	SFTPKeyPath       string
	SFTPKeyPassphrase string
	KnownHostsPath    string
	TrustOnFirstUse   bool

	// S3 specific
	S3Bucket    string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string // Optional, for S3-compatible storage
}

// New creates a store based on config
func New(ctx context.Context, config *Config) (Store, error) {
	switch config.Type {
	case TypeDrive, "":
		return NewDriveStore(ctx, config)
	case TypeLocal:
		return NewLocalStore(config.Path), nil
	case TypeSFTP:
		return NewSFTPStore(config)
	case TypeS3:
		return NewS3Store(config)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, config.Type)
	}
}

var nameReplacer = strings.NewReplacer("/", "_", "\\", "_", "\x00", "")

// safeName makes a container or artifact name usable as a single path
// segment on filesystem-like destinations.
func safeName(name string) string {
	cleaned := strings.TrimSpace(nameReplacer.Replace(name))
	switch cleaned {
	case "", ".", "..":
		return "_"
	}
	return cleaned
}

// checkContainerID rejects absolute IDs and IDs that climb out of the base
// path. The empty ID is the base itself.
func checkContainerID(id string) error {
	if id == "" {
		return nil
	}
	if !filepath.IsLocal(filepath.FromSlash(id)) {
		return fmt.Errorf("%w: %q", ErrOutsideBase, id)
	}
	return nil
}

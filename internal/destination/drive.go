package destination

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// FolderMimeType is the MIME type Drive uses for folders.
const FolderMimeType = "application/vnd.google-apps.folder"

// DriveStore mirrors backups into Google Drive folders. Container IDs are
// Drive file IDs.
type DriveStore struct {
	service *drive.Service
}

// NewDriveStore authenticates with a service-account credential file and
// creates a Drive store limited to the drive.file scope.
func NewDriveStore(ctx context.Context, config *Config) (*DriveStore, error) {
	opts := []option.ClientOption{option.WithScopes(drive.DriveFileScope)}
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}
	if config.DriveEndpoint != "" {
		opts = append(opts, option.WithEndpoint(config.DriveEndpoint))
	}

	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}

	log.Printf("[DriveDest] Initialized Drive destination")
	return NewDriveStoreWithService(service), nil
}

// NewDriveStoreWithService wraps an already configured Drive service.
func NewDriveStoreWithService(service *drive.Service) *DriveStore {
	return &DriveStore{service: service}
}

// FindOrCreateContainer looks up a non-trashed folder by exact name under
// parentID and creates it when missing. The lookup and the create are two
// calls, so concurrent runs can still end up with twin folders.
func (ds *DriveStore) FindOrCreateContainer(ctx context.Context, name, parentID string) (string, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escapeQuery(name), escapeQuery(parentID), FolderMimeType)

	list, err := ds.service.Files.List().
		Q(query).
		Spaces("drive").
		Fields("files(id, name)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to create folder '%s': %w", name, err)
	}

	for _, file := range list.Files {
		if file.Name == name {
			return file.Id, nil
		}
	}

	folder, err := ds.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: FolderMimeType,
		Parents:  []string{parentID},
	}).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to create folder '%s': %w", name, err)
	}

	return folder.Id, nil
}

// Upload creates a file in parentID with the reader's content.
func (ds *DriveStore) Upload(ctx context.Context, parentID, name string, reader io.Reader, contentType string) (string, error) {
	file, err := ds.service.Files.Create(&drive.File{
		Name:    name,
		Parents: []string{parentID},
	}).
		Media(reader, googleapi.ContentType(contentType)).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload '%s': %w", name, err)
	}
	return file.Id, nil
}

// Type returns the destination type
func (ds *DriveStore) Type() string {
	return TypeDrive
}

// Close is a no-op; the Drive service owns its HTTP client
func (ds *DriveStore) Close() error {
	return nil
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// escapeQuery quotes a value for use inside a Drive query string literal.
func escapeQuery(value string) string {
	return queryEscaper.Replace(value)
}

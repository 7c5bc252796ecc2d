package destination

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"time"

	sshclient "github.com/TheGojiOG/notion-backup/internal/ssh"
	"github.com/pkg/sftp"
	xssh "golang.org/x/crypto/ssh"
)

// SFTPStore mirrors backups into directories on a remote SFTP server.
// Container IDs are paths relative to the configured base path.
type SFTPStore struct {
	config     *Config
	sshClient  *xssh.Client
	sftpClient *sftp.Client
}

// NewSFTPStore creates a new SFTP store and connects to the server
func NewSFTPStore(config *Config) (*SFTPStore, error) {
	store := &SFTPStore{
		config: config,
	}

	if err := store.connect(); err != nil {
		return nil, err
	}

	return store, nil
}

// connect establishes SSH and SFTP connections
func (sd *SFTPStore) connect() error {
	hostKeyCallback, err := sshclient.NewHostKeyCallback(sd.config.KnownHostsPath, sd.config.TrustOnFirstUse)
	if err != nil {
		return fmt.Errorf("failed to configure host key verification: %w", err)
	}

	sshConfig := &xssh.ClientConfig{
		User:            sd.config.SFTPUsername,
		HostKeyCallback: hostKeyCallback,
		Timeout:         30 * time.Second,
	}

	switch {
	case sd.config.SFTPKeyPath != "":
		signer, err := sshclient.LoadSigner(sd.config.SFTPKeyPath, sd.config.SFTPKeyPassphrase)
		if err != nil {
			return err
		}
		sshConfig.Auth = []xssh.AuthMethod{xssh.PublicKeys(signer)}
	case sd.config.SFTPPassword != "":
		sshConfig.Auth = []xssh.AuthMethod{xssh.Password(sd.config.SFTPPassword)}
	default:
		return fmt.Errorf("no authentication method provided for SFTP")
	}

	port := sd.config.SFTPPort
	if port == 0 {
		port = 22
	}
	addr := fmt.Sprintf("%s:%d", sd.config.SFTPHost, port)
	log.Printf("[SFTPDest] Connecting to %s...", addr)

	sshClient, err := xssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to SSH server: %w", err)
	}
	sd.sshClient = sshClient

	sftpClient, err := sftp.NewClient(sshClient,
		sftp.MaxPacketUnchecked(131072),
		sftp.UseConcurrentWrites(true),
	)
	if err != nil {
		sshClient.Close()
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}
	sd.sftpClient = sftpClient

	if err := sd.sftpClient.MkdirAll(sd.config.Path); err != nil {
		sd.Close()
		return fmt.Errorf("failed to create base directory: %w", err)
	}

	log.Printf("[SFTPDest] Connected successfully")
	return nil
}

// FindOrCreateContainer creates a remote directory under parentID unless it exists
func (sd *SFTPStore) FindOrCreateContainer(ctx context.Context, name, parentID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := checkContainerID(parentID); err != nil {
		return "", err
	}
	if err := sd.sftpClient.MkdirAll(path.Join(sd.config.Path, parentID)); err != nil {
		return "", fmt.Errorf("failed to create parent folder: %w", err)
	}

	id := path.Join(parentID, safeName(name))
	dirPath := path.Join(sd.config.Path, id)

	info, err := sd.sftpClient.Stat(dirPath)
	if err == nil {
		if !info.IsDir() {
			return "", fmt.Errorf("failed to create folder '%s': a file with that name exists", name)
		}
		return id, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check folder '%s': %w", name, err)
	}

	if err := sd.sftpClient.Mkdir(dirPath); err != nil {
		return "", fmt.Errorf("failed to create folder '%s': %w", name, err)
	}

	log.Printf("[SFTPDest] Created folder %s", dirPath)
	return id, nil
}

// Upload uploads an artifact into the parent directory
func (sd *SFTPStore) Upload(ctx context.Context, parentID, name string, reader io.Reader, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := checkContainerID(parentID); err != nil {
		return "", err
	}

	id := path.Join(parentID, safeName(name))
	destPath := path.Join(sd.config.Path, id)

	file, err := sd.sftpClient.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("failed to create remote file: %w", err)
	}

	// With concurrent writes a failed write may only surface on Close.
	written, err := io.Copy(file, reader)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		sd.sftpClient.Remove(destPath) // Cleanup on error
		return "", fmt.Errorf("failed to write remote file: %w", err)
	}

	log.Printf("[SFTPDest] Wrote %s (%d bytes, %s)", destPath, written, contentType)
	return id, nil
}

// Close closes the SFTP and SSH connections
func (sd *SFTPStore) Close() error {
	if sd.sftpClient != nil {
		sd.sftpClient.Close()
	}
	if sd.sshClient != nil {
		sd.sshClient.Close()
	}
	return nil
}

// Type returns the destination type
func (sd *SFTPStore) Type() string {
	return TypeSFTP
}

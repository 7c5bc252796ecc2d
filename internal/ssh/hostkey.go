// Package ssh verifies SFTP server identities and loads client keys.
package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/TheGojiOG/notion-backup/internal/logging"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var (
	// ErrUnknownHost is returned for a host missing from known_hosts when
	// trust-on-first-use is off.
	ErrUnknownHost = errors.New("unknown SSH host key")

	// ErrHostKeyChanged is returned when a host presents a key different
	// from the recorded one.
	ErrHostKeyChanged = errors.New("SSH host key changed")
)

// knownHostsFile checks host keys against a known_hosts file and, when
// trustNew is set, appends keys of hosts it has never seen.
type knownHostsFile struct {
	path     string
	trustNew bool
	check    ssh.HostKeyCallback
}

// NewHostKeyCallback builds a host key callback backed by a known_hosts file.
// With trustOnFirstUse, keys for unknown hosts are recorded on first contact;
// a changed key is always rejected. An empty path disables verification.
func NewHostKeyCallback(knownHostsPath string, trustOnFirstUse bool) (ssh.HostKeyCallback, error) {
	if strings.TrimSpace(knownHostsPath) == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	if err := touch(knownHostsPath); err != nil {
		return nil, err
	}

	check, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read known_hosts: %w", err)
	}

	kh := &knownHostsFile{path: knownHostsPath, trustNew: trustOnFirstUse, check: check}
	return kh.verify, nil
}

func (kh *knownHostsFile) verify(hostname string, remote net.Addr, key ssh.PublicKey) error {
	err := kh.check(hostname, remote, key)
	if err == nil {
		return nil
	}

	var keyErr *knownhosts.KeyError
	if !errors.As(err, &keyErr) {
		return err
	}

	fingerprint := ssh.FingerprintSHA256(key)
	if len(keyErr.Want) > 0 {
		logging.L().Warn("ssh_host_key_changed", "host", hostname, "fingerprint", fingerprint)
		return fmt.Errorf("%w for %s", ErrHostKeyChanged, hostname)
	}

	if !kh.trustNew {
		return fmt.Errorf("%w for %s", ErrUnknownHost, hostname)
	}

	if err := kh.record(hostname, remote, key); err != nil {
		return err
	}
	logging.L().Info("ssh_host_key_accepted", "host", hostname, "fingerprint", fingerprint)
	return nil
}

func (kh *knownHostsFile) record(hostname string, remote net.Addr, key ssh.PublicKey) error {
	line := knownhosts.Line(hostPatterns(hostname, remote), key)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}

	file, err := os.OpenFile(kh.path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open known_hosts file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write known_hosts entry: %w", err)
	}
	return nil
}

// touch creates an empty known_hosts file, and its directory, if missing.
func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create known_hosts directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create known_hosts file: %w", err)
	}
	return file.Close()
}

// hostPatterns lists the names a key is recorded under: the dialed
// hostname and, when different, the remote IP.
func hostPatterns(hostname string, remote net.Addr) []string {
	var host, port string
	if remote != nil {
		var err error
		host, port, err = net.SplitHostPort(remote.String())
		if err != nil {
			host, port = remote.String(), ""
		}
	}

	var patterns []string
	if hostname != "" {
		patterns = append(patterns, knownhosts.Normalize(hostname))
	}
	if host != "" {
		address := knownhosts.Normalize(net.JoinHostPort(host, portOrDefault(port)))
		if len(patterns) == 0 || patterns[0] != address {
			patterns = append(patterns, address)
		}
	}
	return patterns
}

func portOrDefault(port string) string {
	if port == "" {
		return "22"
	}
	return port
}

package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
)

func TestHostKeyCallbackTrustOnFirstUse(t *testing.T) {
	knownHostsPath := filepath.Join(t.TempDir(), "nested", "known_hosts")

	callback, err := NewHostKeyCallback(knownHostsPath, true)
	if err != nil {
		t.Fatalf("failed to create callback: %v", err)
	}

	key1 := generateTestPublicKey(t)
	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 22}

	if err := callback("backup.example.com:22", addr, key1); err != nil {
		t.Fatalf("expected first key to be accepted, got %v", err)
	}

	data, err := os.ReadFile(knownHostsPath)
	if err != nil {
		t.Fatalf("expected known_hosts file to be written: %v", err)
	}
	if !strings.Contains(string(data), "backup.example.com") {
		t.Fatalf("expected host to be recorded, got %q", data)
	}

	callback, err = NewHostKeyCallback(knownHostsPath, true)
	if err != nil {
		t.Fatalf("failed to recreate callback: %v", err)
	}

	if err := callback("backup.example.com:22", addr, key1); err != nil {
		t.Fatalf("expected recorded key to verify, got %v", err)
	}

	key2 := generateTestPublicKey(t)
	if err := callback("backup.example.com:22", addr, key2); !errors.Is(err, ErrHostKeyChanged) {
		t.Fatalf("expected ErrHostKeyChanged, got %v", err)
	}
}

func TestHostKeyCallbackRejectsUnknownWhenDisabled(t *testing.T) {
	knownHostsPath := filepath.Join(t.TempDir(), "known_hosts")

	callback, err := NewHostKeyCallback(knownHostsPath, false)
	if err != nil {
		t.Fatalf("failed to create callback: %v", err)
	}

	key := generateTestPublicKey(t)
	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 2222}

	if err := callback("backup.example.com:2222", addr, key); !errors.Is(err, ErrUnknownHost) {
		t.Fatalf("expected ErrUnknownHost, got %v", err)
	}
}

func TestHostKeyCallbackEmptyPathSkipsVerification(t *testing.T) {
	callback, err := NewHostKeyCallback("  ", false)
	if err != nil {
		t.Fatalf("failed to create callback: %v", err)
	}
	if err := callback("anything:22", nil, generateTestPublicKey(t)); err != nil {
		t.Fatalf("expected verification to be skipped, got %v", err)
	}
}

func TestLoadSigner(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	signer, err := LoadSigner(keyPath, "")
	if err != nil {
		t.Fatalf("load signer: %v", err)
	}
	if signer.PublicKey().Type() != ssh.KeyAlgoED25519 {
		t.Fatalf("unexpected key type %s", signer.PublicKey().Type())
	}

	if _, err := LoadSigner(filepath.Join(t.TempDir(), "missing"), ""); err == nil {
		t.Fatalf("expected error for missing key file")
	}
}

func generateTestPublicKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	pubKey, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("failed to create public key: %v", err)
	}

	return pubKey
}

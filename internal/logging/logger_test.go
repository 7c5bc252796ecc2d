package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TheGojiOG/notion-backup/internal/config"
)

func TestLNeverNil(t *testing.T) {
	if L() == nil {
		t.Fatalf("expected a logger before Init")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for input, want := range tests {
		if got := parseLevel(input); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestInitAndCloseLogger(t *testing.T) {
	root := t.TempDir()
	logPath := filepath.Join(root, "notion-backup.log")

	_, err := Init(config.LoggingConfig{
		Level:      "info",
		Format:     "json",
		File:       logPath,
		MaxSize:    10,
		MaxBackups: 1,
		MaxAge:     1,
	})
	if err != nil {
		t.Fatalf("failed to init logger: %v", err)
	}

	L().Info("backup_started", "run_id", "test")
	if err := Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "backup_started") {
		t.Fatalf("expected log line in file, got %s", data)
	}
}

func TestBridgeExtractsComponentAndWarnings(t *testing.T) {
	var buf bytes.Buffer
	b := bridge{logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	lines := []string{
		"[BackupMgr] Warning: Failed to record run r1: database is closed\n",
		"[LocalDest] Created folder /srv/backups/top\n",
		"Shutting down...\n",
	}
	for _, line := range lines {
		if _, err := b.Write([]byte(line)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	var records []map[string]any
	for _, raw := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var record map[string]any
		if err := json.Unmarshal(raw, &record); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
		records = append(records, record)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	if records[0]["level"] != "WARN" || records[0]["component"] != "BackupMgr" ||
		records[0]["msg"] != "Failed to record run r1: database is closed" {
		t.Fatalf("unexpected warning record %v", records[0])
	}
	if records[1]["level"] != "INFO" || records[1]["component"] != "LocalDest" {
		t.Fatalf("unexpected info record %v", records[1])
	}
	if _, ok := records[2]["component"]; ok || records[2]["msg"] != "Shutting down..." {
		t.Fatalf("unexpected plain record %v", records[2])
	}
}

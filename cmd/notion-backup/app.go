package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/TheGojiOG/notion-backup/internal/backup"
	"github.com/TheGojiOG/notion-backup/internal/config"
	"github.com/TheGojiOG/notion-backup/internal/database"
	"github.com/TheGojiOG/notion-backup/internal/destination"
	"github.com/TheGojiOG/notion-backup/internal/logging"
	"github.com/TheGojiOG/notion-backup/internal/notion"
)

// app holds everything a command needs for one process lifetime.
type app struct {
	cfg     *config.Config
	db      *database.DB
	notion  *notion.Client
	store   destination.Store
	manager *backup.Manager
}

// loadConfig loads and initializes logging. validate is false for commands
// that never talk to Notion or the destination.
func loadConfig(validate bool) (*config.Config, error) {
	load := config.Read
	if validate {
		load = config.Load
	}
	cfg, err := load(configPath)
	if err != nil {
		return nil, err
	}
	if err := setupLogging(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Logging.File) != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return err
		}
	}
	_, err := logging.Init(cfg.Logging)
	return err
}

func openHistory(cfg *config.Config) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return db, nil
}

// newApp wires the Notion client, the destination and the backup manager.
// Progress lines go to out.
func newApp(ctx context.Context, cfg *config.Config, out io.Writer) (*app, error) {
	a := &app{cfg: cfg}

	var runStore *backup.RunStore
	if cfg.Backup.RecordHistory {
		db, err := openHistory(cfg)
		if err != nil {
			return nil, err
		}
		a.db = db
		runStore = backup.NewRunStore(db.DB)
	}

	store, err := destination.New(ctx, destinationConfig(cfg))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create destination: %w", err)
	}
	a.store = store

	a.notion = notion.NewClient(cfg.Notion.Token, notion.Options{
		BaseURL:           cfg.Notion.BaseURL,
		Version:           cfg.Notion.Version,
		PageSize:          cfg.Notion.PageSize,
		RequestsPerSecond: cfg.Notion.RequestsPerSecond,
		Timeout:           cfg.Notion.TimeoutDuration(),
	})

	a.manager = backup.NewManager(a.notion, store, runStore, backup.Options{
		RootID:           cfg.Destination.RootID,
		FolderPrefix:     cfg.Backup.FolderPrefix,
		Output:           out,
		HistoryRetention: cfg.Backup.HistoryRetention,
	})

	log.Printf("[App] Backing up to %s destination", store.Type())
	return a, nil
}

// Close releases the destination, the Notion client and the database.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Printf("[App] Failed to close destination: %v", err)
		}
	}
	if a.notion != nil {
		a.notion.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func destinationConfig(cfg *config.Config) *destination.Config {
	d := cfg.Destination
	return &destination.Config{
		Type:              strings.ToLower(d.Type),
		Path:              d.Path,
		CredentialsFile:   d.CredentialsFile,
		SFTPHost:          d.SFTPHost,
		SFTPPort:          d.SFTPPort,
		SFTPUsername:      d.SFTPUsername,
		SFTPPassword:      d.SFTPPassword,
		SFTPKeyPath:       d.SFTPKeyPath,
		SFTPKeyPassphrase: d.SFTPKeyPassphrase,
		KnownHostsPath:    d.KnownHostsPath,
		TrustOnFirstUse:   d.TrustOnFirstUse,
		S3Bucket:          d.S3Bucket,
		S3Region:          d.S3Region,
		S3AccessKey:       d.S3AccessKey,
		S3SecretKey:       d.S3SecretKey,
		S3Endpoint:        d.S3Endpoint,
	}
}

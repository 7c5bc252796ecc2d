package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Notion      NotionConfig      `yaml:"notion" toml:"notion" json:"notion"`
	Destination DestinationConfig `yaml:"destination" toml:"destination" json:"destination"`
	Backup      BackupConfig      `yaml:"backup" toml:"backup" json:"backup"`
	Database    DatabaseConfig    `yaml:"database" toml:"database" json:"database"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging" json:"logging"`
	Server      ServerConfig      `yaml:"server" toml:"server" json:"server"`
}

// NotionConfig contains Notion API settings
type NotionConfig struct {
	Token             string  `yaml:"token" toml:"token" json:"-"`
	BaseURL           string  `yaml:"base_url" toml:"base_url" json:"base_url"`
	Version           string  `yaml:"version" toml:"version" json:"version"`
	PageSize          int     `yaml:"page_size" toml:"page_size" json:"page_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second" json:"requests_per_second"`
	Timeout           string  `yaml:"timeout" toml:"timeout" json:"timeout"`
}

// TimeoutDuration parses Timeout, returning 0 when it is unset or invalid.
func (n NotionConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(n.Timeout))
	if err != nil {
		return 0
	}
	return d
}

// DestinationConfig contains settings for where backups are written
type DestinationConfig struct {
	Type            string `yaml:"type" toml:"type" json:"type"`
	RootID          string `yaml:"root_id" toml:"root_id" json:"root_id"`
	CredentialsFile string `yaml:"credentials_file" toml:"credentials_file" json:"credentials_file"`
	Path            string `yaml:"path" toml:"path" json:"path"`

	SFTPHost          string `yaml:"sftp_host" toml:"sftp_host" json:"sftp_host"`
	SFTPPort          int    `yaml:"sftp_port" toml:"sftp_port" json:"sftp_port"`
	SFTPUsername      string `yaml:"sftp_username" toml:"sftp_username" json:"sftp_username"`
	SFTPPassword      string `yaml:"sftp_password" toml:"sftp_password" json:"-"`
	SFTPKeyPath       string `yaml:"sftp_key_path" toml:"sftp_key_path" json:"sftp_key_path"`
	SFTPKeyPassphrase string `yaml:"sftp_key_passphrase" toml:"sftp_key_passphrase" json:"-"`
	KnownHostsPath    string `yaml:"known_hosts_path" toml:"known_hosts_path" json:"known_hosts_path"`
	TrustOnFirstUse   bool   `yaml:"trust_on_first_use" toml:"trust_on_first_use" json:"trust_on_first_use"`

	S3Bucket    string `yaml:"s3_bucket" toml:"s3_bucket" json:"s3_bucket"`
	S3Region    string `yaml:"s3_region" toml:"s3_region" json:"s3_region"`
	S3AccessKey string `yaml:"s3_access_key" toml:"s3_access_key" json:"-"`
	S3SecretKey string `yaml:"s3_secret_key" toml:"s3_secret_key" json:"-"`
	S3Endpoint  string `yaml:"s3_endpoint" toml:"s3_endpoint" json:"s3_endpoint"`
}

// BackupConfig contains backup run settings
type BackupConfig struct {
	FolderPrefix     string `yaml:"folder_prefix" toml:"folder_prefix" json:"folder_prefix"`
	Schedule         string `yaml:"schedule" toml:"schedule" json:"schedule"`
	RecordHistory    bool   `yaml:"record_history" toml:"record_history" json:"record_history"`
	HistoryRetention int    `yaml:"history_retention" toml:"history_retention" json:"history_retention"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path           string `yaml:"path" toml:"path" json:"path"`
	MaxConnections int    `yaml:"max_connections" toml:"max_connections" json:"max_connections"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" toml:"level" json:"level"`
	Format     string `yaml:"format" toml:"format" json:"format"`
	File       string `yaml:"file" toml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" toml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" toml:"max_age" json:"max_age"`
	AddSource  bool   `yaml:"add_source" toml:"add_source" json:"add_source"`
}

// ServerConfig contains settings for the optional status API
type ServerConfig struct {
	Enabled   bool            `yaml:"enabled" toml:"enabled" json:"enabled"`
	Host      string          `yaml:"host" toml:"host" json:"host"`
	Port      int             `yaml:"port" toml:"port" json:"port"`
	APIToken  string          `yaml:"api_token" toml:"api_token" json:"-"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains rate limiting settings
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" toml:"enabled" json:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" toml:"requests_per_minute" json:"requests_per_minute"`
}

// Defaults returns the configuration used before any file or environment
// values are applied.
func Defaults() *Config {
	return &Config{
		Notion: NotionConfig{
			BaseURL:           "https://api.notion.com/v1",
			Version:           "2022-06-28",
			PageSize:          100,
			RequestsPerSecond: 3,
			Timeout:           "60s",
		},
		Destination: DestinationConfig{
			Type:            "drive",
			SFTPPort:        22,
			TrustOnFirstUse: true,
		},
		Backup: BackupConfig{
			FolderPrefix:  "Notion_Backup",
			RecordHistory: true,
		},
		Database: DatabaseConfig{
			Path:           "./data/notion-backup.db",
			MaxConnections: 1,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			File:       "",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Server: ServerConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8080,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
			},
		},
	}
}

// Load loads configuration from file and environment variables and
// validates it. An empty path falls back to CONFIG_PATH and then to
// ./configs/config.yaml; a missing file is only an error when path was given.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Read is Load without validation, for commands that only need local state.
func Read(path string) (*Config, error) {
	cfg := Defaults()

	configPath := strings.TrimSpace(path)
	if configPath == "" {
		configPath = GetConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := decode(configPath, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if path != "" {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.normalizePaths(configPath)

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) applyEnv() error {
	if token := os.Getenv("NOTION_TOKEN"); token != "" {
		c.Notion.Token = token
	}

	if creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); creds != "" {
		c.Destination.CredentialsFile = creds
	}

	if rootID := os.Getenv("DRIVE_ROOT_FOLDER_ID"); rootID != "" {
		c.Destination.RootID = rootID
	}

	if destType := os.Getenv("DESTINATION_TYPE"); destType != "" {
		c.Destination.Type = destType
	}

	if schedule := os.Getenv("BACKUP_SCHEDULE"); schedule != "" {
		c.Backup.Schedule = schedule
	}

	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		c.Database.Path = dbPath
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	if apiToken := os.Getenv("API_TOKEN"); apiToken != "" {
		c.Server.APIToken = apiToken
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		value, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid SERVER_PORT %q: %w", port, err)
		}
		c.Server.Port = value
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Notion.Token) == "" {
		return fmt.Errorf("NOTION_TOKEN must be set")
	}

	// Check for unexpanded environment variables
	if isUnexpanded(c.Notion.Token) {
		return fmt.Errorf("NOTION_TOKEN contains unexpanded environment variable")
	}

	if c.Notion.PageSize < 1 || c.Notion.PageSize > 100 {
		return fmt.Errorf("notion.page_size must be between 1 and 100")
	}

	if c.Notion.Timeout != "" {
		if _, err := time.ParseDuration(c.Notion.Timeout); err != nil {
			return fmt.Errorf("notion.timeout is not a valid duration: %w", err)
		}
	}

	switch strings.ToLower(c.Destination.Type) {
	case "drive", "":
		if c.Destination.CredentialsFile == "" {
			return fmt.Errorf("GOOGLE_APPLICATION_CREDENTIALS must be set for the drive destination")
		}
		if c.Destination.RootID == "" {
			return fmt.Errorf("DRIVE_ROOT_FOLDER_ID must be set for the drive destination")
		}
	case "local":
		if c.Destination.Path == "" {
			return fmt.Errorf("destination.path is required for the local destination")
		}
	case "sftp":
		if c.Destination.SFTPHost == "" || c.Destination.SFTPUsername == "" {
			return fmt.Errorf("destination.sftp_host and destination.sftp_username are required for the sftp destination")
		}
		if c.Destination.SFTPPassword == "" && c.Destination.SFTPKeyPath == "" {
			return fmt.Errorf("sftp destination needs a password or a key path")
		}
	case "s3":
		if c.Destination.S3Bucket == "" {
			return fmt.Errorf("destination.s3_bucket is required for the s3 destination")
		}
	default:
		return fmt.Errorf("unknown destination type %q", c.Destination.Type)
	}

	if c.Backup.HistoryRetention < 0 {
		return fmt.Errorf("backup.history_retention cannot be negative")
	}

	if c.Server.Enabled {
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			return fmt.Errorf("server.port must be between 1 and 65535")
		}
		if c.Server.APIToken == "" {
			return fmt.Errorf("API_TOKEN must be set when the server is enabled")
		}
	}

	return nil
}

func isUnexpanded(value string) bool {
	return len(value) > 1 && value[0] == '$' && value[1] == '{'
}

func resolveConfigPath() string {
	candidates := []string{"../configs/config.yaml", "./configs/config.yaml", "./configs/config.toml"}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "./configs/config.yaml"
}

// GetConfigPath returns the resolved config path
func GetConfigPath() string {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = resolveConfigPath()
	}
	return configPath
}

func (c *Config) normalizePaths(configPath string) {
	baseDir := filepath.Dir(configPath)
	if !filepath.IsAbs(baseDir) {
		if absBase, err := filepath.Abs(baseDir); err == nil {
			baseDir = absBase
		}
	}

	rootDir := baseDir
	if filepath.Base(baseDir) == "configs" {
		rootDir = filepath.Dir(baseDir)
	}

	resolvePath := func(value string) string {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return ""
		}
		if filepath.IsAbs(trimmed) {
			return filepath.Clean(trimmed)
		}
		return filepath.Clean(filepath.Join(rootDir, trimmed))
	}

	if strings.TrimSpace(c.Database.Path) == "" {
		c.Database.Path = filepath.Join(rootDir, "data", "notion-backup.db")
	}
	c.Database.Path = resolvePath(c.Database.Path)

	c.Destination.CredentialsFile = resolvePath(c.Destination.CredentialsFile)
	c.Logging.File = resolvePath(c.Logging.File)

	if strings.EqualFold(c.Destination.Type, "local") {
		c.Destination.Path = resolvePath(c.Destination.Path)
	}

	if strings.EqualFold(c.Destination.Type, "sftp") {
		c.Destination.SFTPKeyPath = resolvePath(c.Destination.SFTPKeyPath)
		if strings.TrimSpace(c.Destination.KnownHostsPath) == "" {
			c.Destination.KnownHostsPath = filepath.Join(rootDir, "data", "known_hosts")
		}
		c.Destination.KnownHostsPath = resolvePath(c.Destination.KnownHostsPath)
	}
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"deskfs/internal/fs"
	"deskfs/internal/kv"
	"deskfs/internal/logging"
)

// Config represents the application configuration
type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Filesystem FilesystemConfig `yaml:"filesystem"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Mount      MountConfig      `yaml:"mount"`
}

type StoreConfig struct {
	Kind    string      `yaml:"kind"`
	Path    string      `yaml:"path"`    // file, badger, sqlite
	DSN     string      `yaml:"dsn"`     // postgres
	Timeout int         `yaml:"timeout"` // seconds, remote backends
	Minio   MinioConfig `yaml:"minio"`
	S3      S3Config    `yaml:"s3"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

type FilesystemConfig struct {
	Seed          []string `yaml:"seed"`
	Backups       int      `yaml:"backups"`
	IndexKey      string   `yaml:"index_key"`
	ContentPrefix string   `yaml:"content_prefix"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"` // MB
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	JSON       bool   `yaml:"json"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type MountConfig struct {
	AllowOther bool `yaml:"allow_other"`
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Kind:    kv.KindFile,
			Path:    "./data/deskfs.json",
			Timeout: 10,
		},
		Filesystem: FilesystemConfig{
			Seed:          append([]string(nil), fs.DefaultSeed...),
			IndexKey:      fs.DefaultIndexKey,
			ContentPrefix: fs.DefaultContentPrefix,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     28,
		},
	}
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.Store.Kind {
	case kv.KindMemory, kv.KindFile, kv.KindBadger, kv.KindSQLite, kv.KindPostgres, kv.KindMinio, kv.KindS3:
	default:
		return fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}
	switch c.Store.Kind {
	case kv.KindFile, kv.KindBadger, kv.KindSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store %s needs a path", c.Store.Kind)
		}
	case kv.KindPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store postgres needs a dsn")
		}
	case kv.KindMinio:
		if c.Store.Minio.Endpoint == "" || c.Store.Minio.Bucket == "" {
			return fmt.Errorf("store minio needs an endpoint and a bucket")
		}
	case kv.KindS3:
		if c.Store.S3.Bucket == "" {
			return fmt.Errorf("store s3 needs a bucket")
		}
	}
	if c.Store.Timeout < 0 {
		return fmt.Errorf("store timeout must not be negative")
	}
	if c.Filesystem.Backups < 0 {
		return fmt.Errorf("filesystem backups must not be negative")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// StoreOptions maps the store section onto kv.Options.
func (c *Config) StoreOptions() kv.Options {
	return kv.Options{
		Kind:    c.Store.Kind,
		Path:    c.Store.Path,
		DSN:     c.Store.DSN,
		Timeout: time.Duration(c.Store.Timeout) * time.Second,
		Minio: kv.MinioConfig{
			Endpoint:  c.Store.Minio.Endpoint,
			Bucket:    c.Store.Minio.Bucket,
			Prefix:    c.Store.Minio.Prefix,
			AccessKey: c.Store.Minio.AccessKey,
			SecretKey: c.Store.Minio.SecretKey,
			UseSSL:    c.Store.Minio.UseSSL,
		},
		S3: kv.S3Config{
			Endpoint:  c.Store.S3.Endpoint,
			Region:    c.Store.S3.Region,
			Bucket:    c.Store.S3.Bucket,
			Prefix:    c.Store.S3.Prefix,
			AccessKey: c.Store.S3.AccessKey,
			SecretKey: c.Store.S3.SecretKey,
		},
	}
}

// FSOptions maps the filesystem section onto fs options.
func (c *Config) FSOptions() []fs.Option {
	return []fs.Option{
		fs.WithSeed(c.Filesystem.Seed...),
		fs.WithBackups(c.Filesystem.Backups),
		fs.WithKeys(c.Filesystem.IndexKey, c.Filesystem.ContentPrefix),
	}
}

// LogOptions maps the log section onto logging.Options.
func (c *Config) LogOptions() (logging.Options, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return logging.Options{}, err
	}
	return logging.Options{
		Level:      level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSize,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAge,
		JSON:       c.Log.JSON,
	}, nil
}

// EnsureDirectories creates the directories local backends write into.
func (c *Config) EnsureDirectories() error {
	var dirs []string
	switch c.Store.Kind {
	case kv.KindFile, kv.KindSQLite:
		dirs = append(dirs, filepath.Dir(c.Store.Path))
	case kv.KindBadger:
		dirs = append(dirs, c.Store.Path)
	}
	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}

package kv

import (
	"fmt"
	"time"
)

// Store kinds accepted by Open.
const (
	KindMemory   = "memory"
	KindFile     = "file"
	KindBadger   = "badger"
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
	KindMinio    = "minio"
	KindS3       = "s3"
)

// Options selects and configures a backend.
type Options struct {
	Kind string
	// Path is the document path (file), database directory (badger) or
	// database file (sqlite).
	Path string
	// DSN is the postgres connection URL.
	DSN     string
	Minio   MinioConfig
	S3      S3Config
	Timeout time.Duration
}

// Open creates the Store described by opts.
func Open(opts Options) (Store, error) {
	switch opts.Kind {
	case KindMemory, "":
		return NewMemoryStore(), nil
	case KindFile:
		return NewFileStore(opts.Path)
	case KindBadger:
		return NewBadgerStore(opts.Path)
	case KindSQLite:
		return NewSQLStore(DialectSQLite, opts.Path, opts.Timeout)
	case KindPostgres:
		return NewSQLStore(DialectPostgres, opts.DSN, opts.Timeout)
	case KindMinio:
		cfg := opts.Minio
		if cfg.Timeout == 0 {
			cfg.Timeout = opts.Timeout
		}
		return NewMinioStore(cfg)
	case KindS3:
		cfg := opts.S3
		if cfg.Timeout == 0 {
			cfg.Timeout = opts.Timeout
		}
		return NewS3Store(cfg)
	default:
		return nil, fmt.Errorf("unknown store kind: %s", opts.Kind)
	}
}

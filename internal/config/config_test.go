package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deskfs/internal/fs"
	"deskfs/internal/kv"
	"deskfs/internal/logging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deskfs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
	require.Equal(t, fs.DefaultSeed, cfg.Filesystem.Seed)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
store:
  kind: minio
  timeout: 3
  minio:
    endpoint: localhost:9000
    bucket: desk
    prefix: users/alice
    access_key: key
    secret_key: secret
filesystem:
  seed: [/srv, /srv/www]
  backups: 2
log:
  level: debug
  file: /tmp/deskfs/deskfs.log
metrics:
  listen: ":9102"
mount:
  allow_other: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, []string{"/srv", "/srv/www"}, cfg.Filesystem.Seed)
	require.Equal(t, 2, cfg.Filesystem.Backups)
	// Unset keys keep their defaults.
	require.Equal(t, fs.DefaultIndexKey, cfg.Filesystem.IndexKey)
	require.Equal(t, 50, cfg.Log.MaxSize)
	require.Equal(t, ":9102", cfg.Metrics.Listen)
	require.True(t, cfg.Mount.AllowOther)

	opts := cfg.StoreOptions()
	require.Equal(t, kv.KindMinio, opts.Kind)
	require.Equal(t, 3*time.Second, opts.Timeout)
	require.Equal(t, "desk", opts.Minio.Bucket)
	require.Equal(t, "users/alice", opts.Minio.Prefix)

	logOpts, err := cfg.LogOptions()
	require.NoError(t, err)
	require.Equal(t, logging.LevelDebug, logOpts.Level)
	require.Equal(t, "/tmp/deskfs/deskfs.log", logOpts.File)

	require.Len(t, cfg.FSOptions(), 3)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad yaml", body: "store: [unterminated"},
		{name: "unknown kind", body: "store:\n  kind: floppy\n"},
		{name: "postgres without dsn", body: "store:\n  kind: postgres\n"},
		{name: "minio without bucket", body: "store:\n  kind: minio\n  minio:\n    endpoint: x\n"},
		{name: "s3 without bucket", body: "store:\n  kind: s3\n"},
		{name: "badger without path", body: "store:\n  kind: badger\n  path: \"\"\n"},
		{name: "negative backups", body: "filesystem:\n  backups: -1\n"},
		{name: "bad log level", body: "log:\n  level: loud\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestFSOptionsApply(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Filesystem.Seed = []string{"/desk"}
	cfg.Filesystem.IndexKey = "idx"
	cfg.Filesystem.ContentPrefix = "blob:"

	store := kv.NewMemoryStore()
	fsys, err := fs.New(store, cfg.FSOptions()...)
	require.NoError(t, err)
	require.True(t, fsys.Exists("/desk"))
	require.False(t, fsys.Exists("/home"))

	_, ok, err := store.Get("idx")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.Store.Kind = kv.KindSQLite
	cfg.Store.Path = filepath.Join(root, "db", "deskfs.db")
	cfg.Log.File = filepath.Join(root, "logs", "deskfs.log")

	require.NoError(t, cfg.EnsureDirectories())
	for _, dir := range []string{"db", "logs"} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
}

package main

import (
	"fmt"
	"path"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"deskfs/internal/config"
	"deskfs/internal/fs"
	"deskfs/internal/kv"
	"deskfs/internal/logging"
	"deskfs/internal/metrics"
)

// session holds what every command needs once the global flags are applied.
type session struct {
	cfg      *config.Config
	store    kv.Store
	fsys     *fs.FileSystem
	registry *prometheus.Registry
	cwd      string

	// openStore is swapped out by tests.
	openStore func(kv.Options) (kv.Store, error)
}

func newApp() *cli.App {
	s := &session{openStore: kv.Open}
	return s.app()
}

func (s *session) app() *cli.App {
	return &cli.App{
		Name:  "deskfs",
		Usage: "a hierarchical filesystem kept in a key-value store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				Value:   "deskfs.yaml",
				EnvVars: []string{"DESKFS_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "store",
				Usage:   "store kind, overriding the configuration (memory, file, badger, sqlite, postgres, minio, s3)",
				EnvVars: []string{"DESKFS_STORE"},
			},
			&cli.StringFlag{
				Name:    "store-path",
				Usage:   "store path or DSN, overriding the configuration",
				EnvVars: []string{"DESKFS_STORE_PATH"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "error, warn, info, debug or trace",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:  "cwd",
				Usage: "directory relative paths are resolved against",
				Value: "/",
			},
		},
		// Errors are reported by main.
		ExitErrHandler: func(*cli.Context, error) {},
		Before:         s.open,
		After:          s.close,
		Commands:       s.commands(),
	}
}

// open loads the configuration, brings up logging and the store, and
// loads the filesystem.
func (s *session) open(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if kind := c.String("store"); kind != "" {
		cfg.Store.Kind = kind
	}
	if p := c.String("store-path"); p != "" {
		if cfg.Store.Kind == kv.KindPostgres {
			cfg.Store.DSN = p
		} else {
			cfg.Store.Path = p
		}
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg

	logOpts, err := cfg.LogOptions()
	if err != nil {
		return err
	}
	if err := logging.GetLogger().Configure(logOpts); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	s.cwd, err = fs.NormalizePath(c.String("cwd"))
	if err != nil {
		return fmt.Errorf("bad --cwd: %w", err)
	}

	logger.Debug("Opening %s store", cfg.Store.Kind)
	store, err := s.openStore(cfg.StoreOptions())
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Kind, err)
	}
	s.store = store

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	opts := append(cfg.FSOptions(), fs.WithMetrics(metrics.New(s.registry)))

	s.fsys, err = fs.New(store, opts...)
	if err != nil {
		s.closeStore()
		return err
	}
	return nil
}

func (s *session) close(_ *cli.Context) error {
	s.closeStore()
	return logging.GetLogger().Close()
}

func (s *session) closeStore() {
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		logger.Warn("Closing store: %v", err)
	}
	s.store = nil
}

// resolve joins a relative argument onto --cwd. Absolute arguments are
// passed through untouched so that the filesystem validates them.
func (s *session) resolve(p string) string {
	p = strings.TrimSpace(p)
	if strings.HasPrefix(p, "/") {
		return p
	}
	return path.Join(s.cwd, p)
}

func (s *session) arg(c *cli.Context, i int, name string) (string, error) {
	if c.NArg() <= i {
		return "", fmt.Errorf("%s: missing %s argument", c.Command.Name, name)
	}
	return s.resolve(c.Args().Get(i)), nil
}

package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"deskfs/internal/archive"
	"deskfs/internal/fs"
	"deskfs/internal/metrics"
	"deskfs/internal/mount"
)

func (s *session) commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "ls",
			Usage:     "list a directory",
			ArgsUsage: "[path]",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "long", Aliases: []string{"l"}, Usage: "show type, size and modification time"},
				&cli.BoolFlag{Name: "unsorted", Aliases: []string{"U"}, Usage: "do not sort by name"},
			},
			Action: s.list,
		},
		{
			Name:      "stat",
			Usage:     "show the metadata of an entry",
			ArgsUsage: "<path>",
			Action:    s.stat,
		},
		{
			Name:      "cat",
			Usage:     "print a file",
			ArgsUsage: "<path>",
			Action:    s.cat,
		},
		{
			Name:      "mkdir",
			Usage:     "create directories",
			ArgsUsage: "<path>...",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "parents", Aliases: []string{"p"}, Usage: "create missing parents"},
			},
			Action: s.mkdir,
		},
		{
			Name:      "write",
			Usage:     "replace the contents of a file, reading stdin when no content is given",
			ArgsUsage: "<path> [content]",
			Action:    s.write,
		},
		{
			Name:      "touch",
			Usage:     "create an empty file or update the modification time of one",
			ArgsUsage: "<path>...",
			Action:    s.touch,
		},
		{
			Name:      "rm",
			Usage:     "remove files and directories",
			ArgsUsage: "<path>...",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "remove directories and their contents"},
			},
			Action: s.remove,
		},
		{
			Name:      "mv",
			Usage:     "move or rename an entry",
			ArgsUsage: "<source> <target>",
			Action:    s.move,
		},
		{
			Name:  "check",
			Usage: "scan the index and content keys for inconsistencies",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "reclaim", Usage: "remove orphaned content keys"},
			},
			Action: s.check,
		},
		{
			Name:      "archive",
			Usage:     "pack files and directories into an archive file",
			ArgsUsage: "<dest> <source>...",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "codec", Value: string(archive.CodecZstd), Usage: "zstd, lz4 or gzip"},
			},
			Action: s.pack,
		},
		{
			Name:      "extract",
			Usage:     "unpack an archive next to itself",
			ArgsUsage: "<archive>",
			Action:    s.extract,
		},
		{
			Name:      "restore",
			Usage:     "list index backups, or restore the given slot",
			ArgsUsage: "[slot]",
			Action:    s.restore,
		},
		{
			Name:      "mount",
			Usage:     "serve the filesystem over FUSE until interrupted",
			ArgsUsage: "<mountpoint>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "allow-other", Usage: "let other users access the mount"},
				&cli.StringFlag{Name: "metrics-listen", Usage: "address to serve /metrics on"},
			},
			Action: s.mount,
		},
	}
}

func formatTime(ms int64) string {
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

func printEntry(w io.Writer, meta fs.FileMetadata, long bool) {
	name := meta.Name
	if meta.IsDir() {
		name += "/"
	}
	if !long {
		fmt.Fprintln(w, name)
		return
	}
	kind := "-"
	if meta.IsDir() {
		kind = "d"
	}
	fmt.Fprintf(w, "%s %10d %s %s\n", kind, meta.Size, formatTime(meta.Modified), name)
}

func (s *session) list(c *cli.Context) error {
	p := s.cwd
	if c.NArg() > 0 {
		p = s.resolve(c.Args().First())
	}
	w := c.App.Writer
	long := c.Bool("long")

	meta, err := s.fsys.Stat(p)
	if err != nil {
		return err
	}
	if !meta.IsDir() {
		printEntry(w, meta, long)
		return nil
	}

	if c.Bool("unsorted") {
		entries, err := s.fsys.Entries(p)
		if err != nil {
			return err
		}
		for e := range entries {
			printEntry(w, e, long)
		}
		return nil
	}

	entries, err := s.fsys.ListSorted(p)
	if err != nil {
		return err
	}
	for _, e := range entries {
		printEntry(w, e, long)
	}
	return nil
}

func (s *session) stat(c *cli.Context) error {
	p, err := s.arg(c, 0, "path")
	if err != nil {
		return err
	}
	meta, err := s.fsys.Stat(p)
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "path:     %s\n", p)
	fmt.Fprintf(w, "type:     %s\n", meta.FileType)
	fmt.Fprintf(w, "size:     %d\n", meta.Size)
	fmt.Fprintf(w, "created:  %s\n", formatTime(meta.Created))
	fmt.Fprintf(w, "modified: %s\n", formatTime(meta.Modified))
	if !meta.IsDir() {
		vp, err := fs.NewVirtualPath(p)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "key:      %s\n", s.fsys.ContentKey(vp))
	}
	return nil
}

func (s *session) cat(c *cli.Context) error {
	p, err := s.arg(c, 0, "path")
	if err != nil {
		return err
	}
	content, err := s.fsys.ReadFile(p)
	if err != nil {
		return err
	}
	_, err = io.WriteString(c.App.Writer, content)
	return err
}

func (s *session) mkdir(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("mkdir: missing path argument")
	}
	for _, arg := range c.Args().Slice() {
		if err := s.fsys.CreateDirectory(s.resolve(arg), c.Bool("parents")); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) write(c *cli.Context) error {
	p, err := s.arg(c, 0, "path")
	if err != nil {
		return err
	}

	var content string
	if c.NArg() > 1 {
		content = c.Args().Get(1)
	} else {
		data, err := io.ReadAll(c.App.Reader)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		content = string(data)
	}
	return s.fsys.WriteFile(p, content)
}

func (s *session) touch(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("touch: missing path argument")
	}
	for _, arg := range c.Args().Slice() {
		p := s.resolve(arg)
		meta, err := s.fsys.Stat(p)
		switch {
		case errors.Is(err, fs.ErrNotFound):
			err = s.fsys.WriteFile(p, "")
		case err != nil:
		case meta.IsDir():
			// Directory times are fixed at creation.
		default:
			var content string
			if content, err = s.fsys.ReadFile(p); err == nil {
				err = s.fsys.WriteFile(p, content)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *session) remove(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("rm: missing path argument")
	}
	for _, arg := range c.Args().Slice() {
		if err := s.fsys.Delete(s.resolve(arg), c.Bool("recursive")); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) move(c *cli.Context) error {
	src, err := s.arg(c, 0, "source")
	if err != nil {
		return err
	}
	dst, err := s.arg(c, 1, "target")
	if err != nil {
		return err
	}
	return s.fsys.Rename(src, dst)
}

func (s *session) check(c *cli.Context) error {
	report, err := s.fsys.Check()
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "entries: %d\n", report.Entries)
	for _, p := range report.ParentViolations {
		fmt.Fprintf(w, "parent missing: %s\n", p)
	}
	for _, p := range report.Dangling {
		fmt.Fprintf(w, "content missing: %s\n", p)
	}
	for _, p := range report.Orphans {
		fmt.Fprintf(w, "orphaned content: %s\n", p)
	}
	if !report.OrphanScan {
		fmt.Fprintln(w, "store cannot list keys, orphans not scanned")
	}

	if c.Bool("reclaim") && len(report.Orphans) > 0 {
		n, err := s.fsys.Reclaim()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "reclaimed %d content keys\n", n)
		report.Orphans = nil
	}

	if !report.Healthy() {
		return fmt.Errorf("check: filesystem is inconsistent")
	}
	fmt.Fprintln(w, "ok")
	return nil
}

func (s *session) pack(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("archive: need a destination and at least one source")
	}
	codec, err := archive.ParseCodec(c.String("codec"))
	if err != nil {
		return err
	}

	args := c.Args().Slice()
	sources := make([]string, 0, len(args)-1)
	for _, arg := range args[1:] {
		sources = append(sources, s.resolve(arg))
	}
	return archive.Pack(s.fsys, s.resolve(args[0]), sources, codec)
}

func (s *session) extract(c *cli.Context) error {
	src, err := s.arg(c, 0, "archive")
	if err != nil {
		return err
	}
	dir, err := archive.Extract(s.fsys, src)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, dir)
	return nil
}

func (s *session) restore(c *cli.Context) error {
	w := c.App.Writer

	if c.NArg() == 0 {
		backups, err := s.fsys.Backups()
		if err != nil {
			return err
		}
		if len(backups) == 0 {
			fmt.Fprintln(w, "no backups")
			return nil
		}
		for _, b := range backups {
			if !b.Valid {
				fmt.Fprintf(w, "%d: unreadable\n", b.Slot)
				continue
			}
			fmt.Fprintf(w, "%d: %d entries\n", b.Slot, b.Entries)
		}
		return nil
	}

	slot, err := strconv.Atoi(c.Args().First())
	if err != nil {
		return fmt.Errorf("restore: bad slot %q", c.Args().First())
	}
	if err := s.fsys.RestoreBackup(slot); err != nil {
		return err
	}
	fmt.Fprintf(w, "restored backup %d, run check to find content drift\n", slot)
	return nil
}

func (s *session) mount(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("mount: expected exactly one mountpoint")
	}
	mountpoint := c.Args().First()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []mount.Option
	if s.cfg.Mount.AllowOther || c.Bool("allow-other") {
		opts = append(opts, mount.WithAllowOther())
	}

	addr := s.cfg.Metrics.Listen
	if l := c.String("metrics-listen"); l != "" {
		addr = l
	}
	if addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, s.registry); err != nil {
				logger.Error("Metrics server: %v", err)
			}
		}()
	}

	logger.Info("Starting deskfs on %s store", s.cfg.Store.Kind)
	logger.Debug("Mount point: %s", mountpoint)
	logger.Debug("Entries: %d", s.fsys.Len())

	if err := mount.Mount(ctx, s.fsys, mountpoint, opts...); err != nil {
		return err
	}
	logger.Info("Unmounted %s", mountpoint)
	return nil
}

// Package mount exposes a virtual filesystem to the host OS through FUSE.
package mount

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"deskfs/internal/fs"
	"deskfs/internal/logging"
)

var (
	mountLogger = logging.GetLogger().WithPrefix("mount")
)

// FS adapts a fs.FileSystem to bazil's fusefs.FS.
type FS struct {
	vfs        *fs.FileSystem
	uid        uint32
	gid        uint32
	allowOther bool

	mu      sync.Mutex
	handles map[string]map[*FileHandle]struct{} // open handles by path
}

type options struct {
	allowOther bool
	uid        uint32
	gid        uint32
}

// Option configures a mount.
type Option func(*options)

// WithAllowOther lets users other than the mounting one access the tree.
// It needs user_allow_other in /etc/fuse.conf.
func WithAllowOther() Option {
	return func(o *options) { o.allowOther = true }
}

// WithOwner sets the uid and gid reported for every node.
func WithOwner(uid, gid uint32) Option {
	return func(o *options) {
		o.uid = uid
		o.gid = gid
	}
}

func defaultOptions() options {
	// Get UID/GID from environment if set
	o := options{
		uid: safeIntToUint32(os.Getuid()),
		gid: safeIntToUint32(os.Getgid()),
	}
	if puidStr := os.Getenv("PUID"); puidStr != "" {
		if puid, err := strconv.ParseUint(puidStr, 10, 32); err == nil {
			o.uid = uint32(puid)
			mountLogger.Debug("Using PUID from environment: %d", o.uid)
		}
	}
	if pgidStr := os.Getenv("PGID"); pgidStr != "" {
		if pgid, err := strconv.ParseUint(pgidStr, 10, 32); err == nil {
			o.gid = uint32(pgid)
			mountLogger.Debug("Using PGID from environment: %d", o.gid)
		}
	}
	return o
}

// NewFS wraps vfs for serving.
func NewFS(vfs *fs.FileSystem, opts ...Option) *FS {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &FS{vfs: vfs, uid: o.uid, gid: o.gid, allowOther: o.allowOther}
}

// Root implements the fusefs.FS interface, returning the root directory node.
func (f *FS) Root() (fusefs.Node, error) {
	mountLogger.Trace("Getting root directory node")
	return &Dir{fsys: f, path: fs.RootPath}, nil
}

func waitForMount(mountpoint string) error {
	for i := 0; i < 30; i++ {
		info, err := os.Stat(mountpoint)
		if err == nil && info.IsDir() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("mount point not available after 3 seconds")
}

// Mount serves vfs at mountpoint until ctx is cancelled or the kernel
// ends the session, then unmounts.
func Mount(ctx context.Context, vfs *fs.FileSystem, mountpoint string, opts ...Option) error {
	filesys := NewFS(vfs, opts...)

	mountLogger.Info("Mounting virtual filesystem at %s", mountpoint)
	mountLogger.Debug("UID: %d, GID: %d", filesys.uid, filesys.gid)

	mountOpts := []fuse.MountOption{
		fuse.FSName("deskfs"),
		fuse.Subtype("deskfs"),
		fuse.DefaultPermissions(),
		fuse.AsyncRead(),
	}
	if filesys.allowOther {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}

	c, err := fuse.Mount(mountpoint, mountOpts...)
	if err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}
	defer c.Close()

	served := make(chan error, 1)
	go func() {
		served <- fusefs.Serve(c, filesys)
	}()

	if err := waitForMount(mountpoint); err != nil {
		_ = fuse.Unmount(mountpoint)
		mountLogger.Error("Mount point not ready: %v", err)
		return fmt.Errorf("mount point failed to initialize: %w", err)
	}
	mountLogger.Info("Filesystem mounted successfully")

	select {
	case err := <-served:
		if err != nil {
			mountLogger.Error("FUSE server error: %v", err)
			return err
		}
		mountLogger.Info("FUSE session ended")
		return nil
	case <-ctx.Done():
	}

	mountLogger.Info("Unmounting filesystem from: %s", mountpoint)
	if err := fuse.Unmount(mountpoint); err != nil {
		mountLogger.Error("Unmount failed: %v", err)
		return err
	}
	if err := <-served; err != nil {
		mountLogger.Warn("FUSE server exited with: %v", err)
	}
	mountLogger.Info("Unmount completed successfully")
	return nil
}

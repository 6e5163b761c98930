package mount

import (
	"context"
	"os"
	"syscall"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"deskfs/internal/fs"
	"deskfs/internal/logging"
)

var (
	dirLogger = logging.GetLogger().WithPrefix("dir")
)

// Dir represents a directory in the virtual filesystem.
type Dir struct {
	fsys *FS
	path fs.VirtualPath
}

// Attr implements the Node interface, returning directory attributes.
func (d *Dir) Attr(_ context.Context, a *fuse.Attr) error {
	dirLogger.Trace("Getting attributes for directory: %q", d.path.String())

	meta, err := d.fsys.vfs.Stat(d.path.String())
	if err != nil {
		return ToFuseError(err)
	}

	d.fsys.fillAttr(a, meta)
	a.Mode = os.ModeDir | 0755
	return nil
}

// Setattr accepts and ignores attribute changes on directories.
func (d *Dir) Setattr(ctx context.Context, _ *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	return d.Attr(ctx, &resp.Attr)
}

// child resolves name inside d. A name that is not a valid path element
// cannot exist.
func (d *Dir) child(name string) (fs.VirtualPath, error) {
	p, err := d.path.Child(name)
	if err != nil {
		dirLogger.Debug("Rejecting entry name %q: %v", name, err)
		return fs.VirtualPath{}, fuse.Errno(syscall.EINVAL)
	}
	return p, nil
}

func (d *Dir) node(p fs.VirtualPath, meta fs.FileMetadata) fusefs.Node {
	if meta.IsDir() {
		return &Dir{fsys: d.fsys, path: p}
	}
	return &File{fsys: d.fsys, path: p}
}

// Lookup implements the NodeStringLookuper interface, finding a child node.
func (d *Dir) Lookup(_ context.Context, name string) (fusefs.Node, error) {
	dirLogger.Debug("Looking up %q in directory %q", name, d.path.String())

	childPath, err := d.path.Child(name)
	if err != nil {
		return nil, fuse.Errno(syscall.ENOENT)
	}

	meta, err := d.fsys.vfs.Stat(childPath.String())
	if err != nil {
		dirLogger.Debug("Path not found: %q", childPath.String())
		return nil, ToFuseError(err)
	}
	return d.node(childPath, meta), nil
}

// ReadDirAll implements the HandleReadDirAller interface, listing directory contents.
func (d *Dir) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	dirLogger.Debug("Reading directory contents: %q", d.path.String())

	children, err := d.fsys.vfs.ListSorted(d.path.String())
	if err != nil {
		return nil, ToFuseError(err)
	}

	entries := make([]fuse.Dirent, 0, len(children)+2)
	entries = append(entries, fuse.Dirent{Name: ".", Type: fuse.DT_Dir})
	entries = append(entries, fuse.Dirent{Name: "..", Type: fuse.DT_Dir})
	for _, meta := range children {
		typ := fuse.DT_File
		if meta.IsDir() {
			typ = fuse.DT_Dir
		}
		entries = append(entries, fuse.Dirent{Name: meta.Name, Type: typ})
	}

	dirLogger.Debug("Directory %q contains %d entries", d.path.String(), len(entries))
	return entries, nil
}

// Mkdir implements the NodeMkdirer interface, creating a new directory.
func (d *Dir) Mkdir(_ context.Context, req *fuse.MkdirRequest) (fusefs.Node, error) {
	dirLogger.Info("Creating new directory %q in %q", req.Name, d.path.String())

	newPath, err := d.child(req.Name)
	if err != nil {
		return nil, err
	}
	if err := d.fsys.vfs.CreateDirectory(newPath.String(), false); err != nil {
		dirLogger.Error("Failed to create directory %q: %v", newPath.String(), err)
		return nil, ToFuseError(err)
	}

	return &Dir{fsys: d.fsys, path: newPath}, nil
}

// Create implements the NodeCreater interface, creating an empty file and
// opening it.
func (d *Dir) Create(_ context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fusefs.Node, fusefs.Handle, error) {
	dirLogger.Info("Creating file %q in %q", req.Name, d.path.String())

	newPath, err := d.child(req.Name)
	if err != nil {
		return nil, nil, err
	}

	meta, statErr := d.fsys.vfs.Stat(newPath.String())
	switch {
	case statErr == nil && req.Flags&fuse.OpenExclusive != 0:
		return nil, nil, fuse.Errno(syscall.EEXIST)
	case statErr == nil && meta.IsDir():
		return nil, nil, fuse.Errno(syscall.EISDIR)
	case statErr == nil:
		// Opening an existing file through create keeps its contents
		// unless truncation was asked for.
	default:
		if err := d.fsys.vfs.WriteFile(newPath.String(), ""); err != nil {
			return nil, nil, ToFuseError(err)
		}
	}

	f := &File{fsys: d.fsys, path: newPath}
	h, err := f.open(req.Flags&fuse.OpenTruncate != 0 || statErr != nil)
	if err != nil {
		return nil, nil, err
	}
	resp.Flags |= fuse.OpenDirectIO
	return f, h, nil
}

// Remove implements the NodeRemover interface, removing a file or an
// empty directory.
func (d *Dir) Remove(_ context.Context, req *fuse.RemoveRequest) error {
	dirLogger.Info("Removing %q from directory %q (isDir=%v)", req.Name, d.path.String(), req.Dir)

	childPath, err := d.child(req.Name)
	if err != nil {
		return err
	}

	meta, err := d.fsys.vfs.Stat(childPath.String())
	if err != nil {
		return ToFuseError(err)
	}
	if req.Dir && !meta.IsDir() {
		return fuse.Errno(syscall.ENOTDIR)
	}
	if !req.Dir && meta.IsDir() {
		return fuse.Errno(syscall.EISDIR)
	}

	if err := d.fsys.vfs.Delete(childPath.String(), false); err != nil {
		dirLogger.Warn("Failed to remove %q: %v", childPath.String(), err)
		return ToFuseError(err)
	}
	return nil
}

// Rename implements the NodeRenamer interface, renaming/moving a file or directory.
func (d *Dir) Rename(_ context.Context, req *fuse.RenameRequest, newDir fusefs.Node) error {
	dirLogger.Info("Renaming %q to %q", req.OldName, req.NewName)

	target, ok := newDir.(*Dir)
	if !ok {
		dirLogger.Error("Target is not a valid directory type")
		return fuse.Errno(syscall.EINVAL)
	}

	oldPath, err := d.child(req.OldName)
	if err != nil {
		return err
	}
	newPath, err := target.child(req.NewName)
	if err != nil {
		return err
	}

	if err := d.fsys.vfs.Rename(oldPath.String(), newPath.String()); err != nil {
		dirLogger.Warn("Rename %q -> %q failed: %v", oldPath.String(), newPath.String(), err)
		return ToFuseError(err)
	}
	return nil
}

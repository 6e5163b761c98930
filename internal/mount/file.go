package mount

import (
	"context"
	"sync"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"deskfs/internal/fs"
	"deskfs/internal/logging"
)

var (
	fileLogger = logging.GetLogger().WithPrefix("file")
)

// File represents a file in the virtual filesystem.
type File struct {
	fsys *FS
	path fs.VirtualPath
}

// Attr implements the Node interface, returning the file's attributes.
func (f *File) Attr(_ context.Context, a *fuse.Attr) error {
	fileLogger.Trace("Getting attributes for file: %q", f.path.String())

	meta, err := f.fsys.vfs.Stat(f.path.String())
	if err != nil {
		return ToFuseError(err)
	}

	f.fsys.fillAttr(a, meta)
	a.Mode = 0644
	a.Size = safeInt64ToUint64(meta.Size)
	a.BlockSize = 4096
	a.Blocks = safeInt64ToUint64((meta.Size + 511) / 512)
	return nil
}

// Open implements the NodeOpener interface.
func (f *File) Open(_ context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	fileLogger.Debug("Opening file %q with flags %v", f.path.String(), req.Flags)

	h, err := f.open(req.Flags&fuse.OpenTruncate != 0)
	if err != nil {
		return nil, err
	}
	resp.Flags |= fuse.OpenDirectIO
	return h, nil
}

func (f *File) open(truncate bool) (*FileHandle, error) {
	h := &FileHandle{file: f}
	if truncate {
		h.dirty = true
	} else {
		contents, err := f.fsys.vfs.ReadFile(f.path.String())
		if err != nil {
			fileLogger.Error("Failed to load %q: %v", f.path.String(), err)
			return nil, ToFuseError(err)
		}
		h.data = []byte(contents)
	}
	f.fsys.track(h)
	return h, nil
}

// Setattr implements the NodeSetattrer interface. Only size changes are
// applied; they are written through immediately and applied to every
// handle open on the file.
func (f *File) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if req.Valid.Size() {
		fileLogger.Debug("Resizing %q to %d bytes", f.path.String(), req.Size)

		contents, err := f.fsys.vfs.ReadFile(f.path.String())
		if err != nil {
			return ToFuseError(err)
		}
		data := resize([]byte(contents), int(req.Size))
		if err := f.fsys.vfs.WriteFile(f.path.String(), string(data)); err != nil {
			return ToFuseError(err)
		}
		// Open handles would otherwise commit their stale buffers.
		for _, h := range f.fsys.openHandles(f.path.String()) {
			h.truncate(int(req.Size))
		}
	}
	return f.Attr(ctx, &resp.Attr)
}

// Fsync implements the NodeFsyncer interface. Every committed write is
// already persisted, so there is nothing to do.
func (f *File) Fsync(_ context.Context, _ *fuse.FsyncRequest) error {
	return nil
}

// resize truncates data or pads it with zero bytes to n.
func resize(data []byte, n int) []byte {
	if n <= len(data) {
		return data[:n]
	}
	return append(data, make([]byte, n-len(data))...)
}

// FileHandle is an open file. Writes accumulate in memory and are
// committed to the filesystem as a whole on flush or release.
type FileHandle struct {
	file  *File
	data  []byte
	dirty bool
	mu    sync.Mutex
}

// ReadAll implements the HandleReadAller interface.
func (fh *FileHandle) ReadAll(_ context.Context) ([]byte, error) {
	fh.mu.Lock()
	defer fh.mu.Unlock()

	fileLogger.Trace("Reading %d bytes from %q", len(fh.data), fh.file.path.String())
	out := make([]byte, len(fh.data))
	copy(out, fh.data)
	return out, nil
}

// Write implements the HandleWriter interface.
func (fh *FileHandle) Write(_ context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	fh.mu.Lock()
	defer fh.mu.Unlock()

	fileLogger.Trace("Writing %d bytes to %q at offset %d", len(req.Data), fh.file.path.String(), req.Offset)

	end := int(req.Offset) + len(req.Data)
	if end > len(fh.data) {
		fh.data = resize(fh.data, end)
	}
	copy(fh.data[req.Offset:], req.Data)
	fh.dirty = true
	resp.Size = len(req.Data)
	return nil
}

// Flush implements the HandleFlusher interface.
func (fh *FileHandle) Flush(_ context.Context, _ *fuse.FlushRequest) error {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	return fh.commit()
}

// Release implements the HandleReleaser interface.
func (fh *FileHandle) Release(_ context.Context, _ *fuse.ReleaseRequest) error {
	fh.mu.Lock()
	fileLogger.Debug("Closing file %q", fh.file.path.String())
	err := fh.commit()
	fh.mu.Unlock()

	fh.file.fsys.untrack(fh)
	return err
}

// truncate resizes the buffered contents to n.
func (fh *FileHandle) truncate(n int) {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	fh.data = resize(fh.data, n)
}

// commit writes buffered changes through. Callers hold mu.
func (fh *FileHandle) commit() error {
	if !fh.dirty {
		return nil
	}
	if err := fh.file.fsys.vfs.WriteFile(fh.file.path.String(), string(fh.data)); err != nil {
		fileLogger.Error("Failed to commit %q: %v", fh.file.path.String(), err)
		return ToFuseError(err)
	}
	fh.dirty = false
	fileLogger.Debug("Committed %d bytes to %q", len(fh.data), fh.file.path.String())
	return nil
}

func (f *FS) track(h *FileHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := h.file.path.String()
	if f.handles == nil {
		f.handles = make(map[string]map[*FileHandle]struct{})
	}
	if f.handles[p] == nil {
		f.handles[p] = make(map[*FileHandle]struct{})
	}
	f.handles[p][h] = struct{}{}
}

func (f *FS) untrack(h *FileHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := h.file.path.String()
	delete(f.handles[p], h)
	if len(f.handles[p]) == 0 {
		delete(f.handles, p)
	}
}

// openHandles returns the handles open on p. Callers lock each handle
// themselves, never while holding f.mu.
func (f *FS) openHandles(p string) []*FileHandle {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*FileHandle, 0, len(f.handles[p]))
	for h := range f.handles[p] {
		out = append(out, h)
	}
	return out
}

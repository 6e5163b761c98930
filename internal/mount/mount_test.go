package mount

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"

	"bazil.org/fuse"
	"github.com/stretchr/testify/require"

	"deskfs/internal/fs"
	"deskfs/internal/kv"
)

func setupTestFS(t *testing.T) (*FS, *fs.FileSystem) {
	t.Helper()
	vfs, err := fs.New(kv.NewMemoryStore())
	require.NoError(t, err)
	return NewFS(vfs, WithOwner(1000, 1000)), vfs
}

func rootDir(t *testing.T, f *FS) *Dir {
	t.Helper()
	root, err := f.Root()
	require.NoError(t, err)
	return root.(*Dir)
}

func TestNewFSOptions(t *testing.T) {
	vfs, err := fs.New(kv.NewMemoryStore())
	require.NoError(t, err)

	f := NewFS(vfs, WithOwner(7, 8), WithAllowOther())
	require.Equal(t, uint32(7), f.uid)
	require.Equal(t, uint32(8), f.gid)
	require.True(t, f.allowOther)

	root, err := f.Root()
	require.NoError(t, err)
	require.Same(t, f, root.(*Dir).fsys)

	require.False(t, NewFS(vfs).allowOther)
}

func TestDirOperations(t *testing.T) {
	f, vfs := setupTestFS(t)
	ctx := context.Background()
	root := rootDir(t, f)

	t.Run("RootAttributes", func(t *testing.T) {
		var attr fuse.Attr
		require.NoError(t, root.Attr(ctx, &attr))
		require.True(t, attr.Mode.IsDir())
		require.Equal(t, uint32(1000), attr.Uid)
		require.Equal(t, uint32(1000), attr.Gid)
	})

	t.Run("ReadDirAll", func(t *testing.T) {
		entries, err := root.ReadDirAll(ctx)
		require.NoError(t, err)
		require.Equal(t, []fuse.Dirent{
			{Name: ".", Type: fuse.DT_Dir},
			{Name: "..", Type: fuse.DT_Dir},
			{Name: "applications", Type: fuse.DT_Dir},
			{Name: "home", Type: fuse.DT_Dir},
		}, entries)
	})

	t.Run("Mkdir", func(t *testing.T) {
		node, err := root.Mkdir(ctx, &fuse.MkdirRequest{Name: "projects"})
		require.NoError(t, err)
		require.IsType(t, &Dir{}, node)
		require.True(t, vfs.Exists("/projects"))

		_, err = root.Mkdir(ctx, &fuse.MkdirRequest{Name: "projects"})
		require.Equal(t, fuse.Errno(syscall.EEXIST), err)
	})

	t.Run("Lookup", func(t *testing.T) {
		node, err := root.Lookup(ctx, "home")
		require.NoError(t, err)
		home := node.(*Dir)
		require.Equal(t, "/home", home.path.String())

		_, err = home.Lookup(ctx, "missing")
		require.Equal(t, fuse.Errno(syscall.ENOENT), err)

		_, err = home.Lookup(ctx, "..")
		require.Equal(t, fuse.Errno(syscall.ENOENT), err)
	})

	t.Run("Remove", func(t *testing.T) {
		require.NoError(t, vfs.WriteFile("/projects/keep.txt", "k"))

		err := root.Remove(ctx, &fuse.RemoveRequest{Name: "projects", Dir: true})
		require.Equal(t, fuse.Errno(syscall.ENOTEMPTY), err)

		node, err := root.Lookup(ctx, "projects")
		require.NoError(t, err)
		projects := node.(*Dir)

		err = projects.Remove(ctx, &fuse.RemoveRequest{Name: "keep.txt", Dir: true})
		require.Equal(t, fuse.Errno(syscall.ENOTDIR), err)

		require.NoError(t, projects.Remove(ctx, &fuse.RemoveRequest{Name: "keep.txt"}))
		require.NoError(t, root.Remove(ctx, &fuse.RemoveRequest{Name: "projects", Dir: true}))
		require.False(t, vfs.Exists("/projects"))
	})

	t.Run("Rename", func(t *testing.T) {
		require.NoError(t, vfs.WriteFile("/home/draft.txt", "draft"))

		node, err := root.Lookup(ctx, "home")
		require.NoError(t, err)
		home := node.(*Dir)
		node, err = root.Lookup(ctx, "applications")
		require.NoError(t, err)
		apps := node.(*Dir)

		require.NoError(t, home.Rename(ctx, &fuse.RenameRequest{OldName: "draft.txt", NewName: "final.txt"}, apps))
		contents, err := vfs.ReadFile("/applications/final.txt")
		require.NoError(t, err)
		require.Equal(t, "draft", contents)

		err = home.Rename(ctx, &fuse.RenameRequest{OldName: "documents", NewName: "pictures"}, home)
		require.Equal(t, fuse.Errno(syscall.EEXIST), err)
	})
}

func TestFileOperations(t *testing.T) {
	f, vfs := setupTestFS(t)
	ctx := context.Background()
	root := rootDir(t, f)

	node, err := root.Lookup(ctx, "home")
	require.NoError(t, err)
	home := node.(*Dir)

	t.Run("CreateWriteFlush", func(t *testing.T) {
		resp := &fuse.CreateResponse{}
		node, handle, err := home.Create(ctx, &fuse.CreateRequest{Name: "notes.txt"}, resp)
		require.NoError(t, err)
		require.True(t, vfs.Exists("/home/notes.txt"))

		h := handle.(*FileHandle)
		wresp := &fuse.WriteResponse{}
		require.NoError(t, h.Write(ctx, &fuse.WriteRequest{Data: []byte("hello"), Offset: 0}, wresp))
		require.Equal(t, 5, wresp.Size)
		require.NoError(t, h.Write(ctx, &fuse.WriteRequest{Data: []byte(" world"), Offset: 5}, wresp))

		// Nothing reaches the filesystem before flush.
		contents, err := vfs.ReadFile("/home/notes.txt")
		require.NoError(t, err)
		require.Empty(t, contents)

		require.NoError(t, h.Flush(ctx, &fuse.FlushRequest{}))
		contents, err = vfs.ReadFile("/home/notes.txt")
		require.NoError(t, err)
		require.Equal(t, "hello world", contents)

		var attr fuse.Attr
		require.NoError(t, node.Attr(ctx, &attr))
		require.Equal(t, uint64(11), attr.Size)
		require.Equal(t, os.FileMode(0644), attr.Mode)

		require.NoError(t, h.Release(ctx, &fuse.ReleaseRequest{}))
	})

	t.Run("CreateExclusive", func(t *testing.T) {
		_, _, err := home.Create(ctx, &fuse.CreateRequest{Name: "notes.txt", Flags: fuse.OpenExclusive}, &fuse.CreateResponse{})
		require.Equal(t, fuse.Errno(syscall.EEXIST), err)

		_, _, err = home.Create(ctx, &fuse.CreateRequest{Name: "documents"}, &fuse.CreateResponse{})
		require.Equal(t, fuse.Errno(syscall.EISDIR), err)
	})

	t.Run("OpenReadAll", func(t *testing.T) {
		node, err := home.Lookup(ctx, "notes.txt")
		require.NoError(t, err)
		file := node.(*File)

		handle, err := file.Open(ctx, &fuse.OpenRequest{}, &fuse.OpenResponse{})
		require.NoError(t, err)
		data, err := handle.(*FileHandle).ReadAll(ctx)
		require.NoError(t, err)
		require.Equal(t, "hello world", string(data))
	})

	t.Run("OverwriteInMiddle", func(t *testing.T) {
		node, err := home.Lookup(ctx, "notes.txt")
		require.NoError(t, err)

		handle, err := node.(*File).Open(ctx, &fuse.OpenRequest{}, &fuse.OpenResponse{})
		require.NoError(t, err)
		h := handle.(*FileHandle)
		require.NoError(t, h.Write(ctx, &fuse.WriteRequest{Data: []byte("W"), Offset: 6}, &fuse.WriteResponse{}))
		require.NoError(t, h.Release(ctx, &fuse.ReleaseRequest{}))

		contents, err := vfs.ReadFile("/home/notes.txt")
		require.NoError(t, err)
		require.Equal(t, "hello World", contents)
	})

	t.Run("OpenTruncate", func(t *testing.T) {
		node, err := home.Lookup(ctx, "notes.txt")
		require.NoError(t, err)

		handle, err := node.(*File).Open(ctx, &fuse.OpenRequest{Flags: fuse.OpenWriteOnly | fuse.OpenTruncate}, &fuse.OpenResponse{})
		require.NoError(t, err)
		require.NoError(t, handle.(*FileHandle).Flush(ctx, &fuse.FlushRequest{}))

		contents, err := vfs.ReadFile("/home/notes.txt")
		require.NoError(t, err)
		require.Empty(t, contents)
	})

	t.Run("SetattrSize", func(t *testing.T) {
		require.NoError(t, vfs.WriteFile("/home/sized.bin", "abcdef"))
		node, err := home.Lookup(ctx, "sized.bin")
		require.NoError(t, err)
		file := node.(*File)

		resp := &fuse.SetattrResponse{}
		require.NoError(t, file.Setattr(ctx, &fuse.SetattrRequest{Valid: fuse.SetattrSize, Size: 3}, resp))
		require.Equal(t, uint64(3), resp.Attr.Size)

		require.NoError(t, file.Setattr(ctx, &fuse.SetattrRequest{Valid: fuse.SetattrSize, Size: 5}, resp))
		contents, err := vfs.ReadFile("/home/sized.bin")
		require.NoError(t, err)
		require.Equal(t, "abc\x00\x00", contents)
	})

	t.Run("TruncateOpenHandle", func(t *testing.T) {
		require.NoError(t, vfs.WriteFile("/home/log.txt", "hello world"))
		node, err := home.Lookup(ctx, "log.txt")
		require.NoError(t, err)
		file := node.(*File)

		handle, err := file.Open(ctx, &fuse.OpenRequest{Flags: fuse.OpenReadWrite}, &fuse.OpenResponse{})
		require.NoError(t, err)
		h := handle.(*FileHandle)

		req := &fuse.SetattrRequest{Valid: fuse.SetattrSize | fuse.SetattrHandle, Size: 0}
		require.NoError(t, file.Setattr(ctx, req, &fuse.SetattrResponse{}))
		contents, err := vfs.ReadFile("/home/log.txt")
		require.NoError(t, err)
		require.Empty(t, contents)

		require.NoError(t, h.Write(ctx, &fuse.WriteRequest{Data: []byte("hi"), Offset: 0}, &fuse.WriteResponse{}))
		require.NoError(t, h.Flush(ctx, &fuse.FlushRequest{}))
		contents, err = vfs.ReadFile("/home/log.txt")
		require.NoError(t, err)
		require.Equal(t, "hi", contents)

		// A second handle opened before the truncate sees it too.
		other, err := file.Open(ctx, &fuse.OpenRequest{}, &fuse.OpenResponse{})
		require.NoError(t, err)
		require.NoError(t, file.Setattr(ctx, &fuse.SetattrRequest{Valid: fuse.SetattrSize, Size: 1}, &fuse.SetattrResponse{}))
		data, err := other.(*FileHandle).ReadAll(ctx)
		require.NoError(t, err)
		require.Equal(t, "h", string(data))

		require.NoError(t, h.Release(ctx, &fuse.ReleaseRequest{}))
		require.NoError(t, other.(*FileHandle).Release(ctx, &fuse.ReleaseRequest{}))
		require.Empty(t, f.openHandles("/home/log.txt"))
	})
}

func TestToFuseError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "nil", err: nil, want: nil},
		{name: "not found", err: fs.NewFSError(fs.OpRead, "/x", fs.ErrNotFound), want: fuse.Errno(syscall.ENOENT)},
		{name: "root forbidden", err: fs.NewFSError(fs.OpDelete, "/", fs.ErrRootForbidden), want: fuse.Errno(syscall.ENOENT)},
		{name: "parent missing", err: fs.ErrParentMissing, want: fuse.Errno(syscall.ENOENT)},
		{name: "not a directory", err: fs.ErrNotADirectory, want: fuse.Errno(syscall.ENOTDIR)},
		{name: "not a file", err: fs.ErrNotAFile, want: fuse.Errno(syscall.EISDIR)},
		{name: "already exists", err: fs.ErrAlreadyExists, want: fuse.Errno(syscall.EEXIST)},
		{name: "not empty", err: fs.ErrDirectoryNotEmpty, want: fuse.Errno(syscall.ENOTEMPTY)},
		{name: "invalid path", err: fs.ErrInvalidPath, want: fuse.Errno(syscall.EINVAL)},
		{name: "io", err: fs.ErrIO, want: fuse.Errno(syscall.EIO)},
		{name: "unknown", err: errors.New("boom"), want: fuse.Errno(syscall.EIO)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ToFuseError(tt.err))
		})
	}
}

func TestResize(t *testing.T) {
	require.Equal(t, []byte("ab"), resize([]byte("abc"), 2))
	require.Equal(t, []byte("abc\x00"), resize([]byte("abc"), 4))
	require.Empty(t, resize(nil, 0))
}

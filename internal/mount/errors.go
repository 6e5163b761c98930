package mount

import (
	"errors"
	"syscall"

	"bazil.org/fuse"

	"deskfs/internal/fs"
)

// ToFuseError maps a filesystem error to the errno the kernel should see.
// nil stays nil; anything unrecognized becomes EIO.
func ToFuseError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, fs.ErrNotFound), errors.Is(err, fs.ErrParentMissing):
		return fuse.Errno(syscall.ENOENT)
	case errors.Is(err, fs.ErrNotADirectory):
		return fuse.Errno(syscall.ENOTDIR)
	case errors.Is(err, fs.ErrNotAFile):
		return fuse.Errno(syscall.EISDIR)
	case errors.Is(err, fs.ErrAlreadyExists):
		return fuse.Errno(syscall.EEXIST)
	case errors.Is(err, fs.ErrDirectoryNotEmpty):
		return fuse.Errno(syscall.ENOTEMPTY)
	case errors.Is(err, fs.ErrInvalidPath):
		return fuse.Errno(syscall.EINVAL)
	default:
		mountLogger.Error("Returning EIO for: %v", err)
		return fuse.Errno(syscall.EIO)
	}
}

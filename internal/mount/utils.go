package mount

import (
	"time"

	"bazil.org/fuse"

	"deskfs/internal/fs"
)

func safeInt64ToUint64(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	return uint32(n)
}

// fillAttr copies ownership and times shared by files and directories.
// Only the modification time is tracked.
func (f *FS) fillAttr(a *fuse.Attr, meta fs.FileMetadata) {
	a.Uid = f.uid
	a.Gid = f.gid
	a.Mtime = time.UnixMilli(meta.Modified)
	a.Atime = a.Mtime
	a.Ctime = a.Mtime
}

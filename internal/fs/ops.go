package fs

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
	"sort"
	"time"

	"deskfs/internal/state"
)

// resolve normalizes p, wrapping a failure as an *Error for op.
func resolve(op, p string) (VirtualPath, error) {
	vp, err := NewVirtualPath(p)
	if err != nil {
		return VirtualPath{}, NewFSError(op, p, err)
	}
	return vp, nil
}

// Stat returns the metadata of the entry at p.
func (fsys *FileSystem) Stat(p string) (meta FileMetadata, err error) {
	defer fsys.observe(OpStat, time.Now(), &err)

	vp, err := resolve(OpStat, p)
	if err != nil {
		return FileMetadata{}, err
	}

	fsys.mu.RLock()
	defer fsys.mu.RUnlock()

	meta, ok := fsys.index[vp.String()]
	if !ok {
		return FileMetadata{}, NewFSError(OpStat, vp.String(), ErrNotFound)
	}
	return meta, nil
}

// Exists reports whether p names an entry. Invalid paths do not exist.
func (fsys *FileSystem) Exists(p string) bool {
	vp, err := NewVirtualPath(p)
	if err != nil {
		return false
	}

	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	_, ok := fsys.index[vp.String()]
	return ok
}

// Len returns the number of index entries, root included.
func (fsys *FileSystem) Len() int {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()
	return len(fsys.index)
}

// Entries returns the direct children of the directory at p. The children
// are captured when Entries is called, so the sequence is unaffected by
// later mutations. Order is unspecified.
func (fsys *FileSystem) Entries(p string) (seq iter.Seq[FileMetadata], err error) {
	defer fsys.observe(OpList, time.Now(), &err)

	vp, err := resolve(OpList, p)
	if err != nil {
		return nil, err
	}

	fsys.mu.RLock()
	meta, ok := fsys.index[vp.String()]
	if !ok {
		fsys.mu.RUnlock()
		return nil, NewFSError(OpList, vp.String(), ErrNotFound)
	}
	if !meta.IsDir() {
		fsys.mu.RUnlock()
		return nil, NewFSError(OpList, vp.String(), ErrNotADirectory)
	}
	snapshot := childrenOf(fsys.index, vp)
	fsys.mu.RUnlock()

	return slices.Values(snapshot), nil
}

// ListDirectory returns the direct children of the directory at p in
// unspecified order.
func (fsys *FileSystem) ListDirectory(p string) ([]FileMetadata, error) {
	seq, err := fsys.Entries(p)
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}

// ListSorted returns the direct children of the directory at p ordered
// by name.
func (fsys *FileSystem) ListSorted(p string) ([]FileMetadata, error) {
	entries, err := fsys.ListDirectory(p)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(entries, func(a, b FileMetadata) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return entries, nil
}

func childrenOf(ix state.Index, dir VirtualPath) []FileMetadata {
	prefix := dir.childPrefix()
	var out []FileMetadata
	for key, meta := range ix {
		if isDirectChild(key, prefix) {
			out = append(out, meta)
		}
	}
	return out
}

// descendantsOf returns every strict descendant path of dir, parents
// before children.
func descendantsOf(ix state.Index, dir VirtualPath) []string {
	var out []string
	for key := range ix {
		if dir.Contains(VirtualPath{path: key}) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// CreateDirectory adds a directory at p. With createParents, missing
// ancestors are created too; otherwise a missing parent fails with
// ErrParentMissing.
func (fsys *FileSystem) CreateDirectory(p string, createParents bool) (err error) {
	defer fsys.observe(OpMkdir, time.Now(), &err)

	vp, err := resolve(OpMkdir, p)
	if err != nil {
		return err
	}

	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	next := fsys.index.Clone()
	if err := fsys.mkdirIn(next, vp, createParents); err != nil {
		return err
	}
	if err := fsys.commit(OpMkdir, vp.String(), next); err != nil {
		return err
	}

	vfsLogger.Debug("Created directory %q", vp.String())
	return nil
}

// mkdirIn applies a directory creation to ix in place. ix is left
// untouched when an error is returned.
func (fsys *FileSystem) mkdirIn(ix state.Index, vp VirtualPath, createParents bool) error {
	if _, exists := ix[vp.String()]; exists {
		return NewFSError(OpMkdir, vp.String(), ErrAlreadyExists)
	}

	var missing []VirtualPath
	for anc := vp.Parent(); ; anc = anc.Parent() {
		meta, ok := ix[anc.String()]
		if ok {
			if !meta.IsDir() {
				return NewFSError(OpMkdir, anc.String(), ErrNotADirectory)
			}
			break
		}
		if !createParents {
			return NewFSError(OpMkdir, vp.String(), ErrParentMissing)
		}
		missing = append(missing, anc)
		if anc.IsRoot() {
			break
		}
	}

	for i := len(missing) - 1; i >= 0; i-- {
		ix[missing[i].String()] = fsys.dirMeta(missing[i].Base())
	}
	ix[vp.String()] = fsys.dirMeta(vp.Base())
	return nil
}

// WriteFile creates or overwrites the file at p. The parent directory must
// already exist. Contents reach the store before the index does.
func (fsys *FileSystem) WriteFile(p string, contents string) (err error) {
	defer fsys.observe(OpWrite, time.Now(), &err)

	vp, err := resolve(OpWrite, p)
	if err != nil {
		return err
	}
	if vp.IsRoot() {
		return NewFSError(OpWrite, vp.String(), fmt.Errorf("%w: cannot write to root", ErrInvalidPath))
	}

	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	parent, ok := fsys.index[vp.Parent().String()]
	if !ok {
		return NewFSError(OpWrite, vp.String(), ErrParentMissing)
	}
	if !parent.IsDir() {
		return NewFSError(OpWrite, vp.Parent().String(), ErrNotADirectory)
	}

	now := fsys.nowMillis()
	created := now
	if existing, ok := fsys.index[vp.String()]; ok {
		if existing.IsDir() {
			return NewFSError(OpWrite, vp.String(), ErrNotAFile)
		}
		created = existing.Created
	}

	if err := fsys.store.Set(fsys.ContentKey(vp), contents); err != nil {
		return ioError(OpWrite, vp.String(), err)
	}
	fsys.metrics.AddContent("write", len(contents))

	next := fsys.index.Clone()
	next[vp.String()] = FileMetadata{
		Name:     vp.Base(),
		FileType: File,
		Size:     int64(len(contents)),
		Created:  created,
		Modified: now,
	}
	if err := fsys.commit(OpWrite, vp.String(), next); err != nil {
		return err
	}

	vfsLogger.Debug("Wrote %d bytes to %q", len(contents), vp.String())
	return nil
}

// ReadFile returns the contents of the file at p. A file whose content key
// is missing from the store reads as ErrIO.
func (fsys *FileSystem) ReadFile(p string) (contents string, err error) {
	defer fsys.observe(OpRead, time.Now(), &err)

	vp, err := resolve(OpRead, p)
	if err != nil {
		return "", err
	}

	fsys.mu.RLock()
	defer fsys.mu.RUnlock()

	meta, ok := fsys.index[vp.String()]
	if !ok {
		return "", NewFSError(OpRead, vp.String(), ErrNotFound)
	}
	if meta.IsDir() {
		return "", NewFSError(OpRead, vp.String(), ErrNotAFile)
	}

	contents, found, err := fsys.store.Get(fsys.ContentKey(vp))
	if err != nil {
		return "", ioError(OpRead, vp.String(), err)
	}
	if !found {
		vfsLogger.Warn("Index entry %q has no content in the store", vp.String())
		return "", NewFSError(OpRead, vp.String(), fmt.Errorf("%w: content missing", ErrIO))
	}

	fsys.metrics.AddContent("read", len(contents))
	return contents, nil
}

// Delete removes the entry at p. A non-empty directory is only removed
// with recursive set, together with everything below it. The root can
// never be removed. Content keys are removed before the index is
// rewritten.
func (fsys *FileSystem) Delete(p string, recursive bool) (err error) {
	defer fsys.observe(OpDelete, time.Now(), &err)

	vp, err := resolve(OpDelete, p)
	if err != nil {
		return err
	}
	if vp.IsRoot() {
		return NewFSError(OpDelete, vp.String(), ErrRootForbidden)
	}

	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	meta, ok := fsys.index[vp.String()]
	if !ok {
		return NewFSError(OpDelete, vp.String(), ErrNotFound)
	}

	victims := []string{vp.String()}
	if meta.IsDir() {
		below := descendantsOf(fsys.index, vp)
		if len(below) > 0 && !recursive {
			return NewFSError(OpDelete, vp.String(), ErrDirectoryNotEmpty)
		}
		victims = append(victims, below...)
	}

	next := fsys.index.Clone()
	for _, key := range victims {
		if !next[key].IsDir() {
			if err := fsys.store.Remove(fsys.contentPrefix + key); err != nil {
				return ioError(OpDelete, key, err)
			}
		}
		delete(next, key)
	}
	if err := fsys.commit(OpDelete, vp.String(), next); err != nil {
		return err
	}

	vfsLogger.Debug("Deleted %q (%d entries)", vp.String(), len(victims))
	return nil
}

// Rename moves the entry at oldPath, and everything below it when it is a
// directory, to newPath. newPath must not exist and its parent must be an
// existing directory. File contents are copied to their new keys before the
// index is rewritten and the old keys are removed afterwards.
func (fsys *FileSystem) Rename(oldPath, newPath string) (err error) {
	defer fsys.observe(OpRename, time.Now(), &err)

	src, err := resolve(OpRename, oldPath)
	if err != nil {
		return err
	}
	dst, err := resolve(OpRename, newPath)
	if err != nil {
		return err
	}
	if src.IsRoot() || dst.IsRoot() {
		return NewFSError(OpRename, src.String(), fmt.Errorf("%w: cannot move root", ErrInvalidPath))
	}
	if src.Contains(dst) {
		return NewFSError(OpRename, dst.String(), fmt.Errorf("%w: cannot move %s into itself", ErrInvalidPath, src))
	}

	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	meta, ok := fsys.index[src.String()]
	if !ok {
		return NewFSError(OpRename, src.String(), ErrNotFound)
	}
	if _, exists := fsys.index[dst.String()]; exists {
		return NewFSError(OpRename, dst.String(), ErrAlreadyExists)
	}
	parent, ok := fsys.index[dst.Parent().String()]
	if !ok {
		return NewFSError(OpRename, dst.String(), ErrParentMissing)
	}
	if !parent.IsDir() {
		return NewFSError(OpRename, dst.Parent().String(), ErrNotADirectory)
	}

	moves := map[string]string{src.String(): dst.String()}
	if meta.IsDir() {
		for _, key := range descendantsOf(fsys.index, src) {
			moves[key] = dst.String() + key[len(src.String()):]
		}
	}

	next := fsys.index.Clone()
	var movedContent []string
	for from, to := range moves {
		m := next[from]
		delete(next, from)
		if from == src.String() {
			m.Name = dst.Base()
			m.Modified = fsys.nowMillis()
		}
		next[to] = m

		if m.IsDir() {
			continue
		}
		contents, found, err := fsys.store.Get(fsys.contentPrefix + from)
		if err != nil {
			return ioError(OpRename, from, err)
		}
		if !found {
			return NewFSError(OpRename, from, fmt.Errorf("%w: content missing", ErrIO))
		}
		if err := fsys.store.Set(fsys.contentPrefix+to, contents); err != nil {
			return ioError(OpRename, to, err)
		}
		movedContent = append(movedContent, from)
	}

	if err := fsys.commit(OpRename, src.String(), next); err != nil {
		return err
	}

	for _, from := range movedContent {
		if err := fsys.store.Remove(fsys.contentPrefix + from); err != nil {
			vfsLogger.Warn("Failed to remove old content of %q: %v", from, err)
		}
	}

	vfsLogger.Debug("Renamed %q to %q (%d entries)", src.String(), dst.String(), len(moves))
	return nil
}

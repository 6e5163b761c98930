package fs

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"deskfs/internal/kv"
	"deskfs/internal/logging"
	"deskfs/internal/metrics"
	"deskfs/internal/state"
)

var (
	vfsLogger = logging.GetLogger().WithPrefix("vfs")
)

// FileMetadata describes one entry of the index.
type FileMetadata = state.FileMetadata

// FileType distinguishes files from directories.
type FileType = state.FileType

const (
	File      = state.TypeFile
	Directory = state.TypeDirectory
)

const (
	// DefaultIndexKey is the store key the serialized index lives under.
	DefaultIndexKey = "deskfs_index"
	// DefaultContentPrefix is prepended to a file's path to form its
	// content key.
	DefaultContentPrefix = "deskfs_file:"
)

// DefaultSeed is the directory layout created on first start.
var DefaultSeed = []string{
	"/home",
	"/home/documents",
	"/home/pictures",
	"/applications",
}

// FileSystem is a hierarchical filesystem emulated on a flat key-value
// store. The index of every path lives in memory and is rewritten to the
// store as a whole after each mutation; file contents live under their own
// keys. All methods are safe for concurrent use.
type FileSystem struct {
	store         kv.Store
	stateManager  *state.Manager
	index         state.Index
	contentPrefix string
	now           func() time.Time
	metrics       *metrics.Metrics
	mu            sync.RWMutex
}

type options struct {
	seed          []string
	now           func() time.Time
	metrics       *metrics.Metrics
	backups       int
	indexKey      string
	contentPrefix string
}

// Option configures a FileSystem.
type Option func(*options)

// WithSeed replaces the directories created when no index exists yet.
func WithSeed(paths ...string) Option {
	return func(o *options) { o.seed = paths }
}

// WithClock sets the time source for created/modified stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMetrics records operations into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithBackups keeps n previous index versions in the store.
func WithBackups(n int) Option {
	return func(o *options) { o.backups = n }
}

// WithKeys overrides the index key and content key prefix.
func WithKeys(indexKey, contentPrefix string) Option {
	return func(o *options) {
		if indexKey != "" {
			o.indexKey = indexKey
		}
		if contentPrefix != "" {
			o.contentPrefix = contentPrefix
		}
	}
}

// New loads the index persisted in store, or seeds a fresh one when none
// exists or the stored one is unusable. It fails with ErrInit when the
// store cannot be read or the fresh index cannot be written.
func New(store kv.Store, opts ...Option) (*FileSystem, error) {
	o := options{
		seed:          DefaultSeed,
		now:           time.Now,
		indexKey:      DefaultIndexKey,
		contentPrefix: DefaultContentPrefix,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if store == nil {
		return nil, NewFSError(OpInit, "", fmt.Errorf("%w: %w", ErrInit, kv.ErrUnavailable))
	}
	// Content keys are prefix + "/...", so an index key of that shape
	// would be clobbered by a file write.
	if strings.HasPrefix(o.indexKey, o.contentPrefix+"/") {
		return nil, NewFSError(OpInit, "", fmt.Errorf("%w: index key %q lies in content namespace %q",
			ErrInit, o.indexKey, o.contentPrefix))
	}

	fsys := &FileSystem{
		store:         store,
		stateManager:  state.NewManager(store, o.indexKey, o.backups),
		contentPrefix: o.contentPrefix,
		now:           o.now,
		metrics:       o.metrics,
	}

	vfsLogger.Info("Loading filesystem index")
	ix, err := fsys.stateManager.LoadState()
	switch {
	case err == nil:
		if verr := validateIndex(ix); verr != nil {
			vfsLogger.Warn("Persisted index is inconsistent, starting fresh: %v", verr)
			break
		}
		fsys.index = ix
		fsys.metrics.SetEntries(len(ix))
		vfsLogger.Info("Filesystem ready with %d entries", len(ix))
		return fsys, nil
	case errors.Is(err, state.ErrNoState):
	case errors.Is(err, state.ErrCorruptState):
		vfsLogger.Warn("Persisted index is unreadable, starting fresh: %v", err)
	default:
		vfsLogger.Error("Cannot read index: %v", err)
		return nil, NewFSError(OpInit, "", fmt.Errorf("%w: %w", ErrInit, err))
	}

	if err := fsys.seed(o.seed); err != nil {
		return nil, err
	}
	return fsys, nil
}

// seed installs a fresh index holding the root and each seed directory
// with its parents, and persists it with a single write.
func (fsys *FileSystem) seed(paths []string) error {
	vfsLogger.Info("Creating fresh index with %d seed directories", len(paths))

	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	ix := state.Index{"/": fsys.dirMeta("/")}
	for _, p := range paths {
		vp, err := NewVirtualPath(p)
		if err == nil {
			err = fsys.mkdirIn(ix, vp, true)
		}
		if err != nil && !errors.Is(err, ErrAlreadyExists) {
			vfsLogger.Warn("Skipping seed directory %q: %v", p, err)
		}
	}

	if err := fsys.persist(ix); err != nil {
		return NewFSError(OpInit, "", fmt.Errorf("%w: %w", ErrInit, err))
	}
	fsys.index = ix
	fsys.metrics.SetEntries(len(ix))
	vfsLogger.Info("Filesystem ready with %d entries", len(ix))
	return nil
}

// persist writes ix as the live index. Callers hold mu.
func (fsys *FileSystem) persist(ix state.Index) error {
	err := fsys.stateManager.SaveState(ix)
	fsys.metrics.IndexWritten(err)
	if err != nil {
		vfsLogger.Error("Failed to persist index: %v", err)
	}
	return err
}

// commit persists next and, only if that succeeds, makes it the live
// index. Callers hold mu for writing.
func (fsys *FileSystem) commit(op, path string, next state.Index) error {
	if err := fsys.persist(next); err != nil {
		return ioError(op, path, err)
	}
	fsys.index = next
	fsys.metrics.SetEntries(len(next))
	return nil
}

func (fsys *FileSystem) nowMillis() int64 {
	return fsys.now().UnixMilli()
}

func (fsys *FileSystem) dirMeta(name string) FileMetadata {
	now := fsys.nowMillis()
	return FileMetadata{
		Name:     name,
		FileType: Directory,
		Created:  now,
		Modified: now,
	}
}

// ContentKey returns the store key holding the contents of the file at p.
func (fsys *FileSystem) ContentKey(p VirtualPath) string {
	return fsys.contentPrefix + p.String()
}

// observe is deferred by every public operation with a pointer to its
// named error result.
func (fsys *FileSystem) observe(op string, started time.Time, errp *error) {
	fsys.metrics.Observe(op, Kind(*errp), started)
}

// validateIndex checks the structural invariants of a loaded index.
func validateIndex(ix state.Index) error {
	root, ok := ix["/"]
	if !ok {
		return errors.New("root entry missing")
	}
	if !root.IsDir() {
		return errors.New("root entry is not a directory")
	}

	for p, meta := range ix {
		vp, err := NewVirtualPath(p)
		if err != nil {
			return fmt.Errorf("entry %q: %w", p, err)
		}
		if vp.String() != p {
			return fmt.Errorf("entry %q is not normalized", p)
		}
		if vp.IsRoot() {
			continue
		}
		if meta.Name != vp.Base() {
			return fmt.Errorf("entry %q has name %q", p, meta.Name)
		}
		parent, ok := ix[vp.Parent().String()]
		if !ok || !parent.IsDir() {
			return fmt.Errorf("entry %q has no parent directory", p)
		}
	}
	return nil
}

// Backups lists the stored index backups, newest first.
func (fsys *FileSystem) Backups() ([]state.Backup, error) {
	return fsys.stateManager.Backups()
}

// RestoreBackup promotes the index backup in slot to the live index.
// File contents are not touched; run Check afterwards to find entries
// whose content no longer exists.
func (fsys *FileSystem) RestoreBackup(slot int) (err error) {
	defer fsys.observe(OpRestore, time.Now(), &err)

	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	var invalid bool
	ix, err := fsys.stateManager.Restore(slot, func(ix state.Index) error {
		verr := validateIndex(ix)
		invalid = verr != nil
		return verr
	})
	if err != nil {
		if !invalid && (errors.Is(err, state.ErrNoState) || errors.Is(err, state.ErrCorruptState)) {
			return NewFSError(OpRestore, "", fmt.Errorf("%w: %w", ErrNotFound, err))
		}
		return ioError(OpRestore, "", err)
	}

	fsys.index = ix
	fsys.metrics.SetEntries(len(ix))
	vfsLogger.Info("Restored index backup %d", slot)
	return nil
}

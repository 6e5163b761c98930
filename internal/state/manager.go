package state

import (
	"fmt"
	"strconv"
	"sync"

	"deskfs/internal/kv"
	"deskfs/internal/logging"
)

var (
	logger = logging.GetLogger().WithPrefix("state")
)

// Manager handles loading and saving the serialized index under a single
// store key, optionally rotating the previous versions into backup keys.
type Manager struct {
	store       kv.Store
	key         string
	backupCount int
	mu          sync.Mutex
}

// Backup describes one rotated copy of the index.
type Backup struct {
	Slot    int
	Entries int
	Valid   bool
}

// NewManager creates a manager persisting the index under key. backupCount
// previous versions are kept; zero disables backups.
func NewManager(store kv.Store, key string, backupCount int) *Manager {
	if backupCount < 0 {
		backupCount = 0
	}
	logger.Debug("Creating state manager for key %q with %d backups", key, backupCount)
	return &Manager{
		store:       store,
		key:         key,
		backupCount: backupCount,
	}
}

// Key returns the store key the live index is persisted under.
func (sm *Manager) Key() string {
	return sm.key
}

func (sm *Manager) backupKey(slot int) string {
	return sm.key + ".bak." + strconv.Itoa(slot)
}

// LoadState reads and parses the persisted index. It returns ErrNoState
// when nothing has been persisted yet and ErrCorruptState when the stored
// document does not parse; any other error comes from the store itself.
func (sm *Manager) LoadState() (Index, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	logger.Debug("Loading index from key %q", sm.key)
	data, ok, err := sm.store.Get(sm.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	if !ok || data == "" {
		logger.Info("No persisted index found")
		return nil, ErrNoState
	}

	logger.Debug("Parsing persisted index (%d bytes)", len(data))
	ix, err := Deserialize(data)
	if err != nil {
		return nil, err
	}

	logger.Info("Index loaded with %d entries", len(ix))
	return ix, nil
}

// SaveState serializes ix and writes it under the index key, rotating the
// previously stored version into the backups first.
func (sm *Manager) SaveState(ix Index) error {
	data, err := Serialize(ix)
	if err != nil {
		return err
	}
	return sm.SaveRaw(data)
}

// SaveRaw writes an already serialized index.
func (sm *Manager) SaveRaw(data string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if data == "" {
		return fmt.Errorf("refusing to write empty index data")
	}

	if sm.backupCount > 0 {
		if backupErr := sm.rotateBackups(); backupErr != nil {
			logger.Warn("Failed to rotate index backups: %v", backupErr)
			// Continue with save even if backup fails
		}
	}

	logger.Trace("Writing %d bytes of index data", len(data))
	if err := sm.store.Set(sm.key, data); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}

// rotateBackups shifts every backup one slot down and copies the live
// index into slot 0. The oldest backup falls off the end.
func (sm *Manager) rotateBackups() error {
	current, ok, err := sm.store.Get(sm.key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	for slot := sm.backupCount - 1; slot > 0; slot-- {
		prev, exists, err := sm.store.Get(sm.backupKey(slot - 1))
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := sm.store.Set(sm.backupKey(slot), prev); err != nil {
			return fmt.Errorf("failed to write backup %d: %w", slot, err)
		}
	}

	logger.Debug("Creating index backup in slot 0")
	return sm.store.Set(sm.backupKey(0), current)
}

// Backups lists the stored backups, newest first.
func (sm *Manager) Backups() ([]Backup, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var backups []Backup
	for slot := 0; slot < sm.backupCount; slot++ {
		data, ok, err := sm.store.Get(sm.backupKey(slot))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		b := Backup{Slot: slot}
		if ix, parseErr := Deserialize(data); parseErr == nil {
			b.Valid = true
			b.Entries = len(ix)
		}
		backups = append(backups, b)
	}
	return backups, nil
}

// Restore promotes the backup in slot to the live index. The current live
// index is not rotated, so restoring is repeatable. When validate is not
// nil it is called first, and a rejected backup leaves the store untouched.
func (sm *Manager) Restore(slot int, validate func(Index) error) (Index, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if slot < 0 || slot >= sm.backupCount {
		return nil, fmt.Errorf("backup slot %d out of range [0,%d): %w", slot, sm.backupCount, ErrNoState)
	}

	data, ok, err := sm.store.Get(sm.backupKey(slot))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("backup slot %d: %w", slot, ErrNoState)
	}

	ix, err := Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("backup slot %d: %w", slot, err)
	}
	if validate != nil {
		if err := validate(ix); err != nil {
			return nil, fmt.Errorf("backup slot %d rejected: %w", slot, err)
		}
	}

	if err := sm.store.Set(sm.key, data); err != nil {
		return nil, fmt.Errorf("failed to restore backup %d: %w", slot, err)
	}

	logger.Info("Restored index from backup slot %d (%d entries)", slot, len(ix))
	return ix, nil
}

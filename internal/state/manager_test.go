package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"deskfs/internal/kv"
)

func sampleIndex() Index {
	return Index{
		"/":              {Name: "/", FileType: TypeDirectory, Created: 1, Modified: 1},
		"/home":          {Name: "home", FileType: TypeDirectory, Created: 2, Modified: 2},
		"/home/note.txt": {Name: "note.txt", FileType: TypeFile, Size: 5, Created: 3, Modified: 4},
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	ix := sampleIndex()

	data, err := Serialize(ix)
	require.NoError(t, err)
	require.Contains(t, data, `"file_type":"Directory"`)
	require.Contains(t, data, `"file_type":"File"`)

	back, err := Deserialize(data)
	require.NoError(t, err)
	require.Equal(t, ix, back)

	// Equal indexes serialize to identical bytes.
	again, err := Serialize(back)
	require.NoError(t, err)
	require.Equal(t, data, again)
}

func TestDeserializeRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "not json", data: "{"},
		{name: "missing files", data: `{"version":1}`},
		{name: "future version", data: `{"version":99,"files":{}}`},
		{name: "bad file type", data: `{"version":1,"files":{"/":{"name":"/","file_type":"Socket"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Deserialize(tt.data)
			require.ErrorIs(t, err, ErrCorruptState)
		})
	}
}

func TestManagerLoadSave(t *testing.T) {
	store := kv.NewMemoryStore()
	sm := NewManager(store, "idx", 0)

	_, err := sm.LoadState()
	require.ErrorIs(t, err, ErrNoState)

	require.NoError(t, sm.SaveState(sampleIndex()))

	ix, err := sm.LoadState()
	require.NoError(t, err)
	require.Equal(t, sampleIndex(), ix)

	// Without backups nothing but the live key is written.
	require.Equal(t, 1, store.Len())

	require.NoError(t, store.Set("idx", "garbage"))
	_, err = sm.LoadState()
	require.ErrorIs(t, err, ErrCorruptState)
}

func TestManagerBackups(t *testing.T) {
	store := kv.NewMemoryStore()
	sm := NewManager(store, "idx", 2)

	first := Index{"/": {Name: "/", FileType: TypeDirectory}}
	second := sampleIndex()
	third := sampleIndex()
	third["/tmp"] = FileMetadata{Name: "tmp", FileType: TypeDirectory}

	require.NoError(t, sm.SaveState(first))
	backups, err := sm.Backups()
	require.NoError(t, err)
	require.Empty(t, backups)

	require.NoError(t, sm.SaveState(second))
	require.NoError(t, sm.SaveState(third))

	backups, err = sm.Backups()
	require.NoError(t, err)
	require.Equal(t, []Backup{
		{Slot: 0, Entries: len(second), Valid: true},
		{Slot: 1, Entries: len(first), Valid: true},
	}, backups)

	restored, err := sm.Restore(1, nil)
	require.NoError(t, err)
	require.Equal(t, first, restored)

	live, err := sm.LoadState()
	require.NoError(t, err)
	require.Equal(t, first, live)

	_, err = sm.Restore(2, nil)
	require.Error(t, err)

	rejected := errors.New("rejected")
	_, err = sm.Restore(0, func(Index) error { return rejected })
	require.ErrorIs(t, err, rejected)
	live, err = sm.LoadState()
	require.NoError(t, err)
	require.Equal(t, first, live)
}

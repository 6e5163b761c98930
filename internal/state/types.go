// Package state provides the persisted form of the filesystem index.
package state

import (
	"fmt"
	"maps"
)

// CurrentVersion is written into every serialized index.
const CurrentVersion = 1

// FileType distinguishes files from directories.
type FileType int

const (
	TypeFile FileType = iota
	TypeDirectory
)

func (t FileType) String() string {
	switch t {
	case TypeFile:
		return "File"
	case TypeDirectory:
		return "Directory"
	default:
		return fmt.Sprintf("FileType(%d)", int(t))
	}
}

// MarshalText encodes the type by name.
func (t FileType) MarshalText() ([]byte, error) {
	switch t {
	case TypeFile, TypeDirectory:
		return []byte(t.String()), nil
	default:
		return nil, fmt.Errorf("invalid file type %d", int(t))
	}
}

// UnmarshalText decodes a type name.
func (t *FileType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "File":
		*t = TypeFile
	case "Directory":
		*t = TypeDirectory
	default:
		return fmt.Errorf("invalid file type %q", string(b))
	}
	return nil
}

// FileMetadata describes one entry of the index. Timestamps are Unix
// milliseconds.
type FileMetadata struct {
	Name     string   `json:"name"`
	FileType FileType `json:"file_type"`
	Size     int64    `json:"size"`
	Created  int64    `json:"created"`
	Modified int64    `json:"modified"`
}

// IsDir reports whether the entry is a directory.
func (m FileMetadata) IsDir() bool {
	return m.FileType == TypeDirectory
}

// Index maps normalized absolute paths to their metadata.
type Index map[string]FileMetadata

// Clone returns a shallow copy; FileMetadata has no reference fields.
func (ix Index) Clone() Index {
	return maps.Clone(ix)
}

// Document is the serialized form of an Index.
type Document struct {
	Version int   `json:"version"`
	Files   Index `json:"files"`
}

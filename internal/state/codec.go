package state

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

var (
	// ErrNoState indicates that no serialized index exists yet.
	ErrNoState = errors.New("no persisted index")

	// ErrCorruptState indicates a persisted index that does not parse.
	ErrCorruptState = errors.New("persisted index is corrupt")
)

// Serialize encodes an index. Map keys are written in sorted order, so
// equal indexes always produce identical output.
func Serialize(ix Index) (string, error) {
	data, err := json.Marshal(Document{Version: CurrentVersion, Files: ix})
	if err != nil {
		return "", fmt.Errorf("failed to marshal index: %w", err)
	}
	return string(data), nil
}

// Deserialize decodes an index written by Serialize.
func Deserialize(data string) (Index, error) {
	if data == "" {
		return nil, fmt.Errorf("%w: empty document", ErrCorruptState)
	}

	var doc Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if doc.Version > CurrentVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptState, doc.Version)
	}
	if doc.Files == nil {
		return nil, fmt.Errorf("%w: missing files", ErrCorruptState)
	}
	return doc.Files, nil
}

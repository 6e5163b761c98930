// Package fs provides filesystem implementations.
//
// This file contains error types and error handling utilities.
package fs

import (
	"errors"
	"fmt"

	"deskfs/internal/logging"
)

var (
	errLogger = logging.GetLogger().WithPrefix("error")

	// ErrInit indicates the filesystem could not be brought up at all
	ErrInit = errors.New("filesystem initialization failed")

	// ErrNotFound indicates a path doesn't exist
	ErrNotFound = errors.New("no such file or directory")

	// ErrNotADirectory indicates a directory operation on a file
	ErrNotADirectory = errors.New("not a directory")

	// ErrNotAFile indicates a file operation on a directory
	ErrNotAFile = errors.New("not a file")

	// ErrAlreadyExists indicates path already exists
	ErrAlreadyExists = errors.New("path already exists")

	// ErrParentMissing indicates the containing directory doesn't exist
	ErrParentMissing = errors.New("parent directory does not exist")

	// ErrDirectoryNotEmpty indicates attempt to remove non-empty directory
	ErrDirectoryNotEmpty = errors.New("directory not empty")

	// ErrInvalidPath indicates an invalid path format
	ErrInvalidPath = errors.New("invalid path format")

	// ErrIO indicates a store failure or a broken index/content invariant
	ErrIO = errors.New("i/o error")

	// ErrRootForbidden indicates an attempt to remove the root directory.
	// It matches ErrNotFound.
	ErrRootForbidden = fmt.Errorf("%w: root directory cannot be removed", ErrNotFound)
)

// Error wraps filesystem errors with context about the operation and
// affected path.
type Error struct {
	Op   string // Operation that failed (e.g., "mkdir", "read")
	Path string // Affected path
	Err  error  // Underlying error
}

// Error implements the error interface, providing a formatted error message
func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap implements error unwrapping for the errors.Is/As functions
func (e *Error) Unwrap() error {
	return e.Err
}

// NewFSError creates a new Error with the given operation, path, and underlying error
func NewFSError(op string, path string, err error) *Error {
	fsErr := &Error{
		Op:   op,
		Path: path,
		Err:  err,
	}
	errLogger.Debug("Created new FSError: %v", fsErr)
	return fsErr
}

// ioError wraps a store failure so that it matches ErrIO and still
// exposes the cause.
func ioError(op, path string, cause error) *Error {
	return NewFSError(op, path, fmt.Errorf("%w: %w", ErrIO, cause))
}

// Common operation names for consistent logging and error reporting
const (
	OpInit    = "init"    // Loading or seeding the index
	OpList    = "list"    // Listing a directory
	OpStat    = "stat"    // Looking up one entry
	OpMkdir   = "mkdir"   // Creating a directory
	OpWrite   = "write"   // Creating or overwriting a file
	OpRead    = "read"    // Reading a file
	OpDelete  = "delete"  // Removing a file or directory
	OpRename  = "rename"  // Moving a file or directory
	OpCheck   = "check"   // Consistency scan
	OpRestore = "restore" // Promoting an index backup
)

// Kind returns a short, stable name for the error kind of err, suitable
// for display and metric labels. It returns "" for nil.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInit):
		return "init"
	case errors.Is(err, ErrRootForbidden):
		return "root_forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotADirectory):
		return "not_a_directory"
	case errors.Is(err, ErrNotAFile):
		return "not_a_file"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrParentMissing):
		return "parent_missing"
	case errors.Is(err, ErrDirectoryNotEmpty):
		return "directory_not_empty"
	case errors.Is(err, ErrInvalidPath):
		return "invalid_path"
	case errors.Is(err, ErrIO):
		return "io"
	default:
		return "unknown"
	}
}

// Package kv provides the flat, string-keyed key-value stores the virtual
// filesystem persists itself into.
//
// A Store is synchronous and context-free, the way browser local storage
// is: Get, Set and Remove either complete before returning or fail.
// Backends that talk to a remote service bound every call with their own
// timeout.
package kv

import (
	"errors"
	"sort"
	"strings"
)

// ErrUnavailable reports that the backing store cannot be reached at all.
var ErrUnavailable = errors.New("store unavailable")

// Store is a persistent string-keyed, string-valued map.
type Store interface {
	// Get returns the value stored under key. ok is false when the key is
	// absent; err is reserved for failures of the store itself.
	Get(key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
	// Close releases the resources held by the store.
	Close() error
}

// Lister is implemented by stores that can enumerate their keys.
type Lister interface {
	// Keys returns every key starting with prefix, sorted.
	Keys(prefix string) ([]string, error)
}

func filterSorted(keys []string, prefix string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

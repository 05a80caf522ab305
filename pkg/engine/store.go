// Package engine defines the key-value persistence layer every archive writes through.
package engine

import (
	"errors"
	"strings"
)

var (
	// ErrKeyNotFound is returned when a requested key holds no value.
	ErrKeyNotFound = errors.New("key not found")
	// ErrStorageFull is returned when a write would push the store past its quota.
	ErrStorageFull = errors.New("storage full")
	// ErrInvalidKey is returned for keys that cannot be stored or sent over the wire.
	ErrInvalidKey = errors.New("invalid key")
)

// Reader defines the read side of the store.
type Reader interface {
	// Get returns the serialized value stored under key.
	Get(key string) (string, error)
}

// Writer defines the write and delete operations of the store.
type Writer interface {
	// Set replaces the value stored under key.
	Set(key, val string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}

// Lister allows discovering which keys hold data.
type Lister interface {
	Keys() ([]string, error)
}

// Storage is the primary interface for the persistence layer.
// Both the embedded MemStore and the remote SDK client implement it.
type Storage interface {
	Reader
	Writer
	Lister
}

// ValidateKey rejects keys that would break file names or the line protocol.
func ValidateKey(key string) error {
	if key == "" || strings.ContainsAny(key, " \t\r\n/\\") || key == "." || key == ".." {
		return ErrInvalidKey
	}
	return nil
}

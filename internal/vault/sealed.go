package vault

import (
	"fmt"

	"github.com/celerix-dev/celerix-comms/pkg/engine"
)

// Sealed encrypts every value before it reaches the wrapped storage.
// Keys are stored in clear so listing and migration keep working.
type Sealed struct {
	inner engine.Storage
	key   []byte
}

var _ engine.Storage = (*Sealed)(nil)

func Seal(inner engine.Storage, key []byte) (*Sealed, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	return &Sealed{inner: inner, key: key}, nil
}

func (s *Sealed) Get(key string) (string, error) {
	raw, err := s.inner.Get(key)
	if err != nil {
		return "", err
	}
	val, err := Decrypt(raw, s.key)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", key, err)
	}
	return val, nil
}

func (s *Sealed) Set(key, val string) error {
	sealed, err := Encrypt(val, s.key)
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}
	return s.inner.Set(key, sealed)
}

func (s *Sealed) Delete(key string) error { return s.inner.Delete(key) }
func (s *Sealed) Keys() ([]string, error) { return s.inner.Keys() }

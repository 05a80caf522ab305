package engine

import "fmt"

// Migrate copies every key from a source store into a destination store.
// This works for:
// - Embedded -> Remote (moving a local archive onto a daemon)
// - Remote -> Embedded (offline backup)
//
// It returns the number of keys copied.
func Migrate(src Storage, dst Writer) (int, error) {
	keys, err := src.Keys()
	if err != nil {
		return 0, fmt.Errorf("failed to list keys: %w", err)
	}

	copied := 0
	for _, k := range keys {
		val, err := src.Get(k)
		if err != nil {
			return copied, fmt.Errorf("failed to read key %s: %w", k, err)
		}
		if err := dst.Set(k, val); err != nil {
			return copied, fmt.Errorf("failed to set key %s in destination: %w", k, err)
		}
		copied++
	}
	return copied, nil
}

// Package snapshot loads and saves JSON values kept under a single storage key.
//
// Corrupt data is never raised as an error to the caller. Instead the Result
// says whether the value was decoded, absent, recovered as empty, or could not
// be read at all, so callers can choose to warn instead of silently resetting.
package snapshot

import (
	"errors"
	"fmt"

	"github.com/celerix-dev/celerix-comms/pkg/engine"
	"github.com/celerix-dev/celerix-comms/pkg/sdk"
)

// Status describes how a value was obtained.
type Status int

const (
	// StatusLoaded means the stored value was decoded.
	StatusLoaded Status = iota
	// StatusAbsent means nothing is stored under the key.
	StatusAbsent
	// StatusRecovered means the stored value was corrupt and the zero value was used.
	StatusRecovered
	// StatusFailed means the backend could not be read.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoaded:
		return "loaded"
	case StatusAbsent:
		return "absent"
	case StatusRecovered:
		return "recovered"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Result carries a decoded value and how it was obtained.
// Err is set for StatusRecovered (the decode error) and StatusFailed.
type Result[T any] struct {
	Value  T
	Status Status
	Err    error
}

// Usable reports whether Value can be written back without losing data the
// backend still holds. Recovered values are usable: the corrupt data is gone anyway.
func (r Result[T]) Usable() bool {
	return r.Status != StatusFailed
}

// Load reads key from r and decodes it into T.
func Load[T any](r engine.Reader, key string) Result[T] {
	var res Result[T]

	val, err := sdk.Get[T](r, key)
	switch {
	case err == nil:
		res.Value = val
		res.Status = StatusLoaded
	case sdk.IsNotFound(err):
		res.Status = StatusAbsent
	case errors.Is(err, sdk.ErrDecode):
		res.Status = StatusRecovered
		res.Err = err
	default:
		res.Status = StatusFailed
		res.Err = fmt.Errorf("read %s: %w", key, err)
	}
	return res
}

// Save encodes v and stores it under key.
func Save[T any](w engine.Writer, key string, v T) error {
	return sdk.Set(w, key, v)
}

package sdk

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/celerix-dev/celerix-comms/pkg/engine"
)

// ErrDecode is returned by Get when the stored value is not valid JSON for the target type.
var ErrDecode = errors.New("stored value does not decode")

// Store is what New and Open return. The caller does not know whether the
// data lives in this process or behind a daemon.
type Store interface {
	engine.Storage
	io.Closer
}

// Pinger is implemented by stores that live behind a network connection.
type Pinger interface {
	Ping() error
}

// Reply codes sent after "ERR" on the wire.
const (
	CodeNotFound    = "NOT_FOUND"
	CodeStorageFull = "STORAGE_FULL"
	CodeInvalidKey  = "INVALID_KEY"
	CodeBadRequest  = "BAD_REQUEST"
	CodeInternal    = "INTERNAL"
)

// ErrorCode maps a storage error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrKeyNotFound):
		return CodeNotFound
	case errors.Is(err, engine.ErrStorageFull):
		return CodeStorageFull
	case errors.Is(err, engine.ErrInvalidKey):
		return CodeInvalidKey
	}
	return CodeInternal
}

// RemoteError is an error reported by the daemon that has no local sentinel.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string { return e.Code + ": " + e.Message }

// errorFromReply turns "ERR CODE message" back into the sentinel it came from.
func errorFromReply(reply string) error {
	rest := strings.TrimSpace(strings.TrimPrefix(reply, "ERR"))
	code, msg, _ := strings.Cut(rest, " ")

	var sentinel error
	switch code {
	case CodeNotFound:
		sentinel = engine.ErrKeyNotFound
	case CodeStorageFull:
		sentinel = engine.ErrStorageFull
	case CodeInvalidKey:
		sentinel = engine.ErrInvalidKey
	default:
		return &RemoteError{Code: code, Message: msg}
	}
	if msg == "" || msg == sentinel.Error() {
		return sentinel
	}
	return fmt.Errorf("%w (remote: %s)", sentinel, msg)
}

// Package files implements the file archive: uploaded files kept as base64
// data URIs under a single key, bounded per file by a size ceiling and
// measured, but never limited, against a display budget.
package files

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/celerix-dev/celerix-comms/internal/events"
	"github.com/celerix-dev/celerix-comms/internal/snapshot"
	"github.com/celerix-dev/celerix-comms/pkg/engine"
	"github.com/celerix-dev/celerix-comms/pkg/schema"
)

const (
	StorageKey = "protocols_3826"

	MaxFileSize   int64 = 10 << 20
	StorageBudget int64 = 50 << 20

	DefaultUploadWorkers = 4
)

var (
	ErrFileTooLarge = errors.New("file exceeds size limit")
	ErrNotFound     = errors.New("file not found")
)

// Archive is the file archive store.
type Archive struct {
	mu      sync.Mutex
	store   engine.Storage
	logger  *slog.Logger
	bus     *events.Bus
	now     func() time.Time
	newID   func() string
	maxSize int64
	budget  int64
	workers int
	cache   *payloadCache
}

type Option func(*Archive)

func WithLogger(l *slog.Logger) Option      { return func(a *Archive) { a.logger = l } }
func WithBus(b *events.Bus) Option          { return func(a *Archive) { a.bus = b } }
func WithClock(now func() time.Time) Option { return func(a *Archive) { a.now = now } }

// WithMaxFileSize overrides the per-file ceiling.
func WithMaxFileSize(n int64) Option { return func(a *Archive) { a.maxSize = n } }

// WithBudget overrides the byte budget used by Usage.
func WithBudget(n int64) Option { return func(a *Archive) { a.budget = n } }

// WithUploadWorkers bounds how many uploads PutBatch reads at once.
func WithUploadWorkers(n int) Option { return func(a *Archive) { a.workers = n } }

// WithPayloadCache keeps up to size decoded payloads for ttl.
// A size of zero disables the cache.
func WithPayloadCache(size int, ttl time.Duration) Option {
	return func(a *Archive) { a.cache = newPayloadCache(size, ttl) }
}

func New(store engine.Storage, opts ...Option) *Archive {
	a := &Archive{
		store:   store,
		logger:  slog.Default(),
		now:     time.Now,
		newID:   func() string { return uuid.Must(uuid.NewV7()).String() },
		maxSize: MaxFileSize,
		budget:  StorageBudget,
		workers: DefaultUploadWorkers,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.workers < 1 {
		a.workers = 1
	}
	a.logger = a.logger.With(slog.String("component", "files"))
	return a
}

// MaxFileSize returns the per-file ceiling in bytes.
func (a *Archive) MaxFileSize() int64 { return a.maxSize }

// Put archives data under name. Files above the ceiling are rejected and
// nothing is written.
func (a *Archive) Put(data []byte, name, mimeType string) (schema.FileRecord, error) {
	size := int64(len(data))
	if size > a.maxSize {
		return schema.FileRecord{}, a.reject(name, size)
	}

	rec := schema.FileRecord{
		Name:      name,
		MimeType:  mimeType,
		SizeBytes: size,
		Payload:   EncodeDataURI(mimeType, data),
		Category:  CategoryFor(mimeType),
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	rec.ID = a.newID()
	rec.UploadedAt = a.now().UTC()

	res := a.load()
	if !res.Usable() {
		return schema.FileRecord{}, res.Err
	}
	list := append(res.Value, rec)
	if err := snapshot.Save(a.store, StorageKey, list); err != nil {
		return schema.FileRecord{}, fmt.Errorf("store %s: %w", name, err)
	}

	a.logger.Debug("file stored", slog.String("id", rec.ID), slog.String("name", name), slog.Int64("size", size))
	a.bus.Publish(events.Event{Kind: events.FileStored, Key: StorageKey, Count: len(list), Name: name})
	return rec, nil
}

func (a *Archive) reject(name string, size int64) error {
	a.logger.Warn("file rejected", slog.String("name", name), slog.Int64("size", size), slog.Int64("limit", a.maxSize))
	a.bus.Publish(events.Event{Kind: events.FileRejected, Key: StorageKey, Name: name, Detail: ErrFileTooLarge.Error()})
	return fmt.Errorf("%w: %q is %s, limit %s", ErrFileTooLarge, name, FormatSize(size), FormatSize(a.maxSize))
}

// GetAll returns the archive in stored order.
func (a *Archive) GetAll() snapshot.Result[[]schema.FileRecord] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.load()
}

// List returns the archive newest first.
func (a *Archive) List() snapshot.Result[[]schema.FileRecord] {
	res := a.GetAll()
	slices.SortStableFunc(res.Value, func(x, y schema.FileRecord) int {
		return y.UploadedAt.Compare(x.UploadedAt)
	})
	return res
}

func (a *Archive) GetByID(id string) (schema.FileRecord, error) {
	res := a.GetAll()
	if !res.Usable() {
		return schema.FileRecord{}, res.Err
	}
	i := slices.IndexFunc(res.Value, func(f schema.FileRecord) bool { return f.ID == id })
	if i < 0 {
		return schema.FileRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return res.Value[i], nil
}

// DeleteByID removes the file with id. Unknown ids are not an error and
// leave storage untouched.
func (a *Archive) DeleteByID(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	res := a.load()
	if !res.Usable() {
		return res.Err
	}
	i := slices.IndexFunc(res.Value, func(f schema.FileRecord) bool { return f.ID == id })
	if i < 0 {
		return nil
	}
	name := res.Value[i].Name
	list := slices.Delete(res.Value, i, i+1)
	if err := snapshot.Save(a.store, StorageKey, list); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}

	a.cache.remove(id)
	a.bus.Publish(events.Event{Kind: events.FileDeleted, Key: StorageKey, Count: len(list), Name: name})
	return nil
}

// Clear removes the archive key entirely.
func (a *Archive) Clear() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.store.Delete(StorageKey); err != nil {
		return fmt.Errorf("clear files: %w", err)
	}
	a.cache.purge()
	a.bus.Publish(events.Event{Kind: events.FilesCleared, Key: StorageKey})
	return nil
}

// Open returns the decoded content of a file.
func (a *Archive) Open(id string) ([]byte, schema.FileRecord, error) {
	rec, err := a.GetByID(id)
	if err != nil {
		return nil, rec, err
	}
	if data, ok := a.cache.get(id); ok {
		return data, rec, nil
	}

	_, data, err := DecodeDataURI(rec.Payload)
	if err != nil {
		return nil, rec, fmt.Errorf("decode %s: %w", id, err)
	}
	a.cache.add(id, data)
	return data, rec, nil
}

func (a *Archive) load() snapshot.Result[[]schema.FileRecord] {
	res := snapshot.Load[[]schema.FileRecord](a.store, StorageKey)
	switch res.Status {
	case snapshot.StatusRecovered:
		a.logger.Warn("discarding corrupt file archive", slog.Any("err", res.Err))
	case snapshot.StatusFailed:
		a.logger.Error("failed to read file archive", slog.Any("err", res.Err))
	}
	return res
}

// Package messages implements the operator message log: an ordered list of
// records stored under one key, capped at RetentionCap and cut back to the
// most recent RetainAfterTruncate records whenever an append overflows it.
package messages

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/celerix-dev/celerix-comms/internal/events"
	"github.com/celerix-dev/celerix-comms/internal/snapshot"
	"github.com/celerix-dev/celerix-comms/pkg/engine"
	"github.com/celerix-dev/celerix-comms/pkg/schema"
)

const (
	StorageKey = "chatMessages_3826"

	MaxTextLength       = 256
	RetentionCap        = 100
	RetainAfterTruncate = 50
)

var (
	ErrEmptyMessage   = errors.New("message has no text and no attachments")
	ErrMessageTooLong = fmt.Errorf("message exceeds %d characters", MaxTextLength)
	ErrInvalidSender  = errors.New("unknown sender")
	ErrEmptyArchive   = errors.New("message archive is empty")
)

var priorityMarkers = []string{"СРОЧНО", "ВАЖНО"}

// Log is the message log. A Log serializes its own read-modify-write cycles;
// two Logs sharing one storage do not coordinate.
type Log struct {
	mu     sync.Mutex
	store  engine.Storage
	logger *slog.Logger
	bus    *events.Bus
	now    func() time.Time
	loc    *time.Location
}

type Option func(*Log)

func WithLogger(l *slog.Logger) Option { return func(g *Log) { g.logger = l } }
func WithBus(b *events.Bus) Option     { return func(g *Log) { g.bus = b } }
func WithClock(now func() time.Time) Option {
	return func(g *Log) { g.now = now }
}

// WithLocation sets the time zone used by Export. Defaults to time.Local.
func WithLocation(loc *time.Location) Option { return func(g *Log) { g.loc = loc } }

func New(store engine.Storage, opts ...Option) *Log {
	l := &Log{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(slog.String("component", "messages"))
	return l
}

// DetectPriority reports whether text carries one of the urgency markers.
func DetectPriority(text string) bool {
	for _, m := range priorityMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// Validate checks rec without touching storage and returns it with its text
// trimmed and NFC-normalized.
func Validate(rec schema.MessageRecord) (schema.MessageRecord, error) {
	rec.Text = norm.NFC.String(strings.TrimSpace(rec.Text))
	if rec.Text == "" && len(rec.Attachments) == 0 {
		return rec, ErrEmptyMessage
	}
	if utf8.RuneCountInString(rec.Text) > MaxTextLength {
		return rec, ErrMessageTooLong
	}
	if !rec.Sender.Valid() {
		return rec, fmt.Errorf("%w: %q", ErrInvalidSender, rec.Sender)
	}
	return rec, nil
}

// Send appends a message stamped with the current time.
func (l *Log) Send(sender schema.Sender, text string, attachments ...schema.AttachmentRef) (schema.MessageRecord, error) {
	return l.Append(schema.MessageRecord{
		Text:        text,
		Sender:      sender,
		Priority:    DetectPriority(text),
		Attachments: attachments,
	})
}

// Append validates rec, adds it to the end of the log and persists the whole
// list. A rejected record leaves storage untouched.
func (l *Log) Append(rec schema.MessageRecord) (schema.MessageRecord, error) {
	rec, err := Validate(rec)
	if err != nil {
		return rec, err
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	res := l.load()
	if !res.Usable() {
		return rec, res.Err
	}

	list := append(res.Value, rec)
	// Retention keeps the most recent records by timestamp, not by arrival.
	sortByTimestamp(list)
	dropped := 0
	if len(list) > RetentionCap {
		dropped = len(list) - RetainAfterTruncate
		list = slices.Clone(list[dropped:])
	}

	if err := snapshot.Save(l.store, StorageKey, list); err != nil {
		return rec, fmt.Errorf("append message: %w", err)
	}

	l.bus.Publish(events.Event{Kind: events.MessageAppended, Key: StorageKey, Count: len(list), Name: string(rec.Sender)})
	if dropped > 0 {
		l.logger.Info("message log truncated", slog.Int("dropped", dropped), slog.Int("kept", len(list)))
		l.bus.Publish(events.Event{Kind: events.MessagesTruncated, Key: StorageKey, Count: len(list), Detail: fmt.Sprintf("dropped %d", dropped)})
	}
	return rec, nil
}

// LoadAll returns the log in timestamp order. Corrupt data yields an empty
// list with StatusRecovered; it is never returned as a plain error.
func (l *Log) LoadAll() snapshot.Result[[]schema.MessageRecord] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

func (l *Log) load() snapshot.Result[[]schema.MessageRecord] {
	res := snapshot.Load[[]schema.MessageRecord](l.store, StorageKey)
	switch res.Status {
	case snapshot.StatusRecovered:
		l.logger.Warn("discarding corrupt message log", slog.Any("err", res.Err))
	case snapshot.StatusFailed:
		l.logger.Error("failed to read message log", slog.Any("err", res.Err))
	}
	sortByTimestamp(res.Value)
	return res
}

// sortByTimestamp orders records oldest first, keeping insertion order for ties.
func sortByTimestamp(records []schema.MessageRecord) {
	slices.SortStableFunc(records, func(a, b schema.MessageRecord) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}

// Clear removes the log key entirely.
func (l *Log) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Delete(StorageKey); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	l.bus.Publish(events.Event{Kind: events.MessagesCleared, Key: StorageKey})
	return nil
}

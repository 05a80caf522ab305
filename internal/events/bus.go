// Package events carries domain notifications from the archives to whoever
// presents them (logs, metrics, the SSE stream).
package events

import (
	"sync"
	"time"
)

// Kind names a domain event.
type Kind string

const (
	MessageAppended   Kind = "message.appended"
	MessagesTruncated Kind = "messages.truncated"
	MessagesCleared   Kind = "messages.cleared"
	FileStored        Kind = "file.stored"
	FileRejected      Kind = "file.rejected"
	FileDeleted       Kind = "file.deleted"
	FilesCleared      Kind = "files.cleared"
	StatsReset        Kind = "stats.reset"
)

// Event is published after the change it describes has been persisted.
// FileRejected is the exception: nothing was written.
type Event struct {
	Kind   Kind      `json:"kind"`
	At     time.Time `json:"at"`
	Key    string    `json:"key"`
	Count  int       `json:"count"`
	Name   string    `json:"name,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// Bus is a synchronous in-process fan-out. The zero value is not usable; use NewBus.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns a function that removes it.
// fn runs on the publisher's goroutine and must not block.
func (b *Bus) Subscribe(fn func(Event)) (cancel func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers e to every subscriber. A nil Bus drops the event.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}

// Len returns the number of active subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

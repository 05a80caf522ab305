package events

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()

	var got []Event
	cancel := bus.Subscribe(func(e Event) { got = append(got, e) })
	assert.Equal(t, 1, bus.Len())

	bus.Publish(Event{Kind: MessageAppended, Count: 1})
	assert.Len(t, got, 1)
	assert.Equal(t, MessageAppended, got[0].Kind)
	assert.False(t, got[0].At.IsZero())

	cancel()
	cancel()
	assert.Equal(t, 0, bus.Len())

	bus.Publish(Event{Kind: MessagesCleared})
	assert.Len(t, got, 1)
}

func TestBus_NilIsSafe(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() { bus.Publish(Event{Kind: FileStored}) })
}

func TestBus_UnsubscribeDuringPublish(t *testing.T) {
	bus := NewBus()
	calls := 0
	var cancel func()
	cancel = bus.Subscribe(func(Event) {
		calls++
		cancel()
	})

	bus.Publish(Event{Kind: FileDeleted})
	bus.Publish(Event{Kind: FileDeleted})
	assert.Equal(t, 1, calls)
}

func TestLogTo(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	bus := NewBus()
	bus.Subscribe(LogTo(logger))
	bus.Publish(Event{Kind: FileRejected, Key: "protocols_3826", Name: "big.bin", Detail: "too large"})

	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"kind":"file.rejected"`)
	assert.Contains(t, out, `"name":"big.bin"`)
}

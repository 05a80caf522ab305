package messages

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-comms/internal/events"
	"github.com/celerix-dev/celerix-comms/internal/snapshot"
	"github.com/celerix-dev/celerix-comms/internal/vault"
	"github.com/celerix-dev/celerix-comms/pkg/engine"
	"github.com/celerix-dev/celerix-comms/pkg/schema"
)

var epoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// stepClock returns epoch, epoch+1s, epoch+2s, ...
func stepClock() func() time.Time {
	n := 0
	return func() time.Time {
		t := epoch.Add(time.Duration(n) * time.Second)
		n++
		return t
	}
}

func newLog(t *testing.T, store engine.Storage, opts ...Option) *Log {
	t.Helper()
	opts = append([]Option{WithClock(stepClock()), WithLocation(time.UTC)}, opts...)
	return New(store, opts...)
}

func TestAppend_AddsRecordAtEnd(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	log := newLog(t, store)

	for i := 1; i <= 3; i++ {
		_, err := log.Send(schema.SenderOperator, fmt.Sprintf("M%d", i))
		require.NoError(t, err)

		res := log.LoadAll()
		require.Equal(t, snapshot.StatusLoaded, res.Status)
		require.Len(t, res.Value, i)
		assert.Equal(t, fmt.Sprintf("M%d", i), res.Value[i-1].Text)
	}
}

func TestAppend_RetentionSawtooth(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	store.SetQuota(0)
	log := newLog(t, store)

	for i := 1; i <= 100; i++ {
		_, err := log.Send(schema.SenderOperator, fmt.Sprintf("M%d", i))
		require.NoError(t, err)
	}
	assert.Len(t, log.LoadAll().Value, 100)

	_, err := log.Send(schema.SenderOperator, "M101")
	require.NoError(t, err)

	got := log.LoadAll().Value
	require.Len(t, got, 50)
	assert.Equal(t, "M52", got[0].Text)
	assert.Equal(t, "M101", got[49].Text)

	// The next 50 appends grow the log back to the cap without truncating.
	for i := 102; i <= 151; i++ {
		_, err := log.Send(schema.SenderOperator, fmt.Sprintf("M%d", i))
		require.NoError(t, err)
	}
	assert.Len(t, log.LoadAll().Value, 100)
}

func TestAppend_RetentionKeepsNewestByTimestamp(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	store.SetQuota(0)
	log := newLog(t, store)

	for i := 1; i <= 100; i++ {
		_, err := log.Append(schema.MessageRecord{
			Text:      fmt.Sprintf("M%d", i),
			Sender:    schema.SenderOperator,
			Timestamp: epoch.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	// The 101st record is older than everything already stored.
	_, err := log.Append(schema.MessageRecord{Text: "OLD", Sender: schema.SenderSystem, Timestamp: epoch})
	require.NoError(t, err)

	got := log.LoadAll().Value
	require.Len(t, got, 50)
	assert.Equal(t, "M51", got[0].Text)
	assert.Equal(t, "M100", got[49].Text)
	for _, rec := range got {
		assert.NotEqual(t, "OLD", rec.Text)
	}
}

func TestAppend_PublishesTruncation(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	store.SetQuota(0)
	bus := events.NewBus()
	var kinds []events.Kind
	bus.Subscribe(func(e events.Event) { kinds = append(kinds, e.Kind) })

	log := newLog(t, store, WithBus(bus))
	for i := 0; i <= RetentionCap; i++ {
		_, err := log.Send(schema.SenderSystem, "ping")
		require.NoError(t, err)
	}

	assert.Len(t, kinds, RetentionCap+2)
	assert.Equal(t, events.MessagesTruncated, kinds[len(kinds)-1])
}

func TestAppend_ValidationLeavesStoreUntouched(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	log := newLog(t, store)
	_, err := log.Send(schema.SenderOperator, "first")
	require.NoError(t, err)
	before, _ := store.Get(StorageKey)

	tests := []struct {
		name string
		rec  schema.MessageRecord
		want error
	}{
		{"empty", schema.MessageRecord{Sender: schema.SenderOperator}, ErrEmptyMessage},
		{"whitespace", schema.MessageRecord{Text: "  \n\t", Sender: schema.SenderOperator}, ErrEmptyMessage},
		{"too long", schema.MessageRecord{Text: strings.Repeat("я", MaxTextLength+1), Sender: schema.SenderOperator}, ErrMessageTooLong},
		{"bad sender", schema.MessageRecord{Text: "hi", Sender: "ADMIN"}, ErrInvalidSender},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := log.Append(tt.rec)
			assert.ErrorIs(t, err, tt.want)

			after, _ := store.Get(StorageKey)
			assert.Equal(t, before, after)
		})
	}
}

func TestAppend_LengthCountsCharacters(t *testing.T) {
	log := newLog(t, engine.NewMemStore(nil, nil))

	// 256 Cyrillic letters are 512 bytes but still fit.
	_, err := log.Send(schema.SenderOperator, strings.Repeat("ж", MaxTextLength))
	assert.NoError(t, err)

	// "e" followed by a combining acute accent normalizes to one character.
	_, err = log.Send(schema.SenderOperator, strings.Repeat("e\u0301", MaxTextLength))
	assert.NoError(t, err)
}

func TestAppend_AttachmentOnly(t *testing.T) {
	log := newLog(t, engine.NewMemStore(nil, nil))

	rec, err := log.Send(schema.SenderOperator, "", schema.AttachmentRef{Name: "plan.pdf", MimeType: "application/pdf", SizeBytes: 1024})
	require.NoError(t, err)
	assert.Len(t, rec.Attachments, 1)
}

func TestSend_Priority(t *testing.T) {
	log := newLog(t, engine.NewMemStore(nil, nil))

	rec, err := log.Send(schema.SenderOperator, "СРОЧНО: проверить канал")
	require.NoError(t, err)
	assert.True(t, rec.Priority)

	rec, err = log.Send(schema.SenderOperator, "обычный доклад")
	require.NoError(t, err)
	assert.False(t, rec.Priority)
}

func TestLoadAll_AbsentAndCorrupt(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	log := newLog(t, store)

	res := log.LoadAll()
	assert.Equal(t, snapshot.StatusAbsent, res.Status)
	assert.Empty(t, res.Value)

	require.NoError(t, store.Set(StorageKey, "this is not json"))
	res = log.LoadAll()
	assert.Equal(t, snapshot.StatusRecovered, res.Status)
	assert.Empty(t, res.Value)
	assert.Error(t, res.Err)
}

func TestAppend_OverCorruptDataStartsFresh(t *testing.T) {
	store := engine.NewMemStore(map[string]string{StorageKey: "{{{"}, nil)
	log := newLog(t, store)

	_, err := log.Send(schema.SenderOperator, "after corruption")
	require.NoError(t, err)

	res := log.LoadAll()
	assert.Equal(t, snapshot.StatusLoaded, res.Status)
	assert.Len(t, res.Value, 1)
}

func TestLoadAll_SortsByTimestamp(t *testing.T) {
	store := engine.NewMemStore(map[string]string{StorageKey: `[
		{"text":"late","sender":"СИСТЕМА","timestamp":"2026-03-14T10:00:00Z","priority":false},
		{"text":"early","sender":"ОПЕРАТОР","timestamp":"2026-03-14T08:00:00Z","priority":false},
		{"text":"tie","sender":"ОПЕРАТОР","timestamp":"2026-03-14T10:00:00Z","priority":false}
	]`}, nil)

	got := newLog(t, store).LoadAll().Value
	require.Len(t, got, 3)
	assert.Equal(t, []string{"early", "late", "tie"}, []string{got[0].Text, got[1].Text, got[2].Text})
}

func TestAppend_RefusesValueSealedUnderOtherKey(t *testing.T) {
	inner := engine.NewMemStore(nil, nil)
	old, err := vault.Seal(inner, bytes.Repeat([]byte{1}, vault.KeySize))
	require.NoError(t, err)
	_, err = newLog(t, old).Send(schema.SenderOperator, "sealed")
	require.NoError(t, err)
	before, _ := inner.Get(StorageKey)

	current, err := vault.Seal(inner, bytes.Repeat([]byte{2}, vault.KeySize))
	require.NoError(t, err)
	log := newLog(t, current)

	res := log.LoadAll()
	assert.Equal(t, snapshot.StatusFailed, res.Status)

	_, err = log.Send(schema.SenderOperator, "new")
	require.ErrorIs(t, err, vault.ErrDecrypt)

	after, _ := inner.Get(StorageKey)
	assert.Equal(t, before, after, "the sealed log must not be overwritten")
}

func TestClear(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	log := newLog(t, store)
	_, err := log.Send(schema.SenderOperator, "bye")
	require.NoError(t, err)

	require.NoError(t, log.Clear())
	_, err = store.Get(StorageKey)
	assert.ErrorIs(t, err, engine.ErrKeyNotFound)
}

func TestAppend_StorageFull(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	store.SetQuota(int64(len(StorageKey)) + 10)
	log := newLog(t, store)

	_, err := log.Send(schema.SenderOperator, "does not fit")
	assert.ErrorIs(t, err, engine.ErrStorageFull)
}

// hookStore runs onGet once, after the first read, to interleave a second
// writer between this writer's read and its write.
type hookStore struct {
	engine.Storage
	onGet func()
}

func (h *hookStore) Get(key string) (string, error) {
	v, err := h.Storage.Get(key)
	if h.onGet != nil {
		fn := h.onGet
		h.onGet = nil
		fn()
	}
	return v, err
}

// Two logs over one store are not coordinated: the later writer wins and the
// other append is lost. This pins the behavior so nobody relies on it.
func TestAppend_LostUpdateAcrossClients(t *testing.T) {
	shared := engine.NewMemStore(nil, nil)
	tabB := newLog(t, shared)

	hooked := &hookStore{Storage: shared}
	tabA := newLog(t, hooked)
	hooked.onGet = func() {
		_, err := tabB.Send(schema.SenderOperator, "from B")
		require.NoError(t, err)
	}

	_, err := tabA.Send(schema.SenderOperator, "from A")
	require.NoError(t, err)

	got := tabB.LoadAll().Value
	require.Len(t, got, 1)
	assert.Equal(t, "from A", got[0].Text)
}

func TestExport(t *testing.T) {
	log := newLog(t, engine.NewMemStore(nil, nil))

	var buf bytes.Buffer
	assert.ErrorIs(t, log.Export(&buf), ErrEmptyArchive)

	_, err := log.Send(schema.SenderOperator, "Канал открыт")
	require.NoError(t, err)
	_, err = log.Send(schema.SenderSystem, "ВАЖНО: смена частоты")
	require.NoError(t, err)

	buf.Reset()
	require.NoError(t, log.Export(&buf))

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "export", buf.Bytes())
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "collective_3826_archive_2026-03-14.txt", ExportFilename(epoch))
}

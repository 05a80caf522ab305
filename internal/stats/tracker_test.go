package stats

import (
	"bytes"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-comms/internal/events"
	"github.com/celerix-dev/celerix-comms/internal/files"
	"github.com/celerix-dev/celerix-comms/internal/messages"
	"github.com/celerix-dev/celerix-comms/pkg/engine"
	"github.com/celerix-dev/celerix-comms/pkg/schema"
)

var noon = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *engine.MemStore
	messages *messages.Log
	files    *files.Archive
	tracker  *Tracker
}

func newFixture(t *testing.T, initial map[string]string, opts ...Option) fixture {
	t.Helper()
	store := engine.NewMemStore(initial, nil)
	clock := func() time.Time { return noon }
	log := messages.New(store, messages.WithClock(clock))
	archive := files.New(store, files.WithClock(clock))
	opts = append([]Option{WithClock(clock), WithRand(rand.New(rand.NewPCG(1, 2)))}, opts...)
	return fixture{
		store:    store,
		messages: log,
		files:    archive,
		tracker:  New(store, log, archive, opts...),
	}
}

func TestLoad_Defaults(t *testing.T) {
	f := newFixture(t, nil)

	st, err := f.tracker.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, st.SessionsCount)
	assert.Zero(t, st.MessagesSent)
	assert.Len(t, st.DailyActivity, 7)
	for day, n := range st.DailyActivity {
		assert.GreaterOrEqual(t, n, 10, day)
		assert.Less(t, n, 60, day)
	}
	assert.Contains(t, st.DailyActivity, "2026-03-14")
	assert.Contains(t, st.DailyActivity, "2026-03-08")

	// Defaults are persisted, so a second load returns the same week.
	again, err := f.tracker.Load()
	require.NoError(t, err)
	assert.Equal(t, st, again)
}

func TestLoad_CorruptFallsBackToDefaults(t *testing.T) {
	f := newFixture(t, map[string]string{StorageKey: "[1,2,3]"})

	st, err := f.tracker.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, st.SessionsCount)
	assert.Len(t, st.DailyActivity, 7)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.messages.Send(schema.SenderOperator, "one")
	require.NoError(t, err)
	_, err = f.messages.Send(schema.SenderSystem, "ack")
	require.NoError(t, err)
	_, err = f.messages.Send(schema.SenderOperator, "two")
	require.NoError(t, err)
	_, err = f.files.Put([]byte("x"), "x.txt", "text/plain")
	require.NoError(t, err)

	st, err := f.tracker.Refresh()
	require.NoError(t, err)
	assert.Equal(t, 2, st.MessagesSent)
	assert.Equal(t, 1, st.FilesUploaded)

	require.NoError(t, f.messages.Clear())
	st, err = f.tracker.Refresh()
	require.NoError(t, err)
	assert.Zero(t, st.MessagesSent)
}

func TestSessionsAndWorkTime(t *testing.T) {
	f := newFixture(t, nil)

	st, err := f.tracker.StartSession()
	require.NoError(t, err)
	assert.Equal(t, 2, st.SessionsCount)

	st, err = f.tracker.AddWorkTime(90*time.Minute + 59*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 90, st.WorkTime)
	assert.Equal(t, "1ч 30м", FormatWorkTime(st.WorkTime))
}

func TestReset(t *testing.T) {
	bus := events.NewBus()
	var resets int
	bus.Subscribe(func(e events.Event) {
		if e.Kind == events.StatsReset {
			resets++
		}
	})
	f := newFixture(t, map[string]string{
		StorageKey: `{"messagesSent":5,"filesUploaded":2,"sessionsCount":4,"workTime":30,"dailyActivity":{}}`,
	}, WithBus(bus))

	st, err := f.tracker.Reset()
	require.NoError(t, err)
	assert.Zero(t, st.MessagesSent)
	assert.Zero(t, st.FilesUploaded)
	assert.Equal(t, 4, st.SessionsCount)
	assert.Equal(t, 30, st.WorkTime)
	assert.Len(t, st.DailyActivity, 7)
	assert.Equal(t, 1, resets)
}

func TestChart(t *testing.T) {
	st := schema.ActivityStats{DailyActivity: map[string]int{
		"2026-03-14": 30,
		"2026-03-13": 90,
		"2026-03-01": 50,
	}}

	bars := Chart(st, noon)
	require.Len(t, bars, 7)
	assert.Equal(t, "2026-03-08", bars[0].Date)
	assert.Equal(t, "ВС", bars[0].Day)
	assert.Zero(t, bars[0].Height)

	assert.Equal(t, 90, bars[5].Actions)
	assert.Equal(t, 100.0, bars[5].Height)

	last := bars[6]
	assert.Equal(t, "СБ", last.Day)
	assert.InDelta(t, 50.0, last.Height, 0.001)
}

func TestFormatWorkTime(t *testing.T) {
	assert.Equal(t, "0ч 0м", FormatWorkTime(0))
	assert.Equal(t, "2ч 5м", FormatWorkTime(125))
}

func TestExport(t *testing.T) {
	f := newFixture(t, map[string]string{
		StorageKey: `{"messagesSent":2,"filesUploaded":1,"sessionsCount":3,"workTime":125,"dailyActivity":{"2026-03-14":42}}`,
	})

	var buf bytes.Buffer
	require.NoError(t, f.tracker.Export(&buf))

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "export", buf.Bytes())
	assert.Equal(t, "activity_stats_3826_2026-03-14.json", ExportFilename(noon))
}

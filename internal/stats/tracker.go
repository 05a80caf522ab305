// Package stats keeps the operator's activity dashboard: counters derived
// from the archives, session bookkeeping and a week of daily activity.
package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-comms/internal/events"
	"github.com/celerix-dev/celerix-comms/internal/files"
	"github.com/celerix-dev/celerix-comms/internal/messages"
	"github.com/celerix-dev/celerix-comms/internal/snapshot"
	"github.com/celerix-dev/celerix-comms/pkg/engine"
	"github.com/celerix-dev/celerix-comms/pkg/schema"
)

const (
	StorageKey = "activityStats_3826"

	chartDays = 7
	// Synthetic daily activity is drawn from [minActivity, minActivity+activitySpread).
	minActivity    = 10
	activitySpread = 50
	// A bar reaches full height at this many actions.
	fullBarActions = 60
)

// Tracker owns the stats key and reads the two archives to refresh counters.
type Tracker struct {
	mu       sync.Mutex
	store    engine.Storage
	messages *messages.Log
	files    *files.Archive
	logger   *slog.Logger
	bus      *events.Bus
	now      func() time.Time
	rand     *rand.Rand
}

type Option func(*Tracker)

func WithLogger(l *slog.Logger) Option      { return func(t *Tracker) { t.logger = l } }
func WithBus(b *events.Bus) Option          { return func(t *Tracker) { t.bus = b } }
func WithClock(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

// WithRand fixes the source of synthetic activity.
func WithRand(r *rand.Rand) Option { return func(t *Tracker) { t.rand = r } }

func New(store engine.Storage, log *messages.Log, archive *files.Archive, opts ...Option) *Tracker {
	t := &Tracker{
		store:    store,
		messages: log,
		files:    archive,
		logger:   slog.Default(),
		now:      time.Now,
		rand:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(slog.String("component", "stats"))
	return t
}

// Load returns the stored stats. Absent or corrupt stats are replaced by
// defaults, which are written back.
func (t *Tracker) Load() (schema.ActivityStats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load()
}

func (t *Tracker) load() (schema.ActivityStats, error) {
	res := snapshot.Load[schema.ActivityStats](t.store, StorageKey)
	switch res.Status {
	case snapshot.StatusLoaded:
		if res.Value.DailyActivity == nil {
			res.Value.DailyActivity = map[string]int{}
		}
		return res.Value, nil
	case snapshot.StatusFailed:
		return schema.ActivityStats{}, res.Err
	case snapshot.StatusRecovered:
		t.logger.Warn("discarding corrupt activity stats", slog.Any("err", res.Err))
	}

	st := schema.ActivityStats{
		SessionsCount: 1,
		DailyActivity: t.syntheticActivity(),
	}
	if err := snapshot.Save(t.store, StorageKey, st); err != nil {
		return st, fmt.Errorf("save default stats: %w", err)
	}
	return st, nil
}

func (t *Tracker) syntheticActivity() map[string]int {
	today := t.now().UTC()
	out := make(map[string]int, chartDays)
	for i := chartDays - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i).Format(time.DateOnly)
		out[day] = minActivity + t.rand.IntN(activitySpread)
	}
	return out
}

func (t *Tracker) update(fn func(*schema.ActivityStats) error) (schema.ActivityStats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, err := t.load()
	if err != nil {
		return st, err
	}
	if err := fn(&st); err != nil {
		return st, err
	}
	if err := snapshot.Save(t.store, StorageKey, st); err != nil {
		return st, fmt.Errorf("save stats: %w", err)
	}
	return st, nil
}

// Refresh recounts operator messages and archived files.
func (t *Tracker) Refresh() (schema.ActivityStats, error) {
	return t.update(func(st *schema.ActivityStats) error {
		msgs := t.messages.LoadAll()
		if !msgs.Usable() {
			return msgs.Err
		}
		sent := 0
		for _, m := range msgs.Value {
			if m.Sender == schema.SenderOperator {
				sent++
			}
		}
		st.MessagesSent = sent

		fs := t.files.GetAll()
		if !fs.Usable() {
			return fs.Err
		}
		st.FilesUploaded = len(fs.Value)
		return nil
	})
}

// StartSession counts one more operator session.
func (t *Tracker) StartSession() (schema.ActivityStats, error) {
	return t.update(func(st *schema.ActivityStats) error {
		st.SessionsCount++
		return nil
	})
}

// AddWorkTime adds d, rounded down to whole minutes.
func (t *Tracker) AddWorkTime(d time.Duration) (schema.ActivityStats, error) {
	return t.update(func(st *schema.ActivityStats) error {
		st.WorkTime += int(d / time.Minute)
		return nil
	})
}

// Reset zeroes the derived counters and draws a fresh week of activity.
// Sessions and work time are kept.
func (t *Tracker) Reset() (schema.ActivityStats, error) {
	st, err := t.update(func(st *schema.ActivityStats) error {
		st.MessagesSent = 0
		st.FilesUploaded = 0
		st.DailyActivity = t.syntheticActivity()
		return nil
	})
	if err == nil {
		t.bus.Publish(events.Event{Kind: events.StatsReset, Key: StorageKey})
	}
	return st, err
}

// Bar is one day of the activity chart.
type Bar struct {
	Date    string  `json:"date"`
	Day     string  `json:"day"`
	Actions int     `json:"actions"`
	Height  float64 `json:"height"`
}

var dayNames = [...]string{"ВС", "ПН", "ВТ", "СР", "ЧТ", "ПТ", "СБ"}

// Chart returns the last seven days ending at now, oldest first.
func Chart(st schema.ActivityStats, now time.Time) []Bar {
	now = now.UTC()
	bars := make([]Bar, 0, chartDays)
	for i := chartDays - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		key := day.Format(time.DateOnly)
		actions := st.DailyActivity[key]
		bars = append(bars, Bar{
			Date:    key,
			Day:     dayNames[day.Weekday()],
			Actions: actions,
			Height:  min(float64(actions)/fullBarActions*100, 100),
		})
	}
	return bars
}

// Chart is the package Chart for the current stats and clock.
func (t *Tracker) Chart() ([]Bar, error) {
	st, err := t.Load()
	if err != nil {
		return nil, err
	}
	return Chart(st, t.now()), nil
}

// FormatWorkTime renders minutes as "Xч Yм".
func FormatWorkTime(minutes int) string {
	return fmt.Sprintf("%dч %dм", minutes/60, minutes%60)
}

type exportDoc struct {
	Statistics schema.ActivityStats `json:"statistics"`
	ExportDate time.Time            `json:"exportDate"`
}

// Export writes the stats as indented JSON.
func (t *Tracker) Export(w io.Writer) error {
	st, err := t.Load()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(exportDoc{Statistics: st, ExportDate: t.now().UTC()})
}

// ExportFilename is the download name for an export made at now.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("activity_stats_3826_%s.json", now.UTC().Format(time.DateOnly))
}

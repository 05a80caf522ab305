package view

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-comms/pkg/schema"
)

func sample(n int) []schema.MessageRecord {
	out := make([]schema.MessageRecord, n)
	for i := range out {
		sender := schema.SenderOperator
		if i%3 == 0 {
			sender = schema.SenderSystem
		}
		out[i] = schema.MessageRecord{Text: fmt.Sprintf("M%d", i+1), Sender: sender}
	}
	return out
}

func TestFilter_Idempotent(t *testing.T) {
	records := sample(120)
	for _, f := range []MessageFilter{FilterAll, FilterOperator, FilterSystem} {
		once := Filter(records, f.Predicate())
		twice := Filter(once, f.Predicate())
		assert.Equal(t, once, twice, f)
	}
}

func TestFilter_PreservesOrder(t *testing.T) {
	got := Filter(sample(7), FilterSystem.Predicate())
	require.Len(t, got, 3)
	assert.Equal(t, []string{"M1", "M4", "M7"}, []string{got[0].Text, got[1].Text, got[2].Text})
}

func TestPaginate_RoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 49, 50, 51, 100, 137} {
		for _, size := range []int{1, 7, 50} {
			records := Filter(sample(n), FilterOperator.Predicate())
			pages := TotalPages(len(records), size)

			var joined []schema.MessageRecord
			for p := 1; p <= pages; p++ {
				page := Paginate(records, p, size)
				assert.NotEmpty(t, page)
				assert.LessOrEqual(t, len(page), size)
				joined = append(joined, page...)
			}
			if len(records) == 0 {
				assert.Empty(t, joined)
				continue
			}
			assert.Equal(t, records, joined, "n=%d size=%d", n, size)
		}
	}
}

func TestPaginate_OutOfRange(t *testing.T) {
	records := sample(10)
	assert.Empty(t, Paginate(records, 0, 5))
	assert.Empty(t, Paginate(records, -1, 5))
	assert.Empty(t, Paginate(records, 3, 5))
	assert.NotNil(t, Paginate(records, 3, 5))
	assert.Len(t, Paginate(records, 2, 5), 5)
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, TotalPages(0, 50))
	assert.Equal(t, 1, TotalPages(50, 50))
	assert.Equal(t, 2, TotalPages(51, 50))
	assert.Equal(t, 0, TotalPages(10, 0))
}

func TestParseMessageFilter(t *testing.T) {
	f, err := ParseMessageFilter("")
	require.NoError(t, err)
	assert.Equal(t, FilterAll, f)

	f, err = ParseMessageFilter("system")
	require.NoError(t, err)
	assert.Equal(t, FilterSystem, f)

	_, err = ParseMessageFilter("everyone")
	assert.Error(t, err)
}

func TestState_Transitions(t *testing.T) {
	s := NewState()
	assert.Equal(t, 1, s.Page)
	assert.Equal(t, DefaultPageSize, s.PageSize)

	s = s.Next(3).Next(3).Next(3)
	assert.Equal(t, 3, s.Page)
	s = s.Prev()
	assert.Equal(t, 2, s.Page)

	s = s.WithFilter(FilterOperator)
	assert.Equal(t, 1, s.Page)
	assert.Equal(t, FilterOperator, s.Filter)
	assert.Equal(t, 1, s.Prev().Page)
}

func TestApply(t *testing.T) {
	records := sample(120)

	page := Apply(records, NewState())
	assert.Equal(t, 120, page.Total)
	assert.Equal(t, 120, page.Matched)
	assert.Equal(t, 3, page.TotalPages)
	assert.Len(t, page.Items, 50)
	assert.False(t, page.HasPrev)
	assert.True(t, page.HasNext)

	page = Apply(records, NewState().WithFilter(FilterSystem).WithPage(1))
	assert.Equal(t, 40, page.Matched)
	assert.Equal(t, 1, page.TotalPages)
	assert.False(t, page.HasNext)

	page = Apply(records, NewState().WithPage(9))
	assert.Empty(t, page.Items)
	assert.True(t, page.HasPrev)
}

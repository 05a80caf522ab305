// Package view holds the pure read side of the archive screens: filtering,
// paging and the state value that says which page of which filter is shown.
package view

import (
	"fmt"

	"github.com/celerix-dev/celerix-comms/pkg/schema"
)

// DefaultPageSize is the message archive page length.
const DefaultPageSize = 50

// Filter returns the records matching keep, in their original order.
func Filter[T any](records []T, keep func(T) bool) []T {
	out := make([]T, 0, len(records))
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Paginate returns the 1-indexed page of records. Pages outside
// [1, TotalPages] are empty, never an error.
func Paginate[T any](records []T, page, size int) []T {
	if page < 1 || size < 1 {
		return []T{}
	}
	start := (page - 1) * size
	if start >= len(records) {
		return []T{}
	}
	end := min(start+size, len(records))
	return records[start:end]
}

// TotalPages is ceil(count/size).
func TotalPages(count, size int) int {
	if count <= 0 || size < 1 {
		return 0
	}
	return (count + size - 1) / size
}

// MessageFilter selects messages by sender.
type MessageFilter string

const (
	FilterAll      MessageFilter = "all"
	FilterOperator MessageFilter = "operator"
	FilterSystem   MessageFilter = "system"
)

// ParseMessageFilter accepts "", all, operator or system.
func ParseMessageFilter(s string) (MessageFilter, error) {
	switch MessageFilter(s) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterOperator, FilterSystem:
		return MessageFilter(s), nil
	}
	return "", fmt.Errorf("unknown filter %q", s)
}

func (f MessageFilter) Predicate() func(schema.MessageRecord) bool {
	switch f {
	case FilterOperator:
		return func(m schema.MessageRecord) bool { return m.Sender == schema.SenderOperator }
	case FilterSystem:
		return func(m schema.MessageRecord) bool { return m.Sender == schema.SenderSystem }
	}
	return func(schema.MessageRecord) bool { return true }
}

package view

import "github.com/celerix-dev/celerix-comms/pkg/schema"

// State is what the archive screen shows. It is a value: every transition
// returns a new State.
type State struct {
	Filter   MessageFilter `json:"filter"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}

func NewState() State {
	return State{Filter: FilterAll, Page: 1, PageSize: DefaultPageSize}
}

// WithFilter switches the filter and goes back to the first page.
func (s State) WithFilter(f MessageFilter) State {
	s.Filter = f
	s.Page = 1
	return s
}

// WithPage jumps to page p.
func (s State) WithPage(p int) State {
	s.Page = p
	return s
}

// Next moves forward unless p is already the last of total pages.
func (s State) Next(total int) State {
	if s.Page < total {
		s.Page++
	}
	return s
}

func (s State) Prev() State {
	if s.Page > 1 {
		s.Page--
	}
	return s
}

// MessagePage is one rendered page of the message archive.
type MessagePage struct {
	State      State                  `json:"state"`
	Items      []schema.MessageRecord `json:"items"`
	Total      int                    `json:"total"`
	Matched    int                    `json:"matched"`
	TotalPages int                    `json:"totalPages"`
	HasPrev    bool                   `json:"hasPrev"`
	HasNext    bool                   `json:"hasNext"`
}

// Apply filters and pages records according to s.
func Apply(records []schema.MessageRecord, s State) MessagePage {
	if s.PageSize < 1 {
		s.PageSize = DefaultPageSize
	}
	matched := Filter(records, s.Filter.Predicate())
	pages := TotalPages(len(matched), s.PageSize)
	return MessagePage{
		State:      s,
		Items:      Paginate(matched, s.Page, s.PageSize),
		Total:      len(records),
		Matched:    len(matched),
		TotalPages: pages,
		HasPrev:    s.Page > 1,
		HasNext:    s.Page < pages,
	}
}

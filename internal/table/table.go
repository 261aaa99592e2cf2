// Package table filters, sorts and paginates in-memory collections for list views.
package table

import (
	"fmt"
	"slices"
	"strings"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection accepts "asc" or "desc" (case-insensitive); anything else is an error.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Asc:
		return Asc, nil
	case Desc:
		return Desc, nil
	}
	return "", fmt.Errorf("invalid sort order %q", s)
}

const DefaultPageSize = 10

// AllValue disables a discrete filter.
const AllValue = "all"

// Config declares what a list can be searched, filtered and sorted by.
type Config[T any] struct {
	// Search returns the strings matched by free-text search.
	Search []func(T) string
	// Filters keeps items whose value matches the selected option.
	Filters map[string]func(item T, value string) bool
	// Sorts compare two items in ascending order.
	Sorts            map[string]func(a, b T) int
	DefaultSort      string
	DefaultDirection Direction
	PageSize         int
}

// State is the user-controlled part of a list view.
type State struct {
	Search    string            `json:"search,omitempty"`
	Filters   map[string]string `json:"filters,omitempty"`
	SortKey   string            `json:"sort,omitempty"`
	Direction Direction         `json:"order,omitempty"`
	Page      int               `json:"page"`
	PageSize  int               `json:"page_size"`
}

// Page is one slice of the filtered, sorted collection plus derived counts.
type Page[T any] struct {
	Items       []T  `json:"items"`
	CurrentPage int  `json:"current_page"`
	PageSize    int  `json:"page_size"`
	TotalPages  int  `json:"total_pages"`
	TotalItems  int  `json:"total_items"`
	PrevPage    *int `json:"prev_page"`
	NextPage    *int `json:"next_page"`
	// Start and End are 1-based positions of the first and last item shown; both 0 when empty.
	Start int `json:"start"`
	End   int `json:"end"`
}

type Controller[T any] struct {
	cfg   Config[T]
	state State
}

func New[T any](cfg Config[T]) *Controller[T] {
	if cfg.PageSize < 1 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.DefaultDirection == "" {
		cfg.DefaultDirection = Asc
	}
	c := &Controller[T]{cfg: cfg}
	c.Reset()
	return c
}

// Reset restores default search, filters, sort and page.
func (c *Controller[T]) Reset() {
	c.state = State{
		Filters:   map[string]string{},
		SortKey:   c.cfg.DefaultSort,
		Direction: c.cfg.DefaultDirection,
		Page:      1,
		PageSize:  c.cfg.PageSize,
	}
}

func (c *Controller[T]) State() State {
	s := c.state
	s.Filters = make(map[string]string, len(c.state.Filters))
	for k, v := range c.state.Filters {
		s.Filters[k] = v
	}
	return s
}

func (c *Controller[T]) SetSearch(q string) {
	c.state.Search = q
	c.state.Page = 1
}

// SetFilter selects value for the named filter; "" or "all" removes it.
func (c *Controller[T]) SetFilter(name, value string) error {
	if _, ok := c.cfg.Filters[name]; !ok {
		return fmt.Errorf("unknown filter %q", name)
	}
	if value == "" || strings.EqualFold(value, AllValue) {
		delete(c.state.Filters, name)
	} else {
		c.state.Filters[name] = value
	}
	c.state.Page = 1
	return nil
}

func (c *Controller[T]) ClearFilters() {
	c.state.Filters = map[string]string{}
	c.state.Page = 1
}

func (c *Controller[T]) SetSort(key string, dir Direction) error {
	if _, ok := c.cfg.Sorts[key]; !ok {
		return fmt.Errorf("unknown sort key %q", key)
	}
	if dir != Asc && dir != Desc {
		return fmt.Errorf("invalid sort order %q", dir)
	}
	c.state.SortKey = key
	c.state.Direction = dir
	c.state.Page = 1
	return nil
}

// ToggleSort flips the direction when key is already active, otherwise sorts ascending by key.
func (c *Controller[T]) ToggleSort(key string) error {
	if key == c.state.SortKey {
		dir := Asc
		if c.state.Direction == Asc {
			dir = Desc
		}
		return c.SetSort(key, dir)
	}
	return c.SetSort(key, Asc)
}

func (c *Controller[T]) SetPageSize(n int) {
	if n < 1 {
		n = c.cfg.PageSize
	}
	c.state.PageSize = n
	c.state.Page = 1
}

// SetPage moves to page n; values below 1 select the first page and values past the
// end are clamped when the page is built.
func (c *Controller[T]) SetPage(n int) {
	if n < 1 {
		n = 1
	}
	c.state.Page = n
}

// Query is the wire form of a list request.
type Query struct {
	Search   string
	Filters  map[string]string
	Sort     string
	Order    string
	Page     int
	PageSize int
}

// ApplyQuery sets every non-zero member of q. The page is applied last so it survives the resets.
func (c *Controller[T]) ApplyQuery(q Query) error {
	if q.Search != "" {
		c.SetSearch(q.Search)
	}
	for name, value := range q.Filters {
		if err := c.SetFilter(name, value); err != nil {
			return err
		}
	}
	if q.Sort != "" || q.Order != "" {
		key := q.Sort
		if key == "" {
			key = c.state.SortKey
		}
		dir := c.state.Direction
		if q.Order != "" {
			d, err := ParseDirection(q.Order)
			if err != nil {
				return err
			}
			dir = d
		}
		if err := c.SetSort(key, dir); err != nil {
			return err
		}
	}
	if q.PageSize > 0 {
		c.SetPageSize(q.PageSize)
	}
	if q.Page > 0 {
		c.SetPage(q.Page)
	}
	return nil
}

// Apply filters, sorts and slices items for the current state. items is not modified.
func (c *Controller[T]) Apply(items []T) Page[T] {
	needle := strings.ToLower(strings.TrimSpace(c.state.Search))
	filtered := make([]T, 0, len(items))
	for _, item := range items {
		if needle != "" && !c.matches(item, needle) {
			continue
		}
		if !c.passesFilters(item) {
			continue
		}
		filtered = append(filtered, item)
	}
	if cmp, ok := c.cfg.Sorts[c.state.SortKey]; ok {
		desc := c.state.Direction == Desc
		slices.SortStableFunc(filtered, func(a, b T) int {
			if desc {
				return cmp(b, a)
			}
			return cmp(a, b)
		})
	}
	return paginate(filtered, c.state.Page, c.state.PageSize)
}

func (c *Controller[T]) matches(item T, needle string) bool {
	for _, get := range c.cfg.Search {
		if strings.Contains(strings.ToLower(get(item)), needle) {
			return true
		}
	}
	return false
}

func (c *Controller[T]) passesFilters(item T) bool {
	for name, value := range c.state.Filters {
		if keep := c.cfg.Filters[name]; keep != nil && !keep(item, value) {
			return false
		}
	}
	return true
}

func paginate[T any](items []T, page, size int) Page[T] {
	if size < 1 {
		size = DefaultPageSize
	}
	total := len(items)
	totalPages := (total + size - 1) / size
	if page < 1 {
		page = 1
	}
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}
	start := (page - 1) * size
	end := min(start+size, total)
	out := Page[T]{
		Items:       []T{},
		CurrentPage: page,
		PageSize:    size,
		TotalPages:  totalPages,
		TotalItems:  total,
	}
	if start < end {
		out.Items = items[start:end]
		out.Start = start + 1
		out.End = end
	}
	if page > 1 {
		p := page - 1
		out.PrevPage = &p
	}
	if page < totalPages {
		p := page + 1
		out.NextPage = &p
	}
	return out
}

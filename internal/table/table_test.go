package table

import (
	"cmp"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID     int
	Name   string
	Status string
}

func rows(n int) []row {
	out := make([]row, n)
	for i := range out {
		status := "draft"
		if i%2 == 0 {
			status = "published"
		}
		out[i] = row{ID: i + 1, Name: fmt.Sprintf("Item %02d", i+1), Status: status}
	}
	return out
}

func newController() *Controller[row] {
	return New(Config[row]{
		Search: []func(row) string{func(r row) string { return r.Name }},
		Filters: map[string]func(row, string) bool{
			"status": func(r row, v string) bool { return r.Status == v },
		},
		Sorts: map[string]func(a, b row) int{
			"id":     func(a, b row) int { return cmp.Compare(a.ID, b.ID) },
			"status": func(a, b row) int { return cmp.Compare(a.Status, b.Status) },
		},
		DefaultSort: "id",
	})
}

func ids(rs []row) []int {
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestPagination(t *testing.T) {
	c := newController()
	items := rows(25)

	page := c.Apply(items)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 25, page.TotalItems)
	assert.Nil(t, page.PrevPage)
	require.NotNil(t, page.NextPage)
	assert.Equal(t, 2, *page.NextPage)

	c.SetPage(3)
	page = c.Apply(items)
	assert.Equal(t, []int{21, 22, 23, 24, 25}, ids(page.Items))
	assert.Equal(t, 21, page.Start)
	assert.Equal(t, 25, page.End)
	assert.Nil(t, page.NextPage)

	c.SetSearch("item")
	assert.Equal(t, 1, c.State().Page)
}

func TestEveryChangeResetsPage(t *testing.T) {
	c := newController()
	changes := map[string]func(){
		"search":    func() { c.SetSearch("x") },
		"filter":    func() { require.NoError(t, c.SetFilter("status", "draft")) },
		"clear":     func() { c.ClearFilters() },
		"sort":      func() { require.NoError(t, c.SetSort("status", Desc)) },
		"toggle":    func() { require.NoError(t, c.ToggleSort("id")) },
		"page size": func() { c.SetPageSize(5) },
	}
	for name, change := range changes {
		c.SetPage(3)
		change()
		assert.Equal(t, 1, c.State().Page, name)
	}
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	c := newController()
	c.SetSearch("ITEM 1")
	page := c.Apply(rows(25))
	assert.Equal(t, []int{10, 11, 12, 13, 14, 15, 16, 17, 18, 19}, ids(page.Items))
}

func TestFilterAllDisables(t *testing.T) {
	c := newController()
	require.NoError(t, c.SetFilter("status", "draft"))
	assert.Equal(t, 12, c.Apply(rows(25)).TotalItems)
	require.NoError(t, c.SetFilter("status", "all"))
	assert.Equal(t, 25, c.Apply(rows(25)).TotalItems)
	assert.Error(t, c.SetFilter("owner", "x"))
}

func TestSortIsStable(t *testing.T) {
	c := newController()
	require.NoError(t, c.SetSort("status", Asc))
	c.SetPageSize(100)
	page := c.Apply(rows(6))
	assert.Equal(t, []int{2, 4, 6, 1, 3, 5}, ids(page.Items))

	require.NoError(t, c.ToggleSort("status"))
	assert.Equal(t, Desc, c.State().Direction)
	page = c.Apply(rows(6))
	assert.Equal(t, []int{1, 3, 5, 2, 4, 6}, ids(page.Items))
}

func TestEmptyCollection(t *testing.T) {
	page := newController().Apply(nil)
	assert.Equal(t, 0, page.TotalPages)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
}

func TestPageClampedToLast(t *testing.T) {
	c := newController()
	c.SetPage(9)
	page := c.Apply(rows(25))
	assert.Equal(t, 3, page.CurrentPage)
	assert.Len(t, page.Items, 5)
}

func TestApplyQuery(t *testing.T) {
	c := newController()
	err := c.ApplyQuery(Query{
		Filters:  map[string]string{"status": "published"},
		Sort:     "id",
		Order:    "desc",
		Page:     2,
		PageSize: 5,
	})
	require.NoError(t, err)
	page := c.Apply(rows(25))
	assert.Equal(t, 13, page.TotalItems)
	assert.Equal(t, 2, page.CurrentPage)
	assert.Equal(t, []int{15, 13, 11, 9, 7}, ids(page.Items))

	assert.Error(t, c.ApplyQuery(Query{Order: "sideways"}))
	assert.Error(t, c.ApplyQuery(Query{Sort: "nope"}))
}

package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPositionOf(t *testing.T) {
	totals := []int64{300, 200, 200, 100, -20}

	assert.Equal(t, Position(1), PositionOf(300, totals))
	assert.Equal(t, Position(2), PositionOf(200, totals))
	assert.Equal(t, Position(4), PositionOf(100, totals))
	assert.Equal(t, Position(5), PositionOf(-20, totals))
}

func TestPositions_MatchesCountOfStrictlyGreater(t *testing.T) {
	totals := map[string]int64{
		"ana":   300,
		"beto":  200,
		"caro":  200,
		"dani":  100,
		"eli":   0,
		"fede":  0,
		"gabri": -15,
	}

	got := Positions(totals)

	all := make([]int64, 0, len(totals))
	for _, v := range totals {
		all = append(all, v)
	}
	for id, total := range totals {
		assert.Equal(t, PositionOf(total, all), got[id], id)
	}

	assert.Equal(t, Position(2), got["beto"])
	assert.Equal(t, Position(2), got["caro"])
	assert.Equal(t, Position(4), got["dani"])
	assert.Equal(t, Position(7), got["gabri"])
}

func TestQueryOptions(t *testing.T) {
	o := DefaultQueryOptions().WithPage(0).WithPageSize(0, DefaultPageSize, MaxPageSize)
	assert.Equal(t, 1, o.Page)
	assert.Equal(t, 10, o.PageSize)
	assert.Equal(t, 0, o.Offset())

	o = o.WithPage(3).WithPageSize(500, DefaultPageSize, MaxPageSize)
	assert.Equal(t, 50, o.Limit())
	assert.Equal(t, 100, o.Offset())
	assert.Equal(t, "p3:s50", o.CacheKey())
}

func TestPage_TotalPages(t *testing.T) {
	p := Page{Page: 2, PageSize: 10, TotalStudents: 25}
	assert.Equal(t, 3, p.TotalPages())
	assert.True(t, p.HasNext())

	p.Page = 3
	assert.False(t, p.HasNext())
}

func TestPosition_IsTop(t *testing.T) {
	assert.True(t, Position(10).IsTop(10))
	assert.False(t, Position(11).IsTop(10))
	assert.Equal(t, "#3", Position(3).String())
}

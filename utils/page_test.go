package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func rows() []interface{} {
	return []interface{}{
		map[string]interface{}{"name": "charlie", "port": "8003"},
		map[string]interface{}{"name": "alpha", "port": "8001"},
		map[string]interface{}{"name": "bravo", "port": "8002"},
	}
}

func TestPageResultSortAscending(t *testing.T) {
	pr := NewPageResult(rows())
	pr.Sort("name", "ascending")
	assert.Equal(t, "alpha", pr.Rows[0].(map[string]interface{})["name"])
	assert.Equal(t, "charlie", pr.Rows[2].(map[string]interface{})["name"])
}

func TestPageResultSortDescending(t *testing.T) {
	pr := NewPageResult(rows())
	pr.Sort("name", "descending")
	assert.Equal(t, "charlie", pr.Rows[0].(map[string]interface{})["name"])
}

func TestPageResultSlice(t *testing.T) {
	pr := NewPageResult(rows())
	pr.Sort("name", "ascending")
	pr.Slice(1, 1)
	assert.Equal(t, 3, pr.Total)
	assert.Len(t, pr.Rows, 1)
	assert.Equal(t, "bravo", pr.Rows[0].(map[string]interface{})["name"])
}

func TestPageResultSliceUnlimited(t *testing.T) {
	pr := NewPageResult(rows())
	pr.Slice(0, -1)
	assert.Len(t, pr.Rows, 3)
}

func TestPageResultSliceBeyondEnd(t *testing.T) {
	pr := NewPageResult(rows())
	pr.Slice(5, 10)
	assert.Empty(t, pr.Rows)
	assert.Equal(t, 3, pr.Total)
}

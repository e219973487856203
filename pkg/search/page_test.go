package search

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/searchkit/internal/engine"
)

func TestNewPage(t *testing.T) {
	tests := []struct {
		name                  string
		start, size, total    int
		wantPageNo, wantEndIx int
	}{
		{"aligned", 20, 10, 100, 3, 29},
		{"unaligned", 15, 10, 100, -1, 24},
		{"zero size", 0, 0, 7, -1, -1},
		{"end capped by total", 20, 10, 25, 3, 24},
		{"empty index", 0, 10, 0, 1, -1},
		{"start near the int limit", math.MaxInt - 5, 10, 25, -1, 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPage(tt.start, tt.size, tt.total, nil)

			assert.Equal(t, tt.wantPageNo, p.CurrentPageNo())
			assert.Equal(t, tt.wantEndIx, p.EndIndex())
			assert.Equal(t, tt.total, p.TotalCount())
			assert.NotNil(t, p.Results())
			assert.Zero(t, p.Size())
		})
	}
}

func TestPage_At(t *testing.T) {
	p := NewPage(0, 2, 2, []map[string]any{{"id": "a"}, {"id": "b"}})

	assert.Equal(t, "a", p.At(0)["id"])
	assert.Equal(t, "b", p.At(1)["id"])
	assert.Nil(t, p.At(2))
	assert.Nil(t, p.At(-1))
}

func TestDocToMap(t *testing.T) {
	m := docToMap([]engine.StoredField{
		{Name: "id", Value: "1"},
		{Name: "tag", Value: "a"},
		{Name: "tag", Value: "b"},
		{Name: "tag", Value: "c"},
	})

	assert.Equal(t, map[string]any{
		"id":  "1",
		"tag": []string{"a", "b", "c"},
	}, m)
}

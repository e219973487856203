package output

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchkit/pkg/index"
	"github.com/Aman-CERP/searchkit/pkg/search"
)

func TestWriter_PageText(t *testing.T) {
	// Given: the second page of a five document result
	buf := &bytes.Buffer{}
	page := search.NewPage(2, 2, 5, []map[string]any{
		{"id": "c", "tag": []string{"x", "y"}},
		{"id": "d"},
	})

	// When
	require.NoError(t, New(buf, FormatText).Page(page))

	// Then: a range header and one sorted line per document
	assert.Equal(t, "3-4 of 5\n  id=c tag=x,y\n  id=d\n", buf.String())
}

func TestWriter_PageTextEmpty(t *testing.T) {
	buf := &bytes.Buffer{}

	require.NoError(t, New(buf, FormatText).Page(search.NewPage(10, 10, 4, nil)))

	assert.Equal(t, "no results (4 total)\n", buf.String())
}

func TestWriter_PageJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	page := search.NewPage(0, 10, 1, []map[string]any{{"id": "a"}})

	require.NoError(t, New(buf, FormatJSON).Page(page))

	var got pageJSON
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 1, got.Total)
	assert.Equal(t, 1, got.PageNumber)
	assert.Equal(t, "a", got.Results[0]["id"])
}

func TestWriter_Count(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{FormatText, "7\n"},
		{FormatJSON, "{\n  \"count\": 7\n}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			buf := &bytes.Buffer{}
			require.NoError(t, New(buf, tt.format).Count(7))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_Sweep(t *testing.T) {
	buf := &bytes.Buffer{}
	stats := index.SweepStats{Pages: 2, Records: 9, Skipped: 1, Failed: 1, Documents: 8, Duration: 1500 * time.Millisecond}

	require.NoError(t, New(buf, FormatText).Sweep(stats))

	assert.Equal(t, "indexed 8 documents from 9 records in 2 pages (1 skipped, 1 failed) in 1.5s\n", buf.String())
}

func TestWriter_Done(t *testing.T) {
	buf := &bytes.Buffer{}

	require.NoError(t, New(buf, FormatJSON).Done("deleted %s", "a"))

	assert.JSONEq(t, `{"ok": true, "message": "deleted a"}`, buf.String())
}

// Package output renders CLI results as text or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Aman-CERP/searchkit/pkg/index"
	"github.com/Aman-CERP/searchkit/pkg/search"
)

// Formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Writer prints CLI results in one format.
type Writer struct {
	out  io.Writer
	json bool
}

// New returns a Writer for format. Anything other than "json" is text.
func New(out io.Writer, format string) *Writer {
	return &Writer{out: out, json: format == FormatJSON}
}

// pageJSON is the JSON form of a result page.
type pageJSON struct {
	Total      int              `json:"total"`
	Start      int              `json:"start"`
	PageSize   int              `json:"page_size"`
	PageNumber int              `json:"page_number"`
	Results    []map[string]any `json:"results"`
}

// Page prints a result page. Text output is one line per document with the
// fields sorted by name.
func (w *Writer) Page(p *search.Page) error {
	if w.json {
		return w.encode(pageJSON{
			Total:      p.TotalCount(),
			Start:      p.StartIndex(),
			PageSize:   p.PageSize(),
			PageNumber: p.CurrentPageNo(),
			Results:    p.Results(),
		})
	}

	if p.Size() == 0 {
		_, err := fmt.Fprintf(w.out, "no results (%d total)\n", p.TotalCount())
		return err
	}
	if _, err := fmt.Fprintf(w.out, "%d-%d of %d\n", p.StartIndex()+1, p.EndIndex()+1, p.TotalCount()); err != nil {
		return err
	}
	for i := range p.Size() {
		if _, err := fmt.Fprintf(w.out, "  %s\n", formatDoc(p.At(i))); err != nil {
			return err
		}
	}
	return nil
}

// Count prints a match count.
func (w *Writer) Count(n int) error {
	if w.json {
		return w.encode(map[string]int{"count": n})
	}
	_, err := fmt.Fprintln(w.out, n)
	return err
}

// Sweep prints the outcome of a reindex.
func (w *Writer) Sweep(s index.SweepStats) error {
	if w.json {
		return w.encode(map[string]any{
			"pages":       s.Pages,
			"records":     s.Records,
			"skipped":     s.Skipped,
			"failed":      s.Failed,
			"documents":   s.Documents,
			"duration_ms": s.Duration.Milliseconds(),
		})
	}
	_, err := fmt.Fprintf(w.out, "indexed %d documents from %d records in %d pages (%d skipped, %d failed) in %s\n",
		s.Documents, s.Records, s.Pages, s.Skipped, s.Failed, s.Duration.Round(1e6))
	return err
}

// Done prints a one-line confirmation. JSON output is {"ok":true,"message":...}.
func (w *Writer) Done(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if w.json {
		return w.encode(map[string]any{"ok": true, "message": msg})
	}
	_, err := fmt.Fprintln(w.out, msg)
	return err
}

func (w *Writer) encode(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatDoc renders a document as name=value pairs in name order. Repeated
// fields are joined with commas.
func formatDoc(doc map[string]any) string {
	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		switch v := doc[name].(type) {
		case []string:
			parts = append(parts, name+"="+strings.Join(v, ","))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", name, v))
		}
	}
	return strings.Join(parts, " ")
}

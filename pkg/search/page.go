package search

// Page is one window of query results.
type Page struct {
	startIndex    int
	pageSize      int
	totalCount    int
	currentPageNo int
	results       []map[string]any
}

// NewPage builds a Page. The page number is start/pageSize+1 when start is a
// multiple of a non-zero pageSize, and -1 otherwise.
func NewPage(start, pageSize, total int, results []map[string]any) *Page {
	no := -1
	if pageSize != 0 && start%pageSize == 0 {
		no = start/pageSize + 1
	}
	if results == nil {
		results = []map[string]any{}
	}
	return &Page{
		startIndex:    start,
		pageSize:      pageSize,
		totalCount:    total,
		currentPageNo: no,
		results:       results,
	}
}

// Size is the number of documents on this page.
func (p *Page) Size() int { return len(p.results) }

// At returns the i-th document on the page, or nil when i is out of range.
func (p *Page) At(i int) map[string]any {
	if i < 0 || i >= len(p.results) {
		return nil
	}
	return p.results[i]
}

// Results returns the documents on the page. It is never nil.
func (p *Page) Results() []map[string]any { return p.results }

func (p *Page) CurrentPageNo() int { return p.currentPageNo }
func (p *Page) StartIndex() int    { return p.startIndex }
func (p *Page) PageSize() int      { return p.pageSize }

// TotalCount is the number of matches in the whole index, not on this page.
func (p *Page) TotalCount() int { return p.totalCount }

// EndIndex is the index of the last match this page could cover, capped at
// the last match overall.
func (p *Page) EndIndex() int {
	if p.startIndex >= p.totalCount || p.pageSize > p.totalCount-p.startIndex {
		return p.totalCount - 1
	}
	return p.startIndex + p.pageSize - 1
}

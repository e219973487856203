// Package search runs composed queries against a cached read handle and
// pages the results.
//
// A [Query] embeds a [query.Builder], so predicates are added directly on
// it, then executed with [Query.Get], [Query.GetAll] or [Query.Count]:
//
//	q, _ := search.NewQuery("/var/index/products", cache,
//	    search.WithAnalyzer(analyzer),
//	)
//	q.And("category", "books").
//	    RangeFloat("price", query.Bound(5.0), query.Bound(20.0), query.And, true, true).
//	    SortBy("price", query.SortDouble, false)
//
//	page, err := q.Get(ctx, 0, 20)
//	for _, doc := range page.Results() {
//	    fmt.Println(doc["title"])
//	}
//
// Each stored field maps to a string; a field stored more than once maps to
// a []string holding every value in document order.
//
// A Query is not safe for concurrent mutation. Build one per request and
// share the underlying read-handle cache instead.
package search

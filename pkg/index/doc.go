// Package index writes documents into a coordinated index location.
//
// [Doc] collects typed field values. [Index] submits them either one
// operation at a time, acquiring and releasing the writer around each call,
// or as a batch that holds one writer until [Index.CloseBatch]:
//
//	ix, _ := index.New("/var/index/products", coord.Writers())
//	for _, p := range products {
//	    ix.Add("id", p.ID).
//	        AddText("title", p.Title).
//	        AddFloat("price", p.Price)
//	    if err := ix.BatchAdd(ctx); err != nil {
//	        return err
//	    }
//	}
//	return ix.CloseBatch(ctx)
//
// [Sweeper] rebuilds a whole index from a paged [Source]: it deletes every
// document, lists the source page by page and builds documents for each
// record with a [BuildFunc]. A record that fails to build is logged and
// skipped. [Appender] reuses the same BuildFunc to add records to a live
// index, and [SQLSource] pages records out of a database/sql query.
package index

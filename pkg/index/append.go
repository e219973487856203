package index

import (
	"context"
)

// Appender adds records to a live index without rebuilding it.
type Appender[T any] struct {
	index *Index
	build BuildFunc[T]
}

// NewAppender creates an Appender writing through ix.
func NewAppender[T any](ix *Index, build BuildFunc[T]) (*Appender[T], error) {
	if ix == nil {
		return nil, ErrNilWriters
	}
	if build == nil {
		return nil, ErrNilBuild
	}
	return &Appender[T]{index: ix, build: build}, nil
}

// Append builds documents for records and adds them in one batch. A build
// failure discards the whole batch.
func (a *Appender[T]) Append(ctx context.Context, records ...T) error {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		docs, err := a.build(rec)
		if err == nil {
			err = a.index.BatchAddDocs(ctx, docs...)
		}
		if err != nil {
			if a.index.InBatch() {
				_ = a.index.RollbackBatch()
				_ = a.index.CloseBatch(ctx)
			}
			return err
		}
	}
	return a.index.CloseBatch(ctx)
}

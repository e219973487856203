package cmd

import (
	"database/sql"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	serrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/pkg/coordinator"
	"github.com/Aman-CERP/searchkit/pkg/index"
)

type reindexOptions struct {
	sqlite   string
	query    string
	text     []string
	limit    int
	pageSize int
}

// row is one result row keyed by column name.
type row map[string]any

func (a *app) reindexCmd() *cobra.Command {
	var opts reindexOptions

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild an index from a SQLite query",
		Long: `Rebuild an index from the rows of a SQLite query.

Every existing document is deleted and each row becomes one document with a
field per column. Nothing is visible to readers until the rebuild commits;
a failure leaves the old content in place. The query is paged with LIMIT and
OFFSET, so give it a stable ORDER BY.

Example:
  searchkit reindex -i ./idx --sqlite shop.db \
    --query "SELECT id, title, price FROM products ORDER BY id" --text title`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.sqlite == "" || opts.query == "" {
				return serrors.ValidationError("reindex needs --sqlite and --query", nil)
			}
			db, err := sql.Open("sqlite", opts.sqlite)
			if err != nil {
				return serrors.IOError("failed to open database", err).WithDetail("path", opts.sqlite)
			}
			defer func() { _ = db.Close() }()

			return a.withCoordinator(cmd.Context(), func(c *coordinator.Coordinator) error {
				text := make(map[string]bool, len(opts.text))
				for _, col := range opts.text {
					text[col] = true
				}
				src := index.NewSQLSource(db, opts.query, scanRow)
				s, err := coordinator.NewSweeper[row](c, a.location, src, func(r row) ([]*index.Doc, error) {
					return []*index.Doc{rowDoc(r, text)}, nil
				}, index.SweepOptions[row]{
					PageSize: opts.pageSize,
					Limit:    opts.limit,
				})
				if err != nil {
					return err
				}
				stats, err := s.Run(cmd.Context())
				if err != nil {
					return err
				}
				return a.out(cmd).Sweep(stats)
			})
		},
	}

	cmd.Flags().StringVar(&opts.sqlite, "sqlite", "", "SQLite database file")
	cmd.Flags().StringVar(&opts.query, "query", "", "SELECT statement producing one row per document")
	cmd.Flags().StringSliceVar(&opts.text, "text", nil, "Columns indexed as analyzed text")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Stop after this many rows (0 for all)")
	cmd.Flags().IntVar(&opts.pageSize, "page-size", 0, "Rows per page (default from config)")

	return cmd
}

func scanRow(rows *sql.Rows) (row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	r := make(row, len(cols))
	for i, col := range cols {
		r[col] = values[i]
	}
	return r, nil
}

// rowDoc maps column values onto fields. NULLs are skipped.
func rowDoc(r row, text map[string]bool) *index.Doc {
	d := index.NewDoc()
	for col, v := range r {
		switch v := v.(type) {
		case string:
			if text[col] {
				d.AddText(col, v)
			} else {
				d.Add(col, v)
			}
		case []byte:
			if text[col] {
				d.AddText(col, string(v))
			} else {
				d.Add(col, string(v))
			}
		case int64:
			d.AddInt(col, v)
		case float64:
			d.AddFloat(col, v)
		case bool:
			if v {
				d.AddInt(col, 1)
			} else {
				d.AddInt(col, 0)
			}
		case time.Time:
			d.AddTime(col, v)
		}
	}
	return d
}

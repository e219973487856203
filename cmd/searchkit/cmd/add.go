package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	serrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/pkg/coordinator"
	"github.com/Aman-CERP/searchkit/pkg/index"
)

type addOptions struct {
	fields []string
	texts  []string
	ints   []string
	floats []string
	update string
	jsonl  string
	// textKeys are the JSON keys indexed as analyzed text.
	textKeys []string
}

func (a *app) addCmd() *cobra.Command {
	var opts addOptions

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update documents",
		Long: `Add one document from flags, or many from a JSON lines file.

With --update, documents whose field has the same value are replaced.

Examples:
  searchkit add -i ./idx --field id=42 --text "title=Go in practice" --int year=2024
  searchkit add -i ./idx --field id=42 --text "title=Go in practice, 2nd ed" --update id
  searchkit add -i ./idx --jsonl books.jsonl --text-key title --update id`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withCoordinator(cmd.Context(), func(c *coordinator.Coordinator) error {
				ix, err := c.Index(a.location)
				if err != nil {
					return err
				}
				if opts.jsonl != "" {
					n, err := addJSONLines(cmd.Context(), ix, opts)
					if err != nil {
						return err
					}
					return a.out(cmd).Done("indexed %d documents", n)
				}
				if err := fillDoc(ix.Doc, opts); err != nil {
					return err
				}
				if ix.Len() == 0 {
					return serrors.ValidationError("no fields given", nil).
						WithSuggestion("pass --field, --text, --int or --float")
				}
				if opts.update != "" {
					err = ix.UpdateIndex(cmd.Context(), opts.update)
				} else {
					err = ix.AddIndex(cmd.Context())
				}
				if err != nil {
					return err
				}
				return a.out(cmd).Done("indexed 1 document")
			})
		},
	}

	cmd.Flags().StringArrayVar(&opts.fields, "field", nil, "Exact-match field=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.texts, "text", nil, "Analyzed text field=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.ints, "int", nil, "Integer field=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.floats, "float", nil, "Floating-point field=value (repeatable)")
	cmd.Flags().StringVar(&opts.update, "update", "", "Replace documents with the same value in this field")
	cmd.Flags().StringVar(&opts.jsonl, "jsonl", "", "Read documents from a JSON lines file (- for stdin)")
	cmd.Flags().StringSliceVar(&opts.textKeys, "text-key", nil, "JSON keys indexed as analyzed text")

	return cmd
}

func fillDoc(d *index.Doc, opts addOptions) error {
	for _, kv := range opts.fields {
		k, v, err := splitPair(kv)
		if err != nil {
			return err
		}
		d.Add(k, v)
	}
	for _, kv := range opts.texts {
		k, v, err := splitPair(kv)
		if err != nil {
			return err
		}
		d.AddText(k, v)
	}
	for _, kv := range opts.ints {
		k, v, err := splitPair(kv)
		if err != nil {
			return err
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return serrors.ValidationError("invalid integer for "+k, err)
		}
		d.AddInt(k, n)
	}
	for _, kv := range opts.floats {
		k, v, err := splitPair(kv)
		if err != nil {
			return err
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return serrors.ValidationError("invalid number for "+k, err)
		}
		d.AddFloat(k, f)
	}
	return nil
}

// addJSONLines indexes one document per line in a single batch. Nothing is
// committed when a line fails to parse.
func addJSONLines(ctx context.Context, ix *index.Index, opts addOptions) (int, error) {
	var r io.Reader = os.Stdin
	if opts.jsonl != "-" {
		f, err := os.Open(opts.jsonl)
		if err != nil {
			return 0, serrors.IOError("failed to open documents file", err).WithDetail("path", opts.jsonl)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	text := make(map[string]bool, len(opts.textKeys))
	for _, k := range opts.textKeys {
		text[k] = true
	}

	n := 0
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var obj map[string]any
		dec := json.NewDecoder(bytes.NewReader(sc.Bytes()))
		dec.UseNumber()
		if err := dec.Decode(&obj); err != nil {
			return 0, discard(ix, serrors.ValidationError(fmt.Sprintf("line %d is not a JSON object", line), err))
		}
		jsonDoc(ix.Doc, obj, text)

		var err error
		if opts.update != "" {
			err = ix.BatchUpdate(ctx, opts.update)
		} else {
			err = ix.BatchAdd(ctx)
		}
		if err != nil {
			return 0, discard(ix, err)
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return 0, discard(ix, serrors.IOError("failed to read documents", err))
	}
	if !ix.InBatch() {
		return 0, nil
	}
	return n, ix.CloseBatch(ctx)
}

// discard rolls back and releases the batch writer, if any, and returns err.
func discard(ix *index.Index, err error) error {
	if ix.InBatch() {
		_ = ix.RollbackBatch()
		_ = ix.CloseBatch(context.Background())
	}
	return err
}

// jsonDoc copies obj into d. Arrays add one value per element; objects are
// skipped.
func jsonDoc(d *index.Doc, obj map[string]any, text map[string]bool) {
	var add func(k string, v any)
	add = func(k string, v any) {
		switch v := v.(type) {
		case string:
			if text[k] {
				d.AddText(k, v)
			} else {
				d.Add(k, v)
			}
		case json.Number:
			if n, err := v.Int64(); err == nil {
				d.AddInt(k, n)
			} else if f, err := v.Float64(); err == nil {
				d.AddFloat(k, f)
			}
		case bool:
			d.Add(k, strconv.FormatBool(v))
		case []any:
			for _, e := range v {
				add(k, e)
			}
		}
	}
	for k, v := range obj {
		add(k, v)
	}
}

func (a *app) deleteCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "delete [field value]",
		Short: "Delete documents whose field matches value",
		Long: `Delete documents whose field matches value. * and ? in value are wildcards.

Examples:
  searchkit delete -i ./idx id 42
  searchkit delete -i ./idx sku "tmp-*"
  searchkit delete -i ./idx --all`,
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd.Context(), func(c *coordinator.Coordinator) error {
				ix, err := c.Index(a.location)
				if err != nil {
					return err
				}
				ctx := cmd.Context()
				if all {
					if err := ix.BatchDeleteAll(ctx); err != nil {
						return err
					}
					if err := ix.CloseBatch(ctx); err != nil {
						return err
					}
					return a.out(cmd).Done("deleted all documents")
				}
				if err := ix.DeleteIndex(ctx, args[0], args[1]); err != nil {
					return err
				}
				return a.out(cmd).Done("deleted documents where %s=%s", args[0], args[1])
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Delete every document")
	return cmd
}

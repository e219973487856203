package cmd

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	serrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/pkg/coordinator"
	"github.com/Aman-CERP/searchkit/pkg/query"
)

// queryFlags are the predicate flags shared by search and count. Every
// value has the form field=value.
type queryFlags struct {
	and      []string
	or       []string
	not      []string
	match    []string
	prefix   []string
	fuzzy    []string
	regexp   []string
	ranges   []string
	sort     []string
}

func (f *queryFlags) register(fs *pflag.FlagSet) {
	fs.StringArrayVar(&f.and, "and", nil, "Require field=value (* and ? are wildcards; repeatable)")
	fs.StringArrayVar(&f.or, "or", nil, "Include field=value as an alternative (repeatable)")
	fs.StringArrayVar(&f.not, "not", nil, "Exclude field=value (repeatable)")
	fs.StringArrayVar(&f.match, "match", nil, "Require any analyzed term of field=text (repeatable)")
	fs.StringArrayVar(&f.prefix, "prefix", nil, "Require field to start with value, field=value (repeatable)")
	fs.StringArrayVar(&f.fuzzy, "fuzzy", nil, "Require field within two edits of value, field=value (repeatable)")
	fs.StringArrayVar(&f.regexp, "regexp", nil, "Require field to match a regular expression, field=pattern (repeatable)")
	fs.StringArrayVar(&f.ranges, "range", nil, "Require numeric field=min:max, inclusive; either bound may be empty (repeatable)")
	fs.StringArrayVar(&f.sort, "sort", nil, "Sort by field[:string|long|double|score][:desc] (repeatable)")
}

// build translates the flags into a query builder.
func (f *queryFlags) build(b *query.Builder) error {
	terms := []struct {
		values []string
		add    func(field, value string)
	}{
		{f.and, func(k, v string) { b.And(k, v) }},
		{f.or, func(k, v string) { b.Or(k, v) }},
		{f.not, func(k, v string) { b.Not(k, v) }},
		{f.match, func(k, v string) { b.Analyzed(k, v, query.And) }},
		{f.prefix, func(k, v string) { b.Prefix(k, v, query.And) }},
		{f.fuzzy, func(k, v string) { b.Fuzzy(k, v, query.And) }},
		{f.regexp, func(k, v string) { b.Regexp(k, v, query.And) }},
	}
	for _, t := range terms {
		for _, kv := range t.values {
			field, value, err := splitPair(kv)
			if err != nil {
				return err
			}
			t.add(field, value)
		}
	}

	for _, kv := range f.ranges {
		field, bounds, err := splitPair(kv)
		if err != nil {
			return err
		}
		lo, hi, err := parseBounds(bounds)
		if err != nil {
			return err
		}
		b.RangeFloat(field, lo, hi, query.And, true, true)
	}

	for _, s := range f.sort {
		sf, err := parseSort(s)
		if err != nil {
			return err
		}
		b.SortBy(sf.Field, sf.Type, sf.Desc)
	}
	return nil
}

func splitPair(kv string) (string, string, error) {
	field, value, ok := strings.Cut(kv, "=")
	if !ok || field == "" {
		return "", "", serrors.ValidationError("expected field=value, got "+strconv.Quote(kv), nil)
	}
	return field, value, nil
}

// parseBounds parses "min:max" where either side may be empty.
func parseBounds(s string) (*float64, *float64, error) {
	lo, hi, ok := strings.Cut(s, ":")
	if !ok {
		return nil, nil, serrors.ValidationError("expected min:max, got "+strconv.Quote(s), nil)
	}
	parse := func(v string) (*float64, error) {
		if v == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, serrors.ValidationError("invalid range bound "+strconv.Quote(v), err)
		}
		return &f, nil
	}
	from, err := parse(lo)
	if err != nil {
		return nil, nil, err
	}
	to, err := parse(hi)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

var sortTypes = map[string]query.SortType{
	"string": query.SortString,
	"long":   query.SortLong,
	"double": query.SortDouble,
	"score":  query.SortScore,
}

func parseSort(s string) (query.SortField, error) {
	parts := strings.Split(s, ":")
	sf := query.SortField{Field: parts[0], Type: query.SortString}
	for _, p := range parts[1:] {
		if p == "desc" {
			sf.Desc = true
			continue
		}
		typ, ok := sortTypes[p]
		if !ok {
			return sf, serrors.ValidationError("unknown sort option "+strconv.Quote(p), nil)
		}
		sf.Type = typ
	}
	if sf.Field == "" && sf.Type != query.SortScore {
		return sf, serrors.ValidationError("sort needs a field", nil)
	}
	return sf, nil
}

func (a *app) searchCmd() *cobra.Command {
	var (
		qf          queryFlags
		start, size int
		all         bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run a query and print one page of matching documents",
		Long: `Run a query and print one page of matching documents.

With no predicates every document matches.

Examples:
  searchkit search -i ./idx --and lang=go --match "title=concurrency patterns"
  searchkit search -i ./idx --or tag=db --or tag=cache --not status=archived
  searchkit search -i ./idx --range price=10:20 --sort price:double:desc --size 5
  searchkit search -i ./idx --all -f json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withCoordinator(cmd.Context(), func(c *coordinator.Coordinator) error {
				q, err := c.Query(a.location)
				if err != nil {
					return err
				}
				if err := qf.build(q.Builder); err != nil {
					return err
				}
				ctx := cmd.Context()
				if all {
					page, err := q.GetAll(ctx)
					if err != nil {
						return err
					}
					return a.out(cmd).Page(page)
				}
				page, err := q.Get(ctx, start, size)
				if err != nil {
					return err
				}
				return a.out(cmd).Page(page)
			})
		},
	}

	qf.register(cmd.Flags())
	cmd.Flags().IntVar(&start, "start", 0, "Index of the first result")
	cmd.Flags().IntVarP(&size, "size", "n", 10, "Page size")
	cmd.Flags().BoolVar(&all, "all", false, "Print every match, ignoring --start and --size")

	return cmd
}

func (a *app) countCmd() *cobra.Command {
	var qf queryFlags

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Print the number of documents matching a query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withCoordinator(cmd.Context(), func(c *coordinator.Coordinator) error {
				q, err := c.Query(a.location)
				if err != nil {
					return err
				}
				if err := qf.build(q.Builder); err != nil {
					return err
				}
				n, err := q.Count(cmd.Context())
				if err != nil {
					return err
				}
				return a.out(cmd).Count(n)
			})
		},
	}

	qf.register(cmd.Flags())
	return cmd
}

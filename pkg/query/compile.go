package query

import (
	"regexp/syntax"
	"strconv"
	"strings"

	bq "github.com/blevesearch/bleve/v2/search/query"

	serrors "github.com/Aman-CERP/searchkit/internal/errors"
)

// MaxDepth is the deepest group nesting Compile accepts.
const MaxDepth = 64

// fuzziness is the edit distance for Fuzzy predicates.
const fuzziness = 2

// Analyzer tokenizes the value of an Analyzed predicate.
type Analyzer interface {
	Analyze(field, text string) ([]string, error)
}

// Compile turns p into one bleve query.
//
// The And clauses form a conjunction. With no Or or Not clauses that
// conjunction is the result. Otherwise it becomes one optional clause next
// to the Or clauses, at least one of which must match; a group with neither
// And nor Or clauses gets a match-all clause instead. Not clauses exclude.
// Groups compile the same way, recursively.
func Compile(p *Param, analyzer Analyzer) (bq.Query, error) {
	if p == nil {
		return bq.NewMatchAllQuery(), nil
	}
	if d := p.Depth(); d > MaxDepth {
		return nil, serrors.New(serrors.ErrCodeQueryTooDeep, "query groups are nested too deeply", nil).
			WithDetail("depth", strconv.Itoa(d)).
			WithDetail("max", strconv.Itoa(MaxDepth))
	}
	c := compiler{analyzer: analyzer}
	return c.group(p)
}

type compiler struct {
	analyzer Analyzer
}

func (c compiler) group(p *Param) (bq.Query, error) {
	must, err := c.clauses(p, And)
	if err != nil {
		return nil, err
	}
	if len(must) > 0 && !p.has(Or) && !p.has(Not) {
		return bq.NewConjunctionQuery(must), nil
	}

	var should []bq.Query
	if len(must) > 0 {
		should = append(should, bq.NewConjunctionQuery(must))
	}
	include, err := c.clauses(p, Or)
	if err != nil {
		return nil, err
	}
	should = append(should, include...)
	if len(should) == 0 {
		should = append(should, bq.NewMatchAllQuery())
	}

	mustNot, err := c.clauses(p, Not)
	if err != nil {
		return nil, err
	}

	// Optional clauses with no required sibling must still match at least
	// once, so they are wrapped as one required disjunction.
	var anyOf bq.Query
	if len(should) == 1 {
		anyOf = should[0]
	} else {
		anyOf = bq.NewDisjunctionQuery(should)
	}
	if len(mustNot) == 0 {
		return anyOf, nil
	}
	return bq.NewBooleanQuery([]bq.Query{anyOf}, nil, mustNot), nil
}

// clauses compiles the leaves then the groups under logic.
func (c compiler) clauses(p *Param, logic Logic) ([]bq.Query, error) {
	out := make([]bq.Query, 0, len(p.preds[logic])+len(p.groups[logic]))
	for _, pred := range p.preds[logic] {
		q, err := c.leaf(pred)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	for _, g := range p.groups[logic] {
		q, err := c.group(g)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (c compiler) leaf(p Predicate) (bq.Query, error) {
	switch p.Kind {
	case Analyzed:
		return c.analyzed(p)
	case Fuzzy:
		q := bq.NewFuzzyQuery(p.Value)
		q.SetFuzziness(fuzziness)
		q.SetField(p.Field)
		return q, nil
	case Prefix:
		q := bq.NewPrefixQuery(p.Value)
		q.SetField(p.Field)
		return q, nil
	case Regexp:
		if _, err := syntax.Parse(p.Value, syntax.Perl); err != nil {
			return nil, serrors.ParseError("invalid regular expression", err).
				WithDetail("field", p.Field)
		}
		q := bq.NewRegexpQuery(p.Value)
		q.SetField(p.Field)
		return q, nil
	case TextRange:
		var lo, hi string
		if p.Min != nil {
			lo = *p.Min
		}
		if p.Max != nil {
			hi = *p.Max
		}
		incMin, incMax := p.IncludeMin, p.IncludeMax
		q := bq.NewTermRangeInclusiveQuery(lo, hi, &incMin, &incMax)
		q.SetField(p.Field)
		return q, nil
	case LongRange, DoubleRange:
		if p.MinNum == nil && p.MaxNum == nil {
			return nil, serrors.ValidationError("numeric range needs at least one bound", nil).
				WithDetail("field", p.Field)
		}
		incMin, incMax := p.IncludeMin, p.IncludeMax
		q := bq.NewNumericRangeInclusiveQuery(p.MinNum, p.MaxNum, &incMin, &incMax)
		q.SetField(p.Field)
		return q, nil
	default:
		return wildcard(p.Field, p.Value), nil
	}
}

// wildcard matches value as a whole term, using a term query when it holds
// no wildcard characters.
func wildcard(field, value string) bq.Query {
	if !strings.ContainsAny(value, "*?") {
		q := bq.NewTermQuery(value)
		q.SetField(field)
		return q
	}
	q := bq.NewWildcardQuery(value)
	q.SetField(field)
	return q
}

// analyzed matches any term the analyzer produces for the value. A value
// with no terms left, such as only stop words, matches nothing.
func (c compiler) analyzed(p Predicate) (bq.Query, error) {
	if c.analyzer == nil {
		return nil, serrors.ParseError("no analyzer configured for analyzed predicate", nil).
			WithDetail("field", p.Field)
	}
	terms, err := c.analyzer.Analyze(p.Field, p.Value)
	if err != nil {
		return nil, serrors.ParseError("failed to analyze predicate value", err).
			WithDetail("field", p.Field)
	}
	if len(terms) == 0 {
		return bq.NewMatchNoneQuery(), nil
	}

	queries := make([]bq.Query, 0, len(terms))
	for _, t := range terms {
		q := bq.NewTermQuery(t)
		q.SetField(p.Field)
		queries = append(queries, q)
	}
	if len(queries) == 1 {
		return queries[0], nil
	}
	return bq.NewDisjunctionQuery(queries), nil
}

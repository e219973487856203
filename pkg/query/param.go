// Package query builds nested boolean search parameters and compiles them
// into bleve queries.
//
// A Param holds leaf predicates and nested Param groups under three logics:
// And (must), Or (include) and Not (exclude). Builder is the fluent way to
// fill one in. Compile turns a Param into a single bleve query.
package query

import (
	"fmt"
	"strconv"
)

// Logic combines a predicate or group with its siblings.
type Logic int

const (
	// And requires the clause to match.
	And Logic = iota
	// Or lets the clause satisfy the group alongside the And clauses.
	Or
	// Not excludes documents matching the clause.
	Not
)

func (l Logic) String() string {
	switch l {
	case And:
		return "and"
	case Or:
		return "or"
	case Not:
		return "not"
	default:
		return "logic(" + strconv.Itoa(int(l)) + ")"
	}
}

// Kind selects how a predicate value is matched.
type Kind int

const (
	// Wildcard matches the whole indexed term; * and ? are wildcards.
	Wildcard Kind = iota
	// Analyzed tokenizes the value and matches any resulting term.
	Analyzed
	// Fuzzy matches terms within two edits.
	Fuzzy
	// Prefix matches terms starting with the value.
	Prefix
	// Regexp matches terms against a regular expression.
	Regexp
	// TextRange matches terms between two strings.
	TextRange
	// LongRange matches integer values between two bounds.
	LongRange
	// DoubleRange matches floating-point values between two bounds.
	DoubleRange
)

var kindNames = map[Kind]string{
	Wildcard:    "wildcard",
	Analyzed:    "analyzed",
	Fuzzy:       "fuzzy",
	Prefix:      "prefix",
	Regexp:      "regexp",
	TextRange:   "text_range",
	LongRange:   "long_range",
	DoubleRange: "double_range",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return Wildcard, false
}

// Predicate is one leaf condition on a field.
//
// Value is used by the term kinds. Min/Max bound TextRange; MinNum/MaxNum
// bound the numeric ranges. A nil bound is open.
type Predicate struct {
	Field string
	Kind  Kind
	Value string

	Min, Max       *string
	MinNum, MaxNum *float64

	IncludeMin, IncludeMax bool
}

func (p Predicate) key() string {
	return fmt.Sprintf("%s|%d|%q|%s|%s|%s|%s|%t|%t",
		p.Field, p.Kind, p.Value,
		strBound(p.Min), strBound(p.Max), numBound(p.MinNum), numBound(p.MaxNum),
		p.IncludeMin, p.IncludeMax)
}

func (k Kind) isRange() bool {
	return k == TextRange || k == LongRange || k == DoubleRange
}

func strBound(s *string) string {
	if s == nil {
		return "-"
	}
	return strconv.Quote(*s)
}

func numBound(f *float64) string {
	if f == nil {
		return "-"
	}
	return strconv.FormatFloat(*f, 'g', -1, 64)
}

// Param is one group of predicates and sub-groups, plus the result sort.
// The zero value is not usable; call NewParam.
type Param struct {
	preds  [3][]Predicate
	groups [3][]*Param
	seen   map[string]struct{}
	sort   []SortField
}

// NewParam returns an empty Param. An empty Param matches every document.
func NewParam() *Param {
	return &Param{seen: make(map[string]struct{})}
}

// Add appends pred under logic. A predicate already present under the same
// logic is ignored.
func (p *Param) Add(logic Logic, pred Predicate) *Param {
	key := strconv.Itoa(int(logic)) + "|" + pred.key()
	if _, dup := p.seen[key]; dup {
		return p
	}
	p.seen[key] = struct{}{}
	p.preds[logic] = append(p.preds[logic], pred)
	return p
}

// AddGroup nests sub under logic. A nil sub is ignored.
func (p *Param) AddGroup(logic Logic, sub *Param) *Param {
	if sub == nil {
		return p
	}
	p.groups[logic] = append(p.groups[logic], sub)
	return p
}

// Predicates returns the leaf predicates under logic in insertion order.
func (p *Param) Predicates(logic Logic) []Predicate {
	return p.preds[logic]
}

// Groups returns the nested groups under logic in insertion order.
func (p *Param) Groups(logic Logic) []*Param {
	return p.groups[logic]
}

// IsEmpty reports whether p has no predicates and no groups.
func (p *Param) IsEmpty() bool {
	for l := And; l <= Not; l++ {
		if p.has(l) {
			return false
		}
	}
	return true
}

func (p *Param) has(logic Logic) bool {
	return len(p.preds[logic]) > 0 || len(p.groups[logic]) > 0
}

// Depth returns the nesting depth of p; a Param without groups has depth 1.
func (p *Param) Depth() int {
	max := 0
	for l := And; l <= Not; l++ {
		for _, g := range p.groups[l] {
			if d := g.Depth(); d > max {
				max = d
			}
		}
	}
	return max + 1
}

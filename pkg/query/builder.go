package query

import (
	"math"
	"time"
)

// Bound returns a pointer to v, for the optional bounds of range methods.
func Bound[T any](v T) *T {
	return &v
}

// Builder fills a Param through chained calls. Every method returns the
// Builder so calls can be chained; all of them mutate the same Param.
type Builder struct {
	param *Param
}

// NewBuilder returns a Builder over an empty Param.
func NewBuilder() *Builder {
	return &Builder{param: NewParam()}
}

// Param returns the Param being built.
func (b *Builder) Param() *Param {
	return b.param
}

// Clear discards every predicate, group and sort field.
func (b *Builder) Clear() *Builder {
	b.param = NewParam()
	return b
}

// And requires each value to match field as a whole term.
func (b *Builder) And(field string, values ...string) *Builder {
	return b.Condition(field, Wildcard, And, values...)
}

// Or adds each value as an alternative match on field.
func (b *Builder) Or(field string, values ...string) *Builder {
	return b.Condition(field, Wildcard, Or, values...)
}

// Not excludes documents where field matches any value.
func (b *Builder) Not(field string, values ...string) *Builder {
	return b.Condition(field, Wildcard, Not, values...)
}

// AndIfNotEmpty is And skipping empty strings.
func (b *Builder) AndIfNotEmpty(field string, values ...string) *Builder {
	return b.Condition(field, Wildcard, And, nonEmpty(values)...)
}

// OrIfNotEmpty is Or skipping empty strings.
func (b *Builder) OrIfNotEmpty(field string, values ...string) *Builder {
	return b.Condition(field, Wildcard, Or, nonEmpty(values)...)
}

// NotIfNotEmpty is Not skipping empty strings.
func (b *Builder) NotIfNotEmpty(field string, values ...string) *Builder {
	return b.Condition(field, Wildcard, Not, nonEmpty(values)...)
}

// AndExists requires field to have any value.
func (b *Builder) AndExists(field string) *Builder {
	return b.And(field, "*")
}

// NotExists excludes documents that have any value for field.
func (b *Builder) NotExists(field string) *Builder {
	return b.Not(field, "*")
}

func (b *Builder) AndInt(field string, values ...int64) *Builder {
	return b.ints(field, And, values)
}

func (b *Builder) OrInt(field string, values ...int64) *Builder {
	return b.ints(field, Or, values)
}

func (b *Builder) NotInt(field string, values ...int64) *Builder {
	return b.ints(field, Not, values)
}

func (b *Builder) AndFloat(field string, values ...float64) *Builder {
	return b.floats(field, And, values)
}

func (b *Builder) OrFloat(field string, values ...float64) *Builder {
	return b.floats(field, Or, values)
}

func (b *Builder) NotFloat(field string, values ...float64) *Builder {
	return b.floats(field, Not, values)
}

// AndTime matches dates indexed as epoch milliseconds.
func (b *Builder) AndTime(field string, values ...time.Time) *Builder {
	return b.times(field, And, values)
}

func (b *Builder) OrTime(field string, values ...time.Time) *Builder {
	return b.times(field, Or, values)
}

func (b *Builder) NotTime(field string, values ...time.Time) *Builder {
	return b.times(field, Not, values)
}

// Group nests sub under logic. A nil sub is ignored.
func (b *Builder) Group(sub *Builder, logic Logic) *Builder {
	if sub != nil {
		b.param.AddGroup(logic, sub.param)
	}
	return b
}

func (b *Builder) AndGroup(sub *Builder) *Builder { return b.Group(sub, And) }
func (b *Builder) OrGroup(sub *Builder) *Builder  { return b.Group(sub, Or) }
func (b *Builder) NotGroup(sub *Builder) *Builder { return b.Group(sub, Not) }

// Condition adds one predicate of kind per value. Range kinds are not
// accepted here; use the Range methods.
func (b *Builder) Condition(field string, kind Kind, logic Logic, values ...string) *Builder {
	if kind.isRange() {
		return b
	}
	for _, v := range values {
		b.param.Add(logic, Predicate{Field: field, Kind: kind, Value: v})
	}
	return b
}

func (b *Builder) Analyzed(field, value string, logic Logic) *Builder {
	return b.Condition(field, Analyzed, logic, value)
}

func (b *Builder) Fuzzy(field, value string, logic Logic) *Builder {
	return b.Condition(field, Fuzzy, logic, value)
}

func (b *Builder) Prefix(field, value string, logic Logic) *Builder {
	return b.Condition(field, Prefix, logic, value)
}

func (b *Builder) Regexp(field, value string, logic Logic) *Builder {
	return b.Condition(field, Regexp, logic, value)
}

func (b *Builder) Wildcard(field, value string, logic Logic) *Builder {
	return b.Condition(field, Wildcard, logic, value)
}

// Range adds a string range. Nil bounds are open; with both nil the call is
// a no-op.
func (b *Builder) Range(field string, min, max *string, logic Logic, includeMin, includeMax bool) *Builder {
	if min == nil && max == nil {
		return b
	}
	b.param.Add(logic, Predicate{
		Field: field, Kind: TextRange,
		Min: min, Max: max,
		IncludeMin: includeMin, IncludeMax: includeMax,
	})
	return b
}

// RangeInt adds a range on an integer field. Fractional bounds are moved
// inward to the nearest integer (ceiling for min, floor for max) and a
// moved bound becomes inclusive, so no integer inside the original range
// is lost.
func (b *Builder) RangeInt(field string, min, max *float64, logic Logic, includeMin, includeMax bool) *Builder {
	if min == nil && max == nil {
		return b
	}
	var lo, hi *float64
	if min != nil {
		v := math.Ceil(*min)
		if v > *min {
			includeMin = true
		}
		lo = &v
	}
	if max != nil {
		v := math.Floor(*max)
		if v < *max {
			includeMax = true
		}
		hi = &v
	}
	b.param.Add(logic, Predicate{
		Field: field, Kind: LongRange,
		MinNum: lo, MaxNum: hi,
		IncludeMin: includeMin, IncludeMax: includeMax,
	})
	return b
}

// RangeFloat adds a range on a floating-point field.
func (b *Builder) RangeFloat(field string, min, max *float64, logic Logic, includeMin, includeMax bool) *Builder {
	if min == nil && max == nil {
		return b
	}
	b.param.Add(logic, Predicate{
		Field: field, Kind: DoubleRange,
		MinNum: copyFloat(min), MaxNum: copyFloat(max),
		IncludeMin: includeMin, IncludeMax: includeMax,
	})
	return b
}

// RangeTime adds a range on a date field indexed as epoch milliseconds.
func (b *Builder) RangeTime(field string, min, max *time.Time, logic Logic, includeMin, includeMax bool) *Builder {
	if min == nil && max == nil {
		return b
	}
	var lo, hi *float64
	if min != nil {
		lo = Bound(float64(min.UnixMilli()))
	}
	if max != nil {
		hi = Bound(float64(max.UnixMilli()))
	}
	b.param.Add(logic, Predicate{
		Field: field, Kind: LongRange,
		MinNum: lo, MaxNum: hi,
		IncludeMin: includeMin, IncludeMax: includeMax,
	})
	return b
}

// SortBy appends a sort field. Int and Float sort as Long and Double.
func (b *Builder) SortBy(field string, typ SortType, desc bool) *Builder {
	b.param.AddSort(SortField{Field: field, Type: typ, Desc: desc})
	return b
}

func (b *Builder) ints(field string, logic Logic, values []int64) *Builder {
	for _, v := range values {
		f := float64(v)
		b.param.Add(logic, exact(field, LongRange, f))
	}
	return b
}

func (b *Builder) floats(field string, logic Logic, values []float64) *Builder {
	for _, v := range values {
		b.param.Add(logic, exact(field, DoubleRange, v))
	}
	return b
}

func (b *Builder) times(field string, logic Logic, values []time.Time) *Builder {
	for _, v := range values {
		b.param.Add(logic, exact(field, LongRange, float64(v.UnixMilli())))
	}
	return b
}

// exact is the inclusive range [v, v].
func exact(field string, kind Kind, v float64) Predicate {
	return Predicate{
		Field: field, Kind: kind,
		MinNum: Bound(v), MaxNum: Bound(v),
		IncludeMin: true, IncludeMax: true,
	}
}

func nonEmpty(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	return Bound(*f)
}

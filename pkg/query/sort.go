package query

import (
	"github.com/blevesearch/bleve/v2/search"
)

// SortType is the value type a field is sorted as.
type SortType int

const (
	SortString SortType = iota
	SortInt
	SortLong
	SortFloat
	SortDouble
	// SortScore orders by relevance; Field is ignored.
	SortScore
)

// SortField orders results by one field.
type SortField struct {
	Field string
	Type  SortType
	Desc  bool
}

// normalize widens Int to Long and Float to Double, the only numeric
// encodings the engine sorts on.
func (s SortField) normalize() SortField {
	switch s.Type {
	case SortInt:
		s.Type = SortLong
	case SortFloat:
		s.Type = SortDouble
	}
	return s
}

// AddSort appends a sort field after normalizing its type.
func (p *Param) AddSort(f SortField) *Param {
	p.sort = append(p.sort, f.normalize())
	return p
}

// Sort returns the sort fields in order.
func (p *Param) Sort() []SortField {
	return p.sort
}

// SortOrder translates the sort fields for the engine. It returns nil when
// no sort was set, meaning relevance order.
func (p *Param) SortOrder() search.SortOrder {
	if len(p.sort) == 0 {
		return nil
	}
	order := make(search.SortOrder, 0, len(p.sort))
	for _, f := range p.sort {
		switch f.Type {
		case SortScore:
			order = append(order, &search.SortScore{Desc: f.Desc})
		case SortLong, SortDouble:
			order = append(order, &search.SortField{Field: f.Field, Desc: f.Desc, Type: search.SortFieldAsNumber})
		default:
			order = append(order, &search.SortField{Field: f.Field, Desc: f.Desc, Type: search.SortFieldAsString})
		}
	}
	return order
}

package engine

import (
	"math"
	"strconv"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/document"
	index "github.com/blevesearch/bleve_index_api"
	"github.com/google/uuid"
)

// FieldKind selects how a field value is encoded.
type FieldKind int

const (
	// Keyword indexes the value as one whole token.
	Keyword FieldKind = iota
	// Text runs the value through the registry analyzer.
	Text
	// Number is a numeric field supporting numeric ranges and sorting.
	Number
)

// Field is one field value of a Document.
type Field struct {
	Name   string
	Kind   FieldKind
	Text   string
	Number float64
	Index  bool
	Store  bool
}

// Document is an ordered set of fields. Repeating a name makes the field
// multi-valued.
type Document struct {
	Fields []Field
}

// StoredField is a stored value read back from a Snapshot.
type StoredField struct {
	Name  string
	Value string
}

// build converts d into a bleve document under a fresh identifier.
func (r *Registry) build(d Document) *document.Document {
	doc := document.NewDocument(uuid.NewString())
	for _, f := range d.Fields {
		if !f.Index && !f.Store {
			continue
		}
		opts := fieldOptions(f)
		switch f.Kind {
		case Number:
			doc.AddField(document.NewNumericFieldWithIndexingOptions(f.Name, nil, f.Number, opts))
		default:
			var a analysis.Analyzer = r.keyword.analyzer
			if f.Kind == Text {
				a = r.analyzer.analyzer
			}
			doc.AddField(document.NewTextFieldCustom(f.Name, nil, []byte(f.Text), opts, a))
		}
	}
	return doc
}

func fieldOptions(f Field) index.FieldIndexingOptions {
	var opts index.FieldIndexingOptions
	if f.Index {
		opts |= index.IndexField
		if f.Kind != Text {
			opts |= index.DocValues
		}
	}
	if f.Store {
		opts |= index.StoreField
	}
	return opts
}

// FormatNumber renders a stored number. Whole values print without a
// fractional part so longs and dates read back as integers.
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

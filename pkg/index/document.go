package index

import (
	"time"

	"github.com/Aman-CERP/searchkit/internal/engine"
)

// Doc is a document under construction. The zero value is an empty
// document. Methods return the Doc for chaining.
//
// Add* methods index and store a value, Index* methods only index it and
// Store only stores it. Plain string values are indexed as one whole token;
// the Text variants run the value through the analyzer. Dates are indexed
// as epoch milliseconds.
type Doc struct {
	fields []engine.Field
}

// NewDoc returns an empty Doc.
func NewDoc() *Doc {
	return &Doc{}
}

func (d *Doc) Add(name, value string) *Doc {
	return d.str(name, value, engine.Keyword, true, true)
}

func (d *Doc) AddText(name, value string) *Doc {
	return d.str(name, value, engine.Text, true, true)
}

func (d *Doc) AddInt(name string, value int64) *Doc {
	return d.num(name, float64(value), true, true)
}

func (d *Doc) AddFloat(name string, value float64) *Doc {
	return d.num(name, value, true, true)
}

func (d *Doc) AddTime(name string, value time.Time) *Doc {
	return d.num(name, float64(value.UnixMilli()), true, true)
}

func (d *Doc) Index(name, value string) *Doc {
	return d.str(name, value, engine.Keyword, true, false)
}

func (d *Doc) IndexText(name, value string) *Doc {
	return d.str(name, value, engine.Text, true, false)
}

func (d *Doc) IndexInt(name string, value int64) *Doc {
	return d.num(name, float64(value), true, false)
}

func (d *Doc) IndexFloat(name string, value float64) *Doc {
	return d.num(name, value, true, false)
}

func (d *Doc) IndexTime(name string, value time.Time) *Doc {
	return d.num(name, float64(value.UnixMilli()), true, false)
}

// Store keeps value for read-back without making it searchable.
func (d *Doc) Store(name, value string) *Doc {
	return d.str(name, value, engine.Keyword, false, true)
}

// Set adds a value of any supported type with explicit index and store
// flags. A nil value, a nil pointer, or an unsupported type is ignored, as
// is a value neither indexed nor stored. Supported types are string, the
// integer and float types, time.Time and pointers to those.
func (d *Doc) Set(name string, value any, index, store bool) *Doc {
	switch v := value.(type) {
	case nil:
	case string:
		d.str(name, v, engine.Keyword, index, store)
	case *string:
		if v != nil {
			d.str(name, *v, engine.Keyword, index, store)
		}
	case int:
		d.num(name, float64(v), index, store)
	case int32:
		d.num(name, float64(v), index, store)
	case int64:
		d.num(name, float64(v), index, store)
	case *int64:
		if v != nil {
			d.num(name, float64(*v), index, store)
		}
	case float32:
		d.num(name, float64(v), index, store)
	case float64:
		d.num(name, v, index, store)
	case *float64:
		if v != nil {
			d.num(name, *v, index, store)
		}
	case time.Time:
		d.num(name, float64(v.UnixMilli()), index, store)
	case *time.Time:
		if v != nil {
			d.num(name, float64(v.UnixMilli()), index, store)
		}
	}
	return d
}

// Get returns the first value added under name, formatted as it would be
// read back from the index.
func (d *Doc) Get(name string) (string, bool) {
	for _, f := range d.fields {
		if f.Name != name {
			continue
		}
		if f.Kind == engine.Number {
			return engine.FormatNumber(f.Number), true
		}
		return f.Text, true
	}
	return "", false
}

// Len is the number of field values in the document.
func (d *Doc) Len() int {
	return len(d.fields)
}

// Reset empties the document.
func (d *Doc) Reset() {
	d.fields = nil
}

func (d *Doc) document() engine.Document {
	return engine.Document{Fields: append([]engine.Field(nil), d.fields...)}
}

func (d *Doc) str(name, value string, kind engine.FieldKind, index, store bool) *Doc {
	if !index && !store {
		return d
	}
	d.fields = append(d.fields, engine.Field{Name: name, Kind: kind, Text: value, Index: index, Store: store})
	return d
}

func (d *Doc) num(name string, value float64, index, store bool) *Doc {
	if !index && !store {
		return d
	}
	d.fields = append(d.fields, engine.Field{Name: name, Kind: engine.Number, Number: value, Index: index, Store: store})
	return d
}

func documents(docs []*Doc) []engine.Document {
	out := make([]engine.Document, 0, len(docs))
	for _, d := range docs {
		if d == nil || d.Len() == 0 {
			continue
		}
		out = append(out, d.document())
	}
	return out
}

package store

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/mitchellh/mapstructure"
	"gorm.io/gorm/schema"
)

// Kind is the storage class of a frame column
type Kind int

const (
	KindText Kind = iota
	KindInteger
	KindReal
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	default:
		return "text"
	}
}

// Column is a named, typed frame column
type Column struct {
	Name string
	Kind Kind
}

// Frame is an ordered tabular result: columns keep their position and rows
// hold one value per column.
type Frame struct {
	Columns []Column
	Rows    [][]any
}

// NewFrame creates an empty frame with the given columns
func NewFrame(columns ...Column) *Frame {
	return &Frame{Columns: columns}
}

// Append adds a row. The number of values must match the number of columns.
func (f *Frame) Append(values ...any) error {
	if len(values) != len(f.Columns) {
		return fmt.Errorf("row has %d values, frame has %d columns", len(values), len(f.Columns))
	}
	f.Rows = append(f.Rows, values)
	return nil
}

// Len returns the number of rows
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// ColumnNames returns the column names in order
func (f *Frame) ColumnNames() []string {
	names := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of the named column, or -1
func (f *Frame) ColumnIndex(name string) int {
	for i, c := range f.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Records returns the rows as column name to value maps
func (f *Frame) Records() []map[string]any {
	out := make([]map[string]any, len(f.Rows))
	for i, row := range f.Rows {
		rec := make(map[string]any, len(f.Columns))
		for j, c := range f.Columns {
			rec[c.Name] = row[j]
		}
		out[i] = rec
	}
	return out
}

// Decode decodes the rows into dest, a pointer to a slice of structs tagged
// with `mapstructure`. Numeric strings returned by some drivers are converted.
func (f *Frame) Decode(dest any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dest,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(f.Records()); err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	return nil
}

var schemaCache sync.Map

// FrameOf builds a frame from a slice of structs (or struct pointers).
// Columns follow the struct field order and use the gorm column names.
func FrameOf(records any) (*Frame, error) {
	rv := reflect.Indirect(reflect.ValueOf(records))
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("FrameOf expects a slice, got %T", records)
	}

	elemType := rv.Type().Elem()
	for elemType.Kind() == reflect.Ptr {
		elemType = elemType.Elem()
	}
	if elemType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("FrameOf expects a slice of structs, got %T", records)
	}

	s, err := schema.Parse(reflect.New(elemType).Interface(), &schemaCache, schema.NamingStrategy{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse record schema: %w", err)
	}

	var fields []*schema.Field
	frame := &Frame{}
	for _, field := range s.Fields {
		if field.DBName == "" {
			continue
		}
		fields = append(fields, field)
		frame.Columns = append(frame.Columns, Column{Name: field.DBName, Kind: kindOf(field.DataType)})
	}

	ctx := context.Background()
	frame.Rows = make([][]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		item := reflect.Indirect(rv.Index(i))
		row := make([]any, len(fields))
		for j, field := range fields {
			row[j], _ = field.ValueOf(ctx, item)
		}
		frame.Rows = append(frame.Rows, row)
	}

	return frame, nil
}

func kindOf(dt schema.DataType) Kind {
	switch dt {
	case schema.Int, schema.Uint, schema.Bool:
		return KindInteger
	case schema.Float:
		return KindReal
	default:
		return KindText
	}
}

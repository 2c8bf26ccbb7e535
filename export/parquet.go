// Package export writes the derived statistics tables as parquet files
package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"pedestrian_staging/logger"
	"pedestrian_staging/stats"
)

// ParquetExporter encodes derived tables to parquet and hands them to a sink
type ParquetExporter struct {
	sink        Sink
	compression parquet.CompressionCodec
	now         func() time.Time
}

// NewParquetExporter creates an exporter. compression is SNAPPY, GZIP or NONE.
func NewParquetExporter(sink Sink, compression string) (*ParquetExporter, error) {
	codec, err := compressionCodec(compression)
	if err != nil {
		return nil, err
	}
	return &ParquetExporter{sink: sink, compression: codec, now: time.Now}, nil
}

// ObjectName returns where table is stored for a run on day, e.g.
// "dt=2021-06-15/top_n_locations_by_day.parquet"
func ObjectName(table string, day time.Time) string {
	return path.Join("dt="+day.Format("2006-01-02"), strings.ToLower(table)+".parquet")
}

// Export writes every table. A failing table does not stop the others; all
// failures are returned together.
func (e *ParquetExporter) Export(ctx context.Context, tables []stats.DerivedTable) error {
	var result error
	day := e.now()
	for _, t := range tables {
		buf, err := e.encode(t)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("encode %s: %w", t.Name, err))
			continue
		}
		name := ObjectName(t.Name, day)
		size := buf.Len()
		if err := e.sink.Put(ctx, name, buf); err != nil {
			result = multierror.Append(result, fmt.Errorf("store %s: %w", t.Name, err))
			continue
		}
		logger.Debugf("Exported %s (%d rows, %d bytes) to %s/%s\n", t.Name, t.Len, size, e.sink, name)
	}
	return result
}

// marshalWorkers is the number of goroutines the parquet writer marshals with.
// Each worker flushes its own pages, so derived tables use a single one.
const marshalWorkers = 1

// encode writes the rows of t, a slice of tagged structs, into one parquet file
func (e *ParquetExporter) encode(t stats.DerivedTable) (buf *bytes.Buffer, err error) {
	rv := reflect.ValueOf(t.Rows)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("rows must be a slice, got %T", t.Rows)
	}

	// The writer panics on some schema mismatches instead of returning an error
	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, fmt.Errorf("parquet writer panicked: %v", r)
		}
	}()

	buf = new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, reflect.New(rv.Type().Elem()).Interface(), marshalWorkers)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = e.compression

	for i := 0; i < rv.Len(); i++ {
		if err := pw.Write(rv.Index(i).Interface()); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return buf, nil
}

// Close releases the sink
func (e *ParquetExporter) Close() error {
	return e.sink.Close()
}

func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(name) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", name)
	}
}

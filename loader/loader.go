// Package loader fetches complete CSV datasets from paged HTTP endpoints.
package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"pedestrian_staging/logger"
	"pedestrian_staging/pipeerr"
)

// DefaultPageSize is the number of records requested per page
const DefaultPageSize = 50000

// Table is a raw CSV dataset: one header and the data records in source order
type Table struct {
	Header  []string
	Records [][]string
}

// Len returns the number of data records
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// ColumnIndex returns the position of the named column, or -1
func (t *Table) ColumnIndex(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Column returns all values of the named column
func (t *Table) Column(name string) []string {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	values := make([]string, len(t.Records))
	for i, rec := range t.Records {
		if idx < len(rec) {
			values[i] = rec[idx]
		}
	}
	return values
}

// PageStat describes one fetched page
type PageStat struct {
	Endpoint string
	Offset   int
	Rows     int
	Attempts int
	Elapsed  time.Duration
}

// Loader fetches pages strictly one after another
type Loader struct {
	client        *http.Client
	pageSize      int
	maxAttempts   int
	retryInterval time.Duration
	onPage        func(PageStat)
}

// Option configures a Loader
type Option func(*Loader)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.client.Timeout = d
		}
	}
}

// WithPageSize sets the number of records per page
func WithPageSize(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// WithRetry bounds attempts per page and sets the first backoff interval.
// One attempt disables retrying.
func WithRetry(maxAttempts int, initialInterval time.Duration) Option {
	return func(l *Loader) {
		if maxAttempts > 0 {
			l.maxAttempts = maxAttempts
		}
		if initialInterval > 0 {
			l.retryInterval = initialInterval
		}
	}
}

// WithPageObserver registers a callback invoked after every fetched page
func WithPageObserver(fn func(PageStat)) Option {
	return func(l *Loader) { l.onPage = fn }
}

// New creates a loader
func New(opts ...Option) *Loader {
	l := &Loader{
		client:        &http.Client{Timeout: 60 * time.Second},
		pageSize:      DefaultPageSize,
		maxAttempts:   1,
		retryInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// PageSize returns the configured page size
func (l *Loader) PageSize() int {
	return l.pageSize
}

// Load fetches every page of endpoint and concatenates them in request order.
// Loading stops after the first page holding fewer records than the page size.
// Any page that still fails after retrying aborts the load.
func (l *Loader) Load(ctx context.Context, endpoint string) (*Table, error) {
	result := &Table{}

	for offset := 0; ; offset += l.pageSize {
		page, err := l.fetchPage(ctx, endpoint, offset)
		if err != nil {
			return nil, err
		}

		if len(page.Header) > 0 {
			if result.Header == nil {
				result.Header = page.Header
			} else if !slices.Equal(result.Header, page.Header) {
				return nil, &pipeerr.FormatError{
					Field: "header",
					Value: strings.Join(page.Header, ","),
					Row:   -1,
					Err:   fmt.Errorf("page at offset %d changed the header of %s", offset, endpoint),
				}
			}
		}
		result.Records = append(result.Records, page.Records...)

		if page.Len() < l.pageSize {
			break
		}
	}

	logger.Printf("Loaded %d records from %s\n", result.Len(), endpoint)
	return result, nil
}

func (l *Loader) fetchPage(ctx context.Context, endpoint string, offset int) (*Table, error) {
	pageURL, err := PageURL(endpoint, l.pageSize, offset)
	if err != nil {
		return nil, &pipeerr.NetworkError{Endpoint: endpoint, Offset: offset, Err: err}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.retryInterval

	attempts := 0
	start := time.Now()
	page, err := backoff.Retry(ctx, func() (*Table, error) {
		attempts++
		t, err := l.fetchOnce(ctx, pageURL, endpoint, offset)
		if err == nil {
			return t, nil
		}
		var netErr *pipeerr.NetworkError
		if errors.As(err, &netErr) && netErr.Retryable() {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(l.maxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warnf("Page fetch failed, retrying in %v: %v\n", next, err)
		}),
	)
	if err != nil {
		var netErr *pipeerr.NetworkError
		var fmtErr *pipeerr.FormatError
		if !errors.As(err, &netErr) && !errors.As(err, &fmtErr) {
			err = &pipeerr.NetworkError{Endpoint: endpoint, Offset: offset, Err: err}
		}
		return nil, err
	}

	logger.Debugf("%s -> %d records\n", pageURL, page.Len())
	if l.onPage != nil {
		l.onPage(PageStat{
			Endpoint: endpoint,
			Offset:   offset,
			Rows:     page.Len(),
			Attempts: attempts,
			Elapsed:  time.Since(start),
		})
	}
	return page, nil
}

func (l *Loader) fetchOnce(ctx context.Context, pageURL, endpoint string, offset int) (*Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &pipeerr.NetworkError{Endpoint: endpoint, Offset: offset, Err: err}
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &pipeerr.NetworkError{Endpoint: endpoint, Offset: offset, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &pipeerr.NetworkError{
			Endpoint:   endpoint,
			Offset:     offset,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(body))),
		}
	}

	page, err := ParseCSV(resp.Body)
	if err != nil {
		var fmtErr *pipeerr.FormatError
		if errors.As(err, &fmtErr) {
			return nil, err
		}
		// A body cut short mid-transfer is worth another attempt
		return nil, &pipeerr.NetworkError{Endpoint: endpoint, Offset: offset, Err: err}
	}
	return page, nil
}

// PageURL adds the $limit and $offset paging parameters to endpoint
func PageURL(endpoint string, limit, offset int) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("$limit", strconv.Itoa(limit))
	q.Set("$offset", strconv.Itoa(offset))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseCSV reads a CSV document whose first row is the header.
// An empty document is a page with no records.
func ParseCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 0

	header, err := reader.Read()
	if err == io.EOF {
		return &Table{}, nil
	}
	if err != nil {
		return nil, wrapCSVError(err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	t := &Table{Header: header}
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrapCSVError(err)
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

func wrapCSVError(err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return &pipeerr.FormatError{Field: "csv", Value: fmt.Sprintf("line %d", parseErr.Line), Row: -1, Err: err}
	}
	return err
}

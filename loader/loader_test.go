package loader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pedestrian_staging/pipeerr"
)

// pagedSource serves total numbered rows through $limit/$offset paging
func pagedSource(t *testing.T, total int, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		limit, err := strconv.Atoi(r.URL.Query().Get("$limit"))
		require.NoError(t, err)
		offset, err := strconv.Atoi(r.URL.Query().Get("$offset"))
		require.NoError(t, err)

		var b strings.Builder
		b.WriteString("sensor_id,hourly_counts\n")
		for i := offset; i < total && i < offset+limit; i++ {
			fmt.Fprintf(&b, "%d,%d\n", i%70, i)
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(b.String()))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadFullPageThenEmptyPage(t *testing.T) {
	var hits int32
	srv := pagedSource(t, 50000, &hits)

	table, err := New().Load(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, 50000, table.Len())
	assert.Equal(t, []string{"sensor_id", "hourly_counts"}, table.Header)
}

func TestLoadShortFirstPage(t *testing.T) {
	var hits int32
	srv := pagedSource(t, 49999, &hits)

	table, err := New().Load(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, 49999, table.Len())
}

func TestLoadPreservesOrderAcrossPages(t *testing.T) {
	var hits int32
	srv := pagedSource(t, 10, &hits)

	var offsets []int
	l := New(WithPageSize(4), WithPageObserver(func(p PageStat) {
		offsets = append(offsets, p.Offset)
	}))
	table, err := l.Load(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	assert.Equal(t, []int{0, 4, 8}, offsets)
	require.Equal(t, 10, table.Len())
	for i, rec := range table.Records {
		assert.Equal(t, strconv.Itoa(i), rec[1])
	}
}

func TestLoadEmptySource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	table, err := New().Load(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
}

func TestLoadClientErrorIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "no such dataset", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(WithRetry(3, time.Millisecond)).Load(context.Background(), srv.URL)

	var netErr *pipeerr.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, http.StatusNotFound, netErr.StatusCode)
	assert.Equal(t, 0, netErr.Offset)
	assert.Equal(t, srv.URL, netErr.Endpoint)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestLoadRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("sensor_id,hourly_counts\n1,10\n"))
	}))
	defer srv.Close()

	table, err := New(WithRetry(3, time.Millisecond)).Load(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestLoadAbortsWhenRetriesExhausted(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("$offset")
		if offset == "0" {
			_, _ = w.Write([]byte("sensor_id,hourly_counts\n1,10\n2,20\n"))
			return
		}
		atomic.AddInt32(&hits, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	table, err := New(WithPageSize(2), WithRetry(2, time.Millisecond)).Load(context.Background(), srv.URL)
	assert.Nil(t, table)

	var netErr *pipeerr.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, 2, netErr.Offset)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestLoadRejectsHeaderChange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("$offset") == "0" {
			_, _ = w.Write([]byte("a,b\n1,2\n"))
			return
		}
		_, _ = w.Write([]byte("a,c\n"))
	}))
	defer srv.Close()

	_, err := New(WithPageSize(1)).Load(context.Background(), srv.URL)

	var fmtErr *pipeerr.FormatError
	assert.True(t, errors.As(err, &fmtErr))
}

func TestPageURL(t *testing.T) {
	u, err := PageURL("https://example.org/resource/b2ak-trbp.csv?$order=id", 50000, 100000)
	require.NoError(t, err)
	assert.Contains(t, u, "%24limit=50000")
	assert.Contains(t, u, "%24offset=100000")
	assert.Contains(t, u, "%24order=id")
}

func TestParseCSVRaggedRowIsFormatError(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("a,b\n1,2\n3\n"))

	var fmtErr *pipeerr.FormatError
	assert.True(t, errors.As(err, &fmtErr))
}

package main

import (
	"encoding/csv"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"pedestrian_staging/loader"
)

// NewServer serves the CSV files of dir under /resource/<file> with
// $limit and $offset paging.
func NewServer(dir string) *gin.Engine {
	var (
		mu    sync.Mutex
		cache = make(map[string]*loader.Table)
	)
	open := func(name string) (*loader.Table, error) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := cache[name]; ok {
			return t, nil
		}
		f, err := os.Open(filepath.Join(dir, filepath.Base(name)))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		t, err := loader.ParseCSV(f)
		if err != nil {
			return nil, err
		}
		cache[name] = t
		return t, nil
	}

	r := gin.Default()
	r.GET("/resource/:file", func(c *gin.Context) {
		table, err := open(c.Param("file"))
		if os.IsNotExist(err) {
			c.String(http.StatusNotFound, "no such dataset")
			return
		}
		if err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}

		limit, err := strconv.Atoi(c.DefaultQuery("$limit", "1000"))
		if err != nil || limit < 0 {
			c.String(http.StatusBadRequest, "invalid $limit")
			return
		}
		offset, err := strconv.Atoi(c.DefaultQuery("$offset", "0"))
		if err != nil || offset < 0 {
			c.String(http.StatusBadRequest, "invalid $offset")
			return
		}

		start := min(offset, table.Len())
		end := min(start+limit, table.Len())

		c.Header("Content-Type", "text/csv")
		c.Status(http.StatusOK)
		w := csv.NewWriter(c.Writer)
		_ = w.Write(table.Header)
		_ = w.WriteAll(table.Records[start:end])
	})
	return r
}

// Package api serves the derived statistics tables read-only over HTTP
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pedestrian_staging/database"
	"pedestrian_staging/logger"
	"pedestrian_staging/models"
	"pedestrian_staging/store"
)

const (
	defaultLimit = 100
	maxLimit     = 10000
)

// TableInfo describes one derived table
type TableInfo struct {
	Name   string `json:"name"`
	Exists bool   `json:"exists"`
	Rows   int64  `json:"rows"`
}

type handler struct {
	store  *store.Store
	ledger *database.RunLedger
}

// NewRouter builds the read API. Only the derived tables can be read.
func NewRouter(st *store.Store, ledger *database.RunLedger) *gin.Engine {
	h := &handler{store: st, ledger: ledger}
	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/tables", h.listTables)
		api.GET("/tables/:name", h.readTable)
		api.GET("/runs", h.listRuns)
	}
	return r
}

func (h *handler) listTables(c *gin.Context) {
	ctx := c.Request.Context()
	tables := make([]TableInfo, 0, len(models.DerivedTables))
	for _, name := range models.DerivedTables {
		info := TableInfo{Name: name}
		exists, err := h.store.HasTable(ctx, name)
		if err != nil {
			h.fail(c, err)
			return
		}
		if exists {
			info.Exists = true
			if info.Rows, err = h.store.Count(ctx, name); err != nil {
				h.fail(c, err)
				return
			}
		}
		tables = append(tables, info)
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables})
}

func (h *handler) readTable(c *gin.Context) {
	name := c.Param("name")
	if !models.IsDerivedTable(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown table " + name})
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	exists, err := h.store.HasTable(ctx, name)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": name + " has not been computed yet"})
		return
	}

	// name is one of the fixed derived tables
	frame, err := h.store.Query(ctx, "SELECT * FROM "+h.store.Quote(name)+" LIMIT ?", limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"table":   name,
		"columns": frame.ColumnNames(),
		"rows":    frame.Records(),
	})
}

func (h *handler) listRuns(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	runs, err := h.ledger.Recent(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.DefaultQuery("limit", strconv.Itoa(defaultLimit))
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and " + strconv.Itoa(maxLimit)})
		return 0, false
	}
	return limit, true
}

func (h *handler) fail(c *gin.Context, err error) {
	logger.Errorf("%s %s: %v\n", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

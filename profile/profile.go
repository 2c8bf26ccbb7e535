// Package profile builds data quality reports of raw source tables
package profile

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"pedestrian_staging/loader"
)

const topValueCount = 5

// ValueCount is how often one value occurs in a column
type ValueCount struct {
	Value string
	Count int
}

// ColumnProfile summarises one column
type ColumnProfile struct {
	Name     string
	Count    int
	Missing  int
	Distinct int
	// Numeric is set when every present value parses as a number
	Numeric bool
	Min     float64
	Max     float64
	Mean    float64
	Top     []ValueCount
}

// MissingPercent returns the share of blank values in percent
func (c ColumnProfile) MissingPercent() float64 {
	if c.Count == 0 {
		return 0
	}
	return float64(c.Missing) / float64(c.Count) * 100
}

// Report is the profile of one table
type Report struct {
	Name        string
	Rows        int
	Columns     []ColumnProfile
	GeneratedAt time.Time
}

// Build profiles every column of table
func Build(name string, table *loader.Table) Report {
	report := Report{Name: name, Rows: table.Len(), GeneratedAt: time.Now()}
	for i, col := range table.Header {
		report.Columns = append(report.Columns, profileColumn(col, i, table.Records))
	}
	return report
}

func profileColumn(name string, idx int, records [][]string) ColumnProfile {
	p := ColumnProfile{Name: name, Count: len(records), Numeric: true}
	counts := make(map[string]int)
	var sum float64
	present := 0

	for _, rec := range records {
		v := ""
		if idx < len(rec) {
			v = strings.TrimSpace(rec[idx])
		}
		if v == "" {
			p.Missing++
			continue
		}
		counts[v]++
		if !p.Numeric {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) {
			p.Numeric = false
			continue
		}
		if present == 0 || f < p.Min {
			p.Min = f
		}
		if present == 0 || f > p.Max {
			p.Max = f
		}
		sum += f
		present++
	}

	p.Distinct = len(counts)
	if len(counts) == 0 {
		p.Numeric = false
	}
	if p.Numeric && present > 0 {
		p.Mean = sum / float64(present)
	} else {
		p.Min, p.Max = 0, 0
	}

	for v, n := range counts {
		p.Top = append(p.Top, ValueCount{Value: v, Count: n})
	}
	sort.Slice(p.Top, func(i, j int) bool {
		if p.Top[i].Count != p.Top[j].Count {
			return p.Top[i].Count > p.Top[j].Count
		}
		return p.Top[i].Value < p.Top[j].Value
	})
	if len(p.Top) > topValueCount {
		p.Top = p.Top[:topValueCount]
	}
	return p
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"num": func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) },
	"pct": func(f float64) string { return fmt.Sprintf("%.1f%%", f) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Data profiling: {{.Name}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; vertical-align: top; }
</style>
</head>
<body>
<h1>Data profiling: {{.Name}}</h1>
<p>{{.Rows}} rows, {{len .Columns}} columns. Generated {{.GeneratedAt.Format "2006-01-02 15:04:05"}}.</p>
<table>
<tr><th>Column</th><th>Missing</th><th>Distinct</th><th>Min</th><th>Max</th><th>Mean</th><th>Most frequent</th></tr>
{{- range .Columns}}
<tr>
<td>{{.Name}}</td>
<td>{{.Missing}} ({{pct .MissingPercent}})</td>
<td>{{.Distinct}}</td>
{{- if .Numeric}}
<td>{{num .Min}}</td><td>{{num .Max}}</td><td>{{num .Mean}}</td>
{{- else}}
<td></td><td></td><td></td>
{{- end}}
<td>{{range .Top}}{{.Value}} ({{.Count}})<br>{{end}}</td>
</tr>
{{- end}}
</table>
</body>
</html>
`))

// WriteHTML renders the report as a standalone HTML document
func (r Report) WriteHTML(w io.Writer) error {
	return reportTemplate.Execute(w, r)
}

// FileName returns the report file name, e.g. "data profiling sensor location.html"
func (r Report) FileName() string {
	return "data profiling " + r.Name + ".html"
}

// WriteFile writes the HTML report into dir and returns its path
func (r Report) WriteFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(dir, r.FileName())
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	if err := r.WriteHTML(f); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return path, nil
}

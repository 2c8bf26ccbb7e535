// Command fixturegen writes synthetic pedestrian counting datasets and can
// serve them through the same $limit/$offset paging as the open data API, so
// the pipeline can run without network access.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"pedestrian_staging/stats"
)

const (
	SensorFile = "sensor_location.csv"
	CountsFile = "hourly_counts.csv"
)

var (
	sensorHeader = []string{"sensor_id", "sensor_description", "sensor_name", "status", "latitude", "longitude", "location"}
	countsHeader = []string{"id", "date_time", "year", "month", "mdate", "day", "time", "sensor_id", "sensor_name", "hourly_counts"}

	streets = []string{"Bourke Street Mall", "Town Hall", "Princes Bridge", "Flinders Street Station", "Southern Cross Station",
		"Collins Place", "Melbourne Central", "State Library", "QV Market", "Birrarung Marr"}
)

// Options control what gets generated
type Options struct {
	Sensors int
	From    time.Time
	To      time.Time
	Seed    int64
}

type generator struct {
	filename string
	header   []string
	rows     func(Options) [][]string
}

func main() {
	out := flag.String("out", "fixtures", "output directory")
	sensors := flag.Int("sensors", 10, "number of sensors")
	from := flag.String("from", "2019-11-01", "first day of counts")
	to := flag.String("to", "2022-03-31", "last day of counts")
	seed := flag.Int64("seed", 1, "random seed")
	serve := flag.String("serve", "", "serve the generated files on this address, e.g. :8081")
	flag.Parse()

	opts := Options{Sensors: *sensors, Seed: *seed}
	var err error
	if opts.From, err = time.Parse("2006-01-02", *from); err != nil {
		fmt.Printf("Invalid -from: %v\n", err)
		os.Exit(2)
	}
	if opts.To, err = time.Parse("2006-01-02", *to); err != nil {
		fmt.Printf("Invalid -to: %v\n", err)
		os.Exit(2)
	}

	if err := Generate(*out, opts); err != nil {
		fmt.Printf("Generation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("All fixture data generated.")

	if *serve != "" {
		fmt.Printf("Serving %s on %s (/resource/%s, /resource/%s)\n", *out, *serve, SensorFile, CountsFile)
		if err := NewServer(*out).Run(*serve); err != nil {
			fmt.Printf("Server stopped: %v\n", err)
			os.Exit(1)
		}
	}
}

// Generate writes both datasets into dir
func Generate(dir string, opts Options) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	generators := []generator{
		{SensorFile, sensorHeader, sensorRows},
		{CountsFile, countsHeader, countRows},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(generators))
	for i, gen := range generators {
		wg.Add(1)
		go func(i int, gen generator) {
			defer wg.Done()
			rows := gen.rows(opts)
			if err := writeCSV(filepath.Join(dir, gen.filename), gen.header, rows); err != nil {
				errs[i] = fmt.Errorf("failed to write %s: %w", gen.filename, err)
				return
			}
			fmt.Printf("Generated %s with %d records\n", gen.filename, len(rows))
		}(i, gen)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func sensorRows(opts Options) [][]string {
	rng := rand.New(rand.NewSource(opts.Seed))
	rows := make([][]string, 0, opts.Sensors)
	for id := 1; id <= opts.Sensors; id++ {
		lat := -37.81 - rng.Float64()*0.01
		lon := 144.95 + rng.Float64()*0.02
		rows = append(rows, []string{
			strconv.Itoa(id),
			fmt.Sprintf("%s (%d)", streets[(id-1)%len(streets)], id),
			fmt.Sprintf("Sensor%03d_T", id),
			"A",
			strconv.FormatFloat(lat, 'f', 8, 64),
			strconv.FormatFloat(lon, 'f', 8, 64),
			// the live dataset carries a literal escape before the coordinates
			fmt.Sprintf(`\n   (%.8f, %.8f)`, lat, lon),
		})
	}
	return rows
}

// hourShape is the relative foot traffic of each hour of the day
var hourShape = func() [24]float64 {
	var s [24]float64
	for h := range s {
		morning := math.Exp(-math.Pow(float64(h)-8.5, 2) / 4)
		lunch := 0.8 * math.Exp(-math.Pow(float64(h)-12.5, 2)/3)
		evening := math.Exp(-math.Pow(float64(h)-17.5, 2) / 4)
		s[h] = 0.05 + morning + lunch + evening
	}
	return s
}()

func inLockdown(dateKey string) bool {
	for _, p := range stats.LockdownPeriods {
		if dateKey >= p.Start && dateKey <= p.End {
			return true
		}
	}
	return false
}

func countRows(opts Options) [][]string {
	rng := rand.New(rand.NewSource(opts.Seed + 1))
	var rows [][]string
	id := 1

	for day := opts.From; !day.After(opts.To); day = day.AddDate(0, 0, 1) {
		factor := 1.0
		if inLockdown(day.Format("20060102")) {
			factor = 0.3
		}
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			factor *= 0.7
		}
		for hour := 0; hour < 24; hour++ {
			ts := day.Add(time.Duration(hour) * time.Hour)
			for sensor := 1; sensor <= opts.Sensors; sensor++ {
				base := 200.0 + 150.0*float64(sensor%5)
				n := int(base * hourShape[hour] * factor * (0.85 + 0.3*rng.Float64()))
				rows = append(rows, []string{
					strconv.Itoa(id),
					ts.Format("2006-01-02T15:04:05.000"),
					strconv.Itoa(ts.Year()),
					ts.Month().String(),
					strconv.Itoa(ts.Day()),
					ts.Weekday().String(),
					strconv.Itoa(hour),
					strconv.Itoa(sensor),
					fmt.Sprintf("Sensor%03d_T", sensor),
					strconv.Itoa(n),
				})
				id++
			}
		}
	}
	return rows
}

func writeCSV(filename string, header []string, rows [][]string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return file.Close()
}

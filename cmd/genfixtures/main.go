// Command genfixtures reads a CTA stations CSV export and generates JSON
// fixtures for the table tests: the StationEvent records as the connector
// would publish them, and the table those records materialize into. It uses
// the domain package so the expected table matches real pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genfixtures \
//	  -csv data/cta_stations.csv \
//	  -events-out data/fixtures/station_events.json \
//	  -table-out data/fixtures/stations_table.json
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/couchcryptid/station-table-service/internal/domain"
)

var requiredColumns = []string{
	"stop_id", "direction_id", "stop_name", "station_name",
	"station_descriptive_name", "station_id", "order", "red", "blue", "green",
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	csvPath := flag.String("csv", "", "path to the CTA stations CSV file")
	eventsOut := flag.String("events-out", "", "output path for the station events fixture")
	tableOut := flag.String("table-out", "", "output path for the expected table fixture")
	flag.Parse()

	if *csvPath == "" || *eventsOut == "" || *tableOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -csv, -events-out, -table-out")
	}

	events, err := processCSV(*csvPath)
	if err != nil {
		return fmt.Errorf("processing %s: %w", *csvPath, err)
	}
	log.Printf("read %d station events", len(events))

	stations, err := materialize(events)
	if err != nil {
		return err
	}

	if err := writeJSON(*eventsOut, events); err != nil {
		return fmt.Errorf("writing events fixture: %w", err)
	}
	log.Printf("wrote events fixture: %s", *eventsOut)

	if err := writeJSON(*tableOut, stations); err != nil {
		return fmt.Errorf("writing table fixture: %w", err)
	}
	log.Printf("wrote table fixture: %s", *tableOut)

	printStats(events, stations)
	return nil
}

func processCSV(path string) ([]domain.StationEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	if len(rows) < 2 {
		return nil, fmt.Errorf("no data rows")
	}

	colIdx := map[string]int{}
	for i, h := range rows[0] {
		colIdx[strings.TrimSpace(h)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := colIdx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	events := make([]domain.StationEvent, 0, len(rows)-1)
	for n, row := range rows[1:] {
		event, err := parseRow(row, colIdx)
		if err != nil {
			// Header is line 1.
			return nil, fmt.Errorf("line %d: %w", n+2, err)
		}
		events = append(events, event)
	}
	return events, nil
}

func parseRow(row []string, colIdx map[string]int) (domain.StationEvent, error) {
	var event domain.StationEvent
	var err error

	if event.StopID, err = getInt(row, colIdx, "stop_id"); err != nil {
		return event, err
	}
	if event.StationID, err = getInt(row, colIdx, "station_id"); err != nil {
		return event, err
	}
	if event.Order, err = getInt(row, colIdx, "order"); err != nil {
		return event, err
	}
	if event.Red, err = getBool(row, colIdx, "red"); err != nil {
		return event, err
	}
	if event.Blue, err = getBool(row, colIdx, "blue"); err != nil {
		return event, err
	}
	if event.Green, err = getBool(row, colIdx, "green"); err != nil {
		return event, err
	}
	event.DirectionID = get(row, colIdx, "direction_id")
	event.StopName = get(row, colIdx, "stop_name")
	event.StationName = get(row, colIdx, "station_name")
	event.StationDescriptiveName = get(row, colIdx, "station_descriptive_name")
	return event, nil
}

// materialize runs each event through the same decode and transform steps as
// the pipeline and returns the resulting table sorted by station id. Later
// events for a station replace earlier ones.
func materialize(events []domain.StationEvent) ([]domain.TransformedStation, error) {
	rows := make(map[int64]domain.TransformedStation, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal event: %w", err)
		}
		parsed, err := domain.ParseStationEvent(domain.RawEvent{Value: value})
		if err != nil {
			return nil, fmt.Errorf("parse station event: %w", err)
		}
		station := domain.TransformStation(parsed)
		rows[station.StationID] = station
	}

	out := make([]domain.TransformedStation, 0, len(rows))
	for _, s := range rows {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return out, nil
}

func get(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func getInt(row []string, idx map[string]int, col string) (int64, error) {
	v, err := strconv.ParseInt(get(row, idx, col), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", col, err)
	}
	return v, nil
}

func getBool(row []string, idx map[string]int, col string) (bool, error) {
	s := get(row, idx, col)
	if s == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("column %s: %w", col, err)
	}
	return v, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func lineCounts(stations []domain.TransformedStation) map[domain.Line]int {
	counts := map[domain.Line]int{}
	for _, s := range stations {
		counts[s.Line]++
	}
	return counts
}

func printStats(events []domain.StationEvent, stations []domain.TransformedStation) {
	counts := lineCounts(stations)

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Events: %d\n", len(events))
	fmt.Printf("Stations: %d\n", len(stations))
	fmt.Printf("By line: red=%d, blue=%d, green=%d, none=%d\n",
		counts[domain.LineRed], counts[domain.LineBlue], counts[domain.LineGreen], counts[domain.LineNone])
}

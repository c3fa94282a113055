package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"feedwatch/internal/storage"
)

// Export renders the status history of one feed as CSV and/or a PNG
// chart of record counts against the completeness percentage.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.Feed == "" {
		return errors.New("--feed is required")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	reg, err := a.buildRegistry()
	if err != nil {
		return err
	}
	if _, ok := reg.Get(opts.Feed); !ok {
		return errors.New("unknown feed: " + opts.Feed)
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.AddDate(0, 0, -opts.MaxPoints)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.RangeStatuses(ctx, opts.Feed, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Str("feed", opts.Feed).Msg("no status records found for export window")
		return nil
	}

	downsampled := downsampleRecords(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting status history")

	if opts.CSVPath != "" {
		if err := writeStatusCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeStatusPNG(opts.PNGPath, opts.Feed, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRecords(records []storage.StatusRecord, max int) []storage.StatusRecord {
	if max <= 0 || len(records) <= max {
		return records
	}

	result := make([]storage.StatusRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeStatusCSV(path string, records []storage.StatusRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"cob_date", "status", "record_count", "completeness_pct", "expected_time", "last_checked", "error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, record := range records {
		errMsg := ""
		if record.Error != nil {
			errMsg = *record.Error
		}
		row := []string{
			record.COBDate.Format("2006-01-02"),
			record.Verdict.String(),
			formatInt64(record.RecordCount),
			formatDecimal(record.CompletenessPct, 2),
			record.ExpectedTime,
			record.LastChecked.UTC().Format(time.RFC3339),
			errMsg,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeStatusPNG(path, feedName string, records []storage.StatusRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	counts := make([]float64, len(records))
	completeness := make([]float64, len(records))

	for i, record := range records {
		x[i] = record.COBDate
		counts[i] = float64(record.RecordCount)
		completeness[i] = record.CompletenessPct.InexactFloat64()
	}

	countFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Title:  feedName,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Records",
			ValueFormatter: countFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name: "Completeness (%)",
			Range: &chart.ContinuousRange{
				Min: 0,
				Max: 100,
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Record Count",
				XValues: x,
				YValues: counts,
			},
			chart.TimeSeries{
				Name:    "Completeness %",
				XValues: x,
				YValues: completeness,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func formatInt64(v int64) string {
	return strconv.FormatInt(v, 10)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

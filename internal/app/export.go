package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"npsh-guard/internal/domain"
)

// ExportOptions selects the export targets.
type ExportOptions struct {
	CSVPath string
	PNGPath string
}

// Export pulls the daemon's export window and writes it as CSV and/or a PNG
// trend chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	client := a.newAPIClient()

	if opts.CSVPath != "" {
		data, err := client.historyCSV(ctx)
		if err != nil {
			return err
		}
		if err := ensureDir(opts.CSVPath); err != nil {
			return err
		}
		if err := os.WriteFile(opts.CSVPath, data, 0o644); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.CSVPath).Msg("csv written")
	}

	if opts.PNGPath != "" {
		samples, err := client.history(ctx)
		if err != nil {
			return err
		}
		if len(samples) < 2 {
			return errors.New("not enough samples for a chart yet")
		}
		if err := writeSamplesPNG(opts.PNGPath, samples); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.PNGPath).Int("samples", len(samples)).Msg("png written")
	}

	return nil
}

func writeSamplesPNG(path string, samples []domain.Sample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(samples))
	npsha := make([]float64, len(samples))
	npshr := make([]float64, len(samples))
	margin := make([]float64, len(samples))

	for i, s := range samples {
		x[i] = s.Timestamp
		npsha[i] = s.AvailableHeadM
		npshr[i] = s.RequiredHeadM
		margin[i] = s.MarginM
	}

	headFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Head (m)",
			ValueFormatter: headFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Margin (m)",
			ValueFormatter: headFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "NPSHa",
				XValues: x,
				YValues: npsha,
			},
			chart.TimeSeries{
				Name:    "NPSHr",
				XValues: x,
				YValues: npshr,
			},
			chart.TimeSeries{
				Name:    "Margin",
				XValues: x,
				YValues: margin,
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

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

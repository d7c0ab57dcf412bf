package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// Status prints the daemon's combined state.
func (a *App) Status(ctx context.Context) error {
	client := a.newAPIClient()
	snap, err := client.status(ctx)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Pump\t%s\n", snap.PumpType)
	fmt.Fprintf(writer, "Connection\t%s\n", snap.Connection)
	fmt.Fprintf(writer, "Safety state\t%s\n", snap.Safety.State)
	if snap.Safety.RemainingSec > 0 {
		fmt.Fprintf(writer, "Stop in\t%s s\n", fixed2(snap.Safety.RemainingSec))
	}
	if snap.Safety.LastError != "" {
		fmt.Fprintf(writer, "Last error\t%s\n", snap.Safety.LastError)
	}

	if s := snap.LatestSample; s != nil {
		fmt.Fprintf(writer, "Sampled at\t%s\n", s.Timestamp.UTC().Format(time.RFC3339))
		fmt.Fprintf(writer, "Temperature\t%s degC\n", fixed2(s.TemperatureC))
		fmt.Fprintf(writer, "Suction pressure\t%s bar\n", fixed2(s.PressureBar))
		fmt.Fprintf(writer, "Flow\t%s m3/h\n", fixed2(s.FlowM3h))
		fmt.Fprintf(writer, "NPSHa\t%s m\n", fixed2(s.AvailableHeadM))
		fmt.Fprintf(writer, "NPSHr\t%s m\n", fixed2(s.RequiredHeadM))
		fmt.Fprintf(writer, "Margin\t%s m\n", fixed2(s.MarginM))
		running := "no"
		if s.PumpRunning {
			running = "yes"
		}
		fmt.Fprintf(writer, "Pump running\t%s\n", running)
	} else {
		fmt.Fprintln(writer, "Sampled at\tno samples yet")
	}

	return writer.Flush()
}

func fixed2(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"npsh-guard/internal/curve"
)

// ShowCurve prints the curve the daemon is currently computing with.
func (a *App) ShowCurve(ctx context.Context) error {
	cv, err := a.newAPIClient().activeCurve(ctx)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Pump type\t%s\n", cv.PumpType)
	fmt.Fprintln(writer, "Flow (m3/h)\tNPSHr (m)")
	for _, p := range cv.Points {
		fmt.Fprintf(writer, "%s\t%s\n", fixed2(p.Flow), fixed2(p.RequiredHead))
	}
	return writer.Flush()
}

// UploadCurve reads a YAML curve file, validates it locally, and installs it
// through the daemon. A rejected curve never reaches the running calculation.
func (a *App) UploadCurve(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read curve file: %w", err)
	}

	var raw curve.Curve
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse curve file: %w", err)
	}
	if raw.PumpType == "" {
		raw.PumpType = a.Config.Pump.Type
	}

	cv, err := curve.New(raw.PumpType, raw.Points)
	if err != nil {
		return err
	}

	if err := a.newAPIClient().uploadCurve(ctx, cv); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "curve installed: %s (%d points)\n", cv.PumpType, len(cv.Points))
	return nil
}

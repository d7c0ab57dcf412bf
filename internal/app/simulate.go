package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"npsh-guard/internal/simulator"
)

// Simulate runs a local PLC simulator so the daemon can be exercised without
// plant hardware. listen defaults to the configured PLC endpoint.
func (a *App) Simulate(ctx context.Context, listen string) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if listen == "" {
		listen = a.Config.PLC.Endpoint
	}

	sim := simulator.New(a.Logger)
	err := sim.Run(ctx, listen)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

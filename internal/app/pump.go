package app

import (
	"context"
	"fmt"
	"os"
)

// StartPump asks the daemon to deliver an operator start.
func (a *App) StartPump(ctx context.Context) error {
	if err := a.newAPIClient().startPump(ctx); err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, "start command delivered")
	return nil
}

// StopPump asks the daemon to deliver an operator stop.
func (a *App) StopPump(ctx context.Context) error {
	if err := a.newAPIClient().stopPump(ctx); err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, "stop command delivered")
	return nil
}

// CancelCountdown asks the daemon to cancel a pending protective countdown.
func (a *App) CancelCountdown(ctx context.Context) error {
	cancelled, err := a.newAPIClient().cancelCountdown(ctx)
	if err != nil {
		return err
	}
	if cancelled {
		fmt.Fprintln(os.Stdout, "countdown cancelled")
	} else {
		fmt.Fprintln(os.Stdout, "no countdown pending; nothing to cancel")
	}
	return nil
}

package cli

import (
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Deliver an operator start command to the pump",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().StartPump(cmd.Context())
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Deliver an operator stop command to the pump",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().StopPump(cmd.Context())
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel a pending protective-stop countdown",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CancelCountdown(cmd.Context())
	},
}

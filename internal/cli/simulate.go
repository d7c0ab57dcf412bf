package cli

import (
	"github.com/spf13/cobra"
)

var simulateListen string

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a local PLC simulator for development",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Simulate(cmd.Context(), simulateListen)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateListen, "listen", "", "Listen address (defaults to plc.endpoint)")
}

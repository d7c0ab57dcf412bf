package cli

import (
	"github.com/spf13/cobra"
)

var curveCmd = &cobra.Command{
	Use:   "curve",
	Short: "Inspect or replace the pump's NPSHr curve",
}

var curveShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the curve the daemon is computing with",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowCurve(cmd.Context())
	},
}

var curveUploadCmd = &cobra.Command{
	Use:   "upload <file.yaml>",
	Short: "Validate and install a replacement curve from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().UploadCurve(cmd.Context(), args[0])
	},
}

func init() {
	curveCmd.AddCommand(curveShowCmd)
	curveCmd.AddCommand(curveUploadCmd)
}

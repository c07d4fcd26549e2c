package client

import (
	"github.com/spf13/cobra"
)

// NewCaptureCommand constructs the `capture` group: start, stop, status and
// filter.
func NewCaptureCommand(baseURL BaseURLFunc) *cobra.Command {
	captureCmd := &cobra.Command{Use: "capture", Short: "Capture session control"}

	captureCmd.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Start a capture session",
			RunE: func(cmd *cobra.Command, _ []string) error {
				st, err := getTransport(cmd, baseURL).StartCapture(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the running capture session",
			RunE: func(cmd *cobra.Command, _ []string) error {
				st, err := getTransport(cmd, baseURL).StopCapture(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show session state, filter and push cursor",
			RunE: func(cmd *cobra.Command, _ []string) error {
				st, err := getTransport(cmd, baseURL).CaptureStatus(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			},
		},
		&cobra.Command{
			Use:   "filter <predicate | SELECT ...>",
			Short: "Replace the push filter; an empty argument selects everything",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				filter := ""
				if len(args) == 1 {
					filter = args[0]
				}
				st, err := getTransport(cmd, baseURL).SetFilter(cmd.Context(), filter)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			},
		},
	)
	return captureCmd
}

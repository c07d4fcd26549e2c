package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the ecaptureq client.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "ecaptureq",
		Short: "ecaptureq client commands",
	}
	AddCommands(root, baseURL)
	return root
}

// AddCommands registers the client command groups on root, together with
// the persistent --transport flag they read.
func AddCommands(root *cobra.Command, baseURL BaseURLFunc) {
	root.PersistentFlags().String("transport", "grpc", "Client transport: grpc|http")
	root.AddCommand(
		NewQueryCommand(baseURL),
		NewGetCommand(baseURL),
		NewTailCommand(baseURL),
		NewCaptureCommand(baseURL),
		NewExportCommand(baseURL),
		NewDiagnosticsCommand(baseURL),
		NewMockSourceCommand(),
	)
}

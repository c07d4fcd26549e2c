package client

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gojue/ecaptureQ/internal/mocksource"
	logpkg "github.com/gojue/ecaptureQ/pkg/log"
	"github.com/spf13/cobra"
)

// NewMockSourceCommand constructs `mock-source`: a WebSocket server emitting
// synthetic capture events, for running the pipeline without a capture
// process.
func NewMockSourceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mock-source",
		Short: "Serve synthetic capture events over WebSocket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			format, _ := cmd.Flags().GetString("format")
			heartbeat, _ := cmd.Flags().GetBool("heartbeat")
			seed, _ := cmd.Flags().GetUint64("seed")
			f, err := mocksource.ParseFormat(format)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger := logpkg.NewLogger(
				logpkg.WithFormatter(&logpkg.TextFormatter{}),
				logpkg.WithOutput(logpkg.NewWriterOutput(cmd.ErrOrStderr())),
			)
			return mocksource.ListenAndServe(ctx, addr, mocksource.Options{
				Format:    f,
				Heartbeat: heartbeat,
				Seed:      seed,
				Logger:    logger,
			})
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:28257", "Listen address")
	cmd.Flags().String("format", "proto", "Frame encoding: proto|json")
	cmd.Flags().Bool("heartbeat", true, "Send a heartbeat after each burst")
	cmd.Flags().Uint64("seed", 0, "Random seed (0 = time based)")
	return cmd
}

// Package serverrun exposes the Run entrypoint the CLI uses to start an
// ecaptureq instance with its gRPC and HTTP servers, handling lifecycle and
// shutdown.
//
// Example:
//
//	opts := serverrun.Options{Config: config.Default(), AutoStart: true}
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, opts)
package serverrun

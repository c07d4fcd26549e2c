// Package runtime wires one ecaptureq instance: the packets table behind its
// store actor, the diagnostics log, the output sinks and the session manager.
//
//	rt, err := runtime.Open(ctx, runtime.Options{Config: config.Default()})
//	if err != nil { /* handle */ }
//	defer rt.Close()
//	_ = rt.Sessions().Start(ctx)
package runtime

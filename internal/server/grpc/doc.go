// Package grpcserver hosts the gRPC surface of an ecaptureq instance: the
// standard health service and the ecaptureq.v1.Packets service, whose
// messages are google.protobuf.Struct documents shaped like the REST
// gateway's JSON bodies.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: config.Default()})
//	s := grpcserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":50051")
package grpcserver

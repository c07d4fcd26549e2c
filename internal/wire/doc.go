// Package wire decodes the capture tool's event stream.
//
// Binary frames carry one protobuf LogEntry and are decoded field by field
// with protowire, so no generated code is needed. Text frames carry a JSON
// envelope {"log_type": n, "payload": {...}}. Both produce a Message holding
// an Event record (without index), a Heartbeat or a ProcessLog.
//
// Example:
//
//	msg, err := wire.Decode(wire.Frame{Kind: wire.FrameBinary, Data: b})
//	if err != nil {
//	    // *wire.DecodeError: skip this frame and keep reading
//	}
//	if msg.Type == wire.LogTypeEvent {
//	    batch = append(batch, msg.Event)
//	}
package wire

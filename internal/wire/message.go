package wire

import "github.com/gojue/ecaptureQ/internal/packet"

// FrameKind tells the decoder which encoding a frame uses.
type FrameKind int

const (
	// FrameBinary carries one protobuf-encoded LogEntry.
	FrameBinary FrameKind = iota
	// FrameText carries one JSON envelope.
	FrameText
)

func (k FrameKind) String() string {
	switch k {
	case FrameBinary:
		return "binary"
	case FrameText:
		return "text"
	default:
		return "unknown"
	}
}

// Frame is one message read off the event source.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// LogType is the envelope discriminator shared by both encodings.
type LogType uint64

const (
	LogTypeHeartbeat  LogType = 0
	LogTypeProcessLog LogType = 1
	LogTypeEvent      LogType = 2
)

func (t LogType) String() string {
	switch t {
	case LogTypeHeartbeat:
		return "heartbeat"
	case LogTypeProcessLog:
		return "process_log"
	case LogTypeEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Message is a decoded envelope. Exactly one of Event, Heartbeat or Log is
// meaningful, selected by Type. Event.Index is always zero.
type Message struct {
	Type      LogType
	Event     packet.Record
	Heartbeat packet.Heartbeat
	Log       packet.ProcessLog
}

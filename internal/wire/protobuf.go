package wire

import (
	"fmt"

	"github.com/gojue/ecaptureQ/internal/packet"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the capture tool's LogEntry, Event and Heartbeat messages.
const (
	fieldLogType      protowire.Number = 1
	fieldEventPayload protowire.Number = 2
	fieldHeartbeat    protowire.Number = 3
	fieldRunLog       protowire.Number = 4

	fieldEvTimestamp protowire.Number = 1
	fieldEvUUID      protowire.Number = 2
	fieldEvSrcIP     protowire.Number = 3
	fieldEvSrcPort   protowire.Number = 4
	fieldEvDstIP     protowire.Number = 5
	fieldEvDstPort   protowire.Number = 6
	fieldEvPID       protowire.Number = 7
	fieldEvPName     protowire.Number = 8
	fieldEvType      protowire.Number = 9
	fieldEvLength    protowire.Number = 10
	fieldEvPayload   protowire.Number = 11

	fieldHbTimestamp protowire.Number = 1
	fieldHbCount     protowire.Number = 2
	fieldHbMessage   protowire.Number = 3
)

// fieldFunc handles one field value; it returns the bytes consumed or a
// negative protowire error code.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) int

func walk(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m := fn(num, typ, b)
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

func varint(typ protowire.Type, b []byte, dst *uint64) int {
	if typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*dst = v
	}
	return n
}

func bytesField(typ protowire.Type, b []byte, dst *[]byte) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeBytes(b)
	if n >= 0 {
		*dst = v
	}
	return n
}

func stringField(typ protowire.Type, b []byte, dst *string) int {
	var raw []byte
	n := bytesField(typ, b, &raw)
	if n > 0 {
		*dst = string(raw)
	}
	return n
}

func decodeProto(data []byte) (Message, error) {
	var (
		logType          uint64
		event, heartbeat []byte
		runLog           string
		hasEvent, hasHb  bool
		hasRunLog        bool
	)
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case fieldLogType:
			return varint(typ, b, &logType)
		case fieldEventPayload:
			n := bytesField(typ, b, &event)
			hasEvent = n > 0
			return n
		case fieldHeartbeat:
			n := bytesField(typ, b, &heartbeat)
			hasHb = n > 0
			return n
		case fieldRunLog:
			n := stringField(typ, b, &runLog)
			hasRunLog = n > 0
			return n
		}
		return 0
	})
	if err != nil {
		return Message{}, err
	}
	msg := Message{Type: LogType(logType)}
	switch msg.Type {
	case LogTypeEvent:
		if !hasEvent {
			return Message{}, ErrMissingPayload
		}
		msg.Event, err = decodeProtoEvent(event)
	case LogTypeHeartbeat:
		if !hasHb {
			return Message{}, ErrMissingPayload
		}
		msg.Heartbeat, err = decodeProtoHeartbeat(heartbeat)
	case LogTypeProcessLog:
		if !hasRunLog {
			return Message{}, ErrMissingPayload
		}
		msg.Log = parseProcessLog(runLog)
	default:
		return Message{}, fmt.Errorf("%w: %d", ErrUnknownLogType, logType)
	}
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

func decodeProtoEvent(data []byte) (packet.Record, error) {
	var (
		rec                                   packet.Record
		ts, srcPort, dstPort, pid, kind, size uint64
		payload                               []byte
	)
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case fieldEvTimestamp:
			return varint(typ, b, &ts)
		case fieldEvUUID:
			return stringField(typ, b, &rec.CorrelationID)
		case fieldEvSrcIP:
			return stringField(typ, b, &rec.SrcAddr)
		case fieldEvSrcPort:
			return varint(typ, b, &srcPort)
		case fieldEvDstIP:
			return stringField(typ, b, &rec.DstAddr)
		case fieldEvDstPort:
			return varint(typ, b, &dstPort)
		case fieldEvPID:
			return varint(typ, b, &pid)
		case fieldEvPName:
			return stringField(typ, b, &rec.ProcessName)
		case fieldEvType:
			return varint(typ, b, &kind)
		case fieldEvLength:
			return varint(typ, b, &size)
		case fieldEvPayload:
			return bytesField(typ, b, &payload)
		}
		return 0
	})
	if err != nil {
		return packet.Record{}, fmt.Errorf("event: %w", err)
	}
	rec.Timestamp = int64(ts)
	rec.SrcPort = SaturateUint32U(srcPort)
	rec.DstPort = SaturateUint32U(dstPort)
	rec.ProcessID = SaturateInt32(int64(pid))
	rec.Kind = SaturateUint32U(kind)
	rec.Length = SaturateUint32U(size)
	rec.PayloadText, rec.PayloadBytes, rec.IsBinary = Classify(payload)
	return rec, nil
}

func decodeProtoHeartbeat(data []byte) (packet.Heartbeat, error) {
	var (
		hb        packet.Heartbeat
		ts, count uint64
	)
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case fieldHbTimestamp:
			return varint(typ, b, &ts)
		case fieldHbCount:
			return varint(typ, b, &count)
		case fieldHbMessage:
			return stringField(typ, b, &hb.Message)
		}
		return 0
	})
	if err != nil {
		return packet.Heartbeat{}, fmt.Errorf("heartbeat: %w", err)
	}
	hb.Timestamp = int64(ts)
	hb.Count = SaturateInt32(int64(count))
	return hb, nil
}

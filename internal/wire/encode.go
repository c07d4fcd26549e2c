package wire

import (
	"encoding/base64"

	"github.com/gojue/ecaptureQ/internal/packet"
	"github.com/valyala/fastjson"
	"google.golang.org/protobuf/encoding/protowire"
)

// The encoders mirror the capture tool's output. They feed the mock event
// source and tests.

// AppendProtoEvent appends a LogEntry{log_type: EVENT} for rec to b.
func AppendProtoEvent(b []byte, rec packet.Record) []byte {
	var ev []byte
	ev = appendVarint(ev, fieldEvTimestamp, uint64(rec.Timestamp))
	ev = appendString(ev, fieldEvUUID, rec.CorrelationID)
	ev = appendString(ev, fieldEvSrcIP, rec.SrcAddr)
	ev = appendVarint(ev, fieldEvSrcPort, uint64(rec.SrcPort))
	ev = appendString(ev, fieldEvDstIP, rec.DstAddr)
	ev = appendVarint(ev, fieldEvDstPort, uint64(rec.DstPort))
	ev = appendVarint(ev, fieldEvPID, uint64(int64(rec.ProcessID)))
	ev = appendString(ev, fieldEvPName, rec.ProcessName)
	ev = appendVarint(ev, fieldEvType, uint64(rec.Kind))
	ev = appendVarint(ev, fieldEvLength, uint64(rec.Length))
	if p := rec.Payload(); len(p) > 0 {
		ev = protowire.AppendTag(ev, fieldEvPayload, protowire.BytesType)
		ev = protowire.AppendBytes(ev, p)
	}
	b = appendVarint(b, fieldLogType, uint64(LogTypeEvent))
	b = protowire.AppendTag(b, fieldEventPayload, protowire.BytesType)
	return protowire.AppendBytes(b, ev)
}

// AppendProtoHeartbeat appends a LogEntry{log_type: HEARTBEAT} to b. count is
// the producer's wide counter.
func AppendProtoHeartbeat(b []byte, ts, count int64, message string) []byte {
	var hb []byte
	hb = appendVarint(hb, fieldHbTimestamp, uint64(ts))
	hb = appendVarint(hb, fieldHbCount, uint64(count))
	hb = appendString(hb, fieldHbMessage, message)
	b = appendVarint(b, fieldLogType, uint64(LogTypeHeartbeat))
	b = protowire.AppendTag(b, fieldHeartbeat, protowire.BytesType)
	return protowire.AppendBytes(b, hb)
}

// AppendProtoRunLog appends a LogEntry{log_type: PROCESS_LOG} to b.
func AppendProtoRunLog(b []byte, text string) []byte {
	b = appendVarint(b, fieldLogType, uint64(LogTypeProcessLog))
	b = protowire.AppendTag(b, fieldRunLog, protowire.BytesType)
	return protowire.AppendString(b, text)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// MarshalJSONEvent renders rec as a JSON envelope with a base64 payload.
func MarshalJSONEvent(rec packet.Record) []byte {
	var a fastjson.Arena
	ev := a.NewObject()
	ev.Set("timestamp", a.NewNumberInt(int(rec.Timestamp)))
	ev.Set("uuid", a.NewString(rec.CorrelationID))
	ev.Set("src_ip", a.NewString(rec.SrcAddr))
	ev.Set("src_port", a.NewNumberInt(int(rec.SrcPort)))
	ev.Set("dst_ip", a.NewString(rec.DstAddr))
	ev.Set("dst_port", a.NewNumberInt(int(rec.DstPort)))
	ev.Set("pid", a.NewNumberInt(int(rec.ProcessID)))
	ev.Set("pname", a.NewString(rec.ProcessName))
	ev.Set("type", a.NewNumberInt(int(rec.Kind)))
	ev.Set("length", a.NewNumberInt(int(rec.Length)))
	ev.Set("payload_base64", a.NewString(base64.StdEncoding.EncodeToString(rec.Payload())))
	env := a.NewObject()
	env.Set("log_type", a.NewNumberInt(int(LogTypeEvent)))
	env.Set("payload", ev)
	return env.MarshalTo(nil)
}

package wire

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/gojue/ecaptureQ/internal/packet"
	"github.com/valyala/fastjson"
)

var parsers fastjson.ParserPool

func decodeJSON(data []byte) (Message, error) {
	p := parsers.Get()
	defer parsers.Put(p)
	v, err := p.ParseBytes(data)
	if err != nil {
		return Message{}, err
	}
	lt := v.Get("log_type")
	if lt == nil {
		return Message{}, fmt.Errorf("missing log_type")
	}
	n, err := lt.Uint64()
	if err != nil {
		return Message{}, fmt.Errorf("log_type: %w", err)
	}
	payload := v.Get("payload")
	if payload == nil || payload.Type() == fastjson.TypeNull {
		return Message{}, ErrMissingPayload
	}
	msg := Message{Type: LogType(n)}
	switch msg.Type {
	case LogTypeEvent:
		msg.Event, err = jsonEvent(payload)
	case LogTypeHeartbeat:
		msg.Heartbeat, err = jsonHeartbeat(payload)
	case LogTypeProcessLog:
		if payload.Type() == fastjson.TypeString {
			msg.Log = parseProcessLog(string(payload.GetStringBytes()))
		} else {
			msg.Log = processLogFromValue(payload)
		}
	default:
		return Message{}, fmt.Errorf("%w: %d", ErrUnknownLogType, n)
	}
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

func jsonEvent(v *fastjson.Value) (packet.Record, error) {
	if v.Type() != fastjson.TypeObject {
		return packet.Record{}, fmt.Errorf("event payload is %s, want object", v.Type())
	}
	var (
		rec packet.Record
		err error
	)
	num := func(key string) int64 {
		if err != nil {
			return 0
		}
		var n int64
		n, err = jsonInt(v, key)
		return n
	}
	rec.Timestamp = num("timestamp")
	rec.SrcPort = SaturateUint32(num("src_port"))
	rec.DstPort = SaturateUint32(num("dst_port"))
	rec.ProcessID = SaturateInt32(num("pid"))
	rec.Kind = SaturateUint32(num("type"))
	rec.Length = SaturateUint32(num("length"))
	if err != nil {
		return packet.Record{}, err
	}
	rec.CorrelationID = string(v.GetStringBytes("uuid"))
	rec.SrcAddr = string(v.GetStringBytes("src_ip"))
	rec.DstAddr = string(v.GetStringBytes("dst_ip"))
	rec.ProcessName = string(v.GetStringBytes("pname"))

	var payload []byte
	switch {
	case v.Exists("payload_base64"):
		payload, err = base64.StdEncoding.DecodeString(string(v.GetStringBytes("payload_base64")))
		if err != nil {
			return packet.Record{}, fmt.Errorf("payload_base64: %w", err)
		}
	case v.Exists("payload"):
		payload = v.GetStringBytes("payload")
	}
	rec.PayloadText, rec.PayloadBytes, rec.IsBinary = Classify(payload)
	return rec, nil
}

func jsonHeartbeat(v *fastjson.Value) (packet.Heartbeat, error) {
	if v.Type() != fastjson.TypeObject {
		return packet.Heartbeat{}, fmt.Errorf("heartbeat payload is %s, want object", v.Type())
	}
	ts, err := jsonInt(v, "timestamp")
	if err != nil {
		return packet.Heartbeat{}, err
	}
	count, err := jsonInt(v, "count")
	if err != nil {
		return packet.Heartbeat{}, err
	}
	return packet.Heartbeat{
		Timestamp: ts,
		Count:     SaturateInt32(count),
		Message:   string(v.GetStringBytes("message")),
	}, nil
}

// jsonInt reads an integer that producers may send as a number or a numeric
// string. Absent keys read as zero. Values beyond int64 clamp to its bounds.
func jsonInt(v *fastjson.Value, key string) (int64, error) {
	f := v.Get(key)
	if f == nil {
		return 0, nil
	}
	switch f.Type() {
	case fastjson.TypeNumber:
		if n, err := f.Int64(); err == nil {
			return n, nil
		}
		fl, err := f.Float64()
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return clampFloat(fl), nil
	case fastjson.TypeString:
		n, err := strconv.ParseInt(string(f.GetStringBytes()), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s: unexpected %s", key, f.Type())
	}
}

func clampFloat(f float64) int64 {
	const maxI, minI = float64(1<<63 - 1), float64(-1 << 63)
	switch {
	case f >= maxI:
		return 1<<63 - 1
	case f <= minI:
		return -1 << 63
	default:
		return int64(f)
	}
}

// parseProcessLog interprets raw log text. JSON objects contribute their
// level, message and time fields.
func parseProcessLog(text string) packet.ProcessLog {
	p := parsers.Get()
	defer parsers.Put(p)
	v, err := p.Parse(text)
	if err != nil || v.Type() != fastjson.TypeObject {
		return packet.ProcessLog{Level: "unknown", LogInfo: text}
	}
	pl := processLogFromValue(v)
	pl.LogInfo = text
	return pl
}

func processLogFromValue(v *fastjson.Value) packet.ProcessLog {
	pl := packet.ProcessLog{LogInfo: v.String()}
	if v.Type() != fastjson.TypeObject {
		pl.Level = "unknown"
		return pl
	}
	pl.Level = string(v.GetStringBytes("level"))
	pl.Message = string(v.GetStringBytes("message"))
	pl.Time = string(v.GetStringBytes("time"))
	return pl
}

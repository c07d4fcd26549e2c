package table

import (
	"fmt"
	"math"

	"github.com/gojue/ecaptureQ/internal/packet"
)

// Frame is a materialized query result.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows; a nil Frame has none.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// Maps returns each row keyed by column name. Byte slices are kept as-is.
func (f *Frame) Maps() []map[string]any {
	out := make([]map[string]any, 0, f.Len())
	for _, row := range f.Rows {
		m := make(map[string]any, len(f.Columns))
		for i, c := range f.Columns {
			m[c] = row[i]
		}
		out = append(out, m)
	}
	return out
}

// Records converts rows into packet records. Columns missing from the
// frame keep their zero value; unknown columns are ignored.
func (f *Frame) Records() ([]packet.Record, error) {
	if f.Len() == 0 {
		return nil, nil
	}
	idx := make(map[string]int, len(f.Columns))
	for i, c := range f.Columns {
		idx[c] = i
	}
	out := make([]packet.Record, len(f.Rows))
	for n, row := range f.Rows {
		r := &out[n]
		var err error
		get := func(col string) (any, bool) {
			i, ok := idx[col]
			if !ok || row[i] == nil {
				return nil, false
			}
			return row[i], true
		}
		if v, ok := get(packet.ColIndex); ok {
			r.Index, err = toUint64(v)
		}
		if v, ok := get(packet.ColTimestamp); ok && err == nil {
			r.Timestamp, err = toInt64(v)
		}
		if v, ok := get(packet.ColSrcPort); ok && err == nil {
			r.SrcPort, err = toUint32(v)
		}
		if v, ok := get(packet.ColDstPort); ok && err == nil {
			r.DstPort, err = toUint32(v)
		}
		if v, ok := get(packet.ColPID); ok && err == nil {
			var n int64
			n, err = toInt64(v)
			r.ProcessID = int32(max(math.MinInt32, min(math.MaxInt32, n)))
		}
		if v, ok := get(packet.ColType); ok && err == nil {
			r.Kind, err = toUint32(v)
		}
		if v, ok := get(packet.ColLength); ok && err == nil {
			r.Length, err = toUint32(v)
		}
		if err != nil {
			return nil, fmt.Errorf("table: row %d: %w", n, err)
		}
		if v, ok := get(packet.ColUUID); ok {
			r.CorrelationID = toString(v)
		}
		if v, ok := get(packet.ColSrcIP); ok {
			r.SrcAddr = toString(v)
		}
		if v, ok := get(packet.ColDstIP); ok {
			r.DstAddr = toString(v)
		}
		if v, ok := get(packet.ColPName); ok {
			r.ProcessName = toString(v)
		}
		if v, ok := get(packet.ColIsBinary); ok {
			b, _ := v.(bool)
			r.IsBinary = b
		}
		if v, ok := get(packet.ColPayloadUTF8); ok {
			r.PayloadText = toString(v)
		}
		if v, ok := get(packet.ColPayloadBinary); ok {
			if b, isBytes := v.([]byte); isBytes && len(b) > 0 {
				r.PayloadBytes = b
			}
		}
	}
	return out, nil
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return math.MaxInt64, nil
		}
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case float64:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}

func toUint64(v any) (uint64, error) {
	if x, ok := v.(uint64); ok {
		return x, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return uint64(n), nil
}

func toUint32(v any) (uint32, error) {
	n, err := toUint64(v)
	if err != nil {
		return 0, err
	}
	if n > math.MaxUint32 {
		return math.MaxUint32, nil
	}
	return uint32(n), nil
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

package packet

// Record is one captured network event stored as a table row. Index is
// assigned by the store; everything else comes from the capture producer.
type Record struct {
	Index         uint64 `json:"index"`
	Timestamp     int64  `json:"timestamp"`
	CorrelationID string `json:"uuid"`
	SrcAddr       string `json:"src_ip"`
	SrcPort       uint32 `json:"src_port"`
	DstAddr       string `json:"dst_ip"`
	DstPort       uint32 `json:"dst_port"`
	ProcessID     int32  `json:"pid"`
	ProcessName   string `json:"pname"`
	Kind          uint32 `json:"type"`
	Length        uint32 `json:"length"`
	IsBinary      bool   `json:"is_binary"`
	PayloadText   string `json:"payload_utf8,omitempty"`
	PayloadBytes  []byte `json:"payload_binary,omitempty"`
}

// Payload returns the raw payload regardless of its classification.
func (r Record) Payload() []byte {
	if r.IsBinary {
		return r.PayloadBytes
	}
	return []byte(r.PayloadText)
}

// Summary returns a copy of r without payload columns, matching the shape of
// rows produced by incremental queries.
func (r Record) Summary() Record {
	r.PayloadText = ""
	r.PayloadBytes = nil
	return r
}

// Heartbeat is the capture producer's liveness message. It is never stored
// in the packets table.
type Heartbeat struct {
	Timestamp int64  `json:"timestamp"`
	Count     int32  `json:"count"`
	Message   string `json:"message"`
}

// ProcessLog is a log line emitted by the capture process. LogInfo holds the
// raw log text; Level, Message and Time are filled when that text is a JSON
// object carrying them.
type ProcessLog struct {
	Level   string `json:"level,omitempty"`
	Message string `json:"message,omitempty"`
	Time    string `json:"time,omitempty"`
	LogInfo string `json:"log_info"`
}

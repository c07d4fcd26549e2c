package packet

// TableName is the relation every query runs against.
const TableName = "packets"

// Column names of the packets table, in schema order.
const (
	ColIndex         = "index"
	ColTimestamp     = "timestamp"
	ColUUID          = "uuid"
	ColSrcIP         = "src_ip"
	ColSrcPort       = "src_port"
	ColDstIP         = "dst_ip"
	ColDstPort       = "dst_port"
	ColPID           = "pid"
	ColPName         = "pname"
	ColType          = "type"
	ColLength        = "length"
	ColIsBinary      = "is_binary"
	ColPayloadUTF8   = "payload_utf8"
	ColPayloadBinary = "payload_binary"
)

// SummaryColumns is the fixed projection used for incremental pushes. Payloads
// are fetched lazily by index.
var SummaryColumns = []string{
	ColIndex, ColTimestamp, ColUUID, ColSrcIP, ColSrcPort, ColDstIP, ColDstPort,
	ColPID, ColPName, ColType, ColLength, ColIsBinary,
}

// AllColumns is SummaryColumns plus both payload columns.
var AllColumns = append(append([]string{}, SummaryColumns...), ColPayloadUTF8, ColPayloadBinary)

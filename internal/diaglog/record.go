package diaglog

import (
	"encoding/binary"
	"hash/crc32"
)

// Stored value layout: varint headerLen | header | payload | crc32c(header|payload).
// The header is kind (1 byte) followed by the receive time in ms (8 bytes BE).

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

const headerLen = 9

func encodeRecord(header, payload []byte) []byte {
	out := make([]byte, 0, binary.MaxVarintLen64+len(header)+len(payload)+4)
	out = binary.AppendUvarint(out, uint64(len(header)))
	out = append(out, header...)
	out = append(out, payload...)
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	return binary.BigEndian.AppendUint32(out, crc)
}

// decodeRecord returns header and payload views into b. ok is false when
// the record is truncated or its checksum does not match.
func decodeRecord(b []byte) (header, payload []byte, ok bool) {
	if len(b) < 1+4 {
		return nil, nil, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || n+int(hlen)+4 > len(b) {
		return nil, nil, false
	}
	header = b[n : n+int(hlen)]
	payload = b[n+int(hlen) : len(b)-4]
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != binary.BigEndian.Uint32(b[len(b)-4:]) {
		return nil, nil, false
	}
	return header, payload, true
}

func encodeHeader(kind Kind, tsMs int64) []byte {
	h := make([]byte, headerLen)
	h[0] = kind.code()
	binary.BigEndian.PutUint64(h[1:], uint64(tsMs))
	return h
}

func decodeHeader(h []byte) (Kind, int64, bool) {
	if len(h) < headerLen {
		return "", 0, false
	}
	k, ok := kindFromCode(h[0])
	return k, int64(binary.BigEndian.Uint64(h[1:])), ok
}

var (
	entryPrefix = []byte("diag/e/")
	metaKey     = []byte("diag/m")
)

func entryKey(seq uint64) []byte {
	k := make([]byte, 0, len(entryPrefix)+8)
	k = append(k, entryPrefix...)
	return binary.BigEndian.AppendUint64(k, seq)
}

func seqFromKey(k []byte) uint64 {
	return binary.BigEndian.Uint64(k[len(entryPrefix):])
}

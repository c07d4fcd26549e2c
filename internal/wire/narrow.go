package wire

import (
	"math"
	"unicode/utf8"
)

// classifyPrefix is how many leading payload bytes decide text vs binary.
const classifyPrefix = 100

// SaturateInt32 narrows v to int32, clamping to the nearest bound.
func SaturateInt32(v int64) int32 {
	switch {
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	default:
		return int32(v)
	}
}

// SaturateUint32 narrows a signed v to uint32; negatives become 0.
func SaturateUint32(v int64) uint32 {
	switch {
	case v < 0:
		return 0
	case v > math.MaxUint32:
		return math.MaxUint32
	default:
		return uint32(v)
	}
}

// SaturateUint32U is SaturateUint32 for unsigned protobuf varints.
func SaturateUint32U(v uint64) uint32 {
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

// Classify splits an event payload into its text or binary form. Only the
// first 100 bytes are inspected to choose; a text-looking payload that fails
// full UTF-8 validation falls back to binary. An empty payload is text.
func Classify(payload []byte) (text string, bin []byte, isBinary bool) {
	if len(payload) == 0 {
		return "", nil, false
	}
	if looksText(payload) && utf8.Valid(payload) {
		return string(payload), nil, false
	}
	return "", append([]byte(nil), payload...), true
}

func looksText(payload []byte) bool {
	prefix := payload
	if len(prefix) > classifyPrefix {
		prefix = prefix[:classifyPrefix]
	}
	for len(prefix) > 0 {
		r, size := utf8.DecodeRune(prefix)
		if r == utf8.RuneError && size <= 1 {
			// a multi-byte sequence cut off by the prefix boundary still counts
			return !utf8.FullRune(prefix)
		}
		prefix = prefix[size:]
	}
	return true
}

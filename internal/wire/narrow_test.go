package wire

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSaturate(t *testing.T) {
	assert.Equal(t, int32(math.MaxInt32), SaturateInt32(math.MaxInt64))
	assert.Equal(t, int32(math.MinInt32), SaturateInt32(math.MinInt64))
	assert.Equal(t, int32(-7), SaturateInt32(-7))
	assert.Equal(t, uint32(0), SaturateUint32(-1))
	assert.Equal(t, uint32(math.MaxUint32), SaturateUint32(math.MaxInt64))
	assert.Equal(t, uint32(80), SaturateUint32(80))
	assert.Equal(t, uint32(math.MaxUint32), SaturateUint32U(math.MaxUint64))
}

func TestClassify(t *testing.T) {
	euro := []byte("€") // 3 bytes
	cases := []struct {
		name    string
		payload []byte
		binary  bool
	}{
		{"empty", nil, false},
		{"ascii", []byte("hello"), false},
		{"multibyte", []byte("héllo wörld"), false},
		{"invalid start", []byte{0xff, 'a', 'b'}, true},
		// a multi-byte rune straddling the 100-byte prefix boundary is still text
		{"straddles prefix", append(bytes.Repeat([]byte("a"), 99), euro...), false},
		// prefix looks like text but the tail is not valid UTF-8
		{"bad tail", append(bytes.Repeat([]byte("a"), 150), 0xc3, 0x28), true},
		// truncated rune at the very end of the whole payload is not text
		{"truncated end", append([]byte("ab"), euro[:2]...), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			text, bin, isBinary := Classify(tc.payload)
			assert.Equal(t, tc.binary, isBinary)
			if isBinary {
				assert.Empty(t, text)
				assert.Equal(t, tc.payload, bin)
			} else {
				assert.Nil(t, bin)
				assert.Equal(t, string(tc.payload), text)
			}
		})
	}
}

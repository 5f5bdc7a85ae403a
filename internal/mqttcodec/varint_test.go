package mqttcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemainingLengthRoundTrip(t *testing.T) {
	samples := []uint32{0, 1, 126, 127, 128, 16383, 16384, 2097151, 2097152, maxRemainingLength}
	for _, n := range samples {
		encoded := encodeRemainingLength(n)
		assert.Len(t, encoded, sizeRemainingLength(n))

		decoded, consumed, err := decodeRemainingLength(encoded)
		require.NoError(t, err)
		assert.Equal(t, n, decoded)
		assert.Equal(t, len(encoded), consumed)
	}
}

func TestRemainingLengthRoundTripExhaustiveSample(t *testing.T) {
	for n := uint32(0); n < 200000; n += 997 {
		encoded := encodeRemainingLength(n)
		decoded, consumed, err := decodeRemainingLength(encoded)
		require.NoError(t, err)
		require.Equal(t, n, decoded)
		require.Equal(t, len(encoded), consumed, "n=%d must decode with exactly the minimum bytes", n)
	}
}

func TestDecodeRemainingLengthNeedsMore(t *testing.T) {
	_, _, err := decodeRemainingLength([]byte{0x80})
	assert.ErrorIs(t, err, ErrNeedMore)
}

func TestDecodeRemainingLengthFifthContinuationIsMalformed(t *testing.T) {
	_, _, err := decodeRemainingLength([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

package rawtx

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVarIntBoundaries(t *testing.T) {
	cases := []struct {
		value uint64
		size  int
	}{
		{0, 1},
		{1, 1},
		{252, 1},
		{253, 3},
		{65535, 3},
		{65536, 5},
		{math.MaxUint32, 5},
		{math.MaxUint32 + 1, 9},
		{math.MaxUint64, 9},
	}

	for _, c := range cases {
		encoded := EncodeVarInt(c.value)
		if len(encoded) != c.size {
			t.Fatalf("value %d: have %d bytes, want %d", c.value, len(encoded), c.size)
		}
		assert.Equal(t, c.size, VarIntSize(c.value))

		v, n, rest, err := DecodeVarInt(encoded)
		if err != nil {
			t.Fatalf("value %d: %v", c.value, err)
		}
		assert.Equal(t, c.value, v)
		assert.Equal(t, c.size, n)
		assert.Empty(t, rest)
	}
}

func TestDecodeVarIntKeepsRemainder(t *testing.T) {
	v, n, rest, err := DecodeVarInt([]byte{0xfd, 0x34, 0x12, 0xaa, 0xbb})
	assert.NoError(t, err)
	assert.Equal(t, uint64(0x1234), v)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{0xaa, 0xbb}, rest)
}

func TestDecodeVarIntNonCanonical(t *testing.T) {
	// 1 encoded with the 3-byte form still decodes to 1.
	v, n, _, err := DecodeVarInt([]byte{0xfd, 0x01, 0x00})
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	assert.Equal(t, 3, n)
}

func TestDecodeVarIntTruncated(t *testing.T) {
	inputs := [][]byte{
		{},
		{0xfd},
		{0xfd, 0x01},
		{0xfe, 0x01, 0x02, 0x03},
		{0xff, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07},
	}
	for _, in := range inputs {
		_, _, _, err := DecodeVarInt(in)
		if !errors.Is(err, ErrTruncatedInput) {
			t.Fatalf("input %x: have %v, want ErrTruncatedInput", in, err)
		}
	}
}

/*
Compact-size integers (a.k.a. varint) as used in bitcoin serialization.

	value < 0xfd          1 byte
	value <= 0xffff       0xfd + 2 bytes LE
	value <= 0xffffffff   0xfe + 4 bytes LE
	otherwise             0xff + 8 bytes LE
*/
package rawtx

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// DecodeVarInt reads a compact-size integer from the head of buf.
// It returns the value, how many bytes the encoding took and the rest of buf.
// Non-canonical encodings (eg. 0xfd 0x01 0x00) are accepted,
// callers that need the exact bytes can use buf[:consumed].
func DecodeVarInt(buf []byte) (uint64, int, []byte, error) {
	if len(buf) == 0 {
		return 0, 0, nil, fmt.Errorf("varint prefix: %w", ErrTruncatedInput)
	}

	var size int
	switch buf[0] {
	case 0xfd:
		size = 3
	case 0xfe:
		size = 5
	case 0xff:
		size = 9
	default:
		return uint64(buf[0]), 1, buf[1:], nil
	}

	if len(buf) < size {
		return 0, 0, nil, fmt.Errorf("varint needs %d bytes, have %d: %w", size, len(buf), ErrTruncatedInput)
	}

	var value uint64
	switch size {
	case 3:
		value = uint64(binary.LittleEndian.Uint16(buf[1:3]))
	case 5:
		value = uint64(binary.LittleEndian.Uint32(buf[1:5]))
	default:
		value = binary.LittleEndian.Uint64(buf[1:9])
	}
	return value, size, buf[size:], nil
}

// EncodeVarInt returns the canonical (shortest) encoding of v.
func EncodeVarInt(v uint64) []byte {
	var b bytes.Buffer
	// Writing into a bytes.Buffer never fails.
	_ = wire.WriteVarInt(&b, 0, v)
	return b.Bytes()
}

// VarIntSize returns the length of the canonical encoding of v.
func VarIntSize(v uint64) int {
	return wire.VarIntSerializeSize(v)
}

/*
Package rawtx splits a serialized bitcoin transaction into the segments
an on-chain SPV verifier consumes, and joins them back.

The split never models scripts, it only walks length prefixes, so every
byte of the input lands in exactly one segment:

	version | flag | vin | vout | witness | locktime

flag is the segwit marker+flag (0x00 0x01) or empty for legacy txs.
vin and vout keep their leading compact-size counts.
*/
package rawtx

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	versionSize  = 4
	locktimeSize = 4
	outpointSize = 36 // prev txid (32) + prev index (4)
	sequenceSize = 4
	valueSize    = 8
)

// Segments of a raw transaction.
type Segments struct {
	Version  [4]byte
	Flag     []byte // segwit marker + flag, empty for legacy.
	Vin      []byte // input count prefix + inputs
	Vout     []byte // output count prefix + outputs
	Witness  []byte // witness stacks, empty for legacy.
	Locktime [4]byte
}

// IsSegwit tells if the transaction carries the segwit marker.
func (s *Segments) IsSegwit() bool {
	return len(s.Flag) > 0
}

// Hex returns the hex string of the joined segments.
func (s *Segments) Hex() string {
	return hex.EncodeToString(Join(s))
}

// TxHash is the txid, the double sha256 of the segments without flag and witness.
func (s *Segments) TxHash() chainhash.Hash {
	stripped := make([]byte, 0, versionSize+len(s.Vin)+len(s.Vout)+locktimeSize)
	stripped = append(stripped, s.Version[:]...)
	stripped = append(stripped, s.Vin...)
	stripped = append(stripped, s.Vout...)
	stripped = append(stripped, s.Locktime[:]...)
	return chainhash.DoubleHashH(stripped)
}

// cursor walks a byte slice and remembers nothing but the unread part.
type cursor struct {
	buf []byte
}

func (c *cursor) next(n int, what string) ([]byte, error) {
	if n < 0 || len(c.buf) < n {
		return nil, fmt.Errorf("%s needs %d bytes, have %d: %w", what, n, len(c.buf), ErrTruncatedInput)
	}
	b := c.buf[:n]
	c.buf = c.buf[n:]
	return b, nil
}

// varint returns the decoded value and the raw prefix bytes.
func (c *cursor) varint(what string) (uint64, []byte, error) {
	v, n, rest, err := DecodeVarInt(c.buf)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: %w", what, err)
	}
	raw := c.buf[:n]
	c.buf = rest
	return v, raw, nil
}

// lengthPrefixed reads a varint length followed by that many bytes,
// and appends prefix+payload to dst.
func (c *cursor) lengthPrefixed(dst *bytes.Buffer, what string) error {
	l, raw, err := c.varint(what + " length")
	if err != nil {
		return err
	}
	if l > uint64(len(c.buf)) {
		return fmt.Errorf("%s needs %d bytes, have %d: %w", what, l, len(c.buf), ErrTruncatedInput)
	}
	payload, err := c.next(int(l), what)
	if err != nil {
		return err
	}
	dst.Write(raw)
	dst.Write(payload)
	return nil
}

// Split cuts a raw transaction into its segments.
// The returned segments share no memory with raw.
func Split(raw []byte) (*Segments, error) {
	c := &cursor{buf: append([]byte(nil), raw...)}
	s := &Segments{}

	// 1) version
	version, err := c.next(versionSize, "version")
	if err != nil {
		return nil, err
	}
	copy(s.Version[:], version)

	// 2) input count, or segwit marker followed by flag and the real count.
	inputCount, countRaw, err := c.varint("input count")
	if err != nil {
		return nil, err
	}
	if inputCount == 0 {
		flag, err := c.next(1, "segwit flag")
		if err != nil {
			return nil, err
		}
		s.Flag = append(append([]byte{}, countRaw...), flag...)
		inputCount, countRaw, err = c.varint("input count")
		if err != nil {
			return nil, err
		}
	}

	// 3) inputs
	var vin bytes.Buffer
	vin.Write(countRaw)
	for i := uint64(0); i < inputCount; i++ {
		what := fmt.Sprintf("input %d", i)
		outpoint, err := c.next(outpointSize, what+" outpoint")
		if err != nil {
			return nil, err
		}
		vin.Write(outpoint)
		if err := c.lengthPrefixed(&vin, what+" script"); err != nil {
			return nil, err
		}
		sequence, err := c.next(sequenceSize, what+" sequence")
		if err != nil {
			return nil, err
		}
		vin.Write(sequence)
	}
	s.Vin = vin.Bytes()

	// 4) outputs
	outputCount, countRaw, err := c.varint("output count")
	if err != nil {
		return nil, err
	}
	var vout bytes.Buffer
	vout.Write(countRaw)
	for i := uint64(0); i < outputCount; i++ {
		what := fmt.Sprintf("output %d", i)
		value, err := c.next(valueSize, what+" value")
		if err != nil {
			return nil, err
		}
		vout.Write(value)
		if err := c.lengthPrefixed(&vout, what+" script"); err != nil {
			return nil, err
		}
	}
	s.Vout = vout.Bytes()

	// 5) witness stacks, one per input.
	if s.IsSegwit() {
		var witness bytes.Buffer
		for i := uint64(0); i < inputCount; i++ {
			items, countRaw, err := c.varint(fmt.Sprintf("witness %d item count", i))
			if err != nil {
				return nil, err
			}
			witness.Write(countRaw)
			for j := uint64(0); j < items; j++ {
				if err := c.lengthPrefixed(&witness, fmt.Sprintf("witness %d item %d", i, j)); err != nil {
					return nil, err
				}
			}
		}
		s.Witness = witness.Bytes()
	}

	// 6) locktime
	locktime, err := c.next(locktimeSize, "locktime")
	if err != nil {
		return nil, err
	}
	copy(s.Locktime[:], locktime)

	// 7) nothing may be left.
	if len(c.buf) != 0 {
		return nil, fmt.Errorf("%d bytes left after locktime: %w", len(c.buf), ErrMalformedTransaction)
	}
	return s, nil
}

// SplitHex is Split over a hex string (0x prefix and surrounding spaces allowed).
func SplitHex(txHex string) (*Segments, error) {
	txHex = strings.TrimSpace(txHex)
	txHex = strings.TrimPrefix(strings.TrimPrefix(txHex, "0x"), "0X")
	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, fmt.Errorf("decode tx hex: %w", err)
	}
	return Split(raw)
}

// Join concatenates the segments back into the raw transaction.
func Join(s *Segments) []byte {
	out := make([]byte, 0, versionSize+len(s.Flag)+len(s.Vin)+len(s.Vout)+len(s.Witness)+locktimeSize)
	out = append(out, s.Version[:]...)
	out = append(out, s.Flag...)
	out = append(out, s.Vin...)
	out = append(out, s.Vout...)
	out = append(out, s.Witness...)
	out = append(out, s.Locktime[:]...)
	return out
}

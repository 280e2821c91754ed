package intent

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"
)

// BIP-174 magic, as raw bytes and as hex text.
var (
	psbtMagic    = []byte{0x70, 0x73, 0x62, 0x74, 0xff}
	psbtMagicHex = "70736274ff"
)

// Serialize returns the BIP-174 bytes of the packet.
func (in *Intent) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := in.Packet.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (in *Intent) Hex() (string, error) {
	b, err := in.Serialize()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (in *Intent) Base64() (string, error) {
	return in.Packet.B64Encode()
}

// DecodePsbt accepts a packet as raw bytes, hex text or base64 text.
func DecodePsbt(data []byte) (*psbt.Packet, error) {
	if bytes.HasPrefix(data, psbtMagic) {
		return decodeRaw(data, false)
	}

	text := strings.TrimSpace(string(data))
	text = strings.TrimPrefix(strings.TrimPrefix(text, "0x"), "0X")
	if strings.HasPrefix(strings.ToLower(text), psbtMagicHex) {
		raw, err := hex.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("psbt hex: %w: %v", ErrUnexpectedPsbt, err)
		}
		return decodeRaw(raw, false)
	}
	return decodeRaw([]byte(text), true)
}

func decodeRaw(data []byte, b64 bool) (*psbt.Packet, error) {
	packet, err := psbt.NewFromRawBytes(bytes.NewReader(data), b64)
	if err != nil {
		return nil, fmt.Errorf("psbt: %w: %v", ErrUnexpectedPsbt, err)
	}
	return packet, nil
}

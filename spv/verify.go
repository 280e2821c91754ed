package spv

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ParseHeader decodes a serialized 80-byte block header.
func ParseHeader(header []byte) (*wire.BlockHeader, error) {
	if len(header) != wire.MaxBlockHeaderPayload {
		return nil, fmt.Errorf("block header is %d bytes, want %d", len(header), wire.MaxBlockHeaderPayload)
	}
	var h wire.BlockHeader
	if err := h.Deserialize(bytes.NewReader(header)); err != nil {
		return nil, err
	}
	return &h, nil
}

// VerifyInclusion checks that the proof leads from txid to the merkle root of header.
func VerifyInclusion(txid chainhash.Hash, proof *MerkleProof, header []byte) error {
	h, err := ParseHeader(header)
	if err != nil {
		return err
	}
	if got := proof.Root(txid); got != h.MerkleRoot {
		return fmt.Errorf("tx %s at %d gives root %s, header %s has %s: %w",
			txid, proof.Index, got, h.BlockHash(), h.MerkleRoot, ErrMerkleRootMismatch)
	}
	return nil
}

/*
Package spv assembles the proof that a bitcoin transaction was mined:
the transaction split into segments, the merkle path from it to the root
and the header holding that root, ABI encoded for the lending contract.
*/
package spv

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var (
	ErrEmptyProof         = errors.New("merkle proof has no sibling")
	ErrIndexOutOfRange    = errors.New("merkle index out of range")
	ErrMerkleRootMismatch = errors.New("merkle root mismatch")
	ErrNotConfirmed       = errors.New("transaction not confirmed")
)

// MerkleProof is the path from a transaction up to the merkle root.
type MerkleProof struct {
	IntermediateNodes []byte           // siblings, internal byte order, concatenated leaf level first
	Siblings          []chainhash.Hash // the same siblings one by one
	Index             uint64           // position of the tx in the block
	BlockHeight       uint64
}

// BuildMerkleProof converts the explorer form of a proof
// (display order hex siblings, position) into the contract form.
func BuildMerkleProof(siblings []string, pos uint64, blockHeight uint64) (*MerkleProof, error) {
	if len(siblings) == 0 {
		return nil, ErrEmptyProof
	}
	if len(siblings) < 64 && pos >= uint64(1)<<len(siblings) {
		return nil, fmt.Errorf("position %d with %d levels: %w", pos, len(siblings), ErrIndexOutOfRange)
	}

	proof := &MerkleProof{
		IntermediateNodes: make([]byte, 0, len(siblings)*chainhash.HashSize),
		Siblings:          make([]chainhash.Hash, 0, len(siblings)),
		Index:             pos,
		BlockHeight:       blockHeight,
	}
	for i, s := range siblings {
		if len(s) != chainhash.MaxHashStringSize {
			return nil, fmt.Errorf("sibling %d: want %d hex chars, have %d", i, chainhash.MaxHashStringSize, len(s))
		}
		// NewHashFromStr reverses the display order.
		h, err := chainhash.NewHashFromStr(s)
		if err != nil {
			return nil, fmt.Errorf("sibling %d: %w", i, err)
		}
		proof.Siblings = append(proof.Siblings, *h)
		proof.IntermediateNodes = append(proof.IntermediateNodes, h[:]...)
	}
	return proof, nil
}

// Root folds the path starting from txid.
func (p *MerkleProof) Root(txid chainhash.Hash) chainhash.Hash {
	cur := txid
	idx := p.Index
	var buf [chainhash.HashSize * 2]byte
	for _, sibling := range p.Siblings {
		if idx&1 == 0 {
			copy(buf[:chainhash.HashSize], cur[:])
			copy(buf[chainhash.HashSize:], sibling[:])
		} else {
			copy(buf[:chainhash.HashSize], sibling[:])
			copy(buf[chainhash.HashSize:], cur[:])
		}
		cur = chainhash.DoubleHashH(buf[:])
		idx >>= 1
	}
	return cur
}

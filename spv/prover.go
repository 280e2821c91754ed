package spv

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/lending-go/btcman/explorer"
	"github.com/TEENet-io/lending-go/btcman/rawtx"
	"github.com/TEENet-io/lending-go/retry"
)

// ChainReader is the part of the explorer a proof is built from.
type ChainReader interface {
	GetTx(ctx context.Context, txid string) (*explorer.Tx, error)
	GetTxHex(ctx context.Context, txid string) (string, error)
	GetMerkleProof(ctx context.Context, txid string) (*explorer.MerkleProof, error)
	GetBlockHeader(ctx context.Context, blockHash string) (string, error)
}

// Proof is everything the lending contract needs about one transaction.
type Proof struct {
	TxID        string
	Segments    *rawtx.Segments
	MerkleProof *MerkleProof
	BlockHash   string
	BlockHeader []byte
}

func (p *Proof) TransactionParams() TransactionParams {
	return NewTransactionParams(p.Segments, p.MerkleProof)
}

// Encode ABI encodes the proof for the given borrower.
func (p *Proof) Encode(borrower ethcommon.Address) ([]byte, error) {
	return EncodeProof(p.Segments, p.MerkleProof, p.BlockHeader, borrower)
}

type Prover struct {
	Chain ChainReader
	Retry retry.Policy
}

// WaitForConfirmation polls the transaction until it is mined.
// A tx the explorer does not know yet is polled like an unconfirmed one.
func (p *Prover) WaitForConfirmation(ctx context.Context, txid string) (*explorer.Tx, error) {
	errPending := errors.New("pending")
	tx, err := retry.Do(ctx, p.Retry, "wait for confirmation", func(ctx context.Context) (*explorer.Tx, error) {
		tx, err := p.Chain.GetTx(ctx, txid)
		if err != nil {
			return nil, err
		}
		if !tx.Status.Confirmed {
			return nil, errPending
		}
		return tx, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("tx %s: %w: %w", txid, ErrNotConfirmed, err)
	}
	logger.WithFields(logger.Fields{
		"txid":   txid,
		"height": tx.Status.BlockHeight,
		"block":  tx.Status.BlockHash,
	}).Info("transaction confirmed")
	return tx, nil
}

// Prove waits for txid to be mined and assembles its inclusion proof.
// The proof is checked against the header before it is returned.
func (p *Prover) Prove(ctx context.Context, txid string) (*Proof, error) {
	txHash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, fmt.Errorf("invalid txid %s: %w", txid, err)
	}

	tx, err := p.WaitForConfirmation(ctx, txid)
	if err != nil {
		return nil, err
	}

	txHex, err := p.Chain.GetTxHex(ctx, txid)
	if err != nil {
		return nil, err
	}
	seg, err := rawtx.SplitHex(txHex)
	if err != nil {
		return nil, fmt.Errorf("split tx %s: %w", txid, err)
	}
	if seg.TxHash() != *txHash {
		return nil, fmt.Errorf("explorer returned tx %s for %s", seg.TxHash(), txid)
	}

	explorerProof, err := p.Chain.GetMerkleProof(ctx, txid)
	if err != nil {
		return nil, err
	}
	if explorerProof.BlockHeight != tx.Status.BlockHeight {
		return nil, fmt.Errorf("tx %s: proof at height %d, tx confirmed at %d (reorg?)", txid, explorerProof.BlockHeight, tx.Status.BlockHeight)
	}
	proof, err := BuildMerkleProof(explorerProof.Merkle, explorerProof.Pos, uint64(tx.Status.BlockHeight))
	if err != nil {
		return nil, err
	}

	headerHex, err := p.Chain.GetBlockHeader(ctx, tx.Status.BlockHash)
	if err != nil {
		return nil, err
	}
	header, err := hex.DecodeString(headerHex)
	if err != nil {
		return nil, err
	}
	if err := VerifyInclusion(*txHash, proof, header); err != nil {
		return nil, err
	}

	logger.WithFields(logger.Fields{
		"txid":   txid,
		"height": proof.BlockHeight,
		"index":  proof.Index,
		"depth":  len(proof.Siblings),
	}).Debug("inclusion proof built")

	return &Proof{
		TxID:        txid,
		Segments:    seg,
		MerkleProof: proof,
		BlockHash:   tx.Status.BlockHash,
		BlockHeader: header,
	}, nil
}

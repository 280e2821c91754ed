package intent

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/TEENet-io/lending-go/btcman/assembler"
)

// Verify runs every input of tx through the script engine.
func Verify(tx *wire.MsgTx, prevOuts map[wire.OutPoint]*wire.TxOut) error {
	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	hashes := txscript.NewTxSigHashes(tx, fetcher)
	for idx, txIn := range tx.TxIn {
		prev, ok := prevOuts[txIn.PreviousOutPoint]
		if !ok {
			return fmt.Errorf("input %d: %w", idx, assembler.ErrMissingPrevOut)
		}
		vm, err := txscript.NewEngine(prev.PkScript, tx, idx, txscript.StandardVerifyFlags, nil, hashes, prev.Value, fetcher)
		if err != nil {
			return fmt.Errorf("input %d: %w: %v", idx, ErrSignatureInvalid, err)
		}
		if err := vm.Execute(); err != nil {
			return fmt.Errorf("input %d: %w: %v", idx, ErrSignatureInvalid, err)
		}
	}
	return nil
}

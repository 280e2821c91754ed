package utils

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// OutputAddress returns the single address a locking script pays to.
func OutputAddress(txOut *wire.TxOut, chainParams *chaincfg.Params) (string, error) {
	_, addresses, _, err := txscript.ExtractPkScriptAddrs(txOut.PkScript, chainParams)
	if err != nil {
		return "", err
	}
	if len(addresses) != 1 {
		return "", fmt.Errorf("script pays to %d addresses", len(addresses))
	}
	return addresses[0].EncodeAddress(), nil
}

// FindPayment returns the index of the first output paying exactly amount to targetAddress,
// or -1 if there is none.
func FindPayment(tx *wire.MsgTx, targetAddress string, amount int64, chainParams *chaincfg.Params) int {
	for idx, out := range tx.TxOut {
		if out.Value != amount {
			continue
		}
		addr, err := OutputAddress(out, chainParams)
		if err == nil && addr == targetAddress {
			return idx
		}
	}
	return -1
}

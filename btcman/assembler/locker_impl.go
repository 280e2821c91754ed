package assembler

/*
This file produces the "locking" part of a Tx (outputs).

Since locking scripts do not require any prior knowledge of private keys,
it is universal to all wallet implementations.

So we can do it here.
*/

import (
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// PayToAddrScript returns the locking script of a (non script-hash) address.
func PayToAddrScript(dst_addr string, dst_chain_cfg *chaincfg.Params) ([]byte, error) {
	btcDstAddress, err := DecodeAddress(dst_addr, dst_chain_cfg)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(btcDstAddress)
}

// Add a pay-to-any-type-of-address clause to Tx.
func AddPayToAddress(tx *wire.MsgTx, dst_chain_cfg *chaincfg.Params, dst_addr string, amount int64) (*wire.MsgTx, error) {
	txOutScript, err := PayToAddrScript(dst_addr, dst_chain_cfg)
	if err != nil {
		return nil, err
	}
	tx.AddTxOut(wire.NewTxOut(amount, txOutScript))
	return tx, nil
}

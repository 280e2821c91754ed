/*
This file contains low-level custom data structures used accross the program related to bitcoin.
  - PubKeyScriptType: the locking script type (as part of UTXO)
  - UTXO, the unspend transaction output.
  - Source, anything that can list the UTXOs of an address.
*/
package utxo

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// PubKeyScript (LockingScript) type
type PubKeyScriptType int

// Enumerate of PubKeyScriptType
const (
	ANY_SCRIPT_T = iota
	P2PKH_SCRIPT_T
	P2WPKH_SCRIPT_T
)

// Represents the unspent transaction output (UTXO)
// in our program
type UTXO struct {
	TxID        string           // Identifier, human readable
	TxHash      *chainhash.Hash  // Identifier, used for tx search
	Vout        uint32           // exact index of the Tx's outputs to be spent
	Amount      int64            // in satoshi
	PkScriptT   PubKeyScriptType // Type of the locking script
	PkScript    []byte           // Locking Script itself
	Address     string           // owner of the output, if known
	Confirmed   bool             // mined or still in mempool
	BlockHeight int64            // 0 if unconfirmed
}

// OutPoint of the UTXO, for use as a tx input.
func (u *UTXO) OutPoint() *wire.OutPoint {
	return wire.NewOutPoint(u.TxHash, u.Vout)
}

// TxOut is the previous output being spent, needed for segwit signatures.
func (u *UTXO) TxOut() *wire.TxOut {
	return wire.NewTxOut(u.Amount, u.PkScript)
}

func (u *UTXO) String() string {
	return fmt.Sprintf("%s:%d (%d sats)", u.TxID, u.Vout, u.Amount)
}

// New builds a UTXO from its textual txid and fills the derived fields.
func New(txID string, vout uint32, amount int64, pkScript []byte) (*UTXO, error) {
	h, err := chainhash.NewHashFromStr(txID)
	if err != nil {
		return nil, fmt.Errorf("invalid txid %s: %w", txID, err)
	}
	return &UTXO{
		TxID:      txID,
		TxHash:    h,
		Vout:      vout,
		Amount:    amount,
		PkScriptT: ScriptType(pkScript),
		PkScript:  pkScript,
	}, nil
}

// ScriptType classifies a locking script.
func ScriptType(pkScript []byte) PubKeyScriptType {
	switch {
	case txscript.IsPayToPubKeyHash(pkScript):
		return P2PKH_SCRIPT_T
	case txscript.IsPayToWitnessPubKeyHash(pkScript):
		return P2WPKH_SCRIPT_T
	default:
		return ANY_SCRIPT_T
	}
}

// Source lists the spendable outputs of an address.
// Implemented by the esplora explorer client and the bitcoin core rpc client.
type Source interface {
	ListUtxos(ctx context.Context, address string) ([]*UTXO, error)
}

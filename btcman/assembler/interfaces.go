/*
Signer and Broadcaster are the capabilities a tx assembler needs
from a wallet.

Signer is injected into intent building/filling instead of being read from
some global wallet object. Two implementations live here:
  - LocalSigner, backed by a WIF private key in this process.
  - RemoteSigner, a browser-wallet bridge spoken to over HTTP.

Remember:
Always create the "lock" part (outputs) on a Tx first, then sign.
Signatures commit to outputs according to their sighash flag.
*/
package assembler

import (
	"context"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
)

// Signer signs selected inputs of a partially signed transaction.
type Signer interface {
	// Accounts lists the addresses the signer controls, first one is the default.
	Accounts(ctx context.Context) ([]string, error)

	// SignPsbt adds a partial signature for each of inputIndexes,
	// using the given sighash flag. It does not finalize.
	// The returned packet may be the same pointer as the one passed in.
	SignPsbt(ctx context.Context, packet *psbt.Packet, inputIndexes []int, sighash txscript.SigHashType) (*psbt.Packet, error)

	Broadcaster
}

// Broadcaster pushes a fully signed raw tx (hex) to the network and returns its txid.
type Broadcaster interface {
	Broadcast(ctx context.Context, rawTxHex string) (string, error)
}

package intent

import (
	"errors"

	"github.com/TEENet-io/lending-go/btcman/explorer"
	"github.com/TEENet-io/lending-go/btcman/utxo"
)

var (
	ErrDustUtxoNotObserved = errors.New("dust utxo not observed")
	ErrInvalidTransition   = errors.New("invalid intent state transition")
	ErrAmountMismatch      = errors.New("intent output does not pay the requested amount")
	ErrPayeeMismatch       = errors.New("intent output does not pay the borrower address")
	ErrInvalidAmount       = errors.New("invalid borrow amount")
	ErrUnexpectedPsbt      = errors.New("unexpected psbt")
	ErrSignatureInvalid    = errors.New("signature verification failed")

	// Broadcast rejections, same values as the explorer ones.
	ErrUtxoAlreadySpent  = explorer.ErrUtxoAlreadySpent
	ErrBroadcastRejected = explorer.ErrBroadcastRejected

	ErrNoSuitableUtxo    = utxo.ErrNoSuitableUtxo
	ErrInsufficientFunds = utxo.ErrInsufficientFunds
)

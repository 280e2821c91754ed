/*
Package intent builds and fills borrow intents.

A borrow intent is a PSBT with a single dust input owned by the borrower,
signed SINGLE|ANYONECANPAY, and a single output paying the borrowed amount
back to the borrower. The signature commits to that output only, so a lender
can append its own input and a change output, sign ALL and broadcast.
*/
package intent

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/lending-go/btcman/assembler"
	"github.com/TEENet-io/lending-go/btcman/utxo"
	"github.com/TEENet-io/lending-go/retry"
)

// Version of the intent transaction.
const INTENT_TX_VERSION = 2

// Sighash the borrower signs the dust input with.
const BorrowerSigHash = txscript.SigHashSingle | txscript.SigHashAnyOneCanPay

// Builder is the borrower side.
type Builder struct {
	ChainConfig *chaincfg.Params
	Signer      assembler.Signer // owns the dust input
	Source      utxo.Source      // only needed by PrepareDust and CreateIntent
	Dust        utxo.DustPolicy  // zero value = default window
	SplitFee    int64            // 0 = DEFAULT_SPLIT_FEE
	Retry       retry.Policy     // how long to wait for a split output to show up
}

func (b *Builder) dustPolicy() utxo.DustPolicy {
	if b.Dust.MinDust == 0 && b.Dust.MaxDust == 0 {
		return utxo.DefaultDustPolicy()
	}
	return b.Dust
}

func (b *Builder) splitFee() int64 {
	if b.SplitFee <= 0 {
		return DEFAULT_SPLIT_FEE
	}
	return b.SplitFee
}

// Build signs an intent spending dust and paying amount to borrowerAddress.
func (b *Builder) Build(ctx context.Context, dust *utxo.UTXO, borrowerAddress string, amount int64) (*Intent, error) {
	if amount < DEFAULT_DUST_THRESHOLD {
		return nil, fmt.Errorf("amount %d below %d sats: %w", amount, DEFAULT_DUST_THRESHOLD, ErrInvalidAmount)
	}
	if dust == nil {
		return nil, fmt.Errorf("no dust input: %w", ErrNoSuitableUtxo)
	}
	if !txscript.IsPayToWitnessPubKeyHash(dust.PkScript) {
		return nil, fmt.Errorf("dust %s: %w", dust, assembler.ErrUnsupportedScript)
	}

	tx := wire.NewMsgTx(INTENT_TX_VERSION)
	tx.AddTxIn(wire.NewTxIn(dust.OutPoint(), nil, nil))
	tx, err := assembler.AddPayToAddress(tx, b.ChainConfig, borrowerAddress, amount)
	if err != nil {
		return nil, err
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, err
	}
	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return nil, err
	}
	if err := updater.AddInWitnessUtxo(dust.TxOut(), 0); err != nil {
		return nil, err
	}
	if err := updater.AddInSighashType(BorrowerSigHash, 0); err != nil {
		return nil, err
	}

	signed, err := b.Signer.SignPsbt(ctx, packet, []int{0}, BorrowerSigHash)
	if err != nil {
		return nil, fmt.Errorf("sign intent: %w", err)
	}
	if err := checkBorrowerSignature(signed); err != nil {
		return nil, err
	}

	in := newIntent(signed)
	if err := in.advance(StateBorrowerSigned); err != nil {
		return nil, err
	}

	logger.WithFields(logger.Fields{
		"dust":     dust.String(),
		"borrower": borrowerAddress,
		"amount":   amount,
	}).Info("borrow intent signed")
	return in, nil
}

// CreateIntent makes sure a dust output exists, then builds the intent on it.
func (b *Builder) CreateIntent(ctx context.Context, borrowerAddress string, amount int64) (*Intent, error) {
	if amount < DEFAULT_DUST_THRESHOLD {
		return nil, fmt.Errorf("amount %d below %d sats: %w", amount, DEFAULT_DUST_THRESHOLD, ErrInvalidAmount)
	}
	dust, err := b.PrepareDust(ctx, borrowerAddress)
	if err != nil {
		return nil, err
	}
	return b.Build(ctx, dust, borrowerAddress, amount)
}

// checkBorrowerSignature makes sure input 0 carries exactly one partial
// signature made with BorrowerSigHash.
func checkBorrowerSignature(packet *psbt.Packet) error {
	if len(packet.Inputs) == 0 {
		return fmt.Errorf("no input: %w", ErrUnexpectedPsbt)
	}
	input := packet.Inputs[0]
	if len(input.PartialSigs) != 1 {
		return fmt.Errorf("input 0 has %d partial signatures, want 1: %w", len(input.PartialSigs), ErrUnexpectedPsbt)
	}
	if input.SighashType != 0 && input.SighashType != BorrowerSigHash {
		return fmt.Errorf("input 0 sighash 0x%x: %w", uint32(input.SighashType), ErrUnexpectedPsbt)
	}
	sig := input.PartialSigs[0].Signature
	if len(sig) == 0 || txscript.SigHashType(sig[len(sig)-1]) != BorrowerSigHash {
		return fmt.Errorf("input 0 signature is not SINGLE|ANYONECANPAY: %w", ErrUnexpectedPsbt)
	}
	return nil
}

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
	btcutils "github.com/TEENet-io/lending-go/btcman/utils"
	"github.com/TEENet-io/lending-go/btcman/utxo"
)

// Fulfiller is the lender side.
type Fulfiller struct {
	ChainConfig *chaincfg.Params
	Signer      assembler.Signer // owns the lender input
	Source      utxo.Source      // only needed by FillFromSource
	Fee         FeePolicy
}

// Fill completes a borrower intent with a lender UTXO.
// The returned intent is finalized, its Tx is ready to broadcast.
func (f *Fulfiller) Fill(ctx context.Context, borrowerPsbt []byte, lender *utxo.UTXO, lenderAddress string, requestedAmount int64) (*Intent, error) {
	if lender == nil {
		return nil, fmt.Errorf("no lender input: %w", ErrInsufficientFunds)
	}
	packet, err := DecodePsbt(borrowerPsbt)
	if err != nil {
		return nil, err
	}
	if err := checkIntentShape(packet, requestedAmount); err != nil {
		return nil, err
	}

	in := newIntent(packet)
	if err := in.advance(StateBorrowerSigned); err != nil {
		return nil, err
	}
	if err := psbt.Finalize(packet, 0); err != nil {
		return nil, fmt.Errorf("finalize borrower input: %w: %v", ErrUnexpectedPsbt, err)
	}

	change, withChange, err := f.Fee.Change(lender.Amount, requestedAmount)
	if err != nil {
		return nil, err
	}

	packet.UnsignedTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *lender.OutPoint(),
		Sequence:         LENDER_SEQUENCE,
	})
	packet.Inputs = append(packet.Inputs, psbt.PInput{WitnessUtxo: lender.TxOut()})
	if withChange {
		pkScript, err := assembler.PayToAddrScript(lenderAddress, f.ChainConfig)
		if err != nil {
			return nil, err
		}
		packet.UnsignedTx.AddTxOut(wire.NewTxOut(change, pkScript))
		packet.Outputs = append(packet.Outputs, psbt.POutput{})
	}
	if err := in.advance(StateLenderExtended); err != nil {
		return nil, err
	}

	signed, err := f.Signer.SignPsbt(ctx, packet, []int{1}, txscript.SigHashAll)
	if err != nil {
		return nil, fmt.Errorf("sign lender input: %w", err)
	}
	in.Packet = signed
	if err := psbt.Finalize(signed, 1); err != nil {
		return nil, fmt.Errorf("finalize lender input: %w", err)
	}

	prevOuts, err := assembler.PrevOutputs(signed)
	if err != nil {
		return nil, err
	}
	tx, err := psbt.Extract(signed)
	if err != nil {
		return nil, err
	}
	if err := Verify(tx, prevOuts); err != nil {
		return nil, err
	}
	in.Tx = tx
	if err := in.advance(StateFinalized); err != nil {
		return nil, err
	}

	logger.WithFields(logger.Fields{
		"txid":          tx.TxHash().String(),
		"lender":        lender.String(),
		"amount":        requestedAmount,
		"change":        change,
		"change_output": withChange,
		"borrower":      f.borrowerOf(tx),
	}).Info("intent filled")
	return in, nil
}

// Fulfill fills the intent and broadcasts it.
// Broadcast rejections are returned as is, never retried.
func (f *Fulfiller) Fulfill(ctx context.Context, borrowerPsbt []byte, lender *utxo.UTXO, lenderAddress string, requestedAmount int64) (string, string, error) {
	in, err := f.Fill(ctx, borrowerPsbt, lender, lenderAddress, requestedAmount)
	if err != nil {
		return "", "", err
	}
	rawHex, err := assembler.TxToHex(in.Tx)
	if err != nil {
		return "", "", err
	}

	txid, err := f.Signer.Broadcast(ctx, rawHex)
	if err != nil {
		return "", "", fmt.Errorf("broadcast fill %s: %w", in.Tx.TxHash(), err)
	}
	in.TxID = txid
	if err := in.advance(StateBroadcast); err != nil {
		return "", "", err
	}
	logger.WithField("txid", txid).Info("fill broadcast")
	return rawHex, txid, nil
}

// FillFromSource picks the lender UTXO itself, then fulfills.
func (f *Fulfiller) FillFromSource(ctx context.Context, borrowerPsbt []byte, lenderAddress string, requestedAmount int64) (string, string, error) {
	utxos, err := f.Source.ListUtxos(ctx, lenderAddress)
	if err != nil {
		return "", "", fmt.Errorf("list utxos of %s: %w", lenderAddress, err)
	}
	lender, err := utxo.SelectCovering(utxos, requestedAmount+f.Fee.Fee())
	if err != nil {
		return "", "", err
	}
	return f.Fulfill(ctx, borrowerPsbt, lender, lenderAddress, requestedAmount)
}

// CheckPayee confirms the pinned output pays requestedAmount to borrowerAddress,
// the address the borrower registered next to the psbt.
func (f *Fulfiller) CheckPayee(borrowerPsbt []byte, borrowerAddress string, requestedAmount int64) error {
	packet, err := DecodePsbt(borrowerPsbt)
	if err != nil {
		return err
	}
	if btcutils.FindPayment(packet.UnsignedTx, borrowerAddress, requestedAmount, f.ChainConfig) != 0 {
		return fmt.Errorf("want %d sats to %s: %w", requestedAmount, borrowerAddress, ErrPayeeMismatch)
	}
	return nil
}

// borrowerOf decodes the address paid by the intent output.
func (f *Fulfiller) borrowerOf(tx *wire.MsgTx) string {
	addr, err := btcutils.OutputAddress(tx.TxOut[0], f.ChainConfig)
	if err != nil {
		return ""
	}
	return addr
}

// checkIntentShape accepts a one-in one-out packet whose input is signed
// SINGLE|ANYONECANPAY and whose output pays requestedAmount.
func checkIntentShape(packet *psbt.Packet, requestedAmount int64) error {
	tx := packet.UnsignedTx
	if len(tx.TxIn) != 1 || len(tx.TxOut) != 1 || len(packet.Inputs) != 1 || len(packet.Outputs) != 1 {
		return fmt.Errorf("%d inputs and %d outputs, want 1 and 1: %w", len(tx.TxIn), len(tx.TxOut), ErrUnexpectedPsbt)
	}
	if packet.Inputs[0].WitnessUtxo == nil {
		return fmt.Errorf("input 0 has no witness utxo: %w", ErrUnexpectedPsbt)
	}
	if err := checkBorrowerSignature(packet); err != nil {
		return err
	}
	if tx.TxOut[0].Value != requestedAmount {
		return fmt.Errorf("output pays %d, requested %d: %w", tx.TxOut[0].Value, requestedAmount, ErrAmountMismatch)
	}
	return nil
}

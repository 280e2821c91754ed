package assembler

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/TEENet-io/lending-go/btcman/utxo"
)

type Assembler struct {
	ChainConfig *chaincfg.Params // which BTC chain it is on. (mainnet, testnet, regtest)
	Signer      Signer           // can sign the inputs and push the result.
}

// Create a locking script on a Tx, to transfer out money to a single receiver.
// This type of locking sends funds to dst_addr and keep the change to change_addr.
// The change_amount is implied by:
// sum(utxo) = dst_amount + fee_amount + change_amount
func (myAss *Assembler) craftTransferOutOutput(
	tx *wire.MsgTx,
	prevOutputs []*utxo.UTXO, // UTXO(s) to spend from.
	dst_addr string, // receiver
	dst_amount int64, // btc amount to receiver in satoshi
	change_addr string, // receiver to receive the change
	fee_amount int64, // amount of mining fee in satoshi
) (*wire.MsgTx, error) {
	sum := utxo.Sum(prevOutputs)
	// Calc change_amount
	change_amount := sum - dst_amount - fee_amount
	if change_amount < 0 {
		return nil, fmt.Errorf("change_amount < 0, sum: %d, dst_amount: %d, fee_amount: %d: %w", sum, dst_amount, fee_amount, utxo.ErrInsufficientFunds)
	}

	// 1st output: to the dst receiver
	tx, err := AddPayToAddress(tx, myAss.ChainConfig, dst_addr, dst_amount)
	if err != nil {
		return nil, err
	}

	// 2nd output: to the change receiver (if change > 0)
	// if change == 0 no need to add this clause.
	if change_amount > 0 {
		tx, err = AddPayToAddress(tx, myAss.ChainConfig, change_addr, change_amount)
		if err != nil {
			return nil, err
		}
	}
	return tx, nil
}

// MakeTransferPsbt builds an unsigned packet that spends prevOutputs,
// pays dst_amount to dst_addr and keeps the change to change_addr.
// Each input carries its previous output for segwit signing.
func (myAss *Assembler) MakeTransferPsbt(
	dst_addr string,
	dst_amount int64,
	change_addr string,
	fee_amount int64,
	prevOutputs []*utxo.UTXO,
) (*psbt.Packet, error) {
	if len(prevOutputs) == 0 {
		return nil, fmt.Errorf("no input to spend: %w", utxo.ErrInsufficientFunds)
	}

	// Stuff the locking scripts first.
	tx := wire.NewMsgTx(wire.TxVersion)
	tx, err := myAss.craftTransferOutOutput(tx, prevOutputs, dst_addr, dst_amount, change_addr, fee_amount)
	if err != nil {
		return nil, err
	}
	for _, item := range prevOutputs {
		tx.AddTxIn(wire.NewTxIn(item.OutPoint(), nil, nil))
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, err
	}
	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return nil, err
	}
	for idx, item := range prevOutputs {
		if err := updater.AddInWitnessUtxo(item.TxOut(), idx); err != nil {
			return nil, err
		}
	}
	return packet, nil
}

// Complete signs inputIndexes, finalizes every input and extracts the network tx.
func (myAss *Assembler) Complete(ctx context.Context, packet *psbt.Packet, inputIndexes []int, sighash txscript.SigHashType) (*wire.MsgTx, error) {
	signed, err := myAss.Signer.SignPsbt(ctx, packet, inputIndexes, sighash)
	if err != nil {
		return nil, err
	}
	if err := psbt.MaybeFinalizeAll(signed); err != nil {
		return nil, err
	}
	return psbt.Extract(signed)
}

// Make a signed tx that transfer some bitcoin to dst_addr.
// It takes care of both locking + unlocking.
// After deduction of mining fee, keep the change to change_addr.
// You need to broadcast the Tx later.
func (myAss *Assembler) MakeTransferOutTx(
	ctx context.Context,
	dst_addr string,
	dst_amount int64,
	change_addr string,
	fee_amount int64,
	prevOutputs []*utxo.UTXO,
) (*wire.MsgTx, error) {
	packet, err := myAss.MakeTransferPsbt(dst_addr, dst_amount, change_addr, fee_amount, prevOutputs)
	if err != nil {
		return nil, err
	}
	all := make([]int, len(prevOutputs))
	for i := range all {
		all[i] = i
	}
	return myAss.Complete(ctx, packet, all, txscript.SigHashAll)
}

// TxToHex serializes a tx (with witness, if any) into hex.
func TxToHex(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

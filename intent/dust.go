package intent

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/lending-go/btcman/assembler"
	"github.com/TEENet-io/lending-go/btcman/utxo"
	"github.com/TEENet-io/lending-go/retry"
)

var errNotYetVisible = errors.New("split output not visible yet")

// PrepareDust returns a UTXO of address inside the dust window.
// If there is none, a bigger one is split in two (MinDust + remainder)
// and the split output is awaited under the retry policy.
func (b *Builder) PrepareDust(ctx context.Context, address string) (*utxo.UTXO, error) {
	policy := b.dustPolicy()
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	utxos, err := b.Source.ListUtxos(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("list utxos of %s: %w", address, err)
	}
	if dust, err := utxo.SelectDust(utxos, policy); err == nil {
		logger.WithField("dust", dust.String()).Debug("dust utxo found")
		return dust, nil
	}

	splitFee := b.splitFee()
	big, err := utxo.SelectSplittable(utxos, policy, splitFee)
	if err != nil {
		return nil, err
	}

	ass := &assembler.Assembler{ChainConfig: b.ChainConfig, Signer: b.Signer}
	packet, err := ass.MakeTransferPsbt(address, policy.MinDust, address, splitFee, []*utxo.UTXO{big})
	if err != nil {
		return nil, err
	}
	tx, err := ass.Complete(ctx, packet, []int{0}, txscript.SigHashAll)
	if err != nil {
		return nil, fmt.Errorf("sign split: %w", err)
	}
	rawHex, err := assembler.TxToHex(tx)
	if err != nil {
		return nil, err
	}

	splitTxID := tx.TxHash().String()
	reported, err := b.Signer.Broadcast(ctx, rawHex)
	if err != nil {
		return nil, fmt.Errorf("broadcast split %s: %w", splitTxID, err)
	}
	if reported != splitTxID {
		logger.WithFields(logger.Fields{
			"computed": splitTxID,
			"reported": reported,
		}).Warn("broadcaster reported another txid for the split")
	}
	logger.WithFields(logger.Fields{
		"txid":   splitTxID,
		"from":   big.String(),
		"dust":   policy.MinDust,
		"fee":    splitFee,
		"holder": address,
	}).Info("dust split broadcast")

	dust, err := retry.Do(ctx, b.Retry, "observe dust utxo", func(ctx context.Context) (*utxo.UTXO, error) {
		list, err := b.Source.ListUtxos(ctx, address)
		if err != nil {
			return nil, err
		}
		for _, item := range list {
			if item.TxID == splitTxID && item.Vout == 0 && item.Amount == policy.MinDust {
				return item, nil
			}
		}
		return nil, errNotYetVisible
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%s:0: %w: %w", splitTxID, ErrDustUtxoNotObserved, err)
	}
	return dust, nil
}

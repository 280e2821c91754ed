package intent

import (
	"fmt"
)

const (
	DEFAULT_FEE_RATE        = 200 // sats per vbyte
	DEFAULT_ESTIMATED_VSIZE = 150 // vbytes of a filled intent, 2 P2WPKH in + 2 out
	DEFAULT_DUST_THRESHOLD  = 546 // smallest change output worth creating
	DEFAULT_SPLIT_FEE       = 300 // fee of the 1-in 2-out dust split

	// Sequence of the lender input, opts in to replace-by-fee.
	LENDER_SEQUENCE = 0xfffffffd
)

// FeePolicy prices the fill with a fixed size estimate.
type FeePolicy struct {
	RateSatsPerVbyte int64
	EstimatedVsize   int64
	DustThreshold    int64
}

func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		RateSatsPerVbyte: DEFAULT_FEE_RATE,
		EstimatedVsize:   DEFAULT_ESTIMATED_VSIZE,
		DustThreshold:    DEFAULT_DUST_THRESHOLD,
	}
}

func (p FeePolicy) withDefaults() FeePolicy {
	if p.RateSatsPerVbyte <= 0 {
		p.RateSatsPerVbyte = DEFAULT_FEE_RATE
	}
	if p.EstimatedVsize <= 0 {
		p.EstimatedVsize = DEFAULT_ESTIMATED_VSIZE
	}
	if p.DustThreshold <= 0 {
		p.DustThreshold = DEFAULT_DUST_THRESHOLD
	}
	return p
}

// Fee of a fill, in satoshi.
func (p FeePolicy) Fee() int64 {
	p = p.withDefaults()
	return p.RateSatsPerVbyte * p.EstimatedVsize
}

// Change left to the lender after paying the borrower and the fee.
// withOutput is false when the change is too small to get its own output,
// it is left to the miner then.
func (p FeePolicy) Change(lenderAmount int64, requested int64) (change int64, withOutput bool, err error) {
	p = p.withDefaults()
	fee := p.Fee()
	change = lenderAmount - requested - fee
	if change < 0 {
		return 0, false, fmt.Errorf("lender utxo %d < amount %d + fee %d: %w", lenderAmount, requested, fee, ErrInsufficientFunds)
	}
	return change, change > p.DustThreshold, nil
}

/*
This file contains filter/select operations on UTXO.

Selection is a hint, nothing is reserved. Another spender may consume the
same output before our transaction reaches the network.
*/
package utxo

import (
	"errors"
	"fmt"
)

var (
	ErrNoSuitableUtxo    = errors.New("no suitable utxo")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Default dust window for intent inputs, in satoshi.
const (
	DEFAULT_MIN_DUST = 330
	DEFAULT_MAX_DUST = 1000
)

// DustPolicy is the value window an intent input must fall into.
type DustPolicy struct {
	MinDust int64
	MaxDust int64
}

func DefaultDustPolicy() DustPolicy {
	return DustPolicy{MinDust: DEFAULT_MIN_DUST, MaxDust: DEFAULT_MAX_DUST}
}

func (p DustPolicy) Validate() error {
	if p.MinDust <= 0 || p.MaxDust < p.MinDust {
		return fmt.Errorf("invalid dust policy [%d, %d]", p.MinDust, p.MaxDust)
	}
	return nil
}

// Contains tells if amount sits inside the window (both ends included).
func (p DustPolicy) Contains(amount int64) bool {
	return amount >= p.MinDust && amount <= p.MaxDust
}

// SelectDust picks the first UTXO whose value falls inside the dust window.
func SelectDust(inputs []*UTXO, policy DustPolicy) (*UTXO, error) {
	for _, item := range Dedup(inputs) {
		if policy.Contains(item.Amount) {
			return item, nil
		}
	}
	return nil, fmt.Errorf("no utxo in [%d, %d] sats: %w", policy.MinDust, policy.MaxDust, ErrNoSuitableUtxo)
}

// SelectSplittable picks the first UTXO above the dust window that can pay
// MinDust plus splitFee and still leave something back.
func SelectSplittable(inputs []*UTXO, policy DustPolicy, splitFee int64) (*UTXO, error) {
	for _, item := range Dedup(inputs) {
		if item.Amount > policy.MaxDust && item.Amount > policy.MinDust+splitFee {
			return item, nil
		}
	}
	return nil, fmt.Errorf("no utxo above %d sats to split: %w", policy.MaxDust, ErrNoSuitableUtxo)
}

// SelectCovering picks the first UTXO worth at least required satoshi.
func SelectCovering(inputs []*UTXO, required int64) (*UTXO, error) {
	for _, item := range Dedup(inputs) {
		if item.Amount >= required {
			return item, nil
		}
	}
	return nil, fmt.Errorf("no utxo covers %d sats: %w", required, ErrInsufficientFunds)
}

// Choose some UTXO(s) for future spending.
// Collect several UTXO, the sum to be larger than (amount + fee).
// Error if cannot collect enough satisfy the requriement.
func SelectUtxo(inputs []*UTXO, amount int64, fee int64) ([]*UTXO, error) {
	var sum int64
	unique := Dedup(inputs)
	for idx, item := range unique {
		sum += item.Amount
		if sum > (amount + fee) {
			return unique[:idx+1], nil
		}
	}
	return nil, fmt.Errorf("have %d sats, need more than %d: %w", sum, amount+fee, ErrInsufficientFunds)
}

// Dedup drops repeated (txid, vout) pairs, keeping the first occurrence and the order.
func Dedup(inputs []*UTXO) []*UTXO {
	seen := make(map[string]struct{}, len(inputs))
	out := make([]*UTXO, 0, len(inputs))
	for _, item := range inputs {
		if item == nil {
			continue
		}
		key := fmt.Sprintf("%s:%d", item.TxID, item.Vout)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

// Sum of the amounts.
func Sum(inputs []*UTXO) int64 {
	var total int64
	for _, item := range inputs {
		total += item.Amount
	}
	return total
}

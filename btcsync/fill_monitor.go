/*
Package btcsync follows broadcast fills on the BTC chain and publishes
the confirmed ones to observers.
*/
package btcsync

/*
The fill monitor is a type of publisher.
Each round it reads the pending fills from the fill log and asks the chain
about their status.

Once a fill has enough confirmations it is marked confirmed in the log
and all the observers are notified.
*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/lending-go/btcaction"
	"github.com/TEENet-io/lending-go/btcman/explorer"
)

const (
	DEFAULT_CONFIRMATIONS = 1                // mined once is enough
	SCAN_INTERVAL         = 10 * time.Second // then we scan again
)

// ChainReader is the part of the explorer the monitor needs.
type ChainReader interface {
	GetTipHeight(ctx context.Context) (int64, error)
	GetTxStatus(ctx context.Context, txid string) (*explorer.TxStatus, error)
}

type FillMonitor struct {
	Chain         ChainReader
	Storage       btcaction.FillStorage
	Confirmations int64         // blocks including the one the fill is in
	Interval      time.Duration // between two scans
	Publisher     *PublisherService
}

func NewFillMonitor(chain ChainReader, storage btcaction.FillStorage, confirmations int64) *FillMonitor {
	if confirmations <= 0 {
		confirmations = DEFAULT_CONFIRMATIONS
	}
	return &FillMonitor{
		Chain:         chain,
		Storage:       storage,
		Confirmations: confirmations,
		Interval:      SCAN_INTERVAL,
		Publisher:     NewPublisherService(),
	}
}

// Scan represents a single round over the pending fills.
// It returns how many fills got confirmed.
// A failure on one fill does not stop the round, all failures are returned joined.
func (m *FillMonitor) Scan(ctx context.Context) (int, error) {
	pending, err := m.Storage.GetFillsByStatus(btcaction.FillPending)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending fills: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	var tip int64
	if m.Confirmations > 1 {
		if tip, err = m.Chain.GetTipHeight(ctx); err != nil {
			return 0, fmt.Errorf("failed to get tip height: %w", err)
		}
	}

	logger.WithFields(logger.Fields{
		"pending": len(pending),
		"tip":     tip,
	}).Debug("Scanning pending fills")

	var (
		confirmed int
		errs      []error
	)
	for _, fill := range pending {
		status, err := m.Chain.GetTxStatus(ctx, fill.TxHash)
		if errors.Is(err, explorer.ErrNotFound) {
			// not relayed to the explorer yet, or dropped from the mempool
			logger.WithField("btcTxId", fill.TxHash).Debug("fill unknown to the chain")
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("fill %s: %w", fill.TxHash, err))
			continue
		}
		if !status.Confirmed {
			continue
		}
		if m.Confirmations > 1 && tip-status.BlockHeight+1 < m.Confirmations {
			continue
		}

		b := &btcaction.Basic{
			BlockNumber: status.BlockHeight,
			BlockHash:   status.BlockHash,
			TxHash:      fill.TxHash,
		}
		if err := m.Storage.MarkConfirmed(fill.TxHash, b); err != nil {
			errs = append(errs, fmt.Errorf("fill %s: %w", fill.TxHash, err))
			continue
		}
		fill.Basic = *b
		fill.Status = btcaction.FillConfirmed
		confirmed++

		logger.WithFields(logger.Fields{
			"btcTxId":  fill.TxHash,
			"blockNum": status.BlockHeight,
			"borrower": fill.BorrowerAddress,
			"amount":   fill.Amount,
		}).Info("Fill confirmed")

		m.Publisher.NotifyConfirmed(ctx, fill)
	}
	return confirmed, errors.Join(errs...)
}

// Start scans until ctx is done.
func (m *FillMonitor) Start(ctx context.Context) error {
	interval := m.Interval
	if interval <= 0 {
		interval = SCAN_INTERVAL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.Scan(ctx); err != nil {
			logger.Warnf("Fill scan error: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

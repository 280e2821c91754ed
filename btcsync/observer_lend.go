package btcsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/lending-go/btcaction"
	"github.com/TEENet-io/lending-go/common"
	"github.com/TEENet-io/lending-go/retry"
	"github.com/TEENet-io/lending-go/spv"
)

var (
	ErrNoEvmBorrower = errors.New("fill has no evm borrower")
	ErrAlreadyLent   = errors.New("fill already lent")
)

const RESCAN_INTERVAL = time.Minute // confirmed fills whose lend() has not landed are retried

type Prover interface {
	Prove(ctx context.Context, txid string) (*spv.Proof, error)
}

// Lender is the part of the lending contract the observer calls.
type Lender interface {
	Lend(auth *bind.TransactOpts, borrower ethcommon.Address, tp spv.TransactionParams, blockHeader []byte) (*types.Transaction, error)
	WaitLightClient(ctx context.Context, height uint64, policy retry.Policy) error
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// LendObserver proves confirmed fills to the lending contract.
// With a Storage, a fill is marked lent once its lend() is mined,
// and confirmed fills that are not lent yet are picked up again every RescanInterval.
type LendObserver struct {
	Ch             chan btcaction.FillAction // communication channel
	Prover         Prover
	Lender         Lender
	Auth           *bind.TransactOpts
	Retry          retry.Policy          // waiting for the light client
	Storage        btcaction.FillStorage // optional
	RescanInterval time.Duration
}

func NewLendObserver(bufferSize int, prover Prover, lender Lender, auth *bind.TransactOpts, policy retry.Policy) *LendObserver {
	return &LendObserver{
		Ch:     make(chan btcaction.FillAction, bufferSize),
		Prover: prover,
		Lender: lender,
		Auth:   auth,
		Retry:  policy,

		RescanInterval: RESCAN_INTERVAL,
	}
}

// Handle calls lend() for one confirmed fill.
func (o *LendObserver) Handle(ctx context.Context, fill btcaction.FillAction) (*types.Transaction, error) {
	tx, _, err := o.lend(ctx, fill)
	return tx, err
}

func (o *LendObserver) lend(ctx context.Context, fill btcaction.FillAction) (*types.Transaction, *spv.Proof, error) {
	if !ethcommon.IsHexAddress(fill.EvmBorrower) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoEvmBorrower, fill.TxHash)
	}
	borrower := ethcommon.HexToAddress(fill.EvmBorrower)

	proof, err := o.Prover.Prove(ctx, fill.TxHash)
	if err != nil {
		return nil, nil, err
	}
	if err := o.Lender.WaitLightClient(ctx, proof.MerkleProof.BlockHeight, o.Retry); err != nil {
		return nil, nil, err
	}

	auth := *o.Auth
	auth.Context = ctx
	tx, err := o.Lender.Lend(&auth, borrower, proof.TransactionParams(), proof.BlockHeader)
	if err != nil {
		return nil, nil, err
	}
	return tx, proof, nil
}

// Process lends for a fill, waits for lend() to be mined and records it.
// A fill the storage already knows as lent is refused with ErrAlreadyLent.
func (o *LendObserver) Process(ctx context.Context, fill btcaction.FillAction) (*types.Transaction, error) {
	if o.Storage != nil {
		hits, err := o.Storage.GetFillByTxHash(fill.TxHash)
		if err != nil {
			return nil, err
		}
		if len(hits) > 0 && hits[0].Status == btcaction.FillLent {
			return nil, fmt.Errorf("%w: %s in %s", ErrAlreadyLent, fill.TxHash, hits[0].EvmTxHash)
		}
	}

	tx, proof, err := o.lend(ctx, fill)
	if err != nil {
		return nil, err
	}
	if _, err := o.Lender.WaitMined(ctx, tx); err != nil {
		return tx, err
	}

	if o.Storage != nil {
		if err := o.markLent(fill.TxHash, proof, tx); err != nil {
			return tx, err
		}
	}
	return tx, nil
}

// markLent records the proven block first, a fill proven before the monitor saw it is still pending.
// Fills proven by hand may not be in this log at all.
func (o *LendObserver) markLent(txHash string, proof *spv.Proof, tx *types.Transaction) error {
	b := &btcaction.Basic{
		BlockNumber: int64(proof.MerkleProof.BlockHeight),
		BlockHash:   proof.BlockHash,
		TxHash:      txHash,
	}
	err := o.Storage.MarkConfirmed(txHash, b)
	if err == nil {
		err = o.Storage.MarkLent(txHash, tx.Hash().Hex())
	}
	if errors.Is(err, btcaction.ErrFillNotFound) {
		return nil
	}
	return err
}

// Rescan processes the confirmed fills that are still not lent. It returns how many got lent.
func (o *LendObserver) Rescan(ctx context.Context) (int, error) {
	if o.Storage == nil {
		return 0, nil
	}
	confirmed, err := o.Storage.GetFillsByStatus(btcaction.FillConfirmed)
	if err != nil {
		return 0, err
	}

	lent := 0
	var errs []error
	for _, fill := range confirmed {
		if ctx.Err() != nil {
			return lent, ctx.Err()
		}
		if fill.EvmBorrower == "" {
			continue
		}
		if err := o.process(ctx, fill); err != nil {
			errs = append(errs, fmt.Errorf("fill %s: %w", fill.TxHash, err))
			continue
		}
		lent++
	}
	return lent, errors.Join(errs...)
}

func (o *LendObserver) process(ctx context.Context, fill btcaction.FillAction) error {
	tx, err := o.Process(ctx, fill)
	if errors.Is(err, ErrAlreadyLent) {
		logger.WithField("btcTxId", common.Shorten(fill.TxHash, 8)).Debug("Fill already lent, skip.")
		return err
	}
	if err != nil {
		logger.WithField("btcTxId", common.Shorten(fill.TxHash, 8)).Warnf("lend failed: %v", err)
		return err
	}
	logger.WithFields(logger.Fields{
		"btcTxId": common.Shorten(fill.TxHash, 8),
		"evmTx":   common.Shorten(tx.Hash().Hex(), 8),
	}).Info("Fill proven to lending contract")
	return nil
}

func (o *LendObserver) catchUp(ctx context.Context) {
	n, err := o.Rescan(ctx)
	if n > 0 {
		logger.WithField("lent", n).Info("Lent confirmed fills from the log")
	}
	if err != nil {
		logger.Debugf("rescan: %v", err)
	}
}

// Run handles fills from Ch until ctx is done.
// With a Storage it first catches up on confirmed fills, then rescans them on a ticker.
func (o *LendObserver) Run(ctx context.Context) {
	var rescan <-chan time.Time
	if o.Storage != nil {
		interval := o.RescanInterval
		if interval <= 0 {
			interval = RESCAN_INTERVAL
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		rescan = ticker.C

		o.catchUp(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case fill := <-o.Ch:
			o.process(ctx, fill)
		case <-rescan:
			o.catchUp(ctx)
		}
	}
}

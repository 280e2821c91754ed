package btcsync

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"

	"github.com/TEENet-io/lending-go/btcaction"
	"github.com/TEENet-io/lending-go/btcman/rawtx"
	"github.com/TEENet-io/lending-go/retry"
	"github.com/TEENet-io/lending-go/spv"
)

const evmBorrower = "0x8ddF05F9A5c488b4973897E278B58895bF87Cb24"

type fakeProver struct {
	err error
}

func (p *fakeProver) Prove(ctx context.Context, txid string) (*spv.Proof, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &spv.Proof{
		TxID:        txid,
		Segments:    &rawtx.Segments{Version: [4]byte{2}, Vin: []byte{0}, Vout: []byte{0}},
		MerkleProof: &spv.MerkleProof{IntermediateNodes: make([]byte, 32), Index: 1, BlockHeight: 150},
		BlockHeader: make([]byte, 80),
	}, nil
}

type lendCall struct {
	borrower ethcommon.Address
	tp       spv.TransactionParams
	header   []byte
}

type fakeLender struct {
	mu       sync.Mutex
	waited   []uint64
	calls    chan lendCall
	failures int   // the next Lend calls that fail
	mineErr  error // every WaitMined fails with it
}

var errLendDown = errors.New("evm node down")

func (l *fakeLender) Lend(auth *bind.TransactOpts, borrower ethcommon.Address, tp spv.TransactionParams, blockHeader []byte) (*types.Transaction, error) {
	l.mu.Lock()
	if l.failures > 0 {
		l.failures--
		l.mu.Unlock()
		return nil, errLendDown
	}
	l.mu.Unlock()
	l.calls <- lendCall{borrower, tp, blockHeader}
	return types.NewTx(&types.LegacyTx{Nonce: uint64(len(l.calls))}), nil
}

func (l *fakeLender) WaitLightClient(ctx context.Context, height uint64, policy retry.Policy) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waited = append(l.waited, height)
	return nil
}

func (l *fakeLender) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mineErr != nil {
		return nil, l.mineErr
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: tx.Hash()}, nil
}

func newLendObserver(prover Prover) (*LendObserver, *fakeLender) {
	lender := &fakeLender{calls: make(chan lendCall, CHANNEL_BUFFER_SIZE)}
	return NewLendObserver(CHANNEL_BUFFER_SIZE, prover, lender, &bind.TransactOpts{}, retry.Policy{}), lender
}

func TestLendObserverHandle(t *testing.T) {
	o, lender := newLendObserver(&fakeProver{})

	fill := btcaction.FillAction{Basic: btcaction.Basic{TxHash: txA}, EvmBorrower: evmBorrower}
	tx, err := o.Handle(context.Background(), fill)
	assert.NoError(t, err)
	assert.NotNil(t, tx)
	assert.Equal(t, []uint64{150}, lender.waited)

	call := <-lender.calls
	assert.Equal(t, ethcommon.HexToAddress(evmBorrower), call.borrower)
	assert.Equal(t, big.NewInt(150), call.tp.BlockHeight)
	assert.Equal(t, big.NewInt(1), call.tp.Index)
	assert.Len(t, call.header, 80)
}

func TestLendObserverRejects(t *testing.T) {
	o, lender := newLendObserver(&fakeProver{})
	_, err := o.Handle(context.Background(), btcaction.FillAction{Basic: btcaction.Basic{TxHash: txA}})
	assert.ErrorIs(t, err, ErrNoEvmBorrower)

	_, err = o.Handle(context.Background(), btcaction.FillAction{Basic: btcaction.Basic{TxHash: txA}, EvmBorrower: "bcrt1q"})
	assert.ErrorIs(t, err, ErrNoEvmBorrower)

	o.Prover = &fakeProver{err: spv.ErrNotConfirmed}
	_, err = o.Handle(context.Background(), btcaction.FillAction{Basic: btcaction.Basic{TxHash: txA}, EvmBorrower: evmBorrower})
	assert.True(t, errors.Is(err, spv.ErrNotConfirmed))
	assert.Empty(t, lender.waited)
	assert.Len(t, lender.calls, 0)
}

func TestLendObserverRun(t *testing.T) {
	o, lender := newLendObserver(&fakeProver{})

	p := NewPublisherService()
	p.RegisterConfirmedObserver(o.Ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	p.NotifyConfirmed(ctx, btcaction.FillAction{Basic: btcaction.Basic{TxHash: txB}}) // no evm borrower, skipped
	p.NotifyConfirmed(ctx, btcaction.FillAction{Basic: btcaction.Basic{TxHash: txA}, EvmBorrower: evmBorrower})

	select {
	case call := <-lender.calls:
		assert.Equal(t, ethcommon.HexToAddress(evmBorrower), call.borrower)
	case <-time.After(2 * time.Second):
		t.Fatal("lend not called")
	}
}

// newLentStorage holds txid confirmed at height 150 for the evm borrower.
func newLentStorage(t *testing.T, txids ...string) *btcaction.SQLiteFillStorage {
	st := newStorage(t)
	for _, txid := range txids {
		if err := st.AddFill(btcaction.FillAction{Basic: btcaction.Basic{TxHash: txid}, EvmBorrower: evmBorrower, Amount: 700}); err != nil {
			t.Fatalf("cannot add fill: %v", err)
		}
		if err := st.MarkConfirmed(txid, &btcaction.Basic{BlockNumber: 150, BlockHash: "00ff"}); err != nil {
			t.Fatalf("cannot confirm fill: %v", err)
		}
	}
	return st
}

func fillStatus(t *testing.T, st btcaction.FillStorage, txid string) btcaction.FillAction {
	fills, err := st.GetFillByTxHash(txid)
	if err != nil || len(fills) != 1 {
		t.Fatalf("fill %s: have %d fills, err %v", txid, len(fills), err)
	}
	return fills[0]
}

func TestLendObserverProcessMarksLent(t *testing.T) {
	o, lender := newLendObserver(&fakeProver{})
	st := newLentStorage(t, txA)
	o.Storage = st

	fill := btcaction.FillAction{Basic: btcaction.Basic{TxHash: txA}, EvmBorrower: evmBorrower}
	tx, err := o.Process(context.Background(), fill)
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	got := fillStatus(t, st, txA)
	assert.Equal(t, btcaction.FillLent, got.Status)
	assert.Equal(t, tx.Hash().Hex(), got.EvmTxHash)
	assert.Len(t, lender.calls, 1)

	// a second delivery does not lend again
	_, err = o.Process(context.Background(), fill)
	assert.ErrorIs(t, err, ErrAlreadyLent)
	assert.Len(t, lender.calls, 1)
}

func TestLendObserverProcessPendingFill(t *testing.T) {
	o, _ := newLendObserver(&fakeProver{})
	st := newStorage(t)
	assert.NoError(t, st.AddFill(btcaction.FillAction{Basic: btcaction.Basic{TxHash: txA}, EvmBorrower: evmBorrower}))
	o.Storage = st

	// proven before the monitor confirmed it, the proof block is recorded
	_, err := o.Process(context.Background(), btcaction.FillAction{Basic: btcaction.Basic{TxHash: txA}, EvmBorrower: evmBorrower})
	assert.NoError(t, err)
	got := fillStatus(t, st, txA)
	assert.Equal(t, btcaction.FillLent, got.Status)
	assert.Equal(t, int64(150), got.BlockNumber)

	// a fill this log never saw is lent all the same
	_, err = o.Process(context.Background(), btcaction.FillAction{Basic: btcaction.Basic{TxHash: txC}, EvmBorrower: evmBorrower})
	assert.NoError(t, err)
}

func TestLendObserverRevertedLendStaysConfirmed(t *testing.T) {
	o, lender := newLendObserver(&fakeProver{})
	lender.mineErr = errors.New("lend reverted")
	st := newLentStorage(t, txA)
	o.Storage = st

	tx, err := o.Process(context.Background(), btcaction.FillAction{Basic: btcaction.Basic{TxHash: txA}, EvmBorrower: evmBorrower})
	assert.Error(t, err)
	assert.NotNil(t, tx)
	assert.Equal(t, btcaction.FillConfirmed, fillStatus(t, st, txA).Status)
}

func TestLendObserverRescanRetriesFailedLend(t *testing.T) {
	o, lender := newLendObserver(&fakeProver{})
	lender.failures = 1
	st := newLentStorage(t, txA)
	assert.NoError(t, st.AddFill(btcaction.FillAction{Basic: btcaction.Basic{TxHash: txB}})) // no evm borrower
	assert.NoError(t, st.MarkConfirmed(txB, &btcaction.Basic{BlockNumber: 150}))
	assert.NoError(t, st.AddFill(btcaction.FillAction{Basic: btcaction.Basic{TxHash: txC}, EvmBorrower: evmBorrower})) // pending
	o.Storage = st

	// the first lend() fails after confirmation
	n, err := o.Rescan(context.Background())
	assert.ErrorIs(t, err, errLendDown)
	assert.Equal(t, 0, n)
	assert.Equal(t, btcaction.FillConfirmed, fillStatus(t, st, txA).Status)

	n, err = o.Rescan(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, btcaction.FillLent, fillStatus(t, st, txA).Status)
	assert.Equal(t, btcaction.FillConfirmed, fillStatus(t, st, txB).Status)
	assert.Equal(t, btcaction.FillPending, fillStatus(t, st, txC).Status)

	// nothing left
	n, err = o.Rescan(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, lender.calls, 1)
}

func TestLendObserverRunRescans(t *testing.T) {
	o, lender := newLendObserver(&fakeProver{})
	lender.failures = 2 // startup catch-up and first tick fail
	st := newLentStorage(t, txA)
	o.Storage = st
	o.RescanInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()

	select {
	case <-lender.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("failed lend never retried")
	}
	assert.Eventually(t, func() bool {
		lent, err := st.GetFillsByStatus(btcaction.FillLent)
		return err == nil && len(lent) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("observer did not stop")
	}
}

package btcaction

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const (
	txA = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"
	txB = "0e3e2357e806b6cdb1f70b54c3a3a17b6714ee1f0e68bebb44a74b1efd512098"
	txC = "9b0fc92260312ce44e74ef369f5c66bbb85848f2eddd5a7a1cde251e54ccfdd5"

	borrower = "bcrt1qborrower"
)

func newTestStorage(t *testing.T) *SQLiteFillStorage {
	st, err := NewSQLiteFillStorage(filepath.Join(t.TempDir(), "fill.db"))
	if err != nil {
		t.Fatalf("cannot create storage: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestAddAndGetFill(t *testing.T) {
	st := newTestStorage(t)

	created := time.Unix(1700000000, 0)
	err := st.AddFill(FillAction{
		Basic:           Basic{TxHash: txA},
		CreatedAt:       created,
		BorrowerAddress: borrower,
		LenderAddress:   "bcrt1qlender",
		Amount:          700,
		EvmBorrower:     "0x00000000000000000000000000000000000000aa",
	})
	assert.NoError(t, err)

	fills, err := st.GetFillByTxHash(txA)
	assert.NoError(t, err)
	if len(fills) != 1 {
		t.Fatalf("have %d fills, want 1", len(fills))
	}
	f := fills[0]
	assert.Equal(t, FillPending, f.Status)
	assert.Equal(t, created.Unix(), f.CreatedAt.Unix())
	assert.Equal(t, borrower, f.BorrowerAddress)
	assert.Equal(t, "bcrt1qlender", f.LenderAddress)
	assert.Equal(t, int64(700), f.Amount)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", f.EvmBorrower)
	assert.Equal(t, int64(0), f.BlockNumber)

	none, err := st.GetFillByTxHash(txB)
	assert.NoError(t, err)
	assert.Empty(t, none)
}

func TestAddFillTwiceIsNoop(t *testing.T) {
	st := newTestStorage(t)

	assert.NoError(t, st.AddFill(FillAction{Basic: Basic{TxHash: txA}, Amount: 700}))
	assert.NoError(t, st.AddFill(FillAction{Basic: Basic{TxHash: txA}, Amount: 900}))

	fills, err := st.ListFills(0)
	assert.NoError(t, err)
	assert.Len(t, fills, 1)
	assert.Equal(t, int64(700), fills[0].Amount)
	assert.False(t, fills[0].CreatedAt.IsZero())
}

func TestMarkConfirmed(t *testing.T) {
	st := newTestStorage(t)
	assert.NoError(t, st.AddFill(FillAction{Basic: Basic{TxHash: txA}, BorrowerAddress: borrower}))
	assert.NoError(t, st.AddFill(FillAction{Basic: Basic{TxHash: txB}, BorrowerAddress: borrower}))

	err := st.MarkConfirmed(txA, &Basic{BlockNumber: 150, BlockHash: "00ab"})
	assert.NoError(t, err)

	pending, err := st.GetFillsByStatus(FillPending)
	assert.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Equal(t, txB, pending[0].TxHash)

	confirmed, err := st.GetFillsByStatus(FillConfirmed)
	assert.NoError(t, err)
	assert.Len(t, confirmed, 1)
	assert.Equal(t, int64(150), confirmed[0].BlockNumber)
	assert.Equal(t, "00ab", confirmed[0].BlockHash)

	// a second confirmation does not move the block
	assert.NoError(t, st.MarkConfirmed(txA, &Basic{BlockNumber: 151, BlockHash: "00cd"}))
	fills, _ := st.GetFillByTxHash(txA)
	assert.Equal(t, int64(150), fills[0].BlockNumber)

	assert.ErrorIs(t, st.MarkConfirmed(txC, &Basic{BlockNumber: 1}), ErrFillNotFound)
}

func TestMarkLent(t *testing.T) {
	st := newTestStorage(t)
	assert.NoError(t, st.AddFill(FillAction{Basic: Basic{TxHash: txA}, BorrowerAddress: borrower}))
	assert.NoError(t, st.AddFill(FillAction{Basic: Basic{TxHash: txB}, BorrowerAddress: borrower}))

	// lending needs a confirmed fill
	assert.ErrorIs(t, st.MarkLent(txA, "0x01"), ErrFillNotConfirmed)
	assert.ErrorIs(t, st.MarkLent(txC, "0x01"), ErrFillNotFound)

	assert.NoError(t, st.MarkConfirmed(txA, &Basic{BlockNumber: 150, BlockHash: "00ab"}))
	assert.NoError(t, st.MarkConfirmed(txB, &Basic{BlockNumber: 150, BlockHash: "00ab"}))
	assert.NoError(t, st.MarkLent(txA, "0x01"))

	lent, err := st.GetFillsByStatus(FillLent)
	assert.NoError(t, err)
	if len(lent) != 1 {
		t.Fatalf("have %d lent fills, want 1", len(lent))
	}
	assert.Equal(t, txA, lent[0].TxHash)
	assert.Equal(t, "0x01", lent[0].EvmTxHash)
	assert.Equal(t, int64(150), lent[0].BlockNumber)

	// the first lend() tx is kept
	assert.NoError(t, st.MarkLent(txA, "0x02"))
	fills, _ := st.GetFillByTxHash(txA)
	assert.Equal(t, "0x01", fills[0].EvmTxHash)

	// lent fills are not confirmed again
	assert.NoError(t, st.MarkConfirmed(txA, &Basic{BlockNumber: 151}))
	fills, _ = st.GetFillByTxHash(txA)
	assert.Equal(t, FillLent, fills[0].Status)

	confirmed, err := st.GetFillsByStatus(FillConfirmed)
	assert.NoError(t, err)
	assert.Len(t, confirmed, 1)
	assert.Equal(t, txB, confirmed[0].TxHash)
}

func TestStorageUpgradesOldTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fill.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec(`CREATE TABLE btc_action_fill (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		block_number INTEGER DEFAULT 0,
		block_hash TEXT DEFAULT '',
		tx_hash TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		borrower_address TEXT,
		lender_address TEXT,
		amount INTEGER,
		evm_borrower TEXT DEFAULT ''
	);
	INSERT INTO btc_action_fill (tx_hash, status, created_at, borrower_address, lender_address, amount)
		VALUES ('` + txA + `', 'confirmed', 1700000000, 'bcrt1qborrower', 'bcrt1qlender', 700);`)
	if err != nil {
		t.Fatalf("cannot create old table: %v", err)
	}
	db.Close()

	st, err := NewSQLiteFillStorage(path)
	if err != nil {
		t.Fatalf("cannot open old table: %v", err)
	}
	defer st.Close()

	fills, err := st.GetFillByTxHash(txA)
	assert.NoError(t, err)
	assert.Len(t, fills, 1)
	assert.Equal(t, "", fills[0].EvmTxHash)
	assert.NoError(t, st.MarkLent(txA, "0x03"))
}

func TestListFillsAndBorrower(t *testing.T) {
	st := newTestStorage(t)
	assert.NoError(t, st.AddFill(FillAction{Basic: Basic{TxHash: txA}, BorrowerAddress: borrower}))
	assert.NoError(t, st.AddFill(FillAction{Basic: Basic{TxHash: txB}, BorrowerAddress: "bcrt1qother"}))
	assert.NoError(t, st.AddFill(FillAction{Basic: Basic{TxHash: txC}, BorrowerAddress: borrower}))

	all, err := st.ListFills(0)
	assert.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, txC, all[0].TxHash)

	recent, err := st.ListFills(2)
	assert.NoError(t, err)
	assert.Len(t, recent, 2)
	assert.Equal(t, txB, recent[1].TxHash)

	mine, err := st.GetFillsByBorrower(borrower)
	assert.NoError(t, err)
	assert.Len(t, mine, 2)
	assert.Equal(t, txA, mine[0].TxHash)
	assert.Equal(t, txC, mine[1].TxHash)
}

func TestStorageReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fill.db")
	st, err := NewSQLiteFillStorage(path)
	assert.NoError(t, err)
	assert.NoError(t, st.AddFill(FillAction{Basic: Basic{TxHash: txA}}))
	assert.NoError(t, st.Close())

	st, err = NewSQLiteFillStorage(path)
	assert.NoError(t, err)
	defer st.Close()
	fills, err := st.GetFillByTxHash(txA)
	assert.NoError(t, err)
	assert.Len(t, fills, 1)
}

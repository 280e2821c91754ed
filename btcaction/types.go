package btcaction

import "time"

type Basic struct {
	BlockNumber int64
	BlockHash   string
	TxHash      string
}

type FillStatus string

const (
	FillPending   FillStatus = "pending"   // broadcast, not in a block yet
	FillConfirmed FillStatus = "confirmed" // mined, ready to be proven on the evm side
	FillLent      FillStatus = "lent"      // lend() mined on the evm side
)

// FillAction is a borrow intent filled by a lender and broadcast to BTC.
// TxHash is the txid of the fill transaction, BlockNumber/BlockHash are set on confirmation.
type FillAction struct {
	Basic
	Status          FillStatus
	CreatedAt       time.Time
	BorrowerAddress string // on btc, receives the loan
	LenderAddress   string // on btc, funds the loan
	Amount          int64  // in satoshi
	EvmBorrower     string // 0x... the lend() call is made for, may be empty
	EvmTxHash       string // the mined lend() tx, set with FillLent
}

// FillStorage is an append-only log of fills.
// Only the status, the block fields and EvmTxHash of a fill change after it is added.
// Status only moves forward: pending, confirmed, lent.
type FillStorage interface {
	// AddFill adds a new FillAction, adding the same TxHash twice is a no-op.
	AddFill(fill FillAction) error

	// GetFillByTxHash queries FillAction by TxHash.
	GetFillByTxHash(txHash string) ([]FillAction, error)

	// GetFillsByStatus queries FillAction by Status, oldest first.
	GetFillsByStatus(status FillStatus) ([]FillAction, error)

	// GetFillsByBorrower queries FillAction by BorrowerAddress.
	GetFillsByBorrower(borrower string) ([]FillAction, error)

	// MarkConfirmed flips a pending fill to confirmed and records its block.
	MarkConfirmed(txHash string, b *Basic) error

	// MarkLent flips a confirmed fill to lent and records the lend() tx.
	MarkLent(txHash string, evmTxHash string) error

	// ListFills returns the most recent fills, newest first. limit <= 0 means all.
	ListFills(limit int) ([]FillAction, error)
}

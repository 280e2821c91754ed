package etherman

import "math/big"

// BorrowRequest as stored by the lending contract, one per borrower.
type BorrowRequest struct {
	Amount       *big.Int // sats
	Collateral   *big.Int
	InterestRate *big.Int // basis points
	BtcAddress   []byte   // utf8 of the borrower's bitcoin address
	SignedPsbt   []byte   // serialized psbt signed by the borrower
	Active       bool
}

func (r *BorrowRequest) BtcAddressString() string {
	return string(r.BtcAddress)
}

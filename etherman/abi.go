package etherman

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/TEENet-io/lending-go/spv"
)

const LendingABI = `[
	{"type":"function","name":"requestBorrow","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"amount","type":"uint256"},
		{"name":"interestRate","type":"uint256"},
		{"name":"btcAddress","type":"bytes"},
		{"name":"signedPsbt","type":"bytes"}],
	 "outputs":[]},
	{"type":"function","name":"lend","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"borrower","type":"address"},
		{"name":"lendTp","type":"tuple","components":[
			{"name":"version","type":"bytes4"},
			{"name":"vin","type":"bytes"},
			{"name":"vout","type":"bytes"},
			{"name":"locktime","type":"bytes4"},
			{"name":"intermediateNodes","type":"bytes"},
			{"name":"blockHeight","type":"uint256"},
			{"name":"index","type":"uint256"}]},
		{"name":"blockHeader","type":"bytes"}],
	 "outputs":[]},
	{"type":"function","name":"borrowRequests","stateMutability":"view",
	 "inputs":[{"name":"borrower","type":"address"}],
	 "outputs":[
		{"name":"amount","type":"uint256"},
		{"name":"collateral","type":"uint256"},
		{"name":"interestRate","type":"uint256"},
		{"name":"btcAddress","type":"bytes"},
		{"name":"signedPsbt","type":"bytes"},
		{"name":"active","type":"bool"}]}
]`

const LightClientABI = `[
	{"type":"function","name":"blockNumber","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

var (
	lendingABI     abi.ABI
	lightClientABI abi.ABI

	ErrInvalidAmount = errors.New("amount must be positive")
)

func init() {
	var err error
	if lendingABI, err = abi.JSON(strings.NewReader(LendingABI)); err != nil {
		panic(err)
	}
	if lightClientABI, err = abi.JSON(strings.NewReader(LightClientABI)); err != nil {
		panic(err)
	}
}

// PackRequestBorrow returns the calldata of requestBorrow.
// The interest rate is in basis points.
func PackRequestBorrow(amount *big.Int, rateBps *big.Int, btcAddress string, signedPsbt []byte) ([]byte, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return lendingABI.Pack("requestBorrow", amount, rateBps, []byte(btcAddress), signedPsbt)
}

// PackLend returns the calldata of lend.
// Its arguments are encoded exactly like spv.EncodeProof.
func PackLend(borrower ethcommon.Address, tp spv.TransactionParams, blockHeader []byte) ([]byte, error) {
	return lendingABI.Pack("lend", borrower, tp, blockHeader)
}

// UnpackBorrowRequest decodes the return data of borrowRequests.
func UnpackBorrowRequest(data []byte) (*BorrowRequest, error) {
	values, err := lendingABI.Unpack("borrowRequests", data)
	if err != nil {
		return nil, err
	}
	return borrowRequestFromValues(values)
}

func borrowRequestFromValues(values []interface{}) (*BorrowRequest, error) {
	if len(values) != 6 {
		return nil, fmt.Errorf("borrowRequests returned %d values, want 6", len(values))
	}
	req := &BorrowRequest{}
	var ok bool
	if req.Amount, ok = values[0].(*big.Int); !ok {
		return nil, fmt.Errorf("amount has type %T", values[0])
	}
	if req.Collateral, ok = values[1].(*big.Int); !ok {
		return nil, fmt.Errorf("collateral has type %T", values[1])
	}
	if req.InterestRate, ok = values[2].(*big.Int); !ok {
		return nil, fmt.Errorf("interestRate has type %T", values[2])
	}
	if req.BtcAddress, ok = values[3].([]byte); !ok {
		return nil, fmt.Errorf("btcAddress has type %T", values[3])
	}
	if req.SignedPsbt, ok = values[4].([]byte); !ok {
		return nil, fmt.Errorf("signedPsbt has type %T", values[4])
	}
	if req.Active, ok = values[5].(bool); !ok {
		return nil, fmt.Errorf("active has type %T", values[5])
	}
	return req, nil
}

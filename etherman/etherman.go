package etherman

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/lending-go/retry"
	"github.com/TEENet-io/lending-go/spv"
)

var (
	ErrTxReverted        = errors.New("transaction reverted")
	ErrLightClientBehind = errors.New("light client behind proof height")
)

type ethereumClient interface {
	ethereum.ChainReader
	ethereum.ChainStateReader
	ethereum.ContractCaller
	ethereum.GasEstimator
	ethereum.GasPricer
	ethereum.LogFilterer
	ethereum.TransactionReader
	ethereum.TransactionSender

	bind.DeployBackend
	bind.ContractBackend
}

type Etherman struct {
	ethClient          ethereumClient
	lendingAddress     ethcommon.Address
	lightClientAddress ethcommon.Address
	lending            *bind.BoundContract
	lightClient        *bind.BoundContract
}

func NewEtherman(cfg *Config) (*Etherman, error) {
	ethClient, err := ethclient.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}
	return NewEthermanWithClient(ethClient, cfg), nil
}

// NewEthermanWithClient binds the contracts on an already connected client.
func NewEthermanWithClient(client ethereumClient, cfg *Config) *Etherman {
	lightClientAddress := cfg.lightClient()
	return &Etherman{
		ethClient:          client,
		lendingAddress:     cfg.LendingContractAddress,
		lightClientAddress: lightClientAddress,
		lending:            bind.NewBoundContract(cfg.LendingContractAddress, lendingABI, client, client, client),
		lightClient:        bind.NewBoundContract(lightClientAddress, lightClientABI, client, client, client),
	}
}

func (etherman *Etherman) LendingAddress() ethcommon.Address {
	return etherman.lendingAddress
}

// RequestBorrow publishes a borrow intent: the borrower's psbt and the btc address
// the loan goes to.
func (etherman *Etherman) RequestBorrow(
	auth *bind.TransactOpts,
	amount *big.Int,
	rateBps *big.Int,
	btcAddress string,
	signedPsbt []byte,
) (*types.Transaction, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	tx, err := etherman.lending.Transact(auth, "requestBorrow", amount, rateBps, []byte(btcAddress), signedPsbt)
	if err != nil {
		return nil, fmt.Errorf("requestBorrow: %w", err)
	}
	logger.WithFields(logger.Fields{
		"from":   auth.From.Hex(),
		"amount": amount,
		"rate":   rateBps,
		"tx":     tx.Hash().Hex(),
	}).Info("borrow request sent")
	return tx, nil
}

// Lend proves a fill to the contract.
func (etherman *Etherman) Lend(
	auth *bind.TransactOpts,
	borrower ethcommon.Address,
	tp spv.TransactionParams,
	blockHeader []byte,
) (*types.Transaction, error) {
	tx, err := etherman.lending.Transact(auth, "lend", borrower, tp, blockHeader)
	if err != nil {
		return nil, fmt.Errorf("lend: %w", err)
	}
	logger.WithFields(logger.Fields{
		"from":     auth.From.Hex(),
		"borrower": borrower.Hex(),
		"height":   tp.BlockHeight,
		"tx":       tx.Hash().Hex(),
	}).Info("lend sent")
	return tx, nil
}

func (etherman *Etherman) GetBorrowRequest(ctx context.Context, borrower ethcommon.Address) (*BorrowRequest, error) {
	var out []interface{}
	if err := etherman.lending.Call(&bind.CallOpts{Context: ctx}, &out, "borrowRequests", borrower); err != nil {
		return nil, fmt.Errorf("borrowRequests(%s): %w", borrower.Hex(), err)
	}
	return borrowRequestFromValues(out)
}

// LightClientBlockNumber is the highest bitcoin block the light client knows.
func (etherman *Etherman) LightClientBlockNumber(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := etherman.lightClient.Call(&bind.CallOpts{Context: ctx}, &out, "blockNumber"); err != nil {
		return nil, fmt.Errorf("light client blockNumber: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("blockNumber returned %d values", len(out))
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("blockNumber has type %T", out[0])
	}
	return n, nil
}

// WaitLightClient blocks until the light client reached height.
// Lend against a block the light client has not seen reverts.
func (etherman *Etherman) WaitLightClient(ctx context.Context, height uint64, policy retry.Policy) error {
	want := new(big.Int).SetUint64(height)
	_, err := retry.Do(ctx, policy, "light client height", func(ctx context.Context) (*big.Int, error) {
		n, err := etherman.LightClientBlockNumber(ctx)
		if err != nil {
			return nil, err
		}
		if n.Cmp(want) < 0 {
			return nil, fmt.Errorf("%w: at %v, want %v", ErrLightClientBehind, n, want)
		}
		return n, nil
	})
	return err
}

// WaitMined waits for the receipt of tx and fails on a reverted one.
func (etherman *Etherman) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, etherman.ethClient, tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrTxReverted, tx.Hash().Hex())
	}
	return receipt, nil
}

// HasCode tells whether a contract is deployed at addr.
func (etherman *Etherman) HasCode(ctx context.Context, addr ethcommon.Address) (bool, error) {
	code, err := etherman.ethClient.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

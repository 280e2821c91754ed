package etherman

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	logger "github.com/sirupsen/logrus"
)

// LendingChain is a connection to a real EVM network with a deployed lending
// contract and an account able to pay for requestBorrow and lend.
type LendingChain struct {
	RpcClient *ethclient.Client  // work with the evm chain
	ChainId   *big.Int           // chain id of the network
	Account   *bind.TransactOpts // signs requestBorrow() or lend()
	Etherman  *Etherman
}

func NewLendingChain(ctx context.Context, cfg *Config, privKey *ecdsa.PrivateKey) (*LendingChain, error) {
	client, err := ethclient.DialContext(ctx, cfg.URL)
	if err != nil {
		logger.Errorf("Failed to connect to the evm client: %v", err)
		return nil, err
	}

	chainId, err := client.ChainID(ctx)
	if err != nil {
		logger.Errorf("Failed to get chain id: %v", err)
		return nil, err
	}

	account, err := NewAuth(privKey, chainId)
	if err != nil {
		return nil, err
	}

	// check the exist of smart contract on this address
	code, err := client.CodeAt(ctx, cfg.LendingContractAddress, nil)
	if err != nil {
		logger.Errorf("[evm] Failed to get code at address: %s %v", cfg.LendingContractAddress.Hex(), err)
		return nil, err
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("[evm] address %s doesn't contain smart contract", cfg.LendingContractAddress.Hex())
	}

	logger.WithFields(logger.Fields{
		"chain_id": chainId,
		"account":  account.From.Hex(),
		"lending":  cfg.LendingContractAddress.Hex(),
	}).Info("connected to lending chain")

	return &LendingChain{
		RpcClient: client,
		ChainId:   chainId,
		Account:   account,
		Etherman:  NewEthermanWithClient(client, cfg),
	}, nil
}

func (c *LendingChain) Address() common.Address {
	return c.Account.From
}

package etherman

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
)

// StringToPrivateKey parses a hex private key, with or without 0x.
func StringToPrivateKey(hexStr string) (*ecdsa.PrivateKey, error) {
	sk, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexStr), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid evm private key: %w", err)
	}
	return sk, nil
}

func NewAuth(sk *ecdsa.PrivateKey, chainId *big.Int) (*bind.TransactOpts, error) {
	return bind.NewKeyedTransactorWithChainID(sk, chainId)
}

package assembler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
)

var (
	ErrUnsupportedScript = errors.New("unsupported locking script")
	ErrNotOwner          = errors.New("input is not owned by signer")
	ErrMissingPrevOut    = errors.New("input has no previous output attached")
	ErrNoBroadcaster     = errors.New("signer has no broadcaster")
	ErrUnknownChain      = errors.New("unknown bitcoin network")
)

// DecodeWIF decodes a string private key to *btcutil.WIF
func DecodeWIF(privKeyStr string) (*btcutil.WIF, error) {
	decoded := base58.Decode(privKeyStr)
	if len(decoded) == 0 {
		return nil, errors.New("invalid private key string (cannot pass base58 decode)")
	}

	wif, err := btcutil.DecodeWIF(privKeyStr)
	if err != nil {
		return nil, err
	}

	return wif, nil
}

// Decode Address decodes a string address to btcutil.Address
// and makes sure it belongs to the given network.
func DecodeAddress(addressStr string, network *chaincfg.Params) (btcutil.Address, error) {
	address, err := btcutil.DecodeAddress(addressStr, network)
	if err != nil {
		return nil, err
	}
	if !address.IsForNet(network) {
		return nil, errors.New("address " + addressStr + " is not for network " + network.Name)
	}
	return address, nil
}

func GetMainnetParams() *chaincfg.Params {
	return &chaincfg.MainNetParams
}

func GetTestnetParams() *chaincfg.Params {
	return &chaincfg.TestNet3Params
}

func GetSignetParams() *chaincfg.Params {
	return &chaincfg.SigNetParams
}

func GetRegtestParams() *chaincfg.Params {
	return &chaincfg.RegressionNetParams
}

// ParamsByName maps "mainnet", "testnet", "signet", "regtest" to chain params.
// An empty name means regtest, anything else unknown is an error.
func ParamsByName(name string) (*chaincfg.Params, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mainnet":
		return GetMainnetParams(), nil
	case "testnet", "testnet3":
		return GetTestnetParams(), nil
	case "signet":
		return GetSignetParams(), nil
	case "regtest", "":
		return GetRegtestParams(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChain, name)
	}
}

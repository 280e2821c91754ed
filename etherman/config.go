package etherman

import "github.com/ethereum/go-ethereum/common"

// Citrea system contract holding the bitcoin light client.
const DEFAULT_LIGHT_CLIENT_ADDRESS = "0x3100000000000000000000000000000000000001"

type Config struct {
	// URL is the URL of the EVM node
	URL string

	// LendingContractAddress is the deployed lending contract address
	LendingContractAddress common.Address

	// LightClientAddress is the bitcoin light client, zero value means the Citrea default
	LightClientAddress common.Address
}

func (cfg *Config) lightClient() common.Address {
	if cfg.LightClientAddress == (common.Address{}) {
		return common.HexToAddress(DEFAULT_LIGHT_CLIENT_ADDRESS)
	}
	return cfg.LightClientAddress
}

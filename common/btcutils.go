package common

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// IsValidBtcAddress also rejects addresses of another network.
func IsValidBtcAddress(address string, cfg *chaincfg.Params) bool {
	addr, err := btcutil.DecodeAddress(address, cfg)
	if err != nil {
		return false
	}
	return addr.IsForNet(cfg)
}

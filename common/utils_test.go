package common

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
)

func TestShorten(t *testing.T) {
	txid := "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"
	assert.Equal(t, "4a5e1e4b...fdeda33b", Shorten(txid, 8))
	assert.Equal(t, "0x4a5e...a33b", Shorten("0x"+txid, 4))
	assert.Equal(t, "0xabcd", Shorten("0xabcd", 4))
	assert.Equal(t, "abcd", Shorten("abcd", 2))
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "abcd", Trim0xPrefix("0Xabcd"))
	assert.Equal(t, "0xabcd", Prepend0xPrefix("abcd"))
	assert.Equal(t, "0xabcd", Prepend0xPrefix("0xabcd"))
}

func TestRandEthAddress(t *testing.T) {
	a, b := RandEthAddress(), RandEthAddress()
	assert.NotEqual(t, a, b)
	assert.Len(t, RandBytes(32), 32)
}

func TestIsValidBtcAddress(t *testing.T) {
	regtest, err := btcutil.NewAddressWitnessPubKeyHash(make([]byte, 20), &chaincfg.RegressionNetParams)
	assert.NoError(t, err)
	mainnet, err := btcutil.NewAddressWitnessPubKeyHash(make([]byte, 20), &chaincfg.MainNetParams)
	assert.NoError(t, err)

	assert.True(t, IsValidBtcAddress(regtest.EncodeAddress(), &chaincfg.RegressionNetParams))
	assert.False(t, IsValidBtcAddress(mainnet.EncodeAddress(), &chaincfg.RegressionNetParams))
	assert.False(t, IsValidBtcAddress("nope", &chaincfg.RegressionNetParams))
}

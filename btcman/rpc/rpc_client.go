package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/lending-go/btcman/explorer"
	"github.com/TEENet-io/lending-go/btcman/utxo"
)

const (
	CONFIRM_SAFE = 6 // minimum confirm threshold to consider Tx is finalized.
	MAX_CONFIRM  = 9999999
)

type RpcClientConfig struct {
	ServerAddr  string // ip address of server
	Port        string // port of server
	Username    string
	Pwd         string
	ChainConfig *chaincfg.Params // network of the addresses we query, default regtest
}

// Wrapper of btc rpc client.
// Besides the regtest helpers it is a utxo.Source and a Broadcaster,
// so it can stand in for the explorer against a local node.
type RpcClient struct {
	ServerAddr  string // ip address of server
	Port        string // port of server
	Username    string
	Pwd         string
	ChainConfig *chaincfg.Params
	client      *rpcclient.Client
}

// Create a new RPC client which
// contains several useful functions
// to interact with bitcoin node.
func NewRpcClient(rcc *RpcClientConfig) (*RpcClient, error) {
	// Connect to local Bitcoin mining node using HTTP
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         rcc.ServerAddr + ":" + rcc.Port,
		User:         rcc.Username,
		Pass:         rcc.Pwd,
		HTTPPostMode: true, // original bitcoin only supports HTTP POST mode
		DisableTLS:   true, // original bitcoin does not support TLS
	}, nil)

	if err != nil {
		return nil, err
	}

	chainConfig := rcc.ChainConfig
	if chainConfig == nil {
		chainConfig = &chaincfg.RegressionNetParams
	}

	return &RpcClient{rcc.ServerAddr, rcc.Port, rcc.Username, rcc.Pwd, chainConfig, client}, nil
}

// Close the rpc client
func (r *RpcClient) Close() {
	r.client.Shutdown()
}

// Get the latest block height.
// Also serves as the reachability check when the client is set up.
func (r *RpcClient) GetLatestBlockHeight() (int64, error) {
	latestHeight, err := r.client.GetBlockCount()
	if err != nil {
		return 0, err
	}
	return latestHeight, nil
}

// Get the serialized 80-byte header of a block.
func (r *RpcClient) GetBlockHeader(blockHash *chainhash.Hash) ([]byte, error) {
	header, err := r.client.GetBlockHeader(blockHash)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := header.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Get the UTXO(s) of an address.
// Notice: You need to turn on option -txindex on bitcoin node.
// Notice: This is not very accurate, btc nodes tend to forget to track.
// Notice: This won't scale well once the query goes very large.
// Notice: You fill in either P2PKH or P2WPKH address, the result is specific to that address type.
func (r *RpcClient) GetUtxoList(myAddress btcutil.Address, offset int) ([]*utxo.UTXO, error) {
	// Get the list of unspent transaction outputs
	unspentOutputs, err := r.client.ListUnspentMinMaxAddresses(offset, MAX_CONFIRM, []btcutil.Address{myAddress})
	if err != nil {
		return nil, err
	}

	u := make([]*utxo.UTXO, 0, len(unspentOutputs))
	for _, item := range unspentOutputs {
		pkScript, err := hex.DecodeString(item.ScriptPubKey)
		if err != nil {
			return nil, fmt.Errorf("utxo %s:%d has bad script: %w", item.TxID, item.Vout, err)
		}
		amount, err := btcutil.NewAmount(item.Amount)
		if err != nil {
			return nil, err
		}
		one, err := utxo.New(item.TxID, item.Vout, int64(amount), pkScript)
		if err != nil {
			return nil, err
		}
		one.Address = myAddress.EncodeAddress()
		one.Confirmed = item.Confirmations > 0
		u = append(u, one)
	}
	return utxo.Dedup(u), nil
}

// ListUtxos implements utxo.Source, mempool outputs included.
func (r *RpcClient) ListUtxos(ctx context.Context, address string) ([]*utxo.UTXO, error) {
	addr, err := btcutil.DecodeAddress(address, r.ChainConfig)
	if err != nil {
		return nil, err
	}
	if !addr.IsForNet(r.ChainConfig) {
		return nil, fmt.Errorf("address %s is not for %s", address, r.ChainConfig.Name)
	}
	return r.GetUtxoList(addr, 0)
}

// Send raw transaction to bitcoin network.
func (r *RpcClient) SendRawTx(tx *wire.MsgTx) (*chainhash.Hash, error) {
	// Explanation on allowHighFees=true
	// It is a protection.
	// if bitcoin node thinks your fee is too high (maybe due to program mistakes) it can reject you.
	// false = may reject; true = accept it anyway
	txHash, err := r.client.SendRawTransaction(tx, true)
	return txHash, err
}

// Broadcast decodes a raw tx hex and sends it.
// Node rejections map to the same sentinels as the explorer ones.
func (r *RpcClient) Broadcast(ctx context.Context, rawTxHex string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(rawTxHex))
	if err != nil {
		return "", err
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return "", err
	}
	txHash, err := r.SendRawTx(tx)
	if err != nil {
		return "", classifyRejection(err)
	}
	logger.WithField("txid", txHash.String()).Info("broadcast accepted by node")
	return txHash.String(), nil
}

// classifyRejection maps a sendrawtransaction failure to a broadcast sentinel.
// The node reject reason decides, same list as for esplora.
// "already in block chain" is not a spent input, it stays a plain rejection.
func classifyRejection(err error) error {
	var rpcErr *btcjson.RPCError
	if !errors.As(err, &rpcErr) {
		return err
	}
	return fmt.Errorf("%w: %v", explorer.ClassifyBroadcast(rpcErr.Message), err)
}

// Unfortunately there is no direct "get balance of an address" on btc node.
// To get the total balance of an address,
// this function sums up the value of all UTXOs associated with the given address.
// Note: if balance = 0, it can mean
// 1) the address really doesn't have any money.
// 2) the address is not tracked by the node.
func (r *RpcClient) GetBalance(myAddress btcutil.Address, offset int) (int64, error) {
	utxos, err := r.GetUtxoList(myAddress, offset)
	if err != nil {
		return 0, err
	}
	return utxo.Sum(utxos), nil
}

// Import an address to the Bitcoin node's wallet, so its outputs are tracked.
// Note: If the address exists, it won't raise exception.
func (r *RpcClient) ImportAddress(address btcutil.Address, label string) error {
	return r.client.ImportAddressRescan(address.EncodeAddress(), label, true)
}

// Generate a given number of blocks.
// This function is useful for testing purposes.
// Unfortunately, the original r.client.Generate() is deprecated in the library.
func (r *RpcClient) GenerateBlocks(numBlocks int64, coinbase btcutil.Address) ([]*chainhash.Hash, error) {
	blockHashes, err := r.client.GenerateToAddress(numBlocks, coinbase, nil)
	if err != nil {
		return nil, err
	}
	return blockHashes, nil
}

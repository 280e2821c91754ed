package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/lending-go/btcman/assembler"
	"github.com/TEENet-io/lending-go/btcman/explorer"
	btcrpc "github.com/TEENet-io/lending-go/btcman/rpc"
	"github.com/TEENet-io/lending-go/btcman/utxo"
	"github.com/TEENet-io/lending-go/etherman"
	"github.com/TEENet-io/lending-go/retry"
)

var ErrNoBtcBackend = errors.New("neither esplora url nor btc rpc server configured")

// fileExists checks if a file exists and is readable
func FileExists(filePath string) bool {
	file, err := os.Open(filePath)
	if err != nil {
		return false
	}
	defer file.Close()
	return true
}

// Keep the configuration's fields as "text" as possible.
// Its easier to load it from env vars or a config file.
type BtcConfig struct {
	BtcChainConfig *chaincfg.Params // regtest, testnet, signet, mainnet? see btcman/assembler/common.go

	// esplora side, preferred when set
	EsploraURL       string
	EsploraRateLimit int          // requests per second, 0 = default, <0 = unlimited
	HTTPClient       *http.Client // optional, tests inject a mocked transport here

	// bitcoin core side, used when no esplora url is given
	BtcRpcServer   string
	BtcRpcPort     string
	BtcRpcUsername string
	BtcRpcPwd      string
}

// EvmConfig is optional, without it the lending contract is not talked to.
type EvmConfig struct {
	EthRpcUrl           string // json rpc url
	EthCoreAccountPriv  string // pays for requestBorrow() / lend()
	LendingContractAddr string
	LightClientAddr     string // empty = citrea default
}

func (c *EvmConfig) Enabled() bool {
	return c.EthRpcUrl != "" && c.LendingContractAddr != ""
}

// BtcBackend lists utxos and pushes txs.
type BtcBackend interface {
	utxo.Source
	assembler.Broadcaster
}

// Shared Helper function. Create a btc rpc client.
// The node is asked for its tip once, so a wrong host or credentials fail here.
func SetupBtcRpc(server string, port string, username string, password string, chainConfig *chaincfg.Params) (*btcrpc.RpcClient, error) {
	_config := btcrpc.RpcClientConfig{
		ServerAddr:  server,
		Port:        port,
		Username:    username,
		Pwd:         password,
		ChainConfig: chainConfig,
	}
	r, err := btcrpc.NewRpcClient(&_config)
	if err != nil {
		logger.Errorf("failed to create btc rpc client: %v", err)
		return nil, err
	}
	tip, err := r.GetLatestBlockHeight()
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("btc rpc %s:%s unreachable: %w", server, port, err)
	}
	logger.WithField("tip", tip).Info("connected to bitcoin core")
	return r, nil
}

// SetupExplorer creates an esplora client. No request is made.
func SetupExplorer(bc *BtcConfig) (*explorer.Client, error) {
	return explorer.NewClient(&explorer.Config{
		URL:         bc.EsploraURL,
		ChainConfig: bc.BtcChainConfig,
		RateLimit:   bc.EsploraRateLimit,
		HTTPClient:  bc.HTTPClient,
	})
}

// SetupBtcBackend picks esplora when configured, else bitcoin core.
// The explorer is returned too since only it can serve inclusion proofs, it is nil otherwise.
func SetupBtcBackend(bc *BtcConfig) (BtcBackend, *explorer.Client, error) {
	if bc.EsploraURL != "" {
		ex, err := SetupExplorer(bc)
		if err != nil {
			return nil, nil, err
		}
		return ex, ex, nil
	}
	if bc.BtcRpcServer != "" {
		r, err := SetupBtcRpc(bc.BtcRpcServer, bc.BtcRpcPort, bc.BtcRpcUsername, bc.BtcRpcPwd, bc.BtcChainConfig)
		if err != nil {
			return nil, nil, err
		}
		return r, nil, nil
	}
	return nil, nil, ErrNoBtcBackend
}

// SetupLendingChain connects to the evm side.
func SetupLendingChain(ctx context.Context, ec *EvmConfig) (*etherman.LendingChain, error) {
	if !ethcommon.IsHexAddress(ec.LendingContractAddr) {
		return nil, fmt.Errorf("invalid lending contract address %q", ec.LendingContractAddr)
	}
	cfg := &etherman.Config{
		URL:                    ec.EthRpcUrl,
		LendingContractAddress: ethcommon.HexToAddress(ec.LendingContractAddr),
	}
	if ec.LightClientAddr != "" {
		if !ethcommon.IsHexAddress(ec.LightClientAddr) {
			return nil, fmt.Errorf("invalid light client address %q", ec.LightClientAddr)
		}
		cfg.LightClientAddress = ethcommon.HexToAddress(ec.LightClientAddr)
	}
	sk, err := etherman.StringToPrivateKey(ec.EthCoreAccountPriv)
	if err != nil {
		return nil, err
	}
	return etherman.NewLendingChain(ctx, cfg, sk)
}

// NewRetryPolicy fills a retry.Policy from config values, zero values keep the defaults.
func NewRetryPolicy(maxAttempts int, initialDelay time.Duration, deadline time.Duration) retry.Policy {
	p := retry.DefaultPolicy()
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	if initialDelay > 0 {
		p.InitialDelay = initialDelay
	}
	if deadline > 0 {
		p.Deadline = deadline
	}
	return p
}

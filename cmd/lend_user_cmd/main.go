package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/TEENet-io/lending-go/btcman/assembler"
	btcutils "github.com/TEENet-io/lending-go/btcman/utils"
	"github.com/TEENet-io/lending-go/cmd"
	"github.com/TEENet-io/lending-go/logconfig"
)

const (
	ENV_CONFIG_FILE_PATH = "LEND_USER_CONFIG"
)

func main() {
	// Tool to read environment variables
	viper.AutomaticEnv()

	// Accessing an environment variable of configuration file location.
	_config_file := viper.GetString(ENV_CONFIG_FILE_PATH)
	fmt.Printf("Lend user configuration file = %s\n", _config_file)

	// See if file exists
	if !cmd.FileExists(_config_file) {
		fmt.Printf("Lend user configuration file not found: %s\n", _config_file)
		return
	}

	// Read from config file.
	success := initializeViper(_config_file)
	if !success {
		return
	}

	logconfig.ConfigLoggerByLevel(viper.GetString("LOG_LEVEL"))

	// Create a cancelable context and signal handler for graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	luc, err := PrepareLendUserConfig()
	if err != nil {
		fmt.Printf("Error loading lend user configuration: %s\n", err)
		return
	}
	lu, err := cmd.NewLendUser(ctx, luc)
	if err != nil {
		fmt.Printf("Error creating lend user: %s\n", err)
		return
	}
	defer lu.Close()

	fmt.Println(strings.Repeat("=", 30))
	fmt.Println("Welcome to the BTC lending command line tool.")
	fmt.Printf("Your BTC address: %s\n", lu.MyAddress)
	if lu.MyChain != nil {
		fmt.Printf("Your EVM address: %s\n", lu.MyChain.Address().Hex())
	}

	// Set up signal handler to catch Ctrl-C.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		_captured := <-sig
		fmt.Printf("\nReceived interrupt signal, shutting down... %v\n", _captured)
		cancel()
		lu.Close()
		os.Exit(0)
	}()

	// gather user inputs
	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Print options
		fmt.Println("What to do:")
		fmt.Println("1) View balance")
		fmt.Println("2) View UTXOs")
		fmt.Println("3) Create a borrow intent (print psbt)")
		fmt.Println("4) Request a borrow on the lending contract")
		fmt.Println("5) Fill a borrow intent (psbt)")
		fmt.Println("6) Fill a borrow request from the lending contract")
		fmt.Println("7) Prove a fill and lend")
		fmt.Println("8) Transfer BTC to another address")
		fmt.Print("Type option and press Enter: ")

		// Wait for input.
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())

		switch input {
		case "1":
			_balance, err := lu.GetBalance(ctx)
			if err != nil {
				fmt.Printf("Error getting balance: %s\n", err)
			} else {
				fmt.Printf("Your BTC address: %s\n", lu.MyAddress)
				fmt.Printf("Your balance: %d satoshi (%.8f BTC)\n", _balance, btcutils.SatoshiToBtc(_balance))
			}
		case "2":
			_utxos, err := lu.GetUtxos(ctx)
			if err != nil {
				fmt.Printf("Error getting UTXOs: %s\n", err)
			} else {
				for idx, _utxo := range _utxos {
					fmt.Printf("[%d]: TxId %s, vout %d, %d satoshi, confirmed %v\n", idx, _utxo.TxID, _utxo.Vout, _utxo.Amount, _utxo.Confirmed)
				}
			}
		case "3":
			createIntent(ctx, scanner, lu)
		case "4":
			requestBorrow(ctx, scanner, lu)
		case "5":
			fillPsbt(ctx, scanner, lu)
		case "6":
			fillBorrowRequest(ctx, scanner, lu)
		case "7":
			proveAndLend(ctx, scanner, lu)
		case "8":
			transfer(ctx, scanner, lu)
		default:
			fmt.Println("Unknown option, try again.")
		}
		fmt.Println()
	}
}

func initializeViper(filePath string) bool {
	viper.SetConfigFile(filePath)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading configuration file, %s", err)
		return false
	}
	return true
}

func PrepareLendUserConfig() (*cmd.LendUserConfig, error) {
	chainConfig, err := assembler.ParamsByName(viper.GetString("BTC_CHAIN_CONFIG"))
	if err != nil {
		return nil, fmt.Errorf("BTC_CHAIN_CONFIG: %w", err)
	}
	return &cmd.LendUserConfig{
		BtcConfig: cmd.BtcConfig{
			BtcChainConfig:   chainConfig,
			EsploraURL:       viper.GetString("ESPLORA_URL"),
			EsploraRateLimit: viper.GetInt("ESPLORA_RATE_LIMIT"),
			BtcRpcServer:     viper.GetString("BTC_RPC_SERVER"),
			BtcRpcPort:       viper.GetString("BTC_RPC_PORT"),
			BtcRpcUsername:   viper.GetString("BTC_RPC_USERNAME"),
			BtcRpcPwd:        viper.GetString("BTC_RPC_PWD"),
		},
		EvmConfig: cmd.EvmConfig{
			EthRpcUrl:           viper.GetString("ETH_RPC_URL"),
			EthCoreAccountPriv:  viper.GetString("ETH_CORE_ACCOUNT_PRIV"),
			LendingContractAddr: viper.GetString("LENDING_CONTRACT_ADDR"),
			LightClientAddr:     viper.GetString("LIGHT_CLIENT_ADDR"),
		},
		BtcCoreAccountPriv: viper.GetString("BTC_CORE_ACCOUNT_PRIV"),
		BtcWalletURL:       viper.GetString("BTC_WALLET_URL"),
		DustMin:            viper.GetInt64("DUST_MIN"),
		DustMax:            viper.GetInt64("DUST_MAX"),
		SplitFee:           viper.GetInt64("SPLIT_FEE"),
		FeeRate:            viper.GetInt64("FEE_RATE"),
		FeeVsize:           viper.GetInt64("FEE_VSIZE"),
		Retry: cmd.NewRetryPolicy(
			viper.GetInt("RETRY_MAX_ATTEMPTS"),
			viper.GetDuration("RETRY_INITIAL_DELAY"),
			viper.GetDuration("RETRY_DEADLINE"),
		),
		DbFilePath: viper.GetString("DB_FILE_PATH"),
	}, nil
}

func ask(scanner *bufio.Scanner, prompt string) string {
	fmt.Print(prompt)
	scanner.Scan()
	return strings.TrimSpace(scanner.Text())
}

func askInt(scanner *bufio.Scanner, prompt string) (int64, error) {
	v, err := strconv.ParseInt(ask(scanner, prompt), 10, 64)
	if err != nil {
		fmt.Printf("Invalid number: %s\n", err)
		return 0, err
	}
	return v, nil
}

func askEvmAddress(scanner *bufio.Scanner, prompt string) (ethcommon.Address, error) {
	s := ask(scanner, prompt)
	if !ethcommon.IsHexAddress(s) {
		fmt.Printf("Invalid evm address: %s\n", s)
		return ethcommon.Address{}, fmt.Errorf("invalid evm address %q", s)
	}
	return ethcommon.HexToAddress(s), nil
}

func createIntent(ctx context.Context, scanner *bufio.Scanner, lu *cmd.LendUser) {
	amount, err := askInt(scanner, "Enter amount to borrow (in satoshis): ")
	if err != nil {
		return
	}
	in, err := lu.CreateIntent(ctx, amount)
	if err != nil {
		fmt.Printf("Error creating intent: %s\n", err)
		return
	}
	b64, err := in.Base64()
	if err != nil {
		fmt.Printf("Error encoding intent: %s\n", err)
		return
	}
	fmt.Printf("Intent psbt (base64), hand it to a lender:\n%s\n", b64)
}

func requestBorrow(ctx context.Context, scanner *bufio.Scanner, lu *cmd.LendUser) {
	amount, err := askInt(scanner, "Enter amount to borrow (in satoshis): ")
	if err != nil {
		return
	}
	rate, err := askInt(scanner, "Enter interest rate (basis points): ")
	if err != nil {
		return
	}
	b64, evmTx, err := lu.RequestBorrow(ctx, amount, rate)
	if err != nil {
		fmt.Printf("Error requesting borrow: %s\n", err)
		return
	}
	fmt.Printf("Borrow requested, evm tx %s\n", evmTx)
	fmt.Printf("Intent psbt (base64):\n%s\n", b64)
}

func fillPsbt(ctx context.Context, scanner *bufio.Scanner, lu *cmd.LendUser) {
	psbtStr := ask(scanner, "Paste the borrower psbt (base64 or hex): ")
	amount, err := askInt(scanner, "Enter amount to lend (in satoshis): ")
	if err != nil {
		return
	}
	borrower := ask(scanner, "Enter the evm address of the borrower (empty to skip): ")
	txid, err := lu.FillPsbt(ctx, []byte(psbtStr), amount, borrower)
	if err != nil {
		fmt.Printf("Error filling psbt: %s\n", err)
		return
	}
	fmt.Printf("Fill broadcast, btc txid %s\n", txid)
}

func fillBorrowRequest(ctx context.Context, scanner *bufio.Scanner, lu *cmd.LendUser) {
	borrower, err := askEvmAddress(scanner, "Enter the evm address of the borrower: ")
	if err != nil {
		return
	}
	txid, err := lu.FillBorrowRequest(ctx, borrower)
	if err != nil {
		fmt.Printf("Error filling borrow request: %s\n", err)
		return
	}
	fmt.Printf("Fill broadcast, btc txid %s\n", txid)
}

func proveAndLend(ctx context.Context, scanner *bufio.Scanner, lu *cmd.LendUser) {
	txid := ask(scanner, "Enter the btc txid of the fill: ")
	borrower, err := askEvmAddress(scanner, "Enter the evm address of the borrower: ")
	if err != nil {
		return
	}
	fmt.Println("Waiting for the fill to confirm, this may take a while...")
	evmTx, err := lu.ProveAndLend(ctx, txid, borrower)
	if err != nil {
		fmt.Printf("Error proving fill: %s\n", err)
		return
	}
	fmt.Printf("lend() mined, evm tx %s\n", evmTx)
}

func transfer(ctx context.Context, scanner *bufio.Scanner, lu *cmd.LendUser) {
	dst := ask(scanner, "Enter receiver address: ")
	amount, err := askInt(scanner, "Enter amount to send (in satoshis): ")
	if err != nil {
		return
	}
	fee, err := askInt(scanner, "Enter Tx fee amount (in satoshis): ")
	if err != nil {
		return
	}
	txid, err := lu.Transfer(ctx, dst, amount, fee)
	if err != nil {
		fmt.Printf("Error sending transfer: %s\n", err)
		return
	}
	fmt.Printf("Transfer broadcast, btc txid %s\n", txid)
}

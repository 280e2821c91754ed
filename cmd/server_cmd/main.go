package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/TEENet-io/lending-go/btcman/assembler"
	"github.com/TEENet-io/lending-go/cmd"
	"github.com/TEENet-io/lending-go/logconfig"
)

const (
	ENV_CONFIG_FILE_PATH = "LEND_SERVER_CONFIG"
)

func main() {
	// Tool to read environment variables
	viper.AutomaticEnv()

	// Accessing an environment variable of configuration file location.
	_config_file := viper.GetString(ENV_CONFIG_FILE_PATH)
	fmt.Printf("Lend server configuration file = %s\n", _config_file)

	// See if file exists
	if !cmd.FileExists(_config_file) {
		fmt.Printf("Lend server configuration file not found: %s\n", _config_file)
		return
	}

	// Read from config file.
	success := initializeViper(_config_file)
	if !success {
		return
	}

	logconfig.ConfigLoggerByLevel(viper.GetString("LOG_LEVEL"))

	// Make the configuration
	lsc := PrepareLendServerConfig()
	if lsc == nil {
		fmt.Printf("Error loading lend server configuration\n")
		return
	}

	fmt.Println("Starting lend server... press Ctrl+C to kill the server")
	// Start server and block.
	cmd.StartLendServerAndWait(lsc)
}

func initializeViper(filePath string) bool {
	viper.SetConfigFile(filePath)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading configuration file, %s", err)
		return false
	}
	return true
}

// PrepareLendServerConfig reads configuration variables and returns a LendServerConfig.
func PrepareLendServerConfig() *cmd.LendServerConfig {
	if viper.GetString("ESPLORA_URL") == "" {
		fmt.Println("ESPLORA_URL is required by the server")
		return nil
	}
	if viper.GetString("DB_FILE_PATH") == "" {
		fmt.Println("DB_FILE_PATH is required by the server")
		return nil
	}
	chainConfig, err := assembler.ParamsByName(viper.GetString("BTC_CHAIN_CONFIG"))
	if err != nil {
		fmt.Printf("BTC_CHAIN_CONFIG: %s\n", err)
		return nil
	}

	return &cmd.LendServerConfig{
		// btc side
		BtcConfig: cmd.BtcConfig{
			BtcChainConfig:   chainConfig,
			EsploraURL:       viper.GetString("ESPLORA_URL"),
			EsploraRateLimit: viper.GetInt("ESPLORA_RATE_LIMIT"),
			BtcRpcServer:     viper.GetString("BTC_RPC_SERVER"),
			BtcRpcPort:       viper.GetString("BTC_RPC_PORT"),
			BtcRpcUsername:   viper.GetString("BTC_RPC_USERNAME"),
			BtcRpcPwd:        viper.GetString("BTC_RPC_PWD"),
		},
		// eth side, optional
		EvmConfig: cmd.EvmConfig{
			EthRpcUrl:           viper.GetString("ETH_RPC_URL"),
			EthCoreAccountPriv:  viper.GetString("ETH_CORE_ACCOUNT_PRIV"),
			LendingContractAddr: viper.GetString("LENDING_CONTRACT_ADDR"),
			LightClientAddr:     viper.GetString("LIGHT_CLIENT_ADDR"),
		},
		Confirmations: viper.GetInt64("CONFIRMATIONS"),
		Retry: cmd.NewRetryPolicy(
			viper.GetInt("RETRY_MAX_ATTEMPTS"),
			viper.GetDuration("RETRY_INITIAL_DELAY"),
			viper.GetDuration("RETRY_DEADLINE"),
		),
		// state side
		DbFilePath: viper.GetString("DB_FILE_PATH"),
		// Http side
		HttpIp:   viper.GetString("HTTP_IP"),
		HttpPort: viper.GetString("HTTP_PORT"),
	}
}

// Server = fill log + btc fill monitor + http reporter (+ lend observer when the evm side is configured).
// All components are configured via envionment variables (strings!).

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/lending-go/btcaction"
	"github.com/TEENet-io/lending-go/btcman/explorer"
	"github.com/TEENet-io/lending-go/btcsync"
	"github.com/TEENet-io/lending-go/etherman"
	"github.com/TEENet-io/lending-go/reporter"
	"github.com/TEENet-io/lending-go/retry"
	"github.com/TEENet-io/lending-go/spv"
)

// Default params for server.
// More often we don't recommend users to tweak those.
// So we list them here.
const (
	frequencyToScanFills = 10 * time.Second

	// btc publisher-observer config
	CHANNEL_BUFFER_SIZE = 10
)

type LendServerConfig struct {
	BtcConfig
	EvmConfig // optional, enables automatic lend() of confirmed fills

	Confirmations int64 // blocks before a fill counts as confirmed
	Retry         retry.Policy

	// state side
	DbFilePath string // db file path

	// Http side
	HttpIp   string // eg. 0.0.0.0
	HttpPort string // eg. 8080
}

// LendServer holds the objects that consists of the lending server.
type LendServer struct {
	MyExplorer     *explorer.Client
	MyFillStorage  *btcaction.SQLiteFillStorage
	MyFillMonitor  *btcsync.FillMonitor
	MyReporter     *reporter.HttpReporter
	MyChain        *etherman.LendingChain // nil without evm side
	MyLendObserver *btcsync.LendObserver  // nil without evm side
}

// NewLendServer creates and starts a new lending server.
// ctx is used for parental context to cancel the operation of the server.
// wg is used to wait for all the goroutines inside the server (monitor, observer, reporter) to finish.
func NewLendServer(lsc *LendServerConfig, ctx context.Context, wg *sync.WaitGroup) (*LendServer, error) {
	if lsc.EsploraURL == "" {
		return nil, fmt.Errorf("server needs an esplora url")
	}
	if lsc.DbFilePath == "" {
		return nil, fmt.Errorf("server needs a db file path")
	}

	// 0) btc side, the explorer answers both status and proof queries
	myExplorer, err := SetupExplorer(&lsc.BtcConfig)
	if err != nil {
		return nil, err
	}
	if _, err := myExplorer.GetTipHeight(ctx); err != nil {
		logger.Warnf("esplora not reachable yet: %v", err)
	}

	// 1) fill log
	fillStorage, err := btcaction.NewSQLiteFillStorage(lsc.DbFilePath)
	if err != nil {
		return nil, fmt.Errorf("cannot create fill storage: %w", err)
	}

	// 2) fill monitor
	myFillMonitor := btcsync.NewFillMonitor(myExplorer, fillStorage, lsc.Confirmations)
	myFillMonitor.Interval = frequencyToScanFills

	s := &LendServer{
		MyExplorer:    myExplorer,
		MyFillStorage: fillStorage,
		MyFillMonitor: myFillMonitor,
	}

	// 3) lend observer, register before the monitor loop starts
	if lsc.EvmConfig.Enabled() {
		s.MyChain, err = SetupLendingChain(ctx, &lsc.EvmConfig)
		if err != nil {
			fillStorage.Close()
			return nil, err
		}
		prover := &spv.Prover{Chain: myExplorer, Retry: lsc.Retry}
		s.MyLendObserver = btcsync.NewLendObserver(CHANNEL_BUFFER_SIZE, prover, s.MyChain.Etherman, s.MyChain.Account, lsc.Retry)
		s.MyLendObserver.Storage = fillStorage
		myFillMonitor.Publisher.RegisterConfirmedObserver(s.MyLendObserver.Ch)

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.MyLendObserver.Run(ctx)
		}()
	}

	// Turn on the monitor scan loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := myFillMonitor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("fill monitor stopped: %v", err)
		}
		myFillMonitor.Publisher.Wait()
	}()

	// *** Setup a http server to report status ***
	s.MyReporter = reporter.NewHttpReporter(lsc.HttpIp, lsc.HttpPort, fillStorage)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.MyReporter.Run(ctx); err != nil {
			logger.Errorf("http reporter stopped: %v", err)
		}
	}()

	logger.WithFields(logger.Fields{
		"esplora":  lsc.EsploraURL,
		"db":       lsc.DbFilePath,
		"http":     lsc.HttpIp + ":" + lsc.HttpPort,
		"autoLend": s.MyLendObserver != nil,
	}).Info("lend server started")

	return s, nil
}

// Create, then start the lending server and wait.
// Press Ctrl-C to kill the server.
func StartLendServerAndWait(lsc *LendServerConfig) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up a signal channel to listen for Ctrl-C (SIGINT) or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		fmt.Printf("Received signal: %v, cancelling context...\n", sig)
		cancel()
	}()

	var wg sync.WaitGroup

	s, err := NewLendServer(lsc, ctx, &wg)
	if err != nil {
		logger.Fatalf("failed to create lend server: %v", err)
		return
	}

	// wait for all routines to finish
	wg.Wait()
	s.MyFillStorage.Close()
}

// LendUser presents an entity that
// 1) Holds user credentials (a WIF key, or a remote wallet)
// 2) Borrows: signs an intent over a dust utxo and publishes it
// 3) Lends: fills someone else's intent, then proves the fill on the evm side

package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/lending-go/btcaction"
	"github.com/TEENet-io/lending-go/btcman/assembler"
	"github.com/TEENet-io/lending-go/btcman/explorer"
	btcutils "github.com/TEENet-io/lending-go/btcman/utils"
	"github.com/TEENet-io/lending-go/btcman/utxo"
	"github.com/TEENet-io/lending-go/btcsync"
	"github.com/TEENet-io/lending-go/common"
	"github.com/TEENet-io/lending-go/etherman"
	"github.com/TEENet-io/lending-go/intent"
	"github.com/TEENet-io/lending-go/retry"
	"github.com/TEENet-io/lending-go/spv"
)

var (
	ErrNoActiveRequest = errors.New("no active borrow request")
	ErrNoEvm           = errors.New("evm side not configured")
	ErrNoExplorer      = errors.New("proofs need an esplora backend")
)

type LendUserConfig struct {
	BtcConfig
	EvmConfig

	BtcCoreAccountPriv string // user's btc private key (WIF), ignored when BtcWalletURL is set
	BtcWalletURL       string // remote wallet bridge

	DustMin  int64 // dust window of the intent input
	DustMax  int64
	SplitFee int64
	FeeRate  int64 // sats per vbyte paid by the lender
	FeeVsize int64

	Retry retry.Policy

	DbFilePath string // optional fill log of the lender
}

type LendUser struct {
	MyUserConfig *LendUserConfig
	MySigner     assembler.Signer
	MyAddress    string // btc address of the signer
	MyBackend    BtcBackend
	MyExplorer   *explorer.Client // nil when backed by bitcoin core
	MyBuilder    *intent.Builder
	MyFulfiller  *intent.Fulfiller
	MyProver     *spv.Prover
	MyChain      *etherman.LendingChain // nil when the evm side is not configured
	MyFills      btcaction.FillStorage  // nil without a db file
}

func NewLendUser(ctx context.Context, luc *LendUserConfig) (*LendUser, error) {
	backend, ex, err := SetupBtcBackend(&luc.BtcConfig)
	if err != nil {
		return nil, err
	}

	var (
		signer  assembler.Signer
		address string
	)
	if luc.BtcWalletURL != "" {
		remote := assembler.NewRemoteSigner(luc.BtcWalletURL, luc.HTTPClient)
		accounts, err := remote.Accounts(ctx)
		if err != nil {
			return nil, fmt.Errorf("remote wallet: %w", err)
		}
		if len(accounts) == 0 {
			return nil, fmt.Errorf("remote wallet has no account")
		}
		if !common.IsValidBtcAddress(accounts[0], luc.BtcChainConfig) {
			return nil, fmt.Errorf("remote wallet account %s is not for %s", accounts[0], luc.BtcChainConfig.Name)
		}
		signer, address = remote, accounts[0]
	} else {
		ns, err := assembler.NewNativeSigner(luc.BtcCoreAccountPriv, luc.BtcChainConfig)
		if err != nil {
			logger.Error("cannot create signer by private key")
			return nil, err
		}
		local, err := assembler.NewLocalSigner(*ns, backend)
		if err != nil {
			return nil, err
		}
		signer, address = local, local.Address()
	}

	u := &LendUser{
		MyUserConfig: luc,
		MySigner:     signer,
		MyAddress:    address,
		MyBackend:    backend,
		MyExplorer:   ex,
		MyBuilder: &intent.Builder{
			ChainConfig: luc.BtcChainConfig,
			Signer:      signer,
			Source:      backend,
			Dust:        utxo.DustPolicy{MinDust: luc.DustMin, MaxDust: luc.DustMax},
			SplitFee:    luc.SplitFee,
			Retry:       luc.Retry,
		},
		MyFulfiller: &intent.Fulfiller{
			ChainConfig: luc.BtcChainConfig,
			Signer:      signer,
			Source:      backend,
			Fee:         intent.FeePolicy{RateSatsPerVbyte: luc.FeeRate, EstimatedVsize: luc.FeeVsize},
		},
	}
	if ex != nil {
		u.MyProver = &spv.Prover{Chain: ex, Retry: luc.Retry}
	}

	if luc.EvmConfig.Enabled() {
		if u.MyChain, err = SetupLendingChain(ctx, &luc.EvmConfig); err != nil {
			return nil, err
		}
	}

	if luc.DbFilePath != "" {
		if u.MyFills, err = btcaction.NewSQLiteFillStorage(luc.DbFilePath); err != nil {
			return nil, err
		}
	}

	logger.WithField("address", address).Info("lend user ready")
	return u, nil
}

func (u *LendUser) Close() {
	if st, ok := u.MyFills.(*btcaction.SQLiteFillStorage); ok {
		st.Close()
	}
	if u.MyChain != nil {
		u.MyChain.RpcClient.Close()
	}
}

func (u *LendUser) GetUtxos(ctx context.Context) ([]*utxo.UTXO, error) {
	return u.MyBackend.ListUtxos(ctx, u.MyAddress)
}

func (u *LendUser) GetBalance(ctx context.Context) (int64, error) {
	utxos, err := u.GetUtxos(ctx)
	if err != nil {
		return 0, err
	}
	return utxo.Sum(utxos), nil
}

// CreateIntent signs a borrow intent paying amount to the user's own address.
func (u *LendUser) CreateIntent(ctx context.Context, amount int64) (*intent.Intent, error) {
	return u.MyBuilder.CreateIntent(ctx, u.MyAddress, amount)
}

// RequestBorrow creates an intent and publishes it with requestBorrow().
// rateBps is the interest rate in basis points.
// Returns the psbt (base64) and the evm tx hash.
func (u *LendUser) RequestBorrow(ctx context.Context, amount int64, rateBps int64) (string, string, error) {
	if u.MyChain == nil {
		return "", "", ErrNoEvm
	}
	in, err := u.CreateIntent(ctx, amount)
	if err != nil {
		return "", "", err
	}
	raw, err := in.Serialize()
	if err != nil {
		return "", "", err
	}
	b64, err := in.Base64()
	if err != nil {
		return "", "", err
	}

	auth := *u.MyChain.Account
	auth.Context = ctx
	tx, err := u.MyChain.Etherman.RequestBorrow(&auth, big.NewInt(amount), big.NewInt(rateBps), u.MyAddress, raw)
	if err != nil {
		return b64, "", err
	}
	if _, err := u.MyChain.Etherman.WaitMined(ctx, tx); err != nil {
		return b64, tx.Hash().Hex(), err
	}
	return b64, tx.Hash().Hex(), nil
}

// FillPsbt fills a borrower psbt (raw, hex or base64) and broadcasts it.
// evmBorrower may be empty when the fill is not going to be proven.
func (u *LendUser) FillPsbt(ctx context.Context, borrowerPsbt []byte, amount int64, evmBorrower string) (string, error) {
	packet, err := intent.DecodePsbt(borrowerPsbt)
	if err != nil {
		return "", err
	}

	_, txid, err := u.MyFulfiller.FillFromSource(ctx, borrowerPsbt, u.MyAddress, amount)
	if err != nil {
		return "", err
	}

	if u.MyFills != nil {
		borrowerAddr := ""
		if len(packet.UnsignedTx.TxOut) > 0 {
			borrowerAddr, _ = btcutils.OutputAddress(packet.UnsignedTx.TxOut[0], u.MyUserConfig.BtcChainConfig)
		}
		err := u.MyFills.AddFill(btcaction.FillAction{
			Basic:           btcaction.Basic{TxHash: txid},
			BorrowerAddress: borrowerAddr,
			LenderAddress:   u.MyAddress,
			Amount:          amount,
			EvmBorrower:     evmBorrower,
		})
		if err != nil {
			logger.WithField("txid", txid).Errorf("cannot record fill: %v", err)
		}
	}
	return txid, nil
}

// FillBorrowRequest reads the borrower's request from the contract and fills it.
func (u *LendUser) FillBorrowRequest(ctx context.Context, borrower ethcommon.Address) (string, error) {
	if u.MyChain == nil {
		return "", ErrNoEvm
	}
	req, err := u.MyChain.Etherman.GetBorrowRequest(ctx, borrower)
	if err != nil {
		return "", err
	}
	if !req.Active {
		return "", fmt.Errorf("%w: %s", ErrNoActiveRequest, borrower.Hex())
	}
	if !req.Amount.IsInt64() {
		return "", fmt.Errorf("amount %v out of range", req.Amount)
	}
	if payee := req.BtcAddressString(); payee != "" {
		if err := u.MyFulfiller.CheckPayee(req.SignedPsbt, payee, req.Amount.Int64()); err != nil {
			return "", err
		}
	}
	return u.FillPsbt(ctx, req.SignedPsbt, req.Amount.Int64(), borrower.Hex())
}

// ProveAndLend waits for the fill to be mined and proves it with lend().
// The fill is marked lent in the user's log once lend() is mined.
func (u *LendUser) ProveAndLend(ctx context.Context, txid string, borrower ethcommon.Address) (string, error) {
	if u.MyChain == nil {
		return "", ErrNoEvm
	}
	if u.MyProver == nil {
		return "", ErrNoExplorer
	}
	lender := btcsync.NewLendObserver(0, u.MyProver, u.MyChain.Etherman, u.MyChain.Account, u.MyUserConfig.Retry)
	lender.Storage = u.MyFills
	tx, err := lender.Process(ctx, btcaction.FillAction{
		Basic:       btcaction.Basic{TxHash: txid},
		EvmBorrower: borrower.Hex(),
	})
	if tx == nil {
		return "", err
	}
	return tx.Hash().Hex(), err
}

// Transfer sends a plain payment from the user's utxos, change goes back to the user.
func (u *LendUser) Transfer(ctx context.Context, dstAddr string, amount int64, fee int64) (string, error) {
	utxos, err := u.GetUtxos(ctx)
	if err != nil {
		return "", err
	}
	selected, err := utxo.SelectUtxo(utxos, amount, fee)
	if err != nil {
		return "", err
	}
	ass := &assembler.Assembler{ChainConfig: u.MyUserConfig.BtcChainConfig, Signer: u.MySigner}
	tx, err := ass.MakeTransferOutTx(ctx, dstAddr, amount, u.MyAddress, fee, selected)
	if err != nil {
		return "", err
	}
	rawHex, err := assembler.TxToHex(tx)
	if err != nil {
		return "", err
	}
	txid, err := u.MySigner.Broadcast(ctx, rawHex)
	if err != nil {
		return "", fmt.Errorf("broadcast transfer %s: %w", tx.TxHash(), err)
	}
	logger.WithFields(logger.Fields{
		"txid":   txid,
		"to":     dstAddr,
		"amount": amount,
		"inputs": len(selected),
	}).Info("transfer broadcast")
	return txid, nil
}

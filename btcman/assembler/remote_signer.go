package assembler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"

	"github.com/TEENet-io/lending-go/btcman/explorer"
)

// Wallet bridge methods.
const (
	METHOD_GET_ACCOUNTS = "getAccounts"
	METHOD_SIGN_PSBT    = "signPsbt"
	METHOD_PUSH_TX      = "pushTx"

	STATUS_SUCCESS = "success"
	STATUS_ERROR   = "error"

	remoteSignerTimeout = 2 * time.Minute // a human may need to click "approve"
)

// WalletError is the error half of a wallet response.
type WalletError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *WalletError) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

// Result is the {status, result, error} envelope every wallet call answers with.
type Result[T any] struct {
	Status string       `json:"status"`
	Result T            `json:"result"`
	Error  *WalletError `json:"error,omitempty"`
}

// Unwrap turns the envelope into a plain (value, error) pair.
func (r Result[T]) Unwrap() (T, error) {
	var zero T
	switch r.Status {
	case STATUS_SUCCESS:
		return r.Result, nil
	case STATUS_ERROR:
		if r.Error == nil {
			return zero, &WalletError{Code: -1, Message: "unspecified wallet error"}
		}
		return zero, r.Error
	default:
		return zero, fmt.Errorf("unknown wallet response status %q", r.Status)
	}
}

type walletRequest struct {
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

type toSignInput struct {
	Index        int      `json:"index"`
	SighashTypes []uint32 `json:"sighashTypes"`
}

type signPsbtParams struct {
	Psbt          string        `json:"psbt"` // base64
	ToSignInputs  []toSignInput `json:"toSignInputs"`
	AutoFinalized bool          `json:"autoFinalized"`
}

type signPsbtResult struct {
	Psbt string `json:"psbt"` // base64
}

type pushTxParams struct {
	RawTx string `json:"rawtx"`
}

// RemoteSigner talks to a wallet bridge (eg. a browser extension relay) over HTTP.
// The private key never leaves the wallet.
type RemoteSigner struct {
	endpoint   string
	httpClient *http.Client
}

// httpClient can be nil, a client with a generous timeout is used then.
func NewRemoteSigner(endpoint string, httpClient *http.Client) *RemoteSigner {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: remoteSignerTimeout}
	}
	return &RemoteSigner{endpoint: strings.TrimRight(endpoint, "/"), httpClient: httpClient}
}

func callWallet[T any](ctx context.Context, rs *RemoteSigner, method string, params interface{}) (T, error) {
	var zero T
	body, err := json.Marshal(walletRequest{Method: method, Params: params})
	if err != nil {
		return zero, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rs.endpoint, bytes.NewReader(body))
	if err != nil {
		return zero, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := rs.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("wallet %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("wallet %s: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return zero, fmt.Errorf("wallet %s: http %d: %s", method, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var envelope Result[T]
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return zero, fmt.Errorf("wallet %s: bad response: %w", method, err)
	}
	v, err := envelope.Unwrap()
	if err != nil {
		return zero, fmt.Errorf("wallet %s: %w", method, err)
	}
	return v, nil
}

func (rs *RemoteSigner) Accounts(ctx context.Context) ([]string, error) {
	accounts, err := callWallet[[]string](ctx, rs, METHOD_GET_ACCOUNTS, nil)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("wallet %s: no account connected", METHOD_GET_ACCOUNTS)
	}
	return accounts, nil
}

func (rs *RemoteSigner) SignPsbt(ctx context.Context, packet *psbt.Packet, inputIndexes []int, sighash txscript.SigHashType) (*psbt.Packet, error) {
	b64, err := packet.B64Encode()
	if err != nil {
		return nil, err
	}
	params := signPsbtParams{Psbt: b64}
	for _, idx := range inputIndexes {
		params.ToSignInputs = append(params.ToSignInputs, toSignInput{Index: idx, SighashTypes: []uint32{uint32(sighash)}})
	}

	res, err := callWallet[signPsbtResult](ctx, rs, METHOD_SIGN_PSBT, params)
	if err != nil {
		return nil, err
	}
	signed, err := psbt.NewFromRawBytes(strings.NewReader(res.Psbt), true)
	if err != nil {
		return nil, fmt.Errorf("wallet %s: cannot decode returned psbt: %w", METHOD_SIGN_PSBT, err)
	}
	if signed.UnsignedTx.TxHash() != packet.UnsignedTx.TxHash() {
		return nil, fmt.Errorf("wallet %s: returned psbt is for another transaction", METHOD_SIGN_PSBT)
	}
	return signed, nil
}

// Broadcast pushes through the wallet. A wallet-side reject carries the node reason,
// so it is classified like any other backend and still unwraps to *WalletError.
func (rs *RemoteSigner) Broadcast(ctx context.Context, rawTxHex string) (string, error) {
	txid, err := callWallet[string](ctx, rs, METHOD_PUSH_TX, pushTxParams{RawTx: rawTxHex})
	var we *WalletError
	if errors.As(err, &we) {
		return "", fmt.Errorf("%w: %w", explorer.ClassifyBroadcast(we.Message), err)
	}
	return txid, err
}

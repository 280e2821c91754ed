package explorer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/lending-go/btcman/utxo"
)

func (c *Client) getJSON(ctx context.Context, path string, v interface{}) error {
	body, err := c.do(ctx, http.MethodGet, path, "", "")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &EndpointError{Method: http.MethodGet, Endpoint: path, StatusCode: http.StatusOK, Body: trimBody(body), Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func (c *Client) getText(ctx context.Context, path string) (string, error) {
	body, err := c.do(ctx, http.MethodGet, path, "", "")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// getHex fetches a hex string and makes sure it decodes.
func (c *Client) getHex(ctx context.Context, path string) (string, error) {
	s, err := c.getText(ctx, path)
	if err != nil {
		return "", err
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", &EndpointError{Method: http.MethodGet, Endpoint: path, StatusCode: http.StatusOK, Body: trimBody([]byte(s)), Err: fmt.Errorf("not hex: %w", err)}
	}
	return s, nil
}

// GetTipHeight returns the height of the best block.
func (c *Client) GetTipHeight(ctx context.Context) (int64, error) {
	path := "/blocks/tip/height"
	s, err := c.getText(ctx, path)
	if err != nil {
		return 0, err
	}
	h, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &EndpointError{Method: http.MethodGet, Endpoint: path, StatusCode: http.StatusOK, Body: s, Err: err}
	}
	return h, nil
}

// GetUtxos lists the unspent outputs of an address, mempool ones included.
func (c *Client) GetUtxos(ctx context.Context, address string) ([]Utxo, error) {
	var utxos []Utxo
	if err := c.getJSON(ctx, fmt.Sprintf("/address/%s/utxo", address), &utxos); err != nil {
		return nil, err
	}
	return utxos, nil
}

// ListUtxos implements utxo.Source.
// The explorer does not return scripts, the locking script is rebuilt from the address.
func (c *Client) ListUtxos(ctx context.Context, address string) ([]*utxo.UTXO, error) {
	addr, err := btcutil.DecodeAddress(address, c.chainConfig)
	if err != nil {
		return nil, fmt.Errorf("invalid address %s: %w", address, err)
	}
	if !addr.IsForNet(c.chainConfig) {
		return nil, fmt.Errorf("address %s is not for %s", address, c.chainConfig.Name)
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}

	raw, err := c.GetUtxos(ctx, address)
	if err != nil {
		return nil, err
	}

	out := make([]*utxo.UTXO, 0, len(raw))
	for _, item := range raw {
		u, err := utxo.New(item.Txid, item.Vout, item.Value, pkScript)
		if err != nil {
			return nil, err
		}
		u.Address = address
		u.Confirmed = item.Status.Confirmed
		u.BlockHeight = item.Status.BlockHeight
		out = append(out, u)
	}
	return utxo.Dedup(out), nil
}

// Broadcast posts a raw tx hex and returns the txid the explorer reports.
// Rejections are wrapped ErrUtxoAlreadySpent or ErrBroadcastRejected.
func (c *Client) Broadcast(ctx context.Context, rawTxHex string) (string, error) {
	path := "/tx"
	body, err := c.do(ctx, http.MethodPost, path, strings.TrimSpace(rawTxHex), "text/plain")
	if err != nil {
		var e *EndpointError
		if errors.As(err, &e) && e.StatusCode >= 400 && e.StatusCode < 500 {
			e.Err = ClassifyBroadcast(e.Body)
			logger.WithFields(logger.Fields{
				"status": e.StatusCode,
				"reason": e.Body,
			}).Warn("broadcast rejected")
		}
		return "", err
	}
	txid := strings.TrimSpace(string(body))
	logger.WithField("txid", txid).Info("broadcast accepted")
	return txid, nil
}

func (c *Client) GetTx(ctx context.Context, txid string) (*Tx, error) {
	var tx Tx
	if err := c.getJSON(ctx, fmt.Sprintf("/tx/%s", txid), &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetTxStatus is lighter than GetTx when only the confirmation matters.
func (c *Client) GetTxStatus(ctx context.Context, txid string) (*TxStatus, error) {
	var status TxStatus
	if err := c.getJSON(ctx, fmt.Sprintf("/tx/%s/status", txid), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) GetTxHex(ctx context.Context, txid string) (string, error) {
	return c.getHex(ctx, fmt.Sprintf("/tx/%s/hex", txid))
}

func (c *Client) GetMerkleProof(ctx context.Context, txid string) (*MerkleProof, error) {
	var proof MerkleProof
	if err := c.getJSON(ctx, fmt.Sprintf("/tx/%s/merkle-proof", txid), &proof); err != nil {
		return nil, err
	}
	return &proof, nil
}

// GetBlockHeader returns the 80-byte header in hex.
func (c *Client) GetBlockHeader(ctx context.Context, blockHash string) (string, error) {
	return c.getHex(ctx, fmt.Sprintf("/block/%s/header", blockHash))
}

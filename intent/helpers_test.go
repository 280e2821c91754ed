package intent

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"

	"github.com/TEENet-io/lending-go/btcman/assembler"
	btcutils "github.com/TEENet-io/lending-go/btcman/utils"
	"github.com/TEENet-io/lending-go/btcman/utxo"
	"github.com/TEENet-io/lending-go/retry"
)

const (
	borrowerWIF = "cNSHjGk52rQ6iya8jdNT9VJ8dvvQ8kPAq5pcFHsYBYdDqahWuneH"
	lenderWIF   = "cQthTMaKUU9f6br1hMXdGFXHwGaAfFFerNkn632BpGE6KXhTMmGY"
)

var (
	testParams = &chaincfg.RegressionNetParams
	fastRetry  = retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
)

// fakeChain is an in-memory utxo set that accepts any well formed tx.
type fakeChain struct {
	utxos      []*utxo.UTXO
	broadcasts []string
	attempts   int
	funded     int
	hideNew    bool  // accepted txs never show their outputs
	rejectWith error // every broadcast fails with it
}

func (c *fakeChain) ListUtxos(ctx context.Context, address string) ([]*utxo.UTXO, error) {
	var out []*utxo.UTXO
	for _, u := range c.utxos {
		if u.Address == address {
			out = append(out, u)
		}
	}
	return out, nil
}

func (c *fakeChain) Broadcast(ctx context.Context, rawTxHex string) (string, error) {
	c.attempts++
	if c.rejectWith != nil {
		return "", c.rejectWith
	}
	raw, err := hex.DecodeString(rawTxHex)
	if err != nil {
		return "", err
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return "", err
	}
	c.broadcasts = append(c.broadcasts, rawTxHex)

	spent := make(map[wire.OutPoint]bool, len(tx.TxIn))
	for _, in := range tx.TxIn {
		spent[in.PreviousOutPoint] = true
	}
	var kept []*utxo.UTXO
	for _, u := range c.utxos {
		if !spent[*u.OutPoint()] {
			kept = append(kept, u)
		}
	}
	c.utxos = kept

	txid := tx.TxHash().String()
	if !c.hideNew {
		for idx, out := range tx.TxOut {
			u, err := utxo.New(txid, uint32(idx), out.Value, out.PkScript)
			if err != nil {
				return "", err
			}
			u.Address, _ = btcutils.OutputAddress(out, testParams)
			c.utxos = append(c.utxos, u)
		}
	}
	return txid, nil
}

// fund gives a confirmed output of amount to the signer.
func (c *fakeChain) fund(t *testing.T, owner *assembler.LocalSigner, amount int64) *utxo.UTXO {
	c.funded++
	u, err := utxo.New(fmt.Sprintf("%064x", 0xabc00+c.funded), uint32(c.funded%3), amount, owner.PkScript())
	if err != nil {
		t.Fatalf("cannot create utxo: %v", err)
	}
	u.Address = owner.Address()
	u.Confirmed = true
	c.utxos = append(c.utxos, u)
	return u
}

func newSigner(t *testing.T, wif string, chain *fakeChain) *assembler.LocalSigner {
	ns, err := assembler.NewNativeSigner(wif, testParams)
	if err != nil {
		t.Fatalf("cannot create NativeSigner: %v", err)
	}
	ls, err := assembler.NewLocalSigner(*ns, chain)
	if err != nil {
		t.Fatalf("cannot create LocalSigner: %v", err)
	}
	return ls
}

type fixture struct {
	chain     *fakeChain
	borrower  *assembler.LocalSigner
	lender    *assembler.LocalSigner
	builder   *Builder
	fulfiller *Fulfiller
}

func newFixture(t *testing.T, fee FeePolicy) *fixture {
	chain := &fakeChain{}
	borrower := newSigner(t, borrowerWIF, chain)
	lender := newSigner(t, lenderWIF, chain)
	return &fixture{
		chain:     chain,
		borrower:  borrower,
		lender:    lender,
		builder:   &Builder{ChainConfig: testParams, Signer: borrower, Source: chain, Retry: fastRetry},
		fulfiller: &Fulfiller{ChainConfig: testParams, Signer: lender, Source: chain, Fee: fee},
	}
}

// signedIntent funds a dust output and returns the serialized borrower psbt.
func (f *fixture) signedIntent(t *testing.T, dustAmount int64, amount int64) []byte {
	dust := f.chain.fund(t, f.borrower, dustAmount)
	in, err := f.builder.Build(context.Background(), dust, f.borrower.Address(), amount)
	if err != nil {
		t.Fatalf("cannot build intent: %v", err)
	}
	b, err := in.Serialize()
	if err != nil {
		t.Fatalf("cannot serialize intent: %v", err)
	}
	return b
}

package spv

import (
	"bytes"
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/TEENet-io/lending-go/btcman/explorer"
	"github.com/TEENet-io/lending-go/btcman/rawtx"
	"github.com/TEENet-io/lending-go/retry"
)

const fixtureHeight = 271828

var fastRetry = retry.Policy{MaxAttempts: 4, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

// block is a made up block of five txs, the even ones with witness data.
type block struct {
	txs    []*wire.MsgTx
	header wire.BlockHeader
}

func newBlock(t *testing.T) *block {
	b := &block{}
	for i := 0; i < 5; i++ {
		tx := wire.NewMsgTx(2)
		in := wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{byte(i + 1)}, uint32(i)), nil, nil)
		if i%2 == 0 {
			in.Witness = wire.TxWitness{bytes.Repeat([]byte{byte(i)}, 72), bytes.Repeat([]byte{0x02}, 33)}
		}
		tx.AddTxIn(in)
		tx.AddTxOut(wire.NewTxOut(int64(1000*(i+1)), []byte{0x00, 0x14, byte(i), 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11, 0x12, 0x13}))
		b.txs = append(b.txs, tx)
	}

	utxs := make([]*btcutil.Tx, len(b.txs))
	for i, tx := range b.txs {
		utxs[i] = btcutil.NewTx(tx)
	}
	store := blockchain.BuildMerkleTreeStore(utxs, false)

	b.header = wire.BlockHeader{
		Version:    0x20000000,
		PrevBlock:  chainhash.DoubleHashH([]byte("prev")),
		MerkleRoot: *store[len(store)-1],
		Timestamp:  time.Unix(1700000000, 0),
		Bits:       0x1d00ffff,
		Nonce:      42,
	}
	return b
}

func (b *block) txid(i int) chainhash.Hash {
	return b.txs[i].TxHash()
}

// path returns the display order siblings of tx i.
func (b *block) path(i int) []string {
	level := make([]chainhash.Hash, len(b.txs))
	for j, tx := range b.txs {
		level[j] = tx.TxHash()
	}
	var out []string
	idx := i
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		out = append(out, level[idx^1].String())
		next := make([]chainhash.Hash, 0, len(level)/2)
		for j := 0; j < len(level); j += 2 {
			buf := make([]byte, 0, 64)
			buf = append(buf, level[j][:]...)
			buf = append(buf, level[j+1][:]...)
			next = append(next, chainhash.DoubleHashH(buf))
		}
		level = next
		idx >>= 1
	}
	return out
}

func (b *block) headerBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	if err := b.header.Serialize(&buf); err != nil {
		t.Fatalf("cannot serialize header: %v", err)
	}
	return buf.Bytes()
}

func (b *block) rawTx(t *testing.T, i int) []byte {
	var buf bytes.Buffer
	if err := b.txs[i].Serialize(&buf); err != nil {
		t.Fatalf("cannot serialize tx: %v", err)
	}
	return buf.Bytes()
}

// fakeExplorer serves the block, tx `pending` calls answer unconfirmed first.
type fakeExplorer struct {
	t        *testing.T
	block    *block
	pending  int
	calls    int
	badHex   bool
	badProof bool
}

func (f *fakeExplorer) index(txid string) int {
	for i := range f.block.txs {
		if f.block.txid(i).String() == txid {
			return i
		}
	}
	return -1
}

func (f *fakeExplorer) GetTx(ctx context.Context, txid string) (*explorer.Tx, error) {
	f.calls++
	if f.index(txid) < 0 {
		return nil, explorer.ErrNotFound
	}
	if f.calls <= f.pending {
		return &explorer.Tx{Txid: txid}, nil
	}
	return &explorer.Tx{Txid: txid, Status: explorer.TxStatus{
		Confirmed:   true,
		BlockHeight: fixtureHeight,
		BlockHash:   f.block.header.BlockHash().String(),
	}}, nil
}

func (f *fakeExplorer) GetTxHex(ctx context.Context, txid string) (string, error) {
	i := f.index(txid)
	if f.badHex {
		i = (i + 1) % len(f.block.txs)
	}
	return hex.EncodeToString(f.block.rawTx(f.t, i)), nil
}

func (f *fakeExplorer) GetMerkleProof(ctx context.Context, txid string) (*explorer.MerkleProof, error) {
	i := f.index(txid)
	pos := uint64(i)
	if f.badProof {
		pos ^= 1
	}
	return &explorer.MerkleProof{BlockHeight: fixtureHeight, Merkle: f.block.path(i), Pos: pos}, nil
}

func (f *fakeExplorer) GetBlockHeader(ctx context.Context, blockHash string) (string, error) {
	if blockHash != f.block.header.BlockHash().String() {
		return "", explorer.ErrNotFound
	}
	return hex.EncodeToString(f.block.headerBytes(f.t)), nil
}

func rawJoin(p *Proof) []byte {
	return rawtx.Join(p.Segments)
}

package explorer

// Shapes of the esplora REST responses we consume.
// Only the fields we read are declared.

// TxStatus is the "status" object attached to txs and utxos.
type TxStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int64  `json:"block_height,omitempty"`
	BlockHash   string `json:"block_hash,omitempty"`
	BlockTime   int64  `json:"block_time,omitempty"`
}

// Utxo as listed by GET /address/{addr}/utxo
type Utxo struct {
	Txid   string   `json:"txid"`
	Vout   uint32   `json:"vout"`
	Value  int64    `json:"value"`
	Status TxStatus `json:"status"`
}

type TxVin struct {
	Txid     string   `json:"txid"`
	Vout     uint32   `json:"vout"`
	Prevout  *TxVout  `json:"prevout,omitempty"`
	Witness  []string `json:"witness,omitempty"`
	Sequence uint32   `json:"sequence"`
}

type TxVout struct {
	ScriptPubKey        string `json:"scriptpubkey"`
	ScriptPubKeyAddress string `json:"scriptpubkey_address,omitempty"`
	Value               int64  `json:"value"`
}

// Tx as returned by GET /tx/{txid}
type Tx struct {
	Txid     string   `json:"txid"`
	Version  int32    `json:"version"`
	Locktime uint32   `json:"locktime"`
	Vin      []TxVin  `json:"vin"`
	Vout     []TxVout `json:"vout"`
	Size     int      `json:"size"`
	Weight   int      `json:"weight"`
	Fee      int64    `json:"fee"`
	Status   TxStatus `json:"status"`
}

// MerkleProof as returned by GET /tx/{txid}/merkle-proof
// Merkle holds sibling hashes in display (reversed) byte order, leaf level first.
type MerkleProof struct {
	BlockHeight int64    `json:"block_height"`
	Merkle      []string `json:"merkle"`
	Pos         uint64   `json:"pos"`
}

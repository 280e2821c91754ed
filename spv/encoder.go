package spv

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/TEENet-io/lending-go/btcman/rawtx"
)

// TransactionParams is the transaction as the lending contract reads it.
// The witness never goes on-chain, vin of a segwit tx has no marker/flag.
type TransactionParams struct {
	Version           [4]byte
	Vin               []byte
	Vout              []byte
	Locktime          [4]byte
	IntermediateNodes []byte
	BlockHeight       *big.Int
	Index             *big.Int
}

// TransactionParamsComponents describes TransactionParams as an ABI tuple.
var TransactionParamsComponents = []abi.ArgumentMarshaling{
	{Name: "version", Type: "bytes4"},
	{Name: "vin", Type: "bytes"},
	{Name: "vout", Type: "bytes"},
	{Name: "locktime", Type: "bytes4"},
	{Name: "intermediate_nodes", Type: "bytes"},
	{Name: "block_height", Type: "uint256"},
	{Name: "index", Type: "uint256"},
}

var proofArguments abi.Arguments

func init() {
	addressT, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	tupleT, err := abi.NewType("tuple", "", TransactionParamsComponents)
	if err != nil {
		panic(err)
	}
	bytesT, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}
	proofArguments = abi.Arguments{
		{Name: "borrower_address", Type: addressT},
		{Name: "tp", Type: tupleT},
		{Name: "block_header", Type: bytesT},
	}
}

func NewTransactionParams(seg *rawtx.Segments, proof *MerkleProof) TransactionParams {
	return TransactionParams{
		Version:           seg.Version,
		Vin:               seg.Vin,
		Vout:              seg.Vout,
		Locktime:          seg.Locktime,
		IntermediateNodes: proof.IntermediateNodes,
		BlockHeight:       new(big.Int).SetUint64(proof.BlockHeight),
		Index:             new(big.Int).SetUint64(proof.Index),
	}
}

// EncodeProof ABI encodes (address borrower_address, TransactionParams, bytes block_header).
func EncodeProof(seg *rawtx.Segments, proof *MerkleProof, blockHeader []byte, borrower ethcommon.Address) ([]byte, error) {
	return proofArguments.Pack(borrower, NewTransactionParams(seg, proof), blockHeader)
}

// DecodeProof is the inverse of EncodeProof.
func DecodeProof(data []byte) (ethcommon.Address, *TransactionParams, []byte, error) {
	values, err := proofArguments.Unpack(data)
	if err != nil {
		return ethcommon.Address{}, nil, nil, err
	}
	if len(values) != 3 {
		return ethcommon.Address{}, nil, nil, fmt.Errorf("decoded %d values, want 3", len(values))
	}
	borrower, ok := values[0].(ethcommon.Address)
	if !ok {
		return ethcommon.Address{}, nil, nil, fmt.Errorf("borrower_address has type %T", values[0])
	}
	tp, ok := abi.ConvertType(values[1], new(TransactionParams)).(*TransactionParams)
	if !ok {
		return ethcommon.Address{}, nil, nil, fmt.Errorf("tp has type %T", values[1])
	}
	header, ok := values[2].([]byte)
	if !ok {
		return ethcommon.Address{}, nil, nil, fmt.Errorf("block_header has type %T", values[2])
	}
	return borrower, tp, header, nil
}

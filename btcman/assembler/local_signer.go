// Implements the Signer interface
// 1) Uses a local private key as backbone.
// 2) Receives and spends via its P2WPKH (segwit v0) address only.

package assembler

import (
	"bytes"
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	logger "github.com/sirupsen/logrus"
)

// Basic single private key signer
type NativeSigner struct {
	ChainConfig *chaincfg.Params  // which BTC chain it is on. (mainnet, testnet, regtest)
	PrivKey     *btcec.PrivateKey // private key
	PubKey      *btcec.PublicKey  // public key accordingly
}

// Recover a basic signer from
// private key string (aka wallet-import-format, WIF)
// This is the standard private key string that bitcoin-core software exports.
func NewNativeSigner(priv_key_wif_str string, chain_config *chaincfg.Params) (*NativeSigner, error) {
	priv_key_wif, err := DecodeWIF(priv_key_wif_str)
	if err != nil {
		return nil, err
	}
	if !priv_key_wif.IsForNet(chain_config) {
		return nil, fmt.Errorf("private key is not for network %s", chain_config.Name)
	}
	return &NativeSigner{chain_config, priv_key_wif.PrivKey, priv_key_wif.PrivKey.PubKey()}, nil
}

// LocalSigner signs P2WPKH inputs locked to its own key.
type LocalSigner struct {
	NativeSigner
	P2WPKH      *btcutil.AddressWitnessPubKeyHash // call .EncodeAddress() to get the bech32 address
	pkScript    []byte
	broadcaster Broadcaster
}

// broadcaster can be nil for an offline signer, Broadcast() then fails.
func NewLocalSigner(ns NativeSigner, broadcaster Broadcaster) (*LocalSigner, error) {
	p2wpkhAddr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(ns.PubKey.SerializeCompressed()), ns.ChainConfig)
	if err != nil {
		return nil, err
	}
	pkScript, err := txscript.PayToAddrScript(p2wpkhAddr)
	if err != nil {
		return nil, err
	}
	return &LocalSigner{ns, p2wpkhAddr, pkScript, broadcaster}, nil
}

// Address is the bech32 address of the signer.
func (ls *LocalSigner) Address() string {
	return ls.P2WPKH.EncodeAddress()
}

// PkScript is the locking script paying to the signer.
func (ls *LocalSigner) PkScript() []byte {
	return ls.pkScript
}

func (ls *LocalSigner) Accounts(ctx context.Context) ([]string, error) {
	return []string{ls.Address()}, nil
}

// SignPsbt signs inputIndexes with sighash.
// Every input of the packet must carry its WitnessUtxo,
// since segwit signatures commit to the amount being spent.
func (ls *LocalSigner) SignPsbt(ctx context.Context, packet *psbt.Packet, inputIndexes []int, sighash txscript.SigHashType) (*psbt.Packet, error) {
	fetcher, err := PrevOutputFetcher(packet)
	if err != nil {
		return nil, err
	}
	tx := packet.UnsignedTx
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return nil, err
	}

	for _, idx := range inputIndexes {
		if idx < 0 || idx >= len(packet.Inputs) {
			return nil, fmt.Errorf("input index %d out of range [0, %d)", idx, len(packet.Inputs))
		}
		prevOut := packet.Inputs[idx].WitnessUtxo
		if !txscript.IsPayToWitnessPubKeyHash(prevOut.PkScript) {
			return nil, fmt.Errorf("input %d: %w", idx, ErrUnsupportedScript)
		}
		if !bytes.Equal(prevOut.PkScript, ls.pkScript) {
			return nil, fmt.Errorf("input %d, signer %s: %w", idx, ls.Address(), ErrNotOwner)
		}

		recorded := packet.Inputs[idx].SighashType
		if recorded != 0 && recorded != sighash {
			return nil, fmt.Errorf("input %d asks for sighash 0x%x, got 0x%x", idx, recorded, sighash)
		}

		sig, err := txscript.RawTxInWitnessSignature(tx, sigHashes, idx, prevOut.Value, prevOut.PkScript, sighash, ls.PrivKey)
		if err != nil {
			return nil, err
		}

		if recorded == 0 {
			if err := updater.AddInSighashType(sighash, idx); err != nil {
				return nil, err
			}
		}
		outcome, err := updater.Sign(idx, sig, ls.PubKey.SerializeCompressed(), nil, nil)
		if err != nil {
			return nil, err
		}
		if outcome != psbt.SignSuccesful {
			return nil, fmt.Errorf("input %d: cannot attach signature, outcome %d", idx, outcome)
		}

		logger.WithFields(logger.Fields{
			"input":   idx,
			"sighash": fmt.Sprintf("0x%x", uint32(sighash)),
			"signer":  ls.Address(),
		}).Debug("signed psbt input")
	}
	return packet, nil
}

func (ls *LocalSigner) Broadcast(ctx context.Context, rawTxHex string) (string, error) {
	if ls.broadcaster == nil {
		return "", ErrNoBroadcaster
	}
	return ls.broadcaster.Broadcast(ctx, rawTxHex)
}

// PrevOutputFetcher maps every input's outpoint to its WitnessUtxo.
func PrevOutputFetcher(packet *psbt.Packet) (*txscript.MultiPrevOutFetcher, error) {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for idx, txIn := range packet.UnsignedTx.TxIn {
		if idx >= len(packet.Inputs) || packet.Inputs[idx].WitnessUtxo == nil {
			return nil, fmt.Errorf("input %d: %w", idx, ErrMissingPrevOut)
		}
		fetcher.AddPrevOut(txIn.PreviousOutPoint, packet.Inputs[idx].WitnessUtxo)
	}
	return fetcher, nil
}

// PrevOutputs is like PrevOutputFetcher but returns a plain map.
func PrevOutputs(packet *psbt.Packet) (map[wire.OutPoint]*wire.TxOut, error) {
	out := make(map[wire.OutPoint]*wire.TxOut, len(packet.UnsignedTx.TxIn))
	for idx, txIn := range packet.UnsignedTx.TxIn {
		if idx >= len(packet.Inputs) || packet.Inputs[idx].WitnessUtxo == nil {
			return nil, fmt.Errorf("input %d: %w", idx, ErrMissingPrevOut)
		}
		out[txIn.PreviousOutPoint] = packet.Inputs[idx].WitnessUtxo
	}
	return out, nil
}

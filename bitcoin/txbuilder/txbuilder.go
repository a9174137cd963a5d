// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"

	"github.com/BoostyLabs/tradewallet/bitcoin"
	"github.com/BoostyLabs/tradewallet/bitcoin/funding"
	"github.com/BoostyLabs/tradewallet/bitcoin/signer"
	"github.com/BoostyLabs/tradewallet/bitcoin/utils"
)

const (
	// txVersion defines transaction version for this builder.
	txVersion int32 = 2
	// lockTimeSequence defines sequence of inputs which enables lock time of a transaction.
	lockTimeSequence = wire.MaxTxInSequenceNum - 1
	// msOutputIndex defines index of the multi-sig output in the deposit transaction.
	msOutputIndex = 0
	// contractHashOutputIndex defines index of the contract hash output in the deposit transaction.
	contractHashOutputIndex = 1
)

var (
	// ErrInvalidParams defines that provided builder params are malformed.
	ErrInvalidParams = errors.New("invalid transaction params")
	// ErrUnknownScriptType defines that spent output is not of a multi-sig script type.
	ErrUnknownScriptType = errors.New("output should be a P2WSH or P2SH script")
)

// TxLookup provides wallet transactions by hash.
type TxLookup interface {
	Transaction(hash chainhash.Hash) (*wire.MsgTx, error)
}

// TxBuilder provides transaction building related logic.
type TxBuilder struct {
	networkParams *chaincfg.Params
	signer        *signer.Signer
	funder        funding.Funder
	txLookup      TxLookup
}

// NewTxBuilder is a constructor for TxBuilder.
func NewTxBuilder(networkParams *chaincfg.Params, signer *signer.Signer, funder funding.Funder, txLookup TxLookup) *TxBuilder {
	return &TxBuilder{
		networkParams: networkParams,
		signer:        signer,
		funder:        funder,
		txLookup:      txLookup,
	}
}

// Signer returns underlying signer.
func (b *TxBuilder) Signer() *signer.Signer {
	return b.signer
}

// addOutput adds output paying amount to the address.
func (b *TxBuilder) addOutput(tx *wire.MsgTx, amount btcutil.Amount, address string) error {
	if amount < 0 {
		return fmt.Errorf("%w: negative output amount %v", ErrInvalidParams, amount)
	}

	pkScript, err := utils.PayToAddress(b.networkParams, address)
	if err != nil {
		return err
	}

	tx.AddTxOut(wire.NewTxOut(int64(amount), pkScript))

	return nil
}

// payToAddress returns output script of the address.
func (b *TxBuilder) payToAddress(address string) ([]byte, error) {
	return utils.PayToAddress(b.networkParams, address)
}

// rawInputs converts funding inputs to raw inputs, parent transactions are taken from the wallet.
func (b *TxBuilder) rawInputs(tx *wire.MsgTx, from int) ([]bitcoin.RawInput, error) {
	rawInputs := make([]bitcoin.RawInput, 0, len(tx.TxIn)-from)
	for idx := from; idx < len(tx.TxIn); idx++ {
		outPoint := tx.TxIn[idx].PreviousOutPoint

		parentTx, err := b.txLookup.Transaction(outPoint.Hash)
		if err != nil {
			return nil, fmt.Errorf("%w: parent tx %v of input %d: %v", bitcoin.ErrWalletInconsistent, outPoint.Hash, idx, err)
		}

		rawInput, err := bitcoin.NewRawInput(parentTx, outPoint.Index)
		if err != nil {
			return nil, err
		}
		rawInputs = append(rawInputs, rawInput)
	}

	return rawInputs, nil
}

// spendMultiSig assembles input spending multi-sig output with provided signatures
// in the script keys order and checks that it spends the output.
// Witness is used for P2WSH outputs and signature script for P2SH ones.
func spendMultiSig(tx *wire.MsgTx, idx int, redeemScript []byte, prevOut *wire.TxOut, sigs ...[]byte) error {
	withHashType := make([][]byte, 0, len(sigs))
	for _, sig := range sigs {
		withHashType = append(withHashType, signer.WithHashType(sig))
	}

	in := tx.TxIn[idx]
	switch utils.ClassifyScript(prevOut.PkScript) {
	case utils.P2WSH:
		in.SignatureScript = nil
		in.Witness = utils.MultiSigWitness(redeemScript, withHashType...)
	case utils.P2SH:
		sigScript, err := utils.MultiSigSigScript(redeemScript, withHashType...)
		if err != nil {
			return err
		}

		in.SignatureScript = sigScript
		in.Witness = nil
	default:
		return ErrUnknownScriptType
	}

	if err := signer.CheckScriptSig(tx, idx, prevOut, nil); err != nil {
		return bitcoin.NewVerificationError(fmt.Sprintf("input %d does not spend multi-sig output", idx), err)
	}

	return nil
}

// parsePeerSignature checks that signature received from the trade peer is a DER signature.
func parsePeerSignature(sig []byte, who string) error {
	if _, err := ecdsa.ParseDERSignature(sig); err != nil {
		return bitcoin.NewCounterpartyError(fmt.Sprintf("invalid %s signature encoding: %v", who, err))
	}

	return nil
}

// depositMsOutput returns the multi-sig output of the deposit transaction.
func depositMsOutput(depositTx *wire.MsgTx) (*wire.OutPoint, *wire.TxOut, error) {
	if depositTx == nil || len(depositTx.TxOut) <= msOutputIndex {
		return nil, nil, fmt.Errorf("%w: deposit tx has no multi-sig output", ErrInvalidParams)
	}

	hash := depositTx.TxHash()

	return wire.NewOutPoint(&hash, msOutputIndex), depositTx.TxOut[msOutputIndex], nil
}

// singleInputTx returns transaction of txVersion spending provided outpoint.
func singleInputTx(outPoint *wire.OutPoint, sequence uint32) *wire.MsgTx {
	tx := wire.NewMsgTx(txVersion)
	in := wire.NewTxIn(outPoint, nil, nil)
	in.Sequence = sequence
	tx.AddTxIn(in)

	return tx
}

// printTx logs transaction details at debug level.
func printTx(tracingInfo string, tx *wire.MsgTx) {
	log.Debugf("%s: %v", tracingInfo, newLogClosure(func() string {
		return tx.TxHash().String() + "\n" + spew.Sdump(tx)
	}))
}

// prevOutsFetcher returns fetcher of the connected outputs.
func prevOutsFetcher(prevOuts map[wire.OutPoint]*wire.TxOut) txscript.PrevOutputFetcher {
	return txscript.NewMultiPrevOutFetcher(prevOuts)
}

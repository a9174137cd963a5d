// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package signer

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/tradewallet/bitcoin"
)

// CheckScriptSig checks that input correctly spends connected output.
func CheckScriptSig(tx *wire.MsgTx, idx int, prevOut *wire.TxOut, fetcher txscript.PrevOutputFetcher) error {
	if fetcher == nil {
		fetcher = txscript.NewCannedPrevOutputFetcher(prevOut.PkScript, prevOut.Value)
	}

	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	vm, err := txscript.NewEngine(prevOut.PkScript, tx, idx, txscript.StandardVerifyFlags, nil,
		sigHashes, prevOut.Value, fetcher)
	if err != nil {
		return err
	}

	return vm.Execute()
}

// VerifyInputs checks that inputs in [from, to) range correctly spend their connected outputs.
func VerifyInputs(tx *wire.MsgTx, from, to int, fetcher txscript.PrevOutputFetcher) error {
	for idx := from; idx < to; idx++ {
		prevOut := fetcher.FetchPrevOutput(tx.TxIn[idx].PreviousOutPoint)
		if prevOut == nil {
			return bitcoin.NewVerificationError(fmt.Sprintf("input %d", idx), fmt.Errorf("unknown connected output"))
		}

		if err := CheckScriptSig(tx, idx, prevOut, fetcher); err != nil {
			return bitcoin.NewVerificationError(fmt.Sprintf("input %d does not spend connected output", idx), err)
		}
	}

	return nil
}

// checkSanity runs context free consensus checks.
func checkSanity(tx *wire.MsgTx) error {
	return blockchain.CheckTransactionSanity(btcutil.NewTx(tx))
}

// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package utils

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// NewTradeMultiSigAddress generates P2WSH address of the 2 of 2 deposit output.
func NewTradeMultiSigAddress(chainParams *chaincfg.Params, buyerPubKey, sellerPubKey []byte) (*btcutil.AddressWitnessScriptHash, error) {
	redeemScript, err := NewTradeRedeemScript(buyerPubKey, sellerPubKey)
	if err != nil {
		return nil, err
	}

	scriptHash := sha256.Sum256(redeemScript)

	return btcutil.NewAddressWitnessScriptHash(scriptHash[:], chainParams)
}

// PayToAddress decodes address for provided network and returns its output script.
func PayToAddress(chainParams *chaincfg.Params, address string) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(address, chainParams)
	if err != nil {
		return nil, err
	}

	return txscript.PayToAddrScript(decoded)
}

// MustPayToAddress uses PayToAddress, panics in case of error.
func MustPayToAddress(chainParams *chaincfg.Params, address string) []byte {
	script, err := PayToAddress(chainParams, address)
	if err != nil {
		panic(err)
	}

	return script
}

// AddressOfScript returns address encoded output script pays to, empty string for non-standard scripts.
func AddressOfScript(chainParams *chaincfg.Params, pkScript []byte) string {
	_, addresses, _, err := txscript.ExtractPkScriptAddrs(pkScript, chainParams)
	if err != nil || len(addresses) != 1 {
		return ""
	}

	return addresses[0].EncodeAddress()
}

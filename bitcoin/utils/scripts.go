// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package utils

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// ErrInvalidPubKey defines that provided public key can't be used in a script.
var ErrInvalidPubKey = errors.New("invalid public key")

// NewMultiSigRedeemScript generates M of N multi-sig redeem script with keys in exactly the provided order.
// INFO: Script will have the next format: {<required> <pubKey1> ... <pubKeyN> <N> OP_CHECKMULTISIG}.
// NOTE: Keys are never sorted, both trade peers must pass them in the same order.
func NewMultiSigRedeemScript(required int, pubKeys ...[]byte) ([]byte, error) {
	if required < 1 || required > len(pubKeys) {
		return nil, fmt.Errorf("invalid multi-sig threshold %d of %d", required, len(pubKeys))
	}
	if len(pubKeys) > txscript.MaxPubKeysPerMultiSig {
		return nil, fmt.Errorf("max allowed public keys: %d", txscript.MaxPubKeysPerMultiSig)
	}

	scriptBuilder := txscript.NewScriptBuilder().AddInt64(int64(required))
	for _, pubKey := range pubKeys {
		if err := checkPubKey(pubKey); err != nil {
			return nil, err
		}

		scriptBuilder.AddData(pubKey)
	}

	return scriptBuilder.
		AddInt64(int64(len(pubKeys))).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
}

// NewTradeRedeemScript generates 2 of 2 redeem script of the deposit output.
// NOTE: Keys order is (seller, buyer), the reverse of the order traders are usually named.
func NewTradeRedeemScript(buyerPubKey, sellerPubKey []byte) ([]byte, error) {
	return NewMultiSigRedeemScript(2, sellerPubKey, buyerPubKey)
}

// MustTradeRedeemScript uses NewTradeRedeemScript, panics in case of error.
func MustTradeRedeemScript(buyerPubKey, sellerPubKey []byte) []byte {
	script, err := NewTradeRedeemScript(buyerPubKey, sellerPubKey)
	if err != nil {
		panic(err)
	}

	return script
}

// NewDisputeRedeemScript generates 2 of 3 redeem script of the deposit output with arbitrator key.
// NOTE: Keys order is (arbitrator, seller, buyer).
func NewDisputeRedeemScript(buyerPubKey, sellerPubKey, arbitratorPubKey []byte) ([]byte, error) {
	return NewMultiSigRedeemScript(2, arbitratorPubKey, sellerPubKey, buyerPubKey)
}

// NewWarningScript generates locking script of the warning output.
// INFO: Script will have the next format:
//
//	OP_IF
//	    2 <buyerPubKey> <sellerPubKey> 2 OP_CHECKMULTISIG
//	OP_ELSE
//	    <claimDelay> OP_CHECKSEQUENCEVERIFY OP_DROP <claimerPubKey> OP_CHECKSIG
//	OP_ENDIF
//
// The first branch lets both traders redirect funds at once, the second one
// lets the warning publisher claim funds after claimDelay blocks.
func NewWarningScript(buyerPubKey, sellerPubKey []byte, claimerIsBuyer bool, claimDelay uint32) ([]byte, error) {
	for _, pubKey := range [][]byte{buyerPubKey, sellerPubKey} {
		if err := checkPubKey(pubKey); err != nil {
			return nil, err
		}
	}
	if claimDelay == 0 || claimDelay&wire.SequenceLockTimeMask != claimDelay {
		return nil, fmt.Errorf("invalid claim delay %d", claimDelay)
	}

	claimerPubKey := sellerPubKey
	if claimerIsBuyer {
		claimerPubKey = buyerPubKey
	}

	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_IF).
		AddInt64(2).
		AddData(buyerPubKey).
		AddData(sellerPubKey).
		AddInt64(2).
		AddOp(txscript.OP_CHECKMULTISIG).
		AddOp(txscript.OP_ELSE).
		AddInt64(int64(claimDelay)).
		AddOp(txscript.OP_CHECKSEQUENCEVERIFY).
		AddOp(txscript.OP_DROP).
		AddData(claimerPubKey).
		AddOp(txscript.OP_CHECKSIG).
		AddOp(txscript.OP_ENDIF).
		Script()
}

// WitnessScriptHash generates pay-to-witness-script-hash output script.
func WitnessScriptHash(witnessScript []byte) ([]byte, error) {
	scriptHash := sha256.Sum256(witnessScript)

	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(scriptHash[:]).
		Script()
}

// MustWitnessScriptHash uses WitnessScriptHash, panics in case of error.
func MustWitnessScriptHash(witnessScript []byte) []byte {
	script, err := WitnessScriptHash(witnessScript)
	if err != nil {
		panic(err)
	}

	return script
}

// ScriptHash generates legacy pay-to-script-hash output script.
func ScriptHash(redeemScript []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(redeemScript)).
		AddOp(txscript.OP_EQUAL).
		Script()
}

// MultiSigWitness assembles witness spending multi-sig redeem script.
// Signatures must contain hash type byte and follow the keys order of the script.
// INFO: The first empty item is consumed by the OP_CHECKMULTISIG off-by-one bug.
func MultiSigWitness(redeemScript []byte, sigs ...[]byte) wire.TxWitness {
	witness := make(wire.TxWitness, 0, len(sigs)+2)
	witness = append(witness, nil)
	witness = append(witness, sigs...)

	return append(witness, redeemScript)
}

// MultiSigSigScript assembles legacy P2SH signature script spending multi-sig redeem script.
func MultiSigSigScript(redeemScript []byte, sigs ...[]byte) ([]byte, error) {
	scriptBuilder := txscript.NewScriptBuilder().AddOp(txscript.OP_0)
	for _, sig := range sigs {
		scriptBuilder.AddData(sig)
	}

	return scriptBuilder.AddData(redeemScript).Script()
}

// WarningMultiSigWitness assembles witness spending warning output via multi-sig branch.
// Signatures order is (buyer, seller) following the warning script keys order.
func WarningMultiSigWitness(warningScript, buyerSig, sellerSig []byte) wire.TxWitness {
	return wire.TxWitness{nil, buyerSig, sellerSig, {0x01}, warningScript}
}

// WarningClaimWitness assembles witness spending warning output via delayed claim branch.
func WarningClaimWitness(warningScript, claimerSig []byte) wire.TxWitness {
	return wire.TxWitness{claimerSig, nil, warningScript}
}

// NewUnspendableScript builds provably unspendable script (e.g. OP_RETURN) with optional data added after.
// INFO: Def: https://en.bitcoin.it/wiki/OP_RETURN.
func NewUnspendableScript(msg ...byte) ([]byte, error) {
	scriptBuilder := txscript.NewScriptBuilder().AddOp(txscript.OP_RETURN)
	if len(msg) > 0 {
		scriptBuilder.AddData(msg)
	}

	return scriptBuilder.Script()
}

// MustUnspendableScript uses NewUnspendableScript, panics in case of error.
func MustUnspendableScript(msg ...byte) []byte {
	script, err := NewUnspendableScript(msg...)
	if err != nil {
		panic(err)
	}

	return script
}

// IsUnspendable returns true if script is OP_RETURN output script.
func IsUnspendable(script []byte) bool {
	return len(script) > 0 && script[0] == txscript.OP_RETURN
}

// checkPubKey checks that bytes are a valid compressed public key.
func checkPubKey(pubKey []byte) error {
	if len(pubKey) != btcec.PubKeyBytesLenCompressed {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPubKey, btcec.PubKeyBytesLenCompressed, len(pubKey))
	}

	if _, err := btcec.ParsePubKey(pubKey); err != nil {
		return errors.Join(ErrInvalidPubKey, err)
	}

	return nil
}

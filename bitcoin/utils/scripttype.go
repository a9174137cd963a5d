// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package utils

import (
	"github.com/btcsuite/btcd/txscript"
)

// ScriptType defines output script template.
type ScriptType string

const (
	// P2PK defines P2PK (public key) script type.
	P2PK ScriptType = "P2PK"
	// P2PKH defines P2PKH (public key hash) script type.
	P2PKH ScriptType = "P2PKH"
	// P2SH defines P2SH (script hash) script type.
	P2SH ScriptType = "P2SH"
	// P2WPKH defines P2WPKH (witness public key hash) script type.
	P2WPKH ScriptType = "P2WPKH"
	// P2WSH defines P2WSH (witness script hash) script type.
	P2WSH ScriptType = "P2WSH"
	// P2TR defines P2TR (taproot) script type.
	P2TR ScriptType = "P2TR"
	// NullData defines OP_RETURN script type.
	NullData ScriptType = "NULL_DATA"
	// NonStandard defines any other script.
	NonStandard ScriptType = "NON_STANDARD"
)

// ClassifyScript returns template of the output script.
func ClassifyScript(pkScript []byte) ScriptType {
	switch txscript.GetScriptClass(pkScript) {
	case txscript.PubKeyTy:
		return P2PK
	case txscript.PubKeyHashTy:
		return P2PKH
	case txscript.ScriptHashTy:
		return P2SH
	case txscript.WitnessV0PubKeyHashTy:
		return P2WPKH
	case txscript.WitnessV0ScriptHashTy:
		return P2WSH
	case txscript.WitnessV1TaprootTy:
		return P2TR
	case txscript.NullDataTy:
		return NullData
	default:
		return NonStandard
	}
}

// IsSegWit returns true if script is a witness program.
func (t ScriptType) IsSegWit() bool {
	return t == P2WPKH || t == P2WSH || t == P2TR
}

// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/tradewallet/bitcoin"
	"github.com/BoostyLabs/tradewallet/bitcoin/utils"
)

// ErrPSBTInputBuilder defines errors class for prepare input data method.
var ErrPSBTInputBuilder = errors.New("prepare psbt input")

// PSBTInputBuilder is a helping tool to prepare psbt input of a trade funding input
// based on the type of the spent output.
type PSBTInputBuilder struct {
	role       bitcoin.Role
	scriptType utils.ScriptType
	parentTx   *wire.MsgTx
	prevOut    *wire.TxOut
}

// NewPSBTInputBuilder is a constructor for PSBTInputBuilder.
func NewPSBTInputBuilder(rawInput bitcoin.RawInput, role bitcoin.Role) (pib *PSBTInputBuilder, err error) {
	pib = &PSBTInputBuilder{role: role}

	defer func(err *error) {
		if err != nil && *err != nil {
			*err = errors.Join(ErrPSBTInputBuilder, *err)
		}
	}(&err)

	pib.parentTx, err = rawInput.ParentTransaction()
	if err != nil {
		return pib, err
	}
	pib.prevOut = pib.parentTx.TxOut[rawInput.Index]

	pib.scriptType = utils.ClassifyScript(pib.prevOut.PkScript)
	switch pib.scriptType {
	case utils.P2PK, utils.P2PKH, utils.P2WPKH:
	default:
		return pib, fmt.Errorf("unsupported funding input type %v", pib.scriptType)
	}

	return pib, nil
}

// PrepareInput updates input with required data based on spent output type.
// Segwit inputs carry the spent output only, legacy ones the whole parent transaction.
func (pib *PSBTInputBuilder) PrepareInput(input *psbt.PInput) {
	if pib.scriptType.IsSegWit() {
		input.WitnessUtxo = pib.prevOut
	} else {
		input.NonWitnessUtxo = pib.parentTx
	}
	input.SighashType = txscript.SigHashAll
}

// InputsHelpingKey return InputsHelpingKey for role input indexes distinguishing.
func (pib *PSBTInputBuilder) InputsHelpingKey() InputsHelpingKey {
	return InputsHelpingKeyOf(pib.role)
}

// ScriptType returns underlying script type.
func (pib *PSBTInputBuilder) ScriptType() utils.ScriptType {
	return pib.scriptType
}

// PrevOut returns spent output.
func (pib *PSBTInputBuilder) PrevOut() *wire.TxOut {
	return pib.prevOut
}

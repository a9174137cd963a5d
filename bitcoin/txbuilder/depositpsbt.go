// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/tradewallet/bitcoin"
)

// maxWitnessItems limits witness stack of a deposit input.
const maxWitnessItems = 16

// DepositPSBT describes decoded deposit PSBT.
type DepositPSBT struct {
	// Tx carries signatures of the inputs finalized by the sender.
	Tx       *wire.MsgTx
	PrevOuts map[wire.OutPoint]*wire.TxOut

	BuyerInputs  []int
	SellerInputs []int
	MakerInputs  []int
}

// EncodeDepositPSBT serializes deposit transaction as PSBT with role tagged input indexes.
// Signed inputs are written as finalized ones.
func EncodeDepositPSBT(deposit *PreparedDepositTx) ([]byte, error) {
	p, sigScripts, witnesses, err := psbt.NewFromSignedTx(deposit.Tx)
	if err != nil {
		return nil, err
	}

	idx := 0
	for _, role := range []bitcoin.Role{bitcoin.RoleBuyer, bitcoin.RoleSeller} {
		rawInputs := deposit.SellerInputs
		if role == bitcoin.RoleBuyer {
			rawInputs = deposit.BuyerInputs
		}

		for _, rawInput := range rawInputs {
			pib, err := NewPSBTInputBuilder(rawInput, role)
			if err != nil {
				return nil, err
			}

			input := &p.Inputs[idx]
			pib.PrepareInput(input)
			if len(sigScripts[idx]) > 0 {
				input.FinalScriptSig = sigScripts[idx]
			}
			if len(witnesses[idx]) > 0 {
				w := new(bytes.Buffer)
				if err = psbt.WriteTxWitness(w, witnesses[idx]); err != nil {
					return nil, err
				}
				input.FinalScriptWitness = w.Bytes()
			}
			idx++
		}
	}

	buyerTo := len(deposit.BuyerInputs)
	sellerTo := buyerTo + len(deposit.SellerInputs)
	makerFrom, makerTo := deposit.makerRange()
	for _, tag := range []struct {
		key     InputsHelpingKey
		indexes []int
	}{
		{BuyerInputsHelpingKey, indexRange(0, buyerTo)},
		{SellerInputsHelpingKey, indexRange(buyerTo, sellerTo)},
		{MakerInputsHelpingKey, indexRange(makerFrom, makerTo)},
	} {
		if err = addInputIndexes(p, tag.key, tag.indexes); err != nil {
			return nil, err
		}
	}

	w := new(bytes.Buffer)
	if err = p.Serialize(w); err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}

// DecodeDepositPSBT parses deposit PSBT produced by EncodeDepositPSBT.
func DecodeDepositPSBT(data []byte) (*DepositPSBT, error) {
	p, err := psbt.NewFromRawBytes(bytes.NewReader(data), false)
	if err != nil {
		return nil, err
	}

	indexes, err := inputIndexes(p)
	if err != nil {
		return nil, err
	}

	deposit := &DepositPSBT{
		Tx:           p.UnsignedTx.Copy(),
		PrevOuts:     make(map[wire.OutPoint]*wire.TxOut, len(p.Inputs)),
		BuyerInputs:  indexes[BuyerInputsHelpingKey],
		SellerInputs: indexes[SellerInputsHelpingKey],
		MakerInputs:  indexes[MakerInputsHelpingKey],
	}

	for idx, in := range deposit.Tx.TxIn {
		input := p.Inputs[idx]

		switch {
		case input.WitnessUtxo != nil:
			deposit.PrevOuts[in.PreviousOutPoint] = input.WitnessUtxo
		case input.NonWitnessUtxo != nil:
			if input.NonWitnessUtxo.TxHash() != in.PreviousOutPoint.Hash ||
				int(in.PreviousOutPoint.Index) >= len(input.NonWitnessUtxo.TxOut) {
				return nil, fmt.Errorf("input %d: parent tx does not match outpoint", idx)
			}
			deposit.PrevOuts[in.PreviousOutPoint] = input.NonWitnessUtxo.TxOut[in.PreviousOutPoint.Index]
		default:
			return nil, fmt.Errorf("input %d: connected output is missing", idx)
		}

		in.SignatureScript = input.FinalScriptSig
		if input.FinalScriptWitness != nil {
			if in.Witness, err = readWitness(input.FinalScriptWitness); err != nil {
				return nil, fmt.Errorf("input %d: %w", idx, err)
			}
		}
	}

	return deposit, nil
}

// readWitness parses witness stack serialized as in the PSBT final witness field.
func readWitness(data []byte) (wire.TxWitness, error) {
	r := bytes.NewReader(data)

	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	if count > maxWitnessItems {
		return nil, fmt.Errorf("too many witness items: %d", count)
	}

	witness := make(wire.TxWitness, count)
	for i := range witness {
		if witness[i], err = wire.ReadVarBytes(r, 0, txscript.MaxScriptSize, "witness"); err != nil {
			return nil, err
		}
	}

	return witness, nil
}

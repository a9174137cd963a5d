// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/tlv"
)

const (
	// rawInputIndexType defines tlv type of the output index record.
	rawInputIndexType tlv.Type = 0
	// rawInputParentTxType defines tlv type of the serialized parent transaction record.
	rawInputParentTxType tlv.Type = 2
	// rawInputValueType defines tlv type of the output value record.
	rawInputValueType tlv.Type = 4

	// maxRawInputSize limits single encoded raw input, parent tx can't exceed block weight.
	maxRawInputSize = 4_000_000
	// maxRawInputs limits amount of raw inputs in one list.
	maxRawInputs = 1000
)

// RawInput describes one trade funding input in a form transmittable to the trade peer:
// index of the spent output, serialized parent transaction and value of the spent output.
type RawInput struct {
	Index    uint32
	ParentTx []byte
	Value    btcutil.Amount
}

// NewRawInput builds RawInput spending output with provided index of the parent transaction.
func NewRawInput(parentTx *wire.MsgTx, index uint32) (RawInput, error) {
	if int(index) >= len(parentTx.TxOut) {
		return RawInput{}, fmt.Errorf("%w: output index %d out of range", ErrInvalidRawInput, index)
	}

	w := bytes.NewBuffer(make([]byte, 0, parentTx.SerializeSize()))
	if err := parentTx.Serialize(w); err != nil {
		return RawInput{}, err
	}

	return RawInput{
		Index:    index,
		ParentTx: w.Bytes(),
		Value:    btcutil.Amount(parentTx.TxOut[index].Value),
	}, nil
}

// ParentTransaction deserializes parent transaction and checks that it is
// consistent with the index and the value.
func (r RawInput) ParentTransaction() (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(r.ParentTx)); err != nil {
		return nil, errors.Join(ErrInvalidRawInput, err)
	}

	if int(r.Index) >= len(tx.TxOut) {
		return nil, fmt.Errorf("%w: output index %d out of range", ErrInvalidRawInput, r.Index)
	}

	if tx.TxOut[r.Index].Value != int64(r.Value) {
		return nil, fmt.Errorf("%w: value %d does not match parent output value %d",
			ErrInvalidRawInput, r.Value, tx.TxOut[r.Index].Value)
	}

	return tx, nil
}

// OutPoint derives spent outpoint from the parent transaction.
func (r RawInput) OutPoint() (wire.OutPoint, error) {
	tx, err := r.ParentTransaction()
	if err != nil {
		return wire.OutPoint{}, err
	}

	return wire.OutPoint{Hash: tx.TxHash(), Index: r.Index}, nil
}

// TxIn builds unsigned transaction input spending the raw input,
// returns it with the connected (spent) output.
func (r RawInput) TxIn() (*wire.TxIn, *wire.TxOut, error) {
	tx, err := r.ParentTransaction()
	if err != nil {
		return nil, nil, err
	}

	outPoint := wire.NewOutPoint(ptr(tx.TxHash()), r.Index)
	prevOut := tx.TxOut[r.Index]

	return wire.NewTxIn(outPoint, nil, nil), wire.NewTxOut(prevOut.Value, prevOut.PkScript), nil
}

// Encode writes raw input as tlv stream.
func (r RawInput) Encode(w io.Writer) error {
	var (
		index    = r.Index
		parentTx = r.ParentTx
		value    = uint64(r.Value)
	)

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(rawInputIndexType, &index),
		tlv.MakePrimitiveRecord(rawInputParentTxType, &parentTx),
		tlv.MakePrimitiveRecord(rawInputValueType, &value),
	)
	if err != nil {
		return err
	}

	return stream.Encode(w)
}

// Decode reads raw input from tlv stream, all records are mandatory.
func (r *RawInput) Decode(reader io.Reader) error {
	var (
		index    uint32
		parentTx []byte
		value    uint64
	)

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(rawInputIndexType, &index),
		tlv.MakePrimitiveRecord(rawInputParentTxType, &parentTx),
		tlv.MakePrimitiveRecord(rawInputValueType, &value),
	)
	if err != nil {
		return err
	}

	parsed, err := stream.DecodeWithParsedTypes(reader)
	if err != nil {
		return errors.Join(ErrInvalidRawInput, err)
	}

	for _, typ := range []tlv.Type{rawInputIndexType, rawInputParentTxType, rawInputValueType} {
		if _, ok := parsed[typ]; !ok {
			return fmt.Errorf("%w: missing record %d", ErrInvalidRawInput, typ)
		}
	}

	if value > btcutil.MaxSatoshi {
		return fmt.Errorf("%w: value %d exceeds max satoshi", ErrInvalidRawInput, value)
	}

	r.Index, r.ParentTx, r.Value = index, parentTx, btcutil.Amount(value)

	return nil
}

// EncodeRawInputs serializes list of raw inputs: varint count followed by var bytes encoded inputs.
func EncodeRawInputs(inputs []RawInput) ([]byte, error) {
	w := bytes.NewBuffer(nil)
	if err := wire.WriteVarInt(w, 0, uint64(len(inputs))); err != nil {
		return nil, err
	}

	var record bytes.Buffer
	for _, input := range inputs {
		record.Reset()
		if err := input.Encode(&record); err != nil {
			return nil, err
		}

		if err := wire.WriteVarBytes(w, 0, record.Bytes()); err != nil {
			return nil, err
		}
	}

	return w.Bytes(), nil
}

// DecodeRawInputs parses list of raw inputs encoded by EncodeRawInputs.
func DecodeRawInputs(data []byte) ([]RawInput, error) {
	r := bytes.NewReader(data)
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, errors.Join(ErrInvalidRawInput, err)
	}

	if count > maxRawInputs {
		return nil, fmt.Errorf("%w: too many inputs %d", ErrInvalidRawInput, count)
	}

	inputs := make([]RawInput, 0, count)
	for i := uint64(0); i < count; i++ {
		record, err := wire.ReadVarBytes(r, 0, maxRawInputSize, "raw input")
		if err != nil {
			return nil, errors.Join(ErrInvalidRawInput, err)
		}

		var input RawInput
		if err = input.Decode(bytes.NewReader(record)); err != nil {
			return nil, err
		}

		inputs = append(inputs, input)
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidRawInput, r.Len())
	}

	return inputs, nil
}

// RawInputsValue returns total value of the raw inputs.
func RawInputsValue(inputs []RawInput) btcutil.Amount {
	var total btcutil.Amount
	for _, input := range inputs {
		total += input.Value
	}

	return total
}

func ptr[T any](v T) *T { return &v }

// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"errors"

	"github.com/BoostyLabs/tradewallet/bitcoin"
)

// ErrUnknownInputsHelpingKey defines that inputs help keys is unknown.
var ErrUnknownInputsHelpingKey = errors.New("unknown inputs help keys")

// InputsHelpingKey defines type for additional data in PSBT Unknowns field
// to distinguish inputs of the trade roles and their indexes.
type InputsHelpingKey byte

const (
	// BuyerInputsHelpingKey defines key for inputs of the btc buyer.
	BuyerInputsHelpingKey InputsHelpingKey = 0x10
	// SellerInputsHelpingKey defines key for inputs of the btc seller.
	SellerInputsHelpingKey InputsHelpingKey = 0x20
	// MakerInputsHelpingKey defines key for inputs signed by the offer maker.
	MakerInputsHelpingKey InputsHelpingKey = 0x30
)

// InputsHelpingKeyOf returns key for inputs of the role.
func InputsHelpingKeyOf(role bitcoin.Role) InputsHelpingKey {
	if role == bitcoin.RoleBuyer {
		return BuyerInputsHelpingKey
	}

	return SellerInputsHelpingKey
}

// InputsHelpingKeyFromBytes parses bytes array into InputsHelpingKey if any.
func InputsHelpingKeyFromBytes(b []byte) (InputsHelpingKey, error) {
	if len(b) != 1 {
		return 0, ErrUnknownInputsHelpingKey
	}

	switch b[0] {
	case BuyerInputsHelpingKey.Byte():
		return BuyerInputsHelpingKey, nil
	case SellerInputsHelpingKey.Byte():
		return SellerInputsHelpingKey, nil
	case MakerInputsHelpingKey.Byte():
		return MakerInputsHelpingKey, nil
	}

	return 0, ErrUnknownInputsHelpingKey
}

// Byte returns InputsHelpingKey as byte.
func (k InputsHelpingKey) Byte() byte {
	return byte(k)
}

// Bytes returns InputsHelpingKey as bytes array.
func (k InputsHelpingKey) Bytes() []byte {
	return []byte{byte(k)}
}

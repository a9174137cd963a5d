// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package signer

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// SignHash signs 32 bytes hash producing deterministic (RFC6979) low-S signature.
// With lowR set nonce is re-derived with incremented extra data until R fits
// into 32 bytes of DER encoding (R < 2^255).
func SignHash(privKey *btcec.PrivateKey, hash []byte, lowR bool) *ecdsa.Signature {
	if !lowR {
		return ecdsa.Sign(privKey, hash)
	}

	var (
		privKeyBytes = privKey.Key.Bytes()
		extra        [32]byte
		e            secp256k1.ModNScalar
	)
	e.SetByteSlice(hash)

	for counter := uint32(0); ; counter++ {
		var extraData []byte
		if counter > 0 {
			binary.LittleEndian.PutUint32(extra[:], counter)
			extraData = extra[:]
		}

		k := secp256k1.NonceRFC6979(privKeyBytes[:], hash, extraData, nil, 0)
		sig, ok := signWithNonce(&privKey.Key, &e, k)
		k.Zero()
		if !ok {
			continue
		}

		r := sig.R()
		if rBytes := r.Bytes(); rBytes[0] < 0x80 {
			return sig
		}
	}
}

// signWithNonce produces low-S signature with provided nonce, s = k^-1 * (e + r*d).
// Returns false if nonce gives invalid (zero) r or s.
func signWithNonce(privKey, e, k *secp256k1.ModNScalar) (*ecdsa.Signature, bool) {
	var kG secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(k, &kG)
	kG.ToAffine()

	var r secp256k1.ModNScalar
	r.SetBytes(kG.X.Bytes())
	if r.IsZero() {
		return nil, false
	}

	kInv := new(secp256k1.ModNScalar).InverseValNonConst(k)
	s := new(secp256k1.ModNScalar).Mul2(privKey, &r).Add(e).Mul(kInv)
	if s.IsZero() {
		return nil, false
	}

	if s.IsOverHalfOrder() {
		s.Negate()
	}

	return secpecdsa.NewSignature(&r, s), true
}

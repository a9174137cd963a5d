// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcutil/psbt"
)

// ExtractInputIndexesFromPSBT returns map with role keys and indexes of their inputs.
func ExtractInputIndexesFromPSBT(data []byte) (map[InputsHelpingKey][]int, error) {
	p, err := psbt.NewFromRawBytes(bytes.NewBuffer(data), false)
	if err != nil {
		return nil, err
	}

	return inputIndexes(p)
}

// inputIndexes reads role keyed input indexes from the PSBT Unknowns.
func inputIndexes(p *psbt.Packet) (map[InputsHelpingKey][]int, error) {
	var result = make(map[InputsHelpingKey][]int, 3)
	for _, unknown := range p.Unknowns {
		key, err := InputsHelpingKeyFromBytes(unknown.Key)
		if err != nil {
			return nil, errors.New("unknown input key")
		}

		result[key] = make([]int, len(unknown.Value))
		for idx, val := range unknown.Value {
			if int(val) >= len(p.UnsignedTx.TxIn) {
				return nil, fmt.Errorf("input index %d of %#x out of range", val, key.Byte())
			}
			result[key][idx] = int(val)
		}
	}

	return result, nil
}

// addInputIndexes puts role keyed input indexes into the PSBT Unknowns.
func addInputIndexes(p *psbt.Packet, key InputsHelpingKey, indexes []int) error {
	value := make([]byte, len(indexes))
	for i, idx := range indexes {
		if idx > math.MaxUint8 {
			return fmt.Errorf("input index %d can't be tagged", idx)
		}
		value[i] = byte(idx)
	}

	p.Unknowns = append(p.Unknowns, &psbt.Unknown{Key: key.Bytes(), Value: value})

	return nil
}

// indexRange returns indexes in [from, to) range.
func indexRange(from, to int) []int {
	indexes := make([]int, 0, to-from)
	for idx := from; idx < to; idx++ {
		indexes = append(indexes, idx)
	}

	return indexes
}

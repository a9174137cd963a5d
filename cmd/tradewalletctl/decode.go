// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package main

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/davecgh/go-spew/spew"

	"github.com/BoostyLabs/tradewallet/bitcoin"
	"github.com/BoostyLabs/tradewallet/bitcoin/txbuilder"
	"github.com/BoostyLabs/tradewallet/bitcoin/utils"
)

// decodeRawInputsCommand prints raw inputs sent by the offer taker.
type decodeRawInputsCommand struct {
	opts *options

	Args struct {
		Data string `positional-arg-name:"hex" description:"Hex encoded raw inputs"`
	} `positional-args:"yes" required:"yes"`
}

// Execute implements flags.Commander.
func (cmd *decodeRawInputsCommand) Execute(_ []string) error {
	params, err := cmd.opts.setup()
	if err != nil {
		return err
	}

	data, err := hex.DecodeString(strings.TrimSpace(cmd.Args.Data))
	if err != nil {
		return fmt.Errorf("raw inputs hex: %w", err)
	}

	inputs, err := bitcoin.DecodeRawInputs(data)
	if err != nil {
		return err
	}

	for idx, input := range inputs {
		outPoint, err := input.OutPoint()
		if err != nil {
			return fmt.Errorf("input %d: %w", idx, err)
		}
		_, prevOut, err := input.TxIn()
		if err != nil {
			return fmt.Errorf("input %d: %w", idx, err)
		}

		fmt.Printf("%d: %s %s %s\n", idx, outPoint, input.Value,
			utils.AddressOfScript(params, prevOut.PkScript))
	}
	fmt.Printf("total: %s\n", bitcoin.RawInputsValue(inputs))

	return nil
}

// decodeDepositPSBTCommand prints deposit inputs by the trade roles.
type decodeDepositPSBTCommand struct {
	opts *options

	Verbose bool `short:"v" long:"verbose" description:"Dump the whole transaction"`
	Args    struct {
		Data string `positional-arg-name:"base64" description:"Base64 encoded deposit PSBT"`
	} `positional-args:"yes" required:"yes"`
}

// Execute implements flags.Commander.
func (cmd *decodeDepositPSBTCommand) Execute(_ []string) error {
	params, err := cmd.opts.setup()
	if err != nil {
		return err
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(cmd.Args.Data))
	if err != nil {
		return fmt.Errorf("psbt base64: %w", err)
	}

	deposit, err := txbuilder.DecodeDepositPSBT(data)
	if err != nil {
		return err
	}

	fmt.Printf("txid: %s\n", deposit.Tx.TxHash())
	for _, role := range []struct {
		name    string
		indexes []int
	}{
		{"buyer", deposit.BuyerInputs},
		{"seller", deposit.SellerInputs},
		{"maker", deposit.MakerInputs},
	} {
		fmt.Printf("%s inputs:\n", role.name)
		for _, idx := range role.indexes {
			in := deposit.Tx.TxIn[idx]
			prevOut := deposit.PrevOuts[in.PreviousOutPoint]
			fmt.Printf("  %d: %s %s signed=%t\n", idx, in.PreviousOutPoint, btcutil.Amount(prevOut.Value),
				len(in.SignatureScript) > 0 || len(in.Witness) > 0)
		}
	}

	fmt.Println("outputs:")
	for idx, out := range deposit.Tx.TxOut {
		fmt.Printf("  %d: %s %s\n", idx, btcutil.Amount(out.Value), utils.AddressOfScript(params, out.PkScript))
	}

	if cmd.Verbose {
		spew.Dump(deposit.Tx)
	}

	return nil
}

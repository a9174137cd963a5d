// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package main

import (
	"encoding/hex"
	"fmt"

	"github.com/BoostyLabs/tradewallet/bitcoin/utils"
)

// multiSigAddressCommand prints deposit multi-sig address of the traders.
type multiSigAddressCommand struct {
	opts *options

	BuyerPubKey      string `long:"buyerpubkey" description:"Hex encoded buyer multi-sig public key" required:"true"`
	SellerPubKey     string `long:"sellerpubkey" description:"Hex encoded seller multi-sig public key" required:"true"`
	ArbitratorPubKey string `long:"arbitratorpubkey" description:"Hex encoded arbitrator public key of the disputed payout"`
}

// Execute implements flags.Commander.
func (cmd *multiSigAddressCommand) Execute(_ []string) error {
	params, err := cmd.opts.setup()
	if err != nil {
		return err
	}

	buyerPubKey, err := hex.DecodeString(cmd.BuyerPubKey)
	if err != nil {
		return fmt.Errorf("buyer public key: %w", err)
	}
	sellerPubKey, err := hex.DecodeString(cmd.SellerPubKey)
	if err != nil {
		return fmt.Errorf("seller public key: %w", err)
	}

	var redeemScript []byte
	if cmd.ArbitratorPubKey == "" {
		redeemScript, err = utils.NewTradeRedeemScript(buyerPubKey, sellerPubKey)
	} else {
		var arbitratorPubKey []byte
		if arbitratorPubKey, err = hex.DecodeString(cmd.ArbitratorPubKey); err != nil {
			return fmt.Errorf("arbitrator public key: %w", err)
		}
		redeemScript, err = utils.NewDisputeRedeemScript(buyerPubKey, sellerPubKey, arbitratorPubKey)
	}
	if err != nil {
		return err
	}

	pkScript, err := utils.WitnessScriptHash(redeemScript)
	if err != nil {
		return err
	}
	p2shScript, err := utils.ScriptHash(redeemScript)
	if err != nil {
		return err
	}

	fmt.Printf("address: %s\n", utils.AddressOfScript(params, pkScript))
	fmt.Printf("legacy address: %s\n", utils.AddressOfScript(params, p2shScript))
	fmt.Printf("redeem script: %s\n", hex.EncodeToString(redeemScript))

	return nil
}

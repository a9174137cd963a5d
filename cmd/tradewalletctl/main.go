// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

// Command tradewalletctl is an operator tool for trade transactions: it pays out stuck
// deposits with both trader keys and decodes data exchanged by the trade peers.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/jessevdk/go-flags"
)

// options describes flags shared by all commands.
type options struct {
	Network     string `long:"network" description:"Bitcoin network" choice:"mainnet" choice:"testnet" choice:"signet" choice:"regtest" default:"mainnet"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical, off}" default:"info"`
	LogFile     string `long:"logfile" description:"Duplicate log output to the file"`
	MaxLogRolls int    `long:"maxlogrolls" description:"Number of rolled log files to keep" default:"3"`
}

var networks = map[string]*chaincfg.Params{
	"mainnet": &chaincfg.MainNetParams,
	"testnet": &chaincfg.TestNet3Params,
	"signet":  &chaincfg.SigNetParams,
	"regtest": &chaincfg.RegressionNetParams,
}

// setup initializes logging and returns params of the selected network.
func (opts *options) setup() (*chaincfg.Params, error) {
	if opts.LogFile != "" {
		if err := initLogRotator(opts.LogFile, opts.MaxLogRolls); err != nil {
			return nil, err
		}
	}

	if err := setLogLevels(opts.DebugLevel); err != nil {
		return nil, err
	}

	params, ok := networks[opts.Network]
	if !ok {
		return nil, fmt.Errorf("unknown network %q", opts.Network)
	}

	return params, nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}

		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	defer func() {
		if logRotator != nil {
			_ = logRotator.Close()
			logRotator = nil
		}
	}()

	opts := new(options)
	parser := flags.NewParser(opts, flags.Default)

	commands := []struct {
		name, short, long string
		data              interface{}
	}{
		{
			"emergencypayout", "Pay out a stuck deposit",
			"Builds and signs payout of the deposit multi-sig output with both trader keys, optionally publishes it through http relays.",
			&emergencyPayoutCommand{opts: opts},
		},
		{
			"multisigaddress", "Show deposit multi-sig address",
			"Prints address and redeem script of the 2 of 2 deposit output, or the 2 of 3 one when the arbitrator key is provided.",
			&multiSigAddressCommand{opts: opts},
		},
		{
			"decoderawinputs", "Decode serialized raw inputs",
			"Decodes raw inputs list sent by the offer taker and prints spent outpoints and values.",
			&decodeRawInputsCommand{opts: opts},
		},
		{
			"decodedepositpsbt", "Decode deposit PSBT",
			"Decodes base64 deposit PSBT sent by the offer maker and prints inputs of the trade roles.",
			&decodeDepositPSBTCommand{opts: opts},
		},
	}
	for _, command := range commands {
		if _, err := parser.AddCommand(command.name, command.short, command.long, command.data); err != nil {
			return err
		}
	}

	_, err := parser.ParseArgs(args)

	return err
}

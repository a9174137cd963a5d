// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package tradewallet

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/BoostyLabs/tradewallet/bitcoin/broadcaster"
)

// Config describes trade wallet settings.
type Config struct {
	NetworkParams *chaincfg.Params
	// LowR enables grinding of signatures with R value below 2^255.
	LowR bool
	// IgnoreDustThreshold defines value below which wallet outputs are treated as dust attack ones.
	IgnoreDustThreshold btcutil.Amount
	// PermitForeignPending allows funding with unconfirmed outputs received from the network.
	PermitForeignPending bool

	BroadcastTimeout          time.Duration
	EmergencyBroadcastTimeout time.Duration
	Relay                     broadcaster.RelayConfig

	// CommittedCacheSize limits number of remembered committed transactions.
	CommittedCacheSize uint
}

// DefaultConfig returns mainnet config with default values.
func DefaultConfig() Config {
	return Config{
		NetworkParams:             &chaincfg.MainNetParams,
		LowR:                      true,
		BroadcastTimeout:          broadcaster.DefaultTimeout,
		EmergencyBroadcastTimeout: broadcaster.EmergencyTimeout,
		Relay: broadcaster.RelayConfig{
			RatePerSecond: 5,
			Timeout:       10 * time.Second,
		},
		CommittedCacheSize: 1000,
	}
}

// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"

	"github.com/BoostyLabs/tradewallet/bitcoin/broadcaster"
	"github.com/BoostyLabs/tradewallet/bitcoin/funding"
	"github.com/BoostyLabs/tradewallet/bitcoin/signer"
	"github.com/BoostyLabs/tradewallet/bitcoin/tradewallet"
	"github.com/BoostyLabs/tradewallet/bitcoin/txbuilder"
)

// logWriter writes to standard output and to the log rotator if it is initialized.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	if logRotator == nil {
		return os.Stdout.Write(p)
	}
	_, _ = os.Stdout.Write(p)

	return logRotator.Write(p)
}

var (
	backendLog = btclog.NewBackend(logWriter{})

	// logRotator writes log file, it is set by initLogRotator.
	logRotator *rotator.Rotator

	log = backendLog.Logger("CTL")

	subsystemLoggers = map[string]btclog.Logger{
		"CTL":  log,
		"TWAL": backendLog.Logger("TWAL"),
		"FUND": backendLog.Logger("FUND"),
		"SIGN": backendLog.Logger("SIGN"),
		"BCST": backendLog.Logger("BCST"),
		"TXBL": backendLog.Logger("TXBL"),
	}
)

func init() {
	tradewallet.UseLogger(subsystemLoggers["TWAL"])
	funding.UseLogger(subsystemLoggers["FUND"])
	signer.UseLogger(subsystemLoggers["SIGN"])
	broadcaster.UseLogger(subsystemLoggers["BCST"])
	txbuilder.UseLogger(subsystemLoggers["TXBL"])
}

// initLogRotator creates log file rotator, rolled files are kept in the same directory.
func initLogRotator(logFile string, maxRolls int) error {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	r, err := rotator.New(logFile, 10*1024, false, maxRolls)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}
	logRotator = r

	return nil
}

// setLogLevels sets level of the subsystem loggers. The level is either a single
// level for all subsystems or a comma separated list like "info,BCST=debug".
func setLogLevels(debugLevel string) error {
	for _, pair := range strings.Split(debugLevel, ",") {
		subsystem, levelStr, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found {
			levelStr, subsystem = subsystem, ""
		}

		level, ok := btclog.LevelFromString(levelStr)
		if !ok {
			return fmt.Errorf("invalid debug level %q", levelStr)
		}

		if subsystem == "" {
			for _, logger := range subsystemLoggers {
				logger.SetLevel(level)
			}
			continue
		}

		logger, ok := subsystemLoggers[subsystem]
		if !ok {
			return fmt.Errorf("unknown subsystem %q, supported subsystems: %v", subsystem, supportedSubsystems())
		}
		logger.SetLevel(level)
	}

	return nil
}

func supportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsystem := range subsystemLoggers {
		subsystems = append(subsystems, subsystem)
	}
	sort.Strings(subsystems)

	return subsystems
}

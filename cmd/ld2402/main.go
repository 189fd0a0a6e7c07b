// go-ld2402
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-ld2402.
//
// go-ld2402 is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-ld2402 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-ld2402; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Command ld2402 talks to an HLK-LD2402 radar over a serial port. With no
// command it monitors presence and, when configured, forwards readings to
// an MQTT broker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-ld2402"
	"github.com/ZaparooProject/go-ld2402/internal/config"
	"github.com/lmittmann/tint"
)

type cliConfig struct {
	file       *config.Config
	command    string
	logDir     string
	args       []string
	coeffs     ld2402.Coefficients
	iterations int
	debug      bool
}

// Package-level flag variables
var (
	flagConfigPath  string
	flagDevicePath  string
	flagBaudRate    int
	flagDebug       bool
	flagLogDir      string
	flagBroker      string
	flagOutPin      string
	flagTrigger     float64
	flagHold        float64
	flagMicromotion float64
	flagIterations  int
)

func init() {
	flag.StringVar(&flagConfigPath, "config", "", "YAML configuration file")
	flag.StringVar(&flagDevicePath, "device", "", "Serial port (auto-detect if empty)")
	flag.IntVar(&flagBaudRate, "baud", 0, "Serial baud rate (default from config, 115200)")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	flag.StringVar(&flagLogDir, "log-dir", "", "Write a session log with the debug trace to this directory")
	flag.StringVar(&flagBroker, "mqtt", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	flag.StringVar(&flagOutPin, "out-pin", "", "GPIO name wired to the sensor's OUT pin")
	flag.Float64Var(&flagTrigger, "trigger", ld2402.DefaultCalibrationCoefficient, "Calibration trigger coefficient (1-20)")
	flag.Float64Var(&flagHold, "hold", ld2402.DefaultCalibrationCoefficient, "Calibration hold coefficient (1-20)")
	flag.Float64Var(&flagMicromotion, "micromotion", ld2402.DefaultCalibrationCoefficient,
		"Calibration micromotion coefficient (1-20)")
	flag.IntVar(&flagIterations, "iterations", defaultSoakIterations, "Round trips for the soak command")

	flag.Usage = func() {
		out := flag.CommandLine.Output()
		_, _ = fmt.Fprintf(out, "Usage: %s [flags] [command]\n\nCommands:\n", os.Args[0])
		for _, c := range commands {
			_, _ = fmt.Fprintf(out, "  %-14s %s\n", c.name, c.help)
		}
		_, _ = fmt.Fprintln(out, "\nFlags:")
		flag.PrintDefaults()
	}
}

// parseConfig merges the configuration file with the command line. Flags
// win over the file.
func parseConfig(args []string) (*cliConfig, error) {
	file, err := config.Load(flagConfigPath)
	if err != nil {
		return nil, err
	}
	if flagDevicePath != "" {
		file.Serial.Port = flagDevicePath
	}
	if flagBaudRate > 0 {
		file.Serial.BaudRate = flagBaudRate
	}
	if flagBroker != "" {
		file.MQTT.Broker = flagBroker
	}
	if flagOutPin != "" {
		file.OutPin = flagOutPin
	}
	if flagDebug {
		file.Debug = true
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}

	cfg := &cliConfig{
		file:       file,
		command:    commandMonitor,
		logDir:     flagLogDir,
		debug:      file.Debug,
		iterations: flagIterations,
		coeffs: ld2402.Coefficients{
			Trigger:     flagTrigger,
			Hold:        flagHold,
			Micromotion: flagMicromotion,
		},
	}
	if len(args) > 0 {
		cfg.command = args[0]
		cfg.args = args[1:]
	}
	if _, ok := lookupCommand(cfg.command); !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownCommand, cfg.command)
	}
	return cfg, nil
}

// setupLogging routes slog and the driver's debug trace through tint.
func setupLogging(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})))

	ld2402.SetDebugEnabled(debug)
	ld2402.SetDebugSink(func(msg string) {
		slog.Debug(msg)
	})
}

func run(ctx context.Context, cfg *cliConfig) error {
	if cfg.logDir != "" {
		path, err := ld2402.InitSessionLog(cfg.logDir)
		if err != nil {
			return fmt.Errorf("failed to open session log: %w", err)
		}
		slog.Info("session log", "path", path)
		defer func() {
			if err := ld2402.CloseSessionLog(); err != nil {
				slog.Warn("failed to close session log", "err", err)
			}
		}()
	}

	cmd, _ := lookupCommand(cfg.command)
	if cmd.run == nil {
		return cmd.standalone(ctx, cfg)
	}

	device, err := connectToDevice(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := device.Close(); err != nil {
			slog.Warn("failed to close device", "err", err)
		}
	}()
	return cmd.run(ctx, device, cfg)
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg, err := parseConfig(flag.Args())
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		return 2
	}
	setupLogging(os.Stderr, cfg.debug)

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("shutting down")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			// User requested shutdown, exit cleanly
			return 0
		}
		slog.Error("command failed", "command", cfg.command, "err", err)
		return 1
	}
	return 0
}

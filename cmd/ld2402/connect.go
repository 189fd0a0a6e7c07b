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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ZaparooProject/go-ld2402"
	"github.com/ZaparooProject/go-ld2402/detection"
	_ "github.com/ZaparooProject/go-ld2402/detection/uart"
	"github.com/ZaparooProject/go-ld2402/transport/uart"
)

// transportOpener is swapped out by tests.
var transportOpener = func(path string, baud int) (ld2402.Transport, error) {
	return uart.New(path, uart.WithBaudRate(baud))
}

// newTransport opens path as a serial port.
func newTransport(path string, baud int) (ld2402.Transport, error) {
	if path == "" {
		return nil, errors.New("empty device path")
	}
	transport, err := transportOpener(path, baud)
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport for %s: %w", path, err)
	}
	return transport, nil
}

// newTransportFromDevice creates a new transport from a detected device.
func newTransportFromDevice(device detection.DeviceInfo, baud int) (ld2402.Transport, error) {
	if !strings.EqualFold(device.Transport, "uart") {
		return nil, fmt.Errorf("unsupported transport type: %s", device.Transport)
	}
	return newTransport(device.Path, baud)
}

// connectOptions builds the ConnectDevice options for cfg. extra device
// options are applied after the ones from the configuration file.
func connectOptions(cfg *cliConfig, extra ...ld2402.Option) []ld2402.ConnectOption {
	baud := cfg.file.Serial.BaudRate
	opts := []ld2402.ConnectOption{
		ld2402.WithDeviceOptions(cfg.file.DeviceOptions()...),
		ld2402.WithDeviceOptions(extra...),
	}
	if cfg.file.Serial.Port == "" {
		opts = append(opts,
			ld2402.WithAutoDetection(),
			ld2402.WithTransportFromDeviceFactory(func(d detection.DeviceInfo) (ld2402.Transport, error) {
				return newTransportFromDevice(d, baud)
			}))
	} else {
		opts = append(opts, ld2402.WithTransportFactory(func(path string) (ld2402.Transport, error) {
			return newTransport(path, baud)
		}))
	}
	return opts
}

func connectToDevice(ctx context.Context, cfg *cliConfig, extra ...ld2402.Option) (*ld2402.Device, error) {
	if cfg.file.Serial.Port == "" {
		slog.Info("auto-detecting LD2402 sensors")
	} else {
		slog.Debug("opening device", "path", cfg.file.Serial.Port, "baud", cfg.file.Serial.BaudRate)
	}

	device, err := ld2402.ConnectDevice(ctx, cfg.file.Serial.Port, connectOptions(cfg, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LD2402 device: %w", err)
	}

	info := device.Info()
	slog.Info("connected", "device", device.String(), "firmware", info.FirmwareVersion)
	return device, nil
}

// detectionOptions returns the probe settings for the detect command. "full"
// opens a configuration session on each candidate, "passive" only reads USB
// descriptors.
func detectionOptions(cfg *cliConfig) (detection.Options, error) {
	opts := detection.DefaultOptions()
	opts.BaudRate = cfg.file.Serial.BaudRate
	opts.EnableCache = false

	if len(cfg.args) > 0 {
		mode, err := detection.ParseMode(cfg.args[0])
		if err != nil {
			return opts, fmt.Errorf("%w: %w", errUnknownCommand, err)
		}
		opts.Mode = mode
	}
	if len(cfg.args) > 1 {
		opts.Blocklist = append(opts.Blocklist, detection.NormalizeBlocklist(cfg.args[1:])...)
	}
	return opts, nil
}

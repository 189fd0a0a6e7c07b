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
	"io"
	"os"
	"strings"
	"time"

	"github.com/ZaparooProject/go-ld2402"
	"github.com/ZaparooProject/go-ld2402/detection"
)

const (
	commandMonitor = "monitor"

	// loopInterval paces Device.Loop while a one-shot command waits on the sensor.
	loopInterval = 20 * time.Millisecond
	// restoreTimeout bounds the cleanup sent after the user interrupts a command.
	restoreTimeout = 3 * time.Second
)

var errUnknownCommand = errors.New("unknown command")

// stdout receives command output; tests capture it.
var stdout io.Writer = os.Stdout

type command struct {
	// run receives a connected device.
	run func(ctx context.Context, device *ld2402.Device, cfg *cliConfig) error
	// standalone manages its own connection.
	standalone func(ctx context.Context, cfg *cliConfig) error
	name       string
	help       string
}

var commands []command

func init() {
	commands = []command{
		{name: commandMonitor, standalone: runMonitor, help: "report presence until interrupted (default)"},
		{name: "detect", standalone: runDetect, help: "list sensors: detect [passive|safe|full] [blocked VID:PID...]"},
		{name: "info", run: runInfo, help: "print firmware, serial number and configuration"},
		{name: "thresholds", run: runThresholds, help: "print the per-gate trigger thresholds"},
		{name: "calibrate", run: runCalibrate, help: "recalibrate thresholds from the empty room"},
		{name: "autogain", run: runAutoGain, help: "run the automatic gain adjustment"},
		{name: "save", run: runSave, help: "save the current parameters to flash"},
		{name: "engineering", run: runEngineering, help: "stream per-gate energy until interrupted"},
		{name: "normal", run: runNormal, help: "return the sensor to normal reporting"},
		{name: "factory-reset", run: runFactoryReset, help: "restore and save the default parameters"},
		{name: "soak", run: runSoak, help: "repeat configuration round trips and report failures"},
	}
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func runDetect(ctx context.Context, cfg *cliConfig) error {
	opts, err := detectionOptions(cfg)
	if err != nil {
		return err
	}
	devices, err := detection.DetectAll(ctx, &opts)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}
	if len(devices) == 0 {
		_, _ = fmt.Fprintln(stdout, "No LD2402 sensors found")
		return nil
	}
	for _, d := range devices {
		_, _ = fmt.Fprintln(stdout, d.String())
	}
	return nil
}

func runInfo(ctx context.Context, device *ld2402.Device, _ *cliConfig) error {
	serial, err := device.ReadSerialNumber(ctx)
	if err != nil {
		// Older firmware has no serial number query.
		serial = "unavailable"
	}
	info := device.Info()
	_, _ = fmt.Fprintf(stdout, "Firmware:           %s\n", info.FirmwareVersion)
	_, _ = fmt.Fprintf(stdout, "Serial number:      %s\n", serial)
	_, _ = fmt.Fprintf(stdout, "Max distance:       %.1f m\n", info.MaxDistanceM)
	_, _ = fmt.Fprintf(stdout, "Timeout:            %d s\n", info.TimeoutSeconds)
	_, _ = fmt.Fprintf(stdout, "Power interference: %s\n", info.PowerInterference)
	return nil
}

func runThresholds(ctx context.Context, device *ld2402.Device, _ *cliConfig) error {
	if err := device.EnterConfiguration(ctx); err != nil {
		return err
	}
	t, err := device.ReadThresholds(ctx)
	if exitErr := device.ExitConfiguration(ctx); err == nil && exitErr != nil {
		err = exitErr
	}
	if err != nil {
		return fmt.Errorf("failed to read thresholds: %w", err)
	}
	_, _ = fmt.Fprintln(stdout, "Gate  Distance  Motion   Micromotion")
	for gate := range ld2402.GateCount {
		_, _ = fmt.Fprintf(stdout, "%4d  %6.1f m  %5.1f dB  %5.1f dB\n",
			gate, float64(gate+1)*ld2402.GateSizeMeters, t.Motion[gate], t.Micromotion[gate])
	}
	return nil
}

func runCalibrate(ctx context.Context, device *ld2402.Device, cfg *cliConfig) error {
	if err := device.Calibrate(ctx, cfg.coeffs); err != nil {
		return fmt.Errorf("failed to start calibration: %w", err)
	}
	_, _ = fmt.Fprintln(stdout, "Calibrating, keep the room empty...")

	last := -1
	err := driveDevice(ctx, device, func() bool {
		s := device.Calibration()
		if s.Percent != last {
			last = s.Percent
			_, _ = fmt.Fprintf(stdout, "  %3d%%\n", s.Percent)
		}
		return !s.Phase.Active()
	})
	if err != nil {
		return err
	}

	s := device.Calibration()
	if s.Phase != ld2402.PhaseComplete {
		return fmt.Errorf("calibration %s: %w", s.Phase, sessionErr(s.LastErr))
	}
	_, _ = fmt.Fprintln(stdout, "Calibration complete")
	return nil
}

func runAutoGain(ctx context.Context, device *ld2402.Device, _ *cliConfig) error {
	if err := device.StartAutoGain(ctx); err != nil {
		return fmt.Errorf("failed to start auto-gain: %w", err)
	}
	_, _ = fmt.Fprintln(stdout, "Adjusting gain...")

	err := driveDevice(ctx, device, func() bool {
		return !device.AutoGain().Phase.Active()
	})
	if err != nil {
		return err
	}
	if phase := device.AutoGain().Phase; phase != ld2402.PhaseComplete {
		return fmt.Errorf("auto-gain %s: %w", phase, ld2402.ErrTimeout)
	}
	_, _ = fmt.Fprintln(stdout, "Auto-gain complete")
	return nil
}

func sessionErr(err error) error {
	if err == nil {
		return ld2402.ErrTimeout
	}
	return err
}

func runSave(ctx context.Context, device *ld2402.Device, _ *cliConfig) error {
	if err := device.SaveConfiguration(ctx); err != nil {
		return fmt.Errorf("failed to save parameters: %w", err)
	}
	_, _ = fmt.Fprintln(stdout, "Parameters saved")
	return nil
}

func runNormal(ctx context.Context, device *ld2402.Device, _ *cliConfig) error {
	if err := device.SwitchToNormalMode(ctx); err != nil {
		return fmt.Errorf("failed to switch to normal mode: %w", err)
	}
	_, _ = fmt.Fprintln(stdout, "Normal mode")
	return nil
}

func runFactoryReset(ctx context.Context, device *ld2402.Device, _ *cliConfig) error {
	if err := device.FactoryReset(ctx); err != nil {
		return fmt.Errorf("factory reset incomplete: %w", err)
	}
	_, _ = fmt.Fprintln(stdout, "Factory defaults restored")
	return nil
}

// runEngineering prints gate energies until ctx is cancelled and then puts
// the sensor back into normal mode.
func runEngineering(ctx context.Context, device *ld2402.Device, _ *cliConfig) error {
	if err := device.SwitchToEngineeringMode(ctx); err != nil {
		return fmt.Errorf("failed to switch to engineering mode: %w", err)
	}
	device.SetReadingHandler(func(r ld2402.Reading) {
		_, _ = fmt.Fprintln(stdout, formatReading(r))
	})
	defer device.SetReadingHandler(nil)

	err := driveDevice(ctx, device, func() bool { return false })

	restoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()
	if restoreErr := device.SwitchToNormalMode(restoreCtx); restoreErr != nil {
		return errors.Join(err, fmt.Errorf("failed to restore normal mode: %w", restoreErr))
	}
	return err
}

// driveDevice runs the host loop until done reports true or ctx ends.
func driveDevice(ctx context.Context, device *ld2402.Device, done func() bool) error {
	ticker := time.NewTicker(loopInterval)
	defer ticker.Stop()

	for {
		if err := device.Loop(ctx); err != nil {
			return fmt.Errorf("device loop: %w", err)
		}
		if done() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func formatReading(r ld2402.Reading) string {
	var b strings.Builder
	switch {
	case !r.Presence:
		b.WriteString("no target")
	case r.Movement:
		_, _ = fmt.Fprintf(&b, "moving target at %.0f cm", r.DistanceCM)
	default:
		_, _ = fmt.Fprintf(&b, "static target at %.0f cm", r.DistanceCM)
	}
	for _, g := range r.Gates {
		_, _ = fmt.Fprintf(&b, " %d:%.1f", g.Gate, g.DB)
	}
	return b.String()
}

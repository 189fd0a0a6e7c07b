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
	"fmt"
	"log/slog"

	"github.com/ZaparooProject/go-ld2402"
	"github.com/ZaparooProject/go-ld2402/outpin"
	"github.com/ZaparooProject/go-ld2402/polling"
	"github.com/ZaparooProject/go-ld2402/publish/mqtt"
)

// runMonitor connects the publisher, the sensor and the OUT pin watcher
// and reports occupancy until ctx is cancelled.
func runMonitor(ctx context.Context, cfg *cliConfig) error {
	var extra []ld2402.Option
	var pub *mqtt.Publisher
	if cfg.file.MQTTEnabled() {
		var err error
		pub, err = mqtt.Connect(cfg.file.MQTTConfig())
		if err != nil {
			return err
		}
		defer func() {
			if err := pub.Close(); err != nil {
				slog.Warn("failed to close MQTT publisher", "err", err)
			}
		}()
		extra = append(extra, ld2402.WithSensors(pub.Sensors()))
		slog.Info("publishing to MQTT", "broker", cfg.file.MQTT.Broker, "prefix", cfg.file.MQTT.TopicPrefix)
	}

	if cfg.file.OutPin != "" {
		opts := []outpin.Option{outpin.WithHandler(func(present bool) {
			slog.Info("OUT pin", "present", present)
		})}
		if pub != nil {
			opts = append(opts, outpin.WithSink(pub.Binary(mqtt.TopicOutPin)))
		}
		watcher, err := outpin.New(cfg.file.OutPin, opts...)
		if err != nil {
			return err
		}
		defer func() { _ = watcher.Close() }()
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("OUT pin watcher stopped", "err", err)
			}
		}()
	}

	device, err := connectToDevice(ctx, cfg, extra...)
	if err != nil {
		return err
	}
	reopen := func(ctx context.Context) (*ld2402.Device, error) {
		return connectToDevice(ctx, cfg, extra...)
	}
	return monitorDevice(ctx, device, cfg.file.PollingConfig(), reopen)
}

// monitorDevice runs an occupancy session on device. A lost sensor is
// reopened with reopen. The current device is closed on return.
func monitorDevice(
	ctx context.Context,
	device *ld2402.Device,
	config *polling.Config,
	reopen polling.ReopenFunc,
) error {
	session := polling.NewSession(device, config)
	if reopen != nil {
		rc := config.SleepRecovery
		session.SetRecoverer(polling.NewDefaultRecoverer(device, reopen, rc.RecoveryBackoff, rc.MaxRecoveryAttempts))
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Warn("failed to close session", "err", err)
		}
		if err := session.GetDevice().Close(); err != nil {
			slog.Warn("failed to close device", "err", err)
		}
	}()

	session.SetOnOccupied(func(r ld2402.Reading) {
		_, _ = fmt.Fprintf(stdout, "Occupied: %s\n", formatReading(r))
	})
	session.SetOnVacant(func() {
		_, _ = fmt.Fprintln(stdout, "Vacant")
	})
	session.SetOnReading(func(r ld2402.Reading) {
		slog.Debug("reading", "distance_cm", r.DistanceCM, "presence", r.Presence, "source", r.Source)
	})
	session.SetOnError(func(err error) {
		slog.Warn("sensor error", "err", err)
	})

	_, _ = fmt.Fprintln(stdout, "Monitoring presence. Press Ctrl+C to stop...")
	if err := session.Run(ctx); err != nil {
		return fmt.Errorf("monitor session ended: %w", err)
	}
	return nil
}

// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ld2402

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// EnterConfiguration opens a configuration session. It returns at once when
// a session is already open, and otherwise tries up to
// DeviceConfig.RetryConfig.MaxAttempts times, waiting on the scheduler in
// between.
func (d *Device) EnterConfiguration(ctx context.Context) error {
	if d.configActive {
		return nil
	}

	cfg := *d.config.RetryConfig
	cfg.Sleep = schedulerSleep(d.scheduler)
	err := RetryWithConfig(ctx, &cfg, func() error {
		_, err := d.Send(ctx, CmdEnterConfig, enterConfigPayload)
		return err
	})
	if err != nil {
		return fmt.Errorf("enter configuration: %w", err)
	}
	d.configActive = true
	Debugln("configuration mode active")
	return nil
}

// ExitConfiguration closes the configuration session. The local flag is
// cleared even when the device does not confirm: there is no reliable way
// to query the device's view, and a stuck flag would block normal operation.
func (d *Device) ExitConfiguration(ctx context.Context) error {
	_, err := d.Send(ctx, CmdExitConfig, nil)
	d.configActive = false
	if d.workMode == WorkModeEngineering {
		d.workMode = WorkModeProduction
		d.publisher.text(d.sensors.OperatingMode, WorkModeProduction.String())
	}
	if err != nil {
		return fmt.Errorf("exit configuration: %w", err)
	}
	Debugln("configuration mode closed")
	return nil
}

// GetParameter reads a parameter. The configuration session must be active.
func (d *Device) GetParameter(ctx context.Context, id ParameterID) (uint32, error) {
	return d.getParameter(ctx, id, d.config.Timeout)
}

func (d *Device) getParameter(ctx context.Context, id ParameterID, timeout time.Duration) (uint32, error) {
	req := binary.LittleEndian.AppendUint16(nil, uint16(id))
	resp, err := d.SendWithTimeout(ctx, CmdGetParameter, req, timeout)
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", id, err)
	}
	v, err := resp.Uint32()
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", id, err)
	}
	return v, nil
}

// SetParameter writes a parameter. The configuration session must be active.
func (d *Device) SetParameter(ctx context.Context, id ParameterID, value uint32) error {
	req := binary.LittleEndian.AppendUint16(nil, uint16(id))
	req = binary.LittleEndian.AppendUint32(req, value)
	if _, err := d.Send(ctx, CmdSetParameter, req); err != nil {
		return fmt.Errorf("set %s=%d: %w", id, value, err)
	}
	return nil
}

// SetWorkMode switches the work mode. WorkModeNormal is sent as
// WorkModeProduction, which is what the firmware acts on. The
// configuration session must be active.
func (d *Device) SetWorkMode(ctx context.Context, mode WorkMode) error {
	if mode == WorkModeNormal {
		mode = WorkModeProduction
	}
	req := binary.LittleEndian.AppendUint16(nil, 0)
	req = binary.LittleEndian.AppendUint32(req, uint32(mode))
	if _, err := d.Send(ctx, CmdSetWorkMode, req); err != nil {
		return fmt.Errorf("set work mode %s: %w", mode, err)
	}
	d.workMode = mode
	d.publisher.text(d.sensors.OperatingMode, mode.String())
	return nil
}

// FirmwareVersion queries the firmware version string.
func (d *Device) FirmwareVersion(ctx context.Context) (string, error) {
	resp, err := d.Send(ctx, CmdGetVersion, nil)
	if err != nil {
		return "", fmt.Errorf("get firmware version: %w", err)
	}
	return parseVersionString(resp.Value), nil
}

// SerialNumber queries the serial number, first in its hex encoding and
// then as characters for firmware without the hex query.
func (d *Device) SerialNumber(ctx context.Context) (string, error) {
	resp, hexErr := d.Send(ctx, CmdGetSerialHex, nil)
	if hexErr == nil {
		return formatSerialHex(resp.Value), nil
	}
	Debugf("hex serial number query failed, trying char encoding: %v", hexErr)

	resp, err := d.Send(ctx, CmdGetSerialChar, nil)
	if err != nil {
		return "", fmt.Errorf("get serial number: %w", errors.Join(hexErr, err))
	}
	return parseVersionString(resp.Value), nil
}

// SaveParameters commits the current parameters to the sensor's flash.
func (d *Device) SaveParameters(ctx context.Context) error {
	if _, err := d.Send(ctx, CmdSaveParameters, nil); err != nil {
		return fmt.Errorf("save parameters: %w", err)
	}
	return nil
}

// EnableAutoGain starts the device's auto-gain routine and arms the wait
// for its completion notification.
func (d *Device) EnableAutoGain(ctx context.Context) error {
	if d.autoGain.Phase.Active() {
		return ErrAutoGainActive
	}
	// Armed before sending: the completion notice can trail the
	// acknowledgement by only a few bytes.
	now := d.scheduler.Now()
	d.autoGain = AutoGainSession{
		Phase:     PhaseRequested,
		StartedAt: now,
		Deadline:  now.Add(d.config.AutoGainTimeout),
	}
	if _, err := d.Send(ctx, CmdEnableAutoGain, nil); err != nil {
		d.autoGain.Phase = PhaseFailed
		d.finishPending = false
		return fmt.Errorf("enable auto gain: %w", err)
	}
	return nil
}

// PowerInterference reads the power supply interference self-test result.
func (d *Device) PowerInterference(ctx context.Context) (PowerInterference, error) {
	v, err := d.getParameter(ctx, ParamPowerInterference, PowerInterferenceTimeout)
	if err != nil {
		return PowerInterferenceNotTested, err
	}
	return PowerInterference(v), nil
}

// SetMaxDistance writes the maximum detection distance.
func (d *Device) SetMaxDistance(ctx context.Context, meters float64) error {
	if meters < MinMaxDistanceMeters || meters > MaxMaxDistanceMeters {
		return fmt.Errorf("%w: max distance %.1f m outside %.1f-%.1f m",
			ErrInvalidParameter, meters, MinMaxDistanceMeters, MaxMaxDistanceMeters)
	}
	if err := d.SetParameter(ctx, ParamMaxDistance, MetersToDecimeters(meters)); err != nil {
		return err
	}
	d.info.MaxDistanceM = meters
	return nil
}

// SetInactivityTimeout writes how long presence is held after the target
// disappears.
func (d *Device) SetInactivityTimeout(ctx context.Context, seconds int) error {
	if seconds < 0 || seconds > MaxTimeoutSeconds {
		return fmt.Errorf("%w: timeout %d s outside 0-%d s", ErrInvalidParameter, seconds, MaxTimeoutSeconds)
	}
	if err := d.SetParameter(ctx, ParamTimeout, uint32(seconds)); err != nil {
		return err
	}
	d.info.TimeoutSeconds = uint32(seconds)
	return nil
}

// SetMotionThreshold writes a gate's motion trigger threshold in dB.
func (d *Device) SetMotionThreshold(ctx context.Context, gate int, db float64) error {
	id, err := MotionThresholdParam(gate)
	if err != nil {
		return err
	}
	return d.SetParameter(ctx, id, DBToRaw(db))
}

// SetMicromotionThreshold writes a gate's micromotion threshold in dB.
func (d *Device) SetMicromotionThreshold(ctx context.Context, gate int, db float64) error {
	id, err := MicromotionThresholdParam(gate)
	if err != nil {
		return err
	}
	return d.SetParameter(ctx, id, DBToRaw(db))
}

// Thresholds are the per-gate trigger thresholds in dB.
type Thresholds struct {
	Motion      [GateCount]float64
	Micromotion [GateCount]float64
}

// ReadThresholds reads every gate's motion and micromotion threshold.
func (d *Device) ReadThresholds(ctx context.Context) (Thresholds, error) {
	var t Thresholds
	for gate := range GateCount {
		motion, err := d.GetParameter(ctx, ParamMotionThresholdBase+ParameterID(gate)) //nolint:gosec // gate < GateCount
		if err != nil {
			return t, err
		}
		micro, err := d.GetParameter(ctx, ParamMicromotionThresholdBase+ParameterID(gate)) //nolint:gosec // gate < GateCount
		if err != nil {
			return t, err
		}
		t.Motion[gate] = RawToDB(motion)
		t.Micromotion[gate] = RawToDB(micro)
	}
	return t, nil
}

// Setup reads the firmware version and serial number, applies the
// configured max distance and timeout, reads back the sensor settings and
// the power interference state, and returns the sensor to normal mode.
// Only a failure to open the configuration session is returned; the rest
// is logged so the host can carry on with telemetry.
func (d *Device) Setup(ctx context.Context) error {
	if err := d.EnterConfiguration(ctx); err != nil {
		return err
	}
	defer d.exitQuietly(ctx)

	if v, err := d.FirmwareVersion(ctx); err != nil {
		Debugf("Warning: %v", err)
	} else {
		d.info.FirmwareVersion = v
		d.publisher.text(d.sensors.FirmwareVersion, v)
		Debugf("firmware version %s", v)
	}

	if sn, err := d.SerialNumber(ctx); err != nil {
		Debugf("Warning: %v", err)
	} else {
		d.info.SerialNumber = sn
	}

	if d.config.MaxDistanceM > 0 {
		if err := d.SetMaxDistance(ctx, d.config.MaxDistanceM); err != nil {
			Debugf("Warning: %v", err)
		}
	}
	if d.config.TimeoutSeconds >= 0 {
		if err := d.SetInactivityTimeout(ctx, d.config.TimeoutSeconds); err != nil {
			Debugf("Warning: %v", err)
		}
	}

	if dm, err := d.GetParameter(ctx, ParamMaxDistance); err != nil {
		Debugf("Warning: %v", err)
	} else {
		d.info.MaxDistanceM = DecimetersToMeters(dm)
	}
	if s, err := d.GetParameter(ctx, ParamTimeout); err != nil {
		Debugf("Warning: %v", err)
	} else {
		d.info.TimeoutSeconds = s
	}

	if pi, err := d.PowerInterference(ctx); err != nil {
		Debugf("Warning: %v", err)
	} else {
		d.info.PowerInterference = pi
		d.publisher.text(d.sensors.PowerInterference, pi.String())
	}

	d.workMode = WorkModeProduction
	d.publisher.text(d.sensors.OperatingMode, WorkModeNormal.String())
	Debugln(d.String())
	return nil
}

func (d *Device) exitQuietly(ctx context.Context) {
	if err := d.ExitConfiguration(ctx); err != nil {
		Debugf("Warning: %v", err)
	}
}

// withConfiguration runs fn inside a configuration session and closes the
// session afterwards unless a background operation still holds it.
func (d *Device) withConfiguration(ctx context.Context, fn func() error) error {
	if err := d.EnterConfiguration(ctx); err != nil {
		return err
	}
	err := fn()
	if d.sessionHeld() {
		return err
	}
	if exitErr := d.ExitConfiguration(ctx); exitErr != nil {
		return errors.Join(err, exitErr)
	}
	return err
}

// Calibrate starts a background calibration with the given coefficients
// (DefaultCoefficients when none are given). The configuration session
// stays open while Loop polls progress and is closed when calibration
// completes or times out.
func (d *Device) Calibrate(ctx context.Context, coeffs ...Coefficients) error {
	c := DefaultCoefficients()
	if len(coeffs) > 0 {
		c = coeffs[0]
	}
	if err := d.EnterConfiguration(ctx); err != nil {
		return err
	}
	if err := d.StartCalibration(ctx, c); err != nil {
		d.finishSession(ctx)
		return err
	}
	return nil
}

// SaveConfiguration saves the current parameters to flash.
func (d *Device) SaveConfiguration(ctx context.Context) error {
	return d.withConfiguration(ctx, func() error {
		return d.SaveParameters(ctx)
	})
}

// StartAutoGain starts auto-gain. The configuration session stays open
// until the completion notification arrives or AutoGainTimeout passes.
func (d *Device) StartAutoGain(ctx context.Context) error {
	if err := d.EnterConfiguration(ctx); err != nil {
		return err
	}
	if err := d.EnableAutoGain(ctx); err != nil {
		d.finishSession(ctx)
		return err
	}
	return nil
}

// SwitchToEngineeringMode enables per-gate energy frames. The sensor only
// streams them while the configuration session is open, so the session is
// left open until SwitchToNormalMode.
func (d *Device) SwitchToEngineeringMode(ctx context.Context) error {
	if err := d.EnterConfiguration(ctx); err != nil {
		return err
	}
	if err := d.SetWorkMode(ctx, WorkModeEngineering); err != nil {
		d.finishSession(ctx)
		return err
	}
	return nil
}

// SwitchToNormalMode returns the sensor to normal reporting.
func (d *Device) SwitchToNormalMode(ctx context.Context) error {
	return d.withConfiguration(ctx, func() error {
		return d.SetWorkMode(ctx, WorkModeNormal)
	})
}

// FactoryReset writes the default max distance, timeout and gate
// thresholds and saves them. A rejected parameter is logged and the
// sequence continues; all failures are returned joined.
func (d *Device) FactoryReset(ctx context.Context) error {
	return d.withConfiguration(ctx, func() error {
		var errs []error
		record := func(err error) {
			if err != nil {
				Debugf("Warning: factory reset: %v", err)
				errs = append(errs, err)
			}
		}

		record(d.SetMaxDistance(ctx, DefaultMaxDistanceMeters))
		record(d.SetInactivityTimeout(ctx, DefaultTimeoutSeconds))
		for gate := range GateCount {
			record(d.SetMotionThreshold(ctx, gate, DefaultMotionThresholdDB))
			record(d.SetMicromotionThreshold(ctx, gate, DefaultMicromotionThresholdDB))
		}
		record(d.SaveParameters(ctx))
		return errors.Join(errs...)
	})
}

// ReadSerialNumber reads the serial number inside its own session.
func (d *Device) ReadSerialNumber(ctx context.Context) (string, error) {
	var sn string
	err := d.withConfiguration(ctx, func() error {
		var err error
		sn, err = d.SerialNumber(ctx)
		return err
	})
	if sn != "" {
		d.info.SerialNumber = sn
	}
	return sn, err
}

// ReadFirmwareVersion reads the firmware version inside its own session.
func (d *Device) ReadFirmwareVersion(ctx context.Context) (string, error) {
	var v string
	err := d.withConfiguration(ctx, func() error {
		var err error
		v, err = d.FirmwareVersion(ctx)
		return err
	})
	if v != "" {
		d.info.FirmwareVersion = v
		d.publisher.text(d.sensors.FirmwareVersion, v)
	}
	return v, err
}

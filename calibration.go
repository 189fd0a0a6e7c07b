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
	"fmt"
	"time"
)

// SessionPhase is the lifecycle of a long-running device operation.
type SessionPhase int

// Session phases
const (
	PhaseIdle SessionPhase = iota
	PhaseRequested
	PhaseInProgress
	PhaseComplete
	PhaseTimedOut
	PhaseFailed
)

func (p SessionPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRequested:
		return "requested"
	case PhaseInProgress:
		return "in progress"
	case PhaseComplete:
		return "complete"
	case PhaseTimedOut:
		return "timed out"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Active reports whether the operation still needs ticks.
func (p SessionPhase) Active() bool {
	return p == PhaseRequested || p == PhaseInProgress
}

// Coefficients are the calibration threshold multipliers sent with
// start-calibration.
type Coefficients struct {
	Trigger     float64
	Hold        float64
	Micromotion float64
}

// DefaultCoefficients returns 3.0 for all three thresholds.
func DefaultCoefficients() Coefficients {
	return Coefficients{
		Trigger:     DefaultCalibrationCoefficient,
		Hold:        DefaultCalibrationCoefficient,
		Micromotion: DefaultCalibrationCoefficient,
	}
}

// encode clamps each coefficient to [1, 20] and emits three LE16 x10 values.
func (c Coefficients) encode() []byte {
	out := make([]byte, 0, 6)
	out = binary.LittleEndian.AppendUint16(out, clampCoefficient(c.Trigger))
	out = binary.LittleEndian.AppendUint16(out, clampCoefficient(c.Hold))
	out = binary.LittleEndian.AppendUint16(out, clampCoefficient(c.Micromotion))
	return out
}

// CalibrationSession tracks a background calibration. It is advanced by
// Device.Loop: a status query is sent only when NextCheckDueAt has passed,
// so telemetry keeps flowing between checks.
type CalibrationSession struct {
	StartedAt      time.Time
	NextCheckDueAt time.Time
	LastErr        error
	Coefficients   Coefficients
	Phase          SessionPhase
	Percent        int
}

// AutoGainSession tracks the wait for the auto-gain completion notification.
type AutoGainSession struct {
	StartedAt time.Time
	Deadline  time.Time
	Phase     SessionPhase
}

// StartCalibration sends the start-calibration command and arms the
// calibration session. The configuration session must be active.
func (d *Device) StartCalibration(ctx context.Context, coeffs Coefficients) error {
	if d.calibration.Phase.Active() {
		return ErrCalibrationActive
	}
	if _, err := d.Send(ctx, CmdStartCalibration, coeffs.encode()); err != nil {
		return fmt.Errorf("start calibration: %w", err)
	}

	now := d.scheduler.Now()
	d.calibration = CalibrationSession{
		Phase:          PhaseRequested,
		Coefficients:   coeffs,
		StartedAt:      now,
		NextCheckDueAt: now.Add(d.config.CalibrationPollInterval),
	}
	d.publisher.numeric(d.sensors.CalibrationProgress, 0)
	Debugf("calibration started (trigger %.1f, hold %.1f, micromotion %.1f)",
		coeffs.Trigger, coeffs.Hold, coeffs.Micromotion)
	return nil
}

// PollCalibrationStatus queries calibration progress once.
func (d *Device) PollCalibrationStatus(ctx context.Context) (CalibrationStatus, error) {
	resp, err := d.Send(ctx, CmdGetCalibrationStatus, nil)
	if err != nil {
		return CalibrationStatus{}, err
	}
	return ParseCalibrationStatus(resp.Value)
}

// Calibration returns a snapshot of the calibration session.
func (d *Device) Calibration() CalibrationSession {
	return d.calibration
}

// AutoGain returns a snapshot of the auto-gain session.
func (d *Device) AutoGain() AutoGainSession {
	return d.autoGain
}

// tickCalibration advances the calibration session by at most one status
// query. Parse failures are logged and retried on the next check.
func (d *Device) tickCalibration(ctx context.Context, now time.Time) {
	cal := &d.calibration
	if !cal.Phase.Active() || now.Before(cal.NextCheckDueAt) {
		return
	}

	if now.Sub(cal.StartedAt) >= d.config.CalibrationMaxDuration {
		cal.Phase = PhaseTimedOut
		Debugf("Warning: calibration did not finish within %s (last %d%%)",
			d.config.CalibrationMaxDuration, cal.Percent)
		d.finishSession(ctx)
		return
	}

	status, err := d.PollCalibrationStatus(ctx)
	cal.NextCheckDueAt = d.scheduler.Now().Add(d.config.CalibrationPollInterval)
	if err != nil {
		cal.LastErr = err
		Debugf("Warning: calibration status: %v", err)
		return
	}

	cal.Phase = PhaseInProgress
	cal.Percent = status.Percent
	cal.LastErr = nil
	d.publisher.numeric(d.sensors.CalibrationProgress, float64(status.Percent))
	Debugf("calibration progress %d%% (%s)", status.Percent, status.Format)

	if status.Done {
		cal.Phase = PhaseComplete
		d.finishSession(ctx)
	}
}

// tickAutoGain expires the auto-gain wait.
func (d *Device) tickAutoGain(ctx context.Context, now time.Time) {
	ag := &d.autoGain
	if !ag.Phase.Active() || now.Before(ag.Deadline) {
		return
	}
	ag.Phase = PhaseTimedOut
	Debugf("Warning: no auto gain completion within %s", d.config.AutoGainTimeout)
	d.finishSession(ctx)
}

// autoGainCompleted handles the device's completion notification. It runs
// inside the classifier, possibly during another command's wait, so the
// configuration session is closed later by Loop.
func (d *Device) autoGainCompleted() {
	if !d.autoGain.Phase.Active() {
		Debugln("auto gain completion received with no auto gain pending")
		return
	}
	d.autoGain.Phase = PhaseComplete
	d.finishPending = true
	Debugln("auto gain complete")
}

// finishSession closes the configuration session opened for a background
// operation once no other background operation still needs it.
func (d *Device) finishSession(ctx context.Context) {
	if d.sessionHeld() {
		return
	}
	if err := d.ExitConfiguration(ctx); err != nil {
		Debugf("Warning: %v", err)
	}
}

// sessionHeld reports whether a background operation or engineering mode
// still needs the configuration session open.
func (d *Device) sessionHeld() bool {
	return d.calibration.Phase.Active() || d.autoGain.Phase.Active() || d.workMode == WorkModeEngineering
}

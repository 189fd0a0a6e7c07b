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
	"fmt"
	"time"
)

// Option configures a Device at construction.
type Option func(*Device) error

// WithScheduler sets the cooperative scheduler. The default is a
// SystemScheduler with DefaultPollInterval.
func WithScheduler(s Scheduler) Option {
	return func(d *Device) error {
		if s == nil {
			return fmt.Errorf("%w: nil scheduler", ErrInvalidParameter)
		}
		d.scheduler = s
		return nil
	}
}

// WithTimeout sets the default command timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: command timeout must be positive, got %s", ErrInvalidParameter, timeout)
		}
		d.config.Timeout = timeout
		return nil
	}
}

// WithRetryConfig sets the retry policy for entering configuration mode.
func WithRetryConfig(cfg *RetryConfig) Option {
	return func(d *Device) error {
		if cfg == nil || cfg.MaxAttempts < 1 {
			return fmt.Errorf("%w: retry config needs at least one attempt", ErrInvalidParameter)
		}
		d.config.RetryConfig = cfg
		return nil
	}
}

// WithDistanceThrottle sets the minimum spacing of distance publications.
func WithDistanceThrottle(throttle time.Duration) Option {
	return func(d *Device) error {
		if throttle < 0 {
			return fmt.Errorf("%w: negative distance throttle", ErrInvalidParameter)
		}
		d.config.DistanceThrottle = throttle
		return nil
	}
}

// WithStaticRange sets the range within which presence counts as static.
func WithStaticRange(meters float64) Option {
	return func(d *Device) error {
		if meters < 0 {
			return fmt.Errorf("%w: negative static range", ErrInvalidParameter)
		}
		d.config.Ranges.StaticM = meters
		return nil
	}
}

// WithMicromovementRange sets the range within which presence counts as
// micromovement.
func WithMicromovementRange(meters float64) Option {
	return func(d *Device) error {
		if meters < 0 {
			return fmt.Errorf("%w: negative micromovement range", ErrInvalidParameter)
		}
		d.config.Ranges.MicromovementM = meters
		return nil
	}
}

// WithMaxDistance makes Setup write the maximum detection distance.
func WithMaxDistance(meters float64) Option {
	return func(d *Device) error {
		if meters < MinMaxDistanceMeters || meters > MaxMaxDistanceMeters {
			return fmt.Errorf("%w: max distance %.1f m outside %.1f-%.1f m",
				ErrInvalidParameter, meters, MinMaxDistanceMeters, MaxMaxDistanceMeters)
		}
		d.config.MaxDistanceM = meters
		return nil
	}
}

// WithInactivityTimeout makes Setup write the target disappearance delay.
func WithInactivityTimeout(seconds int) Option {
	return func(d *Device) error {
		if seconds < 0 || seconds > MaxTimeoutSeconds {
			return fmt.Errorf("%w: timeout %d s outside 0-%d s", ErrInvalidParameter, seconds, MaxTimeoutSeconds)
		}
		d.config.TimeoutSeconds = seconds
		return nil
	}
}

// WithCalibrationTiming sets how often calibration progress is queried and
// how long a calibration may run.
func WithCalibrationTiming(pollInterval, maxDuration time.Duration) Option {
	return func(d *Device) error {
		if pollInterval <= 0 || maxDuration <= 0 {
			return fmt.Errorf("%w: calibration timing must be positive", ErrInvalidParameter)
		}
		d.config.CalibrationPollInterval = pollInterval
		d.config.CalibrationMaxDuration = maxDuration
		return nil
	}
}

// WithAutoGainTimeout bounds the wait for the auto-gain completion notification.
func WithAutoGainTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: auto gain timeout must be positive", ErrInvalidParameter)
		}
		d.config.AutoGainTimeout = timeout
		return nil
	}
}

// WithSensors replaces every publication target at once.
func WithSensors(s Sensors) Option {
	return func(d *Device) error {
		*d.sensors = s
		return nil
	}
}

// WithDistanceSensor publishes the target distance in centimetres.
func WithDistanceSensor(sink NumericSink) Option {
	return func(d *Device) error {
		d.sensors.Distance = sink
		return nil
	}
}

// WithPresenceSensor publishes presence changes.
func WithPresenceSensor(sink BinarySink) Option {
	return func(d *Device) error {
		d.sensors.Presence = sink
		return nil
	}
}

// WithMovementSensor publishes movement changes.
func WithMovementSensor(sink BinarySink) Option {
	return func(d *Device) error {
		d.sensors.Movement = sink
		return nil
	}
}

// WithMicromovementSensor publishes micromovement changes.
func WithMicromovementSensor(sink BinarySink) Option {
	return func(d *Device) error {
		d.sensors.Micromovement = sink
		return nil
	}
}

// WithPowerInterferenceSensor publishes the power interference state.
func WithPowerInterferenceSensor(sink TextSink) Option {
	return func(d *Device) error {
		d.sensors.PowerInterference = sink
		return nil
	}
}

// WithCalibrationProgressSensor publishes calibration progress in percent.
func WithCalibrationProgressSensor(sink NumericSink) Option {
	return func(d *Device) error {
		d.sensors.CalibrationProgress = sink
		return nil
	}
}

// WithFirmwareVersionSensor publishes the firmware version.
func WithFirmwareVersionSensor(sink TextSink) Option {
	return func(d *Device) error {
		d.sensors.FirmwareVersion = sink
		return nil
	}
}

// WithOperatingModeSensor publishes the operating mode name.
func WithOperatingModeSensor(sink TextSink) Option {
	return func(d *Device) error {
		d.sensors.OperatingMode = sink
		return nil
	}
}

// WithGateEnergySensor publishes a gate's energy in dB from engineering frames.
func WithGateEnergySensor(gate int, sink NumericSink) Option {
	return func(d *Device) error {
		if gate < 0 || gate >= GateCount {
			return fmt.Errorf("%w: gate %d out of range 0-%d", ErrInvalidParameter, gate, GateCount-1)
		}
		d.sensors.GateEnergy[gate] = sink
		return nil
	}
}

// WithReadingHandler is called with every parsed reading, after the sensors.
func WithReadingHandler(fn func(Reading)) Option {
	return func(d *Device) error {
		d.onReading = fn
		return nil
	}
}

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

package polling

import "time"

// SleepRecoveryConfig controls what happens when the host wakes from
// suspend and the sensor may have been power cycled underneath it.
type SleepRecoveryConfig struct {
	// TimeDiscontinuityThreshold is how far past the tick interval a tick may
	// land before the gap counts as a suspend.
	TimeDiscontinuityThreshold time.Duration
	// RecoveryBackoff is the first wait between DefaultRecoverer attempts.
	RecoveryBackoff time.Duration
	// MaxRecoveryAttempts bounds DefaultRecoverer before the loop gives up.
	MaxRecoveryAttempts int
	Enabled             bool
}

// DefaultSleepRecoveryConfig enables wake detection with a 2s threshold.
func DefaultSleepRecoveryConfig() SleepRecoveryConfig {
	return SleepRecoveryConfig{
		Enabled:                    true,
		TimeDiscontinuityThreshold: 2 * time.Second,
		MaxRecoveryAttempts:        defaultRecoveryAttempts,
		RecoveryBackoff:            defaultRecoveryBackoff,
	}
}

// DetectSleep reports whether a tick arriving elapsed after the previous one
// means the host was suspended in between.
func (cfg SleepRecoveryConfig) DetectSleep(elapsed, tickInterval time.Duration) bool {
	return cfg.Enabled && elapsed > tickInterval+cfg.TimeDiscontinuityThreshold
}

// Config holds the host loop settings.
type Config struct {
	SleepRecovery SleepRecoveryConfig
	// TickInterval spaces Device.Loop calls. The sensor prints about ten
	// lines a second, so anything well under 100ms keeps up.
	TickInterval time.Duration
	// VacancyDelay holds occupancy after the sensor stops reporting a target.
	// Zero reports vacancy on the first tick after the OFF line.
	VacancyDelay time.Duration
	// SilenceTimeout is how long the sensor may stay quiet outside a
	// configuration session before recovery starts. Zero disables the check.
	SilenceTimeout time.Duration
}

// DefaultConfig returns a 20ms tick, a 5s silence limit and wake detection.
func DefaultConfig() *Config {
	return &Config{
		TickInterval:   20 * time.Millisecond,
		SilenceTimeout: 5 * time.Second,
		SleepRecovery:  DefaultSleepRecoveryConfig(),
	}
}

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

import "time"

// Command timeouts are measured against the Scheduler clock.
const (
	// DefaultCommandTimeout bounds the wait for an ordinary command response.
	DefaultCommandTimeout = 1000 * time.Millisecond
	// PowerInterferenceTimeout is used for the power interference query,
	// which the sensor answers only after its self-test.
	PowerInterferenceTimeout = 3000 * time.Millisecond
	// AutoGainCompletionTimeout bounds the wait for the asynchronous
	// auto-gain completion notification that follows the initial ACK.
	AutoGainCompletionTimeout = 10 * time.Second
	// DefaultPollInterval is how long SystemScheduler.Yield sleeps.
	DefaultPollInterval = 5 * time.Millisecond
)

// Configuration session retry constants.
const (
	// EnterConfigAttempts is the number of enter-configuration attempts.
	EnterConfigAttempts = 3
	// EnterConfigRetryDelay is the wait between enter-configuration attempts.
	EnterConfigRetryDelay = 500 * time.Millisecond
)

// Long-running device operations are polled across host ticks.
const (
	// CalibrationPollInterval is the spacing between calibration status queries.
	CalibrationPollInterval = 5 * time.Second
	// CalibrationMaxDuration caps a calibration session.
	CalibrationMaxDuration = 30 * time.Second
)

// Publication constants.
const (
	// DefaultDistanceThrottle limits how often the distance value is published.
	DefaultDistanceThrottle = 2000 * time.Millisecond
)

// Connection retry constants control how ConnectDevice retries Setup.
const (
	// DefaultConnectionRetries is the number of attempts to bring up a device.
	DefaultConnectionRetries = 3
	// ConnectionInitialBackoff is the initial delay between connection attempts.
	ConnectionInitialBackoff = 100 * time.Millisecond
	// ConnectionMaxBackoff is the maximum delay between connection attempts.
	ConnectionMaxBackoff = 500 * time.Millisecond
	// ConnectionBackoffMultiplier is the exponential backoff multiplier.
	ConnectionBackoffMultiplier = 2.0
	// ConnectionJitter is the random jitter factor (0.0-1.0).
	ConnectionJitter = 0.1
	// ConnectionRetryTimeout is the overall timeout for all connection attempts.
	ConnectionRetryTimeout = 20 * time.Second
)
